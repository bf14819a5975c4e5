// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// parseTracerName is the shared OTel tracer name for parser operations.
const parseTracerName = "aleutian.flowgraph.ast"

// Package-level OTel instruments for parse operations. Lazily created so the
// global MeterProvider can be installed before first use.
var (
	parseInstrumentsOnce sync.Once

	// parseDuration measures wall time per Parse call.
	//
	// Attributes:
	//   - status: "success" or "error"
	parseDuration metric.Float64Histogram

	// parsesTotal counts Parse calls.
	//
	// Attributes:
	//   - status: "success" or "error"
	parsesTotal metric.Int64Counter

	// parsedBytes counts source bytes handed to the parser.
	//
	// Attributes:
	//   - status: "success" or "error"
	parsedBytes metric.Int64Counter
)

func parseInstruments() (metric.Float64Histogram, metric.Int64Counter, metric.Int64Counter) {
	parseInstrumentsOnce.Do(func() {
		meter := otel.Meter(parseTracerName)
		var err error
		parseDuration, err = meter.Float64Histogram("flowgraph.parse.duration",
			metric.WithDescription("Duration of Python source parses."),
			metric.WithUnit("s"))
		if err != nil {
			otel.Handle(err)
		}
		parsesTotal, err = meter.Int64Counter("flowgraph.parse.count",
			metric.WithDescription("Total Python source parses."))
		if err != nil {
			otel.Handle(err)
		}
		parsedBytes, err = meter.Int64Counter("flowgraph.parse.bytes",
			metric.WithDescription("Total source bytes handed to the parser."),
			metric.WithUnit("By"))
		if err != nil {
			otel.Handle(err)
		}
	})
	return parseDuration, parsesTotal, parsedBytes
}

// startParseSpan opens a span covering one Parse call.
func startParseSpan(ctx context.Context, filePath string, sizeBytes int) (context.Context, trace.Span) {
	return otel.Tracer(parseTracerName).Start(ctx, "ast.PythonParser.Parse",
		trace.WithAttributes(
			attribute.String("file", filePath),
			attribute.Int("size_bytes", sizeBytes),
		))
}

// setParseSpanResult attaches the outcome of a successful parse to its span.
func setParseSpanResult(span trace.Span, statements int) {
	span.SetAttributes(attribute.Int("statements", statements))
}

// recordParseMetrics records duration and count for a completed Parse call,
// success or failure.
//
// Thread Safety: Safe for concurrent use.
func recordParseMetrics(ctx context.Context, duration time.Duration, sizeBytes int, success bool) {
	hist, count, bytes := parseInstruments()

	status := "success"
	if !success {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))

	if hist != nil {
		hist.Record(ctx, duration.Seconds(), attrs)
	}
	if count != nil {
		count.Add(ctx, 1, attrs)
	}
	if bytes != nil {
		bytes.Add(ctx, int64(sizeBytes), attrs)
	}
}
