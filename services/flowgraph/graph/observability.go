// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// graphTracerName is the shared OTel tracer name for build operations.
const graphTracerName = "aleutian.flowgraph.graph"

// Package-level OTel instruments for graph builds. Lazily created so the
// global MeterProvider can be installed before first use.
var (
	graphInstrumentsOnce sync.Once

	// buildDuration measures wall time per Build call.
	//
	// Attributes:
	//   - status: "success" or "error"
	buildDuration metric.Float64Histogram

	// buildsTotal counts Build calls.
	//
	// Attributes:
	//   - status: "success" or "error"
	buildsTotal metric.Int64Counter

	// buildNodes distributes final node counts per successful build.
	buildNodes metric.Int64Histogram

	// resolvedCalls counts call resolution outcomes.
	//
	// Attributes:
	//   - outcome: "resolved" or "unresolved"
	resolvedCalls metric.Int64Counter
)

func graphInstruments() (metric.Float64Histogram, metric.Int64Counter, metric.Int64Histogram, metric.Int64Counter) {
	graphInstrumentsOnce.Do(func() {
		meter := otel.Meter(graphTracerName)
		var err error
		buildDuration, err = meter.Float64Histogram("flowgraph.build.duration",
			metric.WithDescription("Duration of graph builds."),
			metric.WithUnit("s"))
		if err != nil {
			otel.Handle(err)
		}
		buildsTotal, err = meter.Int64Counter("flowgraph.build.count",
			metric.WithDescription("Total graph builds."))
		if err != nil {
			otel.Handle(err)
		}
		buildNodes, err = meter.Int64Histogram("flowgraph.build.nodes",
			metric.WithDescription("Final node count per successful build."))
		if err != nil {
			otel.Handle(err)
		}
		resolvedCalls, err = meter.Int64Counter("flowgraph.resolve.calls",
			metric.WithDescription("Call resolution outcomes."))
		if err != nil {
			otel.Handle(err)
		}
	})
	return buildDuration, buildsTotal, buildNodes, resolvedCalls
}

// startBuildSpan opens the span covering one full Build call.
func startBuildSpan(ctx context.Context, projectRoot string, files int) (context.Context, trace.Span) {
	return otel.Tracer(graphTracerName).Start(ctx, "graph.Builder.Build",
		trace.WithAttributes(
			attribute.String("project_root", projectRoot),
			attribute.Int("files", files),
		))
}

// startResolveSpan opens the child span covering the resolve phase.
func startResolveSpan(ctx context.Context, nodes int) (context.Context, trace.Span) {
	return otel.Tracer(graphTracerName).Start(ctx, "graph.Resolver.ResolveNode",
		trace.WithAttributes(attribute.Int("nodes", nodes)))
}

// setBuildSpanResult attaches the final counters to the build span.
func setBuildSpanResult(span trace.Span, stats GraphStats) {
	span.SetAttributes(
		attribute.Int("files_processed", stats.FilesProcessed),
		attribute.Int("files_skipped", stats.FilesSkipped),
		attribute.Int("nodes_created", stats.NodesCreated),
		attribute.Int("edges_created", stats.EdgesCreated),
		attribute.Int("nodes_trimmed", stats.NodesTrimmed),
	)
}

// setResolveSpanResult attaches resolution counts to the resolve span.
func setResolveSpanResult(span trace.Span, resolved, unresolved int) {
	span.SetAttributes(
		attribute.Int("calls_resolved", resolved),
		attribute.Int("calls_unresolved", unresolved),
	)
}

// failSpan records err on the span and marks it failed.
func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// recordBuildMetrics records duration and count for a completed Build,
// success or failure.
//
// Thread Safety: Safe for concurrent use.
func recordBuildMetrics(ctx context.Context, duration time.Duration, stats GraphStats, success bool) {
	hist, count, nodesHist, _ := graphInstruments()

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
	if success && nodesHist != nil {
		nodesHist.Record(ctx, int64(stats.NodesCreated), attrs)
	}
}

// recordResolveMetrics records call resolution outcomes for one build.
//
// Thread Safety: Safe for concurrent use.
func recordResolveMetrics(ctx context.Context, resolved, unresolved int) {
	_, _, _, calls := graphInstruments()
	if calls == nil {
		return
	}
	calls.Add(ctx, int64(resolved),
		metric.WithAttributes(attribute.String("outcome", "resolved")))
	calls.Add(ctx, int64(unresolved),
		metric.WithAttributes(attribute.String("outcome", "unresolved")))
}
