// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command flowgraph generates call graphs for Python projects.
//
// The root command analyzes the given sources and writes a DOT or JSON
// graph. Subcommands inspect the snapshot store and compare saved runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
	"github.com/AleutianAI/flowgraph/services/flowgraph/lang"
	"github.com/AleutianAI/flowgraph/services/flowgraph/render"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// Persistent flags shared by every command.
var (
	flagQuiet              bool
	flagVerbose            bool
	flagDebugObservability bool
)

// otelShutdown flushes the debug telemetry providers. Set only when
// --debug-observability installed them.
var otelShutdown func(context.Context) error

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps the failure to a process exit code. It is
// separate from main so tests can drive full invocations in-process.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer memguard.Purge()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)

	if otelShutdown != nil {
		if flushErr := otelShutdown(context.Background()); flushErr != nil {
			slog.Warn("flushing telemetry", slog.Any("error", flushErr))
		}
		otelShutdown = nil
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode distinguishes bad invocations (2) and missing analysis targets
// (3) from runtime failures (1).
func exitCode(err error) int {
	switch {
	case errors.Is(err, render.ErrUnsupportedFormat),
		errors.Is(err, graph.ErrInvalidSubset),
		errors.Is(err, lang.ErrNoSources):
		return 2
	case errors.Is(err, graph.ErrTargetNotFound),
		errors.Is(err, graph.ErrAmbiguousTarget),
		errors.Is(err, graph.ErrSnapshotNotFound):
		return 3
	default:
		return 1
	}
}

// newRootCommand assembles the flowgraph command tree. Each call builds a
// fresh tree and rebinds every flag variable to its default, so tests can
// execute commands back to back without state bleeding between runs.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgraph [sources...]",
		Short: "Generate call graphs for Python projects",
		Long: `Flowgraph parses Python sources, resolves which function calls which,
and writes the resulting call graph as Graphviz DOT or JSON.

Sources may be files or directories; directories are walked recursively.
The output extension selects the format: .dot/.gv for DOT, .json for JSON.`,
		Example: `  flowgraph myproject/ -o graph.gv
  flowgraph app.py lib/ -o graph.json --exclude-functions main
  flowgraph myproject/ --target-function Worker.run --upstream-depth 2
  flowgraph myproject/ --snapshot --snapshot-label "before refactor"`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		RunE:          runGenerateCommand,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false,
		"suppress most logging")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"add more logging")
	root.PersistentFlags().BoolVar(&flagDebugObservability, "debug-observability", false,
		"print OpenTelemetry spans and metrics to stdout when the run ends")
	root.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := setupLogging(); err != nil {
			return err
		}
		return setupDebugObservability()
	}

	registerGenerateFlags(root)
	root.AddCommand(newSnapshotsCommand())
	root.AddCommand(newDiffCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the flowgraph version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowgraph %s\n", version)
		},
	}
}

// setupLogging installs the process logger at the level the verbosity flags
// ask for: warn with --quiet, debug with --verbose, info otherwise.
func setupLogging() error {
	if flagQuiet && flagVerbose {
		return errors.New("--quiet and --verbose are mutually exclusive")
	}
	level := slog.LevelInfo
	switch {
	case flagQuiet:
		level = slog.LevelWarn
	case flagVerbose:
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// setupDebugObservability installs stdout trace and metric providers so the
// spans and counters recorded during the run are printed when it ends. The
// run function flushes them through otelShutdown.
func setupDebugObservability() error {
	if !flagDebugObservability {
		return nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("creating stdout trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("creating stdout metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	otelShutdown = func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return nil
}

// ANSI escapes for TTY-styled output.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

// paint wraps s in an ANSI escape when stdout is a terminal.
func paint(code, s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return code + s + ansiReset
}
