// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/flowgraph/services/flowgraph/config"
	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
	"github.com/AleutianAI/flowgraph/services/flowgraph/lang"
	"github.com/AleutianAI/flowgraph/services/flowgraph/render"
)

// defaultOutputFile is written when neither the --output flag nor the
// config file names a path.
const defaultOutputFile = "out.gv"

// neo4jPasswordEnv names the environment variable holding the Neo4j
// password. The password is never accepted as a flag or config value.
const neo4jPasswordEnv = "FLOWGRAPH_NEO4J_PASSWORD"

// Generate flags, bound in registerGenerateFlags.
var (
	genOutput                string
	genTargetFunction        string
	genUpstreamDepth         int
	genDownstreamDepth       int
	genExcludeFunctions      []string
	genExcludeNamespaces     []string
	genIncludeOnlyFunctions  []string
	genIncludeOnlyNamespaces []string
	genNoGrouping            bool
	genNoTrimming            bool
	genHideLegend            bool
	genSkipParseErrors       bool
	genStrict                bool
	genWorkers               int
	genSnapshot              bool
	genSnapshotLabel         string
	genSnapshotDir           string
	genNeo4jURI              string
	genNeo4jUser             string
	genNeo4jClean            bool
)

func registerGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&genOutput, "output", "o", defaultOutputFile,
		"output file path; the extension selects the format (.dot/.gv/.json)")
	f.StringVar(&genTargetFunction, "target-function", "",
		"render a subset of the graph centered on this function; formats are func, class.func, and file::class.func")
	f.IntVar(&genUpstreamDepth, "upstream-depth", 0,
		"include functions up to this many calls upstream of --target-function")
	f.IntVar(&genDownstreamDepth, "downstream-depth", 0,
		"include functions up to this many calls downstream of --target-function")
	f.StringSliceVar(&genExcludeFunctions, "exclude-functions", nil,
		"exclude functions by exact name (comma delimited)")
	f.StringSliceVar(&genExcludeNamespaces, "exclude-namespaces", nil,
		"exclude files or classes by exact name (comma delimited)")
	f.StringSliceVar(&genIncludeOnlyFunctions, "include-only-functions", nil,
		"keep only the named functions (comma delimited)")
	f.StringSliceVar(&genIncludeOnlyNamespaces, "include-only-namespaces", nil,
		"keep only the named files or classes (comma delimited)")
	f.BoolVar(&genNoGrouping, "no-grouping", false,
		"let functions float instead of grouping them into file and class clusters")
	f.BoolVar(&genNoTrimming, "no-trimming", false,
		"keep functions that neither make nor receive calls")
	f.BoolVar(&genHideLegend, "hide-legend", false,
		"omit the legend from DOT output")
	f.BoolVar(&genSkipParseErrors, "skip-parse-errors", true,
		"skip files the parser fails on instead of aborting")
	f.BoolVar(&genStrict, "strict", false,
		"abort on the first unparsable file")
	f.IntVar(&genWorkers, "workers", 0,
		"parallel analysis workers (0 means one per CPU)")
	f.BoolVar(&genSnapshot, "snapshot", false,
		"persist this run to the snapshot store")
	f.StringVar(&genSnapshotLabel, "snapshot-label", "",
		"optional label recorded with --snapshot")
	f.StringVar(&genSnapshotDir, "snapshot-dir", "",
		"snapshot store directory (default .flowgraph under the project root)")
	f.StringVar(&genNeo4jURI, "neo4j-uri", "",
		"export the graph to this Neo4j endpoint; password comes from "+neo4jPasswordEnv)
	f.StringVar(&genNeo4jUser, "neo4j-user", "neo4j",
		"Neo4j user name")
	f.BoolVar(&genNeo4jClean, "neo4j-clean", false,
		"delete previously exported flowgraph data before exporting")
}

// runGenerateCommand analyzes the sources and writes the call graph.
//
// Description:
//
//	Loads the optional project config, overlays the flags, and runs the
//	pipeline: discover sources, build the graph, render it to the output
//	path. When asked it also persists a snapshot and exports to Neo4j.
//
// Outputs:
//   - error: the first failure; sentinel-wrapped errors map to distinct
//     process exit codes in run.
func runGenerateCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	ctx := cmd.Context()
	logger := slog.Default()

	root, err := projectRoot(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	applyGenerateFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Reject unsupported output formats before doing any work.
	renderer, err := render.ForPath(cfg.Output)
	if err != nil {
		return err
	}

	subset, err := subsetFromFlags()
	if err != nil {
		return err
	}

	sources, err := lang.DiscoverSources(args...)
	if err != nil {
		return err
	}

	result, err := buildGraph(ctx, root, sources, cfg, subset, logger)
	if err != nil {
		return err
	}

	out, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	opts := render.Options{NoGrouping: cfg.NoGrouping, HideLegend: cfg.HideLegend}
	if err := renderer.Render(out, result.Graph, opts); err != nil {
		out.Close()
		return fmt.Errorf("rendering %s: %w", cfg.Output, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	if genSnapshot {
		dir := cfg.SnapshotDir
		if dir == "" {
			dir = filepath.Join(root, defaultSnapshotDirName)
		}
		meta, err := saveSnapshot(ctx, result.Graph, dir, genSnapshotLabel, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot saved: %s\n", meta.SnapshotID)
	}

	if cfg.Neo4j.URI != "" {
		if err := exportNeo4j(ctx, result.Graph, cfg.Neo4j, logger); err != nil {
			return err
		}
	}

	printSummary(cmd.OutOrStdout(), result, cfg.Output)
	return nil
}

// projectRoot derives the root used for config lookup and snapshot keying
// from the first source argument: the directory itself, or the file's
// directory.
func projectRoot(source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("reading source path: %w", err)
	}
	if !info.IsDir() {
		return filepath.Dir(abs), nil
	}
	return abs, nil
}

// applyGenerateFlags overlays command-line flags onto the file config.
// Flags that were set explicitly always win; boolean switches combine so
// either source can turn a behavior on.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") || cfg.Output == "" {
		cfg.Output = genOutput
	}
	if flags.Changed("workers") {
		cfg.Workers = genWorkers
	}
	if flags.Changed("exclude-functions") {
		cfg.ExcludeFunctions = genExcludeFunctions
	}
	if flags.Changed("exclude-namespaces") {
		cfg.ExcludeNamespaces = genExcludeNamespaces
	}
	if flags.Changed("include-only-functions") {
		cfg.IncludeOnlyFunctions = genIncludeOnlyFunctions
	}
	if flags.Changed("include-only-namespaces") {
		cfg.IncludeOnlyNamespaces = genIncludeOnlyNamespaces
	}
	cfg.NoGrouping = cfg.NoGrouping || genNoGrouping
	cfg.NoTrimming = cfg.NoTrimming || genNoTrimming
	cfg.HideLegend = cfg.HideLegend || genHideLegend
	cfg.Strict = cfg.Strict || genStrict || !genSkipParseErrors
	if flags.Changed("snapshot-dir") {
		cfg.SnapshotDir = genSnapshotDir
	}
	if flags.Changed("neo4j-uri") || cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = genNeo4jURI
	}
	if flags.Changed("neo4j-user") || cfg.Neo4j.User == "" {
		cfg.Neo4j.User = genNeo4jUser
	}
}

// subsetFromFlags validates the target-function flags and returns the
// subset parameters, or nil when no subset was requested.
func subsetFromFlags() (*graph.SubsetParams, error) {
	if genTargetFunction == "" && genUpstreamDepth == 0 && genDownstreamDepth == 0 {
		return nil, nil
	}
	sp := graph.SubsetParams{
		TargetFunction:  genTargetFunction,
		UpstreamDepth:   genUpstreamDepth,
		DownstreamDepth: genDownstreamDepth,
	}
	if err := sp.Validate(); err != nil {
		return nil, err
	}
	return &sp, nil
}

// buildGraph assembles the analyzer and builder from the merged config and
// runs the pipeline over the discovered sources.
func buildGraph(ctx context.Context, root string, sources []string, cfg config.Config,
	subset *graph.SubsetParams, logger *slog.Logger) (*graph.BuildResult, error) {

	langOpts := []lang.PythonOption{lang.WithPythonLogger(logger)}
	if cfg.MaxFileSizeBytes > 0 {
		langOpts = append(langOpts, lang.WithMaxFileSize(cfg.MaxFileSizeBytes))
	}
	analyzer := lang.NewPython(langOpts...)

	builderOpts := []graph.BuilderOption{
		graph.WithLogger(logger),
		graph.WithProjectRoot(root),
		graph.WithStrict(cfg.Strict),
		graph.WithTrimOrphans(!cfg.NoTrimming),
	}
	if cfg.Workers > 0 {
		builderOpts = append(builderOpts, graph.WithWorkerCount(cfg.Workers))
	}
	if cfg.MaxNodes > 0 {
		builderOpts = append(builderOpts, graph.WithBuilderMaxNodes(cfg.MaxNodes))
	}
	if cfg.MaxEdges > 0 {
		builderOpts = append(builderOpts, graph.WithBuilderMaxEdges(cfg.MaxEdges))
	}
	limit := graph.Limit{
		ExcludeFunctions:      cfg.ExcludeFunctions,
		ExcludeNamespaces:     cfg.ExcludeNamespaces,
		IncludeOnlyFunctions:  cfg.IncludeOnlyFunctions,
		IncludeOnlyNamespaces: cfg.IncludeOnlyNamespaces,
	}
	if !limit.Empty() {
		builderOpts = append(builderOpts, graph.WithLimit(limit))
	}
	if subset != nil {
		builderOpts = append(builderOpts, graph.WithSubset(*subset))
	}
	if progress := newProgressPrinter(); progress != nil {
		builderOpts = append(builderOpts, graph.WithProgressCallback(progress))
	}

	builder, err := graph.NewBuilder(analyzer, builderOpts...)
	if err != nil {
		return nil, err
	}
	return builder.Build(ctx, sources)
}

// newProgressPrinter returns a single-line progress callback when stderr is
// an interactive terminal and --quiet is off, else nil. The final report
// erases the line so the summary prints clean.
func newProgressPrinter() graph.ProgressFunc {
	if flagQuiet || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return func(p graph.BuildProgress) {
		if p.Phase == graph.PhaseDone {
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		}
		fmt.Fprintf(os.Stderr, "\r\033[K%s: %d/%d files, %d nodes, %d edges",
			p.Phase, p.FilesDone, p.FilesTotal, p.Nodes, p.Edges)
	}
}

// printSummary reports the completed run on one line, bold green on a
// terminal.
func printSummary(w io.Writer, result *graph.BuildResult, outPath string) {
	stats := result.Stats
	line := fmt.Sprintf("wrote %s: %d nodes, %d edges (%d files, %d skipped, %dms)",
		outPath, len(result.Graph.Nodes()), len(result.Graph.Edges()),
		stats.FilesProcessed, stats.FilesSkipped, stats.DurationMilli)
	fmt.Fprintln(w, paint(ansiBold+ansiGreen, line))
}

// saveSnapshot persists the graph to the badger store at dir, creating the
// store on first use.
func saveSnapshot(ctx context.Context, g *graph.Graph, dir, label string,
	logger *slog.Logger) (*graph.SnapshotMetadata, error) {

	db, err := graph.OpenSnapshotDB(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	mgr, err := graph.NewSnapshotManager(db, logger)
	if err != nil {
		return nil, err
	}
	return mgr.Save(ctx, g, label)
}

// exportNeo4j loads the graph into Neo4j. The password comes from the
// environment and lives in a memguard enclave until the driver opens it.
func exportNeo4j(ctx context.Context, g *graph.Graph, cfg config.Neo4jConfig,
	logger *slog.Logger) error {

	password := os.Getenv(neo4jPasswordEnv)
	if password == "" {
		return fmt.Errorf("%s must be set to export to neo4j", neo4jPasswordEnv)
	}
	enclave := memguard.NewEnclave([]byte(password))

	opts := []render.Neo4jOption{render.WithNeo4jLogger(logger)}
	if cfg.BatchSize > 0 {
		opts = append(opts, render.WithNeo4jBatchSize(cfg.BatchSize))
	}
	if genNeo4jClean {
		opts = append(opts, render.WithClean())
	}

	exporter, err := render.NewNeo4jExporter(ctx, cfg.URI, cfg.User, enclave, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := exporter.Close(ctx); err != nil {
			logger.Warn("closing neo4j exporter", slog.Any("error", err))
		}
	}()
	return exporter.Export(ctx, g)
}
