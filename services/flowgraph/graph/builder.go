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
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// FileAnalyzer turns one source file into a populated file Group: the
// group tree, its nodes, and their raw Call/Variable records. Implemented
// per language; the builder never looks inside source files itself.
type FileAnalyzer interface {
	// AnalyzeFile parses path and returns its file group. Implementations
	// must be safe for concurrent calls and must draw every UID from alloc.
	AnalyzeFile(ctx context.Context, path string, alloc *UIDAllocator) (*Group, error)

	// FileImportToken returns the token the file is importable as.
	FileImportToken(path string) string
}

// ProgressPhase identifies the pipeline stage a progress report belongs to.
type ProgressPhase int

const (
	// PhaseAnalyzing covers per-file parsing and extraction.
	PhaseAnalyzing ProgressPhase = iota

	// PhaseIndexing covers the post-barrier index construction.
	PhaseIndexing

	// PhaseResolving covers call resolution and edge creation.
	PhaseResolving

	// PhaseFiltering covers subset filtering and orphan trimming.
	PhaseFiltering

	// PhaseDone is reported once, after Freeze.
	PhaseDone
)

// String returns the lowercase phase name.
func (p ProgressPhase) String() string {
	switch p {
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseIndexing:
		return "indexing"
	case PhaseResolving:
		return "resolving"
	case PhaseFiltering:
		return "filtering"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// BuildProgress is one progress report delivered to a ProgressFunc.
type BuildProgress struct {
	Phase      ProgressPhase
	FilesTotal int
	FilesDone  int
	Nodes      int
	Edges      int
}

// ProgressFunc receives progress reports during Build. Phase transitions
// always fire; per-file updates are rate limited. Called from builder
// goroutines, so implementations must be safe for concurrent use.
type ProgressFunc func(BuildProgress)

// Builder runs the analysis pipeline: parallel per-file analysis, a hard
// barrier, index construction, parallel call resolution, and the
// post-resolution filters. One Builder may run many Builds; each Build
// produces an independent frozen Graph.
type Builder struct {
	analyzer     FileAnalyzer
	logger       *slog.Logger
	projectRoot  string
	workerCount  int
	maxNodes     int
	maxEdges     int
	strict       bool
	limit        Limit
	subset       *SubsetParams
	trimOrphans  bool
	progress     ProgressFunc
	progressGate *rate.Limiter
}

// BuilderOption configures a Builder at construction.
type BuilderOption func(*Builder)

// WithLogger sets the logger for skip warnings and build summaries.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithProjectRoot records the analyzed project's root path on the graph.
func WithProjectRoot(root string) BuilderOption {
	return func(b *Builder) {
		b.projectRoot = root
	}
}

// WithWorkerCount bounds the analysis and resolution parallelism.
// Non-positive values are ignored.
func WithWorkerCount(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workerCount = n
		}
	}
}

// WithProgressCallback registers a progress receiver.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(b *Builder) {
		b.progress = fn
	}
}

// WithBuilderMaxNodes overrides the graph node cap. Non-positive values
// are ignored.
func WithBuilderMaxNodes(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxNodes = n
		}
	}
}

// WithBuilderMaxEdges overrides the graph edge cap. Non-positive values
// are ignored.
func WithBuilderMaxEdges(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxEdges = n
		}
	}
}

// WithStrict makes the first file analysis error abort the build instead
// of skipping the file.
func WithStrict(strict bool) BuilderOption {
	return func(b *Builder) {
		b.strict = strict
	}
}

// WithLimit installs exclude/include-only filters, applied between
// analysis and resolution.
func WithLimit(l Limit) BuilderOption {
	return func(b *Builder) {
		b.limit = l
	}
}

// WithSubset restricts the finished graph to the neighborhood of a target
// function. The params must already be validated.
func WithSubset(p SubsetParams) BuilderOption {
	return func(b *Builder) {
		b.subset = &p
	}
}

// WithTrimOrphans controls dropping of edgeless nodes after resolution.
// Trimming is on by default.
func WithTrimOrphans(trim bool) BuilderOption {
	return func(b *Builder) {
		b.trimOrphans = trim
	}
}

// NewBuilder creates a Builder around the given language analyzer.
//
// Defaults: slog.Default() logging, runtime.NumCPU() workers, trimming
// on, no filters, caps per DefaultMaxNodes/DefaultMaxEdges.
func NewBuilder(analyzer FileAnalyzer, opts ...BuilderOption) (*Builder, error) {
	if analyzer == nil {
		return nil, ErrNilAnalyzer
	}
	b := &Builder{
		analyzer:     analyzer,
		logger:       slog.Default(),
		workerCount:  runtime.NumCPU(),
		maxNodes:     DefaultMaxNodes,
		maxEdges:     DefaultMaxEdges,
		trimOrphans:  true,
		progressGate: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// BuildResult carries one finished run.
type BuildResult struct {
	// Graph is the frozen call graph.
	Graph *Graph

	// FileErrors maps skipped source paths to the error that excluded
	// them. Always empty in strict mode; a strict build fails instead.
	FileErrors map[string]error

	// Stats is a copy of the final build counters.
	Stats GraphStats
}

// Build runs the full pipeline over the given source files.
//
// Description:
//
//	Files are analyzed in parallel, each yielding an isolated file group.
//	Nothing is shared between files except the UID allocator, so no
//	ordering is imposed on this phase. After the barrier the surviving
//	groups are filtered, registered, and indexed; resolution then runs in
//	parallel per node against the read-only index and its edges are
//	merged in node registration order, keeping results independent of
//	scheduling. Subset filtering and orphan trimming run last, then the
//	graph is frozen.
//
// Inputs:
//   - ctx: cancels the build between and during phases.
//   - sources: file paths to analyze. Order defines node registration
//     order; callers pass the sorted output of a discovery walk.
//
// Outputs:
//   - *BuildResult: the frozen graph plus per-file skip errors.
//   - error: ErrNoSources for an empty source list, ErrBuildCancelled on
//     context cancellation, the first analysis error in strict mode, or a
//     cap/filter error.
func (b *Builder) Build(ctx context.Context, sources []string) (*BuildResult, error) {
	start := time.Now()
	ctx, span := startBuildSpan(ctx, b.projectRoot, len(sources))
	defer span.End()

	fail := func(err error) (*BuildResult, error) {
		failSpan(span, err)
		recordBuildMetrics(ctx, time.Since(start), GraphStats{}, false)
		return nil, err
	}

	if len(sources) == 0 {
		return fail(fmt.Errorf("%w: nothing to analyze", ErrNoSources))
	}

	g := NewGraph(b.projectRoot, WithMaxNodes(b.maxNodes), WithMaxEdges(b.maxEdges))
	alloc := NewUIDAllocator()

	fileGroups := make([]*Group, len(sources))
	fileErrs := make([]error, len(sources))

	b.reportProgress(BuildProgress{Phase: PhaseAnalyzing, FilesTotal: len(sources)}, true)

	var filesDone atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workerCount)
	for i, path := range sources {
		i, path := i, path // per-iteration copies; required while go.mod targets go < 1.22
		eg.Go(func() error {
			fg, err := b.analyzer.AnalyzeFile(egCtx, path, alloc)
			done := int(filesDone.Add(1))
			if err != nil {
				if b.strict {
					return fmt.Errorf("analyzing %s: %w", path, err)
				}
				b.logger.Warn("skipping file, calls into it will not resolve",
					slog.String("file", path),
					slog.String("module", b.analyzer.FileImportToken(path)),
					slog.String("error", err.Error()))
				fileErrs[i] = err
			} else {
				fileGroups[i] = fg
			}
			b.reportProgress(BuildProgress{
				Phase:      PhaseAnalyzing,
				FilesTotal: len(sources),
				FilesDone:  done,
			}, false)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fail(wrapCancellation(err))
	}
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrBuildCancelled, err))
	}

	// Barrier. Every surviving file group is complete; filters run on the
	// raw forest so excluded definitions are never indexed or resolved.
	survivors := make([]*Group, 0, len(fileGroups))
	fileErrors := make(map[string]error)
	for i, fg := range fileGroups {
		if fg != nil {
			survivors = append(survivors, fg)
			continue
		}
		fileErrors[sources[i]] = fileErrs[i]
	}
	survivors = b.limit.Apply(survivors, b.logger)

	for _, fg := range survivors {
		if err := g.AddFileGroup(fg); err != nil {
			return fail(err)
		}
	}
	g.setStats(func(s *GraphStats) { s.FilesSkipped = len(fileErrors) })

	b.reportProgress(BuildProgress{
		Phase:      PhaseIndexing,
		FilesTotal: len(sources),
		FilesDone:  len(sources),
		Nodes:      g.Stats().NodesCreated,
	}, true)
	idx := NewIndex(g)

	b.reportProgress(BuildProgress{
		Phase:      PhaseResolving,
		FilesTotal: len(sources),
		FilesDone:  len(sources),
		Nodes:      g.Stats().NodesCreated,
	}, true)
	resolveCtx, resolveSpan := startResolveSpan(ctx, len(g.Nodes()))
	resolver := NewResolver(idx)
	nodes := g.Nodes()
	edgesByNode := make([][]Edge, len(nodes))
	rg, rgCtx := errgroup.WithContext(resolveCtx)
	rg.SetLimit(b.workerCount)
	for i, n := range nodes {
		i, n := i, n // per-iteration copies; required while go.mod targets go < 1.22
		rg.Go(func() error {
			if err := rgCtx.Err(); err != nil {
				return err
			}
			edgesByNode[i] = resolver.ResolveNode(n)
			return nil
		})
	}
	if err := rg.Wait(); err != nil {
		resolveSpan.End()
		return fail(wrapCancellation(err))
	}

	// Merge in node registration order so edge order is deterministic.
	var resolved, unresolved int
	for i, n := range nodes {
		resolved += len(edgesByNode[i])
		unresolved += len(n.Calls) - len(edgesByNode[i])
		for _, e := range edgesByNode[i] {
			if err := g.AddEdge(e.Node0, e.Node1); err != nil {
				resolveSpan.End()
				return fail(err)
			}
		}
	}
	g.setStats(func(s *GraphStats) {
		s.CallsResolved = resolved
		s.CallsUnresolved = unresolved
	})
	setResolveSpanResult(resolveSpan, resolved, unresolved)
	resolveSpan.End()
	recordResolveMetrics(ctx, resolved, unresolved)

	b.reportProgress(BuildProgress{
		Phase:      PhaseFiltering,
		FilesTotal: len(sources),
		FilesDone:  len(sources),
		Nodes:      g.Stats().NodesCreated,
		Edges:      g.Stats().EdgesCreated,
	}, true)
	if b.subset != nil {
		if err := FilterForSubset(g, *b.subset); err != nil {
			return fail(err)
		}
	}
	if b.trimOrphans {
		TrimOrphans(g, b.logger)
	}

	g.setStats(func(s *GraphStats) {
		s.DurationMilli = time.Since(start).Milliseconds()
	})
	g.Freeze()

	stats := g.Stats()
	setBuildSpanResult(span, stats)
	recordBuildMetrics(ctx, time.Since(start), stats, true)
	b.logger.Info("graph build complete",
		slog.Int("files", stats.FilesProcessed),
		slog.Int("skipped", stats.FilesSkipped),
		slog.Int("nodes", len(g.Nodes())),
		slog.Int("edges", len(g.Edges())),
		slog.Int("calls_resolved", stats.CallsResolved),
		slog.Int("calls_unresolved", stats.CallsUnresolved),
		slog.Duration("duration", time.Since(start)))

	b.reportProgress(BuildProgress{
		Phase:      PhaseDone,
		FilesTotal: len(sources),
		FilesDone:  len(sources),
		Nodes:      len(g.Nodes()),
		Edges:      len(g.Edges()),
	}, true)

	return &BuildResult{Graph: g, FileErrors: fileErrors, Stats: stats}, nil
}

// reportProgress invokes the progress callback. Phase transitions pass
// force; per-file updates go through the rate gate.
func (b *Builder) reportProgress(p BuildProgress, force bool) {
	if b.progress == nil {
		return
	}
	if !force && !b.progressGate.Allow() {
		return
	}
	b.progress(p)
}

// wrapCancellation maps context errors onto the build's sentinel so
// callers can errors.Is against one value.
func wrapCancellation(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrBuildCancelled, err)
	}
	return err
}
