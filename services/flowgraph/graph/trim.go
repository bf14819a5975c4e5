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
	"fmt"
	"log/slog"
)

// Limit is the pre-resolution filter set. Tokens match exactly against
// node tokens (function filters) and group tokens (namespace filters).
type Limit struct {
	// ExcludeFunctions drops nodes by token.
	ExcludeFunctions []string

	// ExcludeNamespaces drops every node under a matching group.
	ExcludeNamespaces []string

	// IncludeOnlyFunctions, when non-empty, keeps only matching nodes.
	IncludeOnlyFunctions []string

	// IncludeOnlyNamespaces, when non-empty, keeps a group's direct nodes
	// only when the group or one of its ancestors matches.
	IncludeOnlyNamespaces []string
}

// Empty reports whether no filter is set.
func (l Limit) Empty() bool {
	return len(l.ExcludeFunctions) == 0 && len(l.ExcludeNamespaces) == 0 &&
		len(l.IncludeOnlyFunctions) == 0 && len(l.IncludeOnlyNamespaces) == 0
}

// Apply removes filtered definitions from the forest in place and returns
// it. Namespace filters run first, then function filters. Exclude entries
// that matched nothing are logged as warnings; groups left empty stay in
// the forest for orphan trimming to deal with.
func (l Limit) Apply(fileGroups []*Group, logger *slog.Logger) []*Group {
	if l.Empty() {
		return fileGroups
	}
	if logger == nil {
		logger = slog.Default()
	}

	excludeNS := tokenSet(l.ExcludeNamespaces)
	includeNS := tokenSet(l.IncludeOnlyNamespaces)
	if len(excludeNS) > 0 || len(includeNS) > 0 {
		matched := make(map[string]bool)
		for _, fg := range fileGroups {
			for _, grp := range fg.AllGroups() {
				if excludeNS[grp.Token] {
					matched[grp.Token] = true
					for _, sub := range grp.AllGroups() {
						clearNodes(sub)
					}
					continue
				}
				if len(includeNS) > 0 && !includeNS[grp.Token] && !ancestorIn(grp, includeNS) {
					clearNodes(grp)
				}
			}
		}
		for _, ns := range l.ExcludeNamespaces {
			if !matched[ns] {
				logger.Warn("could not exclude namespace: not found",
					slog.String("namespace", ns))
			}
		}
	}

	excludeFn := tokenSet(l.ExcludeFunctions)
	includeFn := tokenSet(l.IncludeOnlyFunctions)
	if len(excludeFn) > 0 || len(includeFn) > 0 {
		matched := make(map[string]bool)
		for _, fg := range fileGroups {
			for _, grp := range fg.AllGroups() {
				kept := grp.Nodes[:0]
				for _, n := range grp.Nodes {
					if excludeFn[n.Token] {
						matched[n.Token] = true
					} else if len(includeFn) == 0 || includeFn[n.Token] {
						kept = append(kept, n)
						continue
					}
					if grp.RootNode == n {
						grp.RootNode = nil
					}
				}
				grp.Nodes = kept
			}
		}
		for _, fn := range l.ExcludeFunctions {
			if !matched[fn] {
				logger.Warn("could not exclude function: not found",
					slog.String("function", fn))
			}
		}
	}

	return fileGroups
}

func tokenSet(tokens []string) map[string]bool {
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func clearNodes(grp *Group) {
	grp.Nodes = nil
	grp.RootNode = nil
}

func ancestorIn(grp *Group, set map[string]bool) bool {
	for p := grp.Parent; p != nil; p = p.Parent {
		if set[p.Token] {
			return true
		}
	}
	return false
}

// SubsetParams restricts a finished graph to the neighborhood of one
// target function.
type SubsetParams struct {
	// TargetFunction names the center node: "func", "class.func", or
	// "file::class.func".
	TargetFunction string

	// UpstreamDepth is how many caller hops to keep.
	UpstreamDepth int

	// DownstreamDepth is how many callee hops to keep.
	DownstreamDepth int
}

// Validate checks the flag contract: a depth requires a target, a target
// requires at least one depth, and depths must not be negative.
func (p SubsetParams) Validate() error {
	if p.UpstreamDepth != 0 && p.TargetFunction == "" {
		return fmt.Errorf("%w: --upstream-depth requires --target-function", ErrInvalidSubset)
	}
	if p.DownstreamDepth != 0 && p.TargetFunction == "" {
		return fmt.Errorf("%w: --downstream-depth requires --target-function", ErrInvalidSubset)
	}
	if p.TargetFunction == "" {
		return nil
	}
	if p.UpstreamDepth == 0 && p.DownstreamDepth == 0 {
		return fmt.Errorf("%w: --target-function requires --upstream-depth or --downstream-depth", ErrInvalidSubset)
	}
	if p.UpstreamDepth < 0 {
		return fmt.Errorf("%w: --upstream-depth must be >= 0", ErrInvalidSubset)
	}
	if p.DownstreamDepth < 0 {
		return fmt.Errorf("%w: --downstream-depth must be >= 0", ErrInvalidSubset)
	}
	return nil
}

// FilterForSubset cuts g down to the target's neighborhood: the target
// node, callers within UpstreamDepth hops, and callees within
// DownstreamDepth hops. Edges with either endpoint outside the kept set
// are dropped, then groups left empty. Must run before Freeze.
func FilterForSubset(g *Graph, params SubsetParams) error {
	nodes := g.Nodes()
	target, err := findTargetNode(nodes, params.TargetFunction)
	if err != nil {
		return err
	}

	up := make(map[*Node][]*Node)
	down := make(map[*Node][]*Node)
	for _, e := range g.Edges() {
		up[e.Node1] = append(up[e.Node1], e.Node0)
		down[e.Node0] = append(down[e.Node0], e.Node1)
	}

	include := map[*Node]bool{target: true}
	walk := func(adj map[*Node][]*Node, depth int) {
		visited := map[*Node]bool{target: true}
		frontier := []*Node{target}
		for i := 0; i < depth && len(frontier) > 0; i++ {
			var next []*Node
			for _, n := range frontier {
				for _, m := range adj[n] {
					if visited[m] {
						continue
					}
					visited[m] = true
					include[m] = true
					next = append(next, m)
				}
			}
			frontier = next
		}
	}
	walk(down, params.DownstreamDepth)
	walk(up, params.UpstreamDepth)

	drop := make(map[*Node]bool)
	for _, n := range nodes {
		if !include[n] {
			drop[n] = true
		}
	}
	g.removeNodes(drop)
	return nil
}

// findTargetNode matches target against node tokens, ownership-qualified
// tokens, and fully qualified names, in that order of looseness. Exactly
// one node must match.
func findTargetNode(nodes []*Node, target string) (*Node, error) {
	var matches []*Node
	for _, n := range nodes {
		if n.Token == target || n.TokenWithOwnership() == target || n.QualifiedName() == target {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, target)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %q matches %d nodes, qualify it as class.func or file::class.func",
			ErrAmbiguousTarget, target, len(matches))
	}
	return matches[0], nil
}

// TrimOrphans drops nodes that ended the run on no edge at all, then any
// groups left empty. Files whose nodes all dropped disappear from the
// graph entirely. Must run before Freeze.
func TrimOrphans(g *Graph, logger *slog.Logger) {
	connected := make(map[*Node]bool)
	for _, e := range g.Edges() {
		connected[e.Node0] = true
		connected[e.Node1] = true
	}

	drop := make(map[*Node]bool)
	for _, n := range g.Nodes() {
		if !connected[n] {
			drop[n] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	g.removeNodes(drop)
	if logger != nil {
		logger.Info("trimmed functions that neither make nor receive calls",
			slog.Int("count", len(drop)))
	}
}
