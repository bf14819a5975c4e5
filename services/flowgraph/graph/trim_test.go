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
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func nodeTokens(nodes []*Node) string {
	tokens := make([]string, len(nodes))
	for i, n := range nodes {
		tokens[i] = n.Token
	}
	return strings.Join(tokens, ",")
}

func TestLimit_Empty(t *testing.T) {
	if !(Limit{}).Empty() {
		t.Error("zero Limit not Empty")
	}
	if (Limit{ExcludeFunctions: []string{"f"}}).Empty() {
		t.Error("Limit with a filter reported Empty")
	}
}

func TestLimit_ExcludeFunctions(t *testing.T) {
	f := newTestForest()
	alpha := f.file("alpha")
	f.fn(alpha, "helper", 1, nil, nil)
	f.fn(alpha, "worker", 3, nil, nil)
	beta := f.file("beta")
	f.fn(beta, "helper", 1, nil, nil)

	l := Limit{ExcludeFunctions: []string{"helper"}}
	out := l.Apply([]*Group{alpha, beta}, quietLogger())

	if got, want := nodeTokens(out[0].AllNodes()), "(global),worker"; got != want {
		t.Errorf("alpha nodes = %s, want %s", got, want)
	}
	if got, want := nodeTokens(out[1].AllNodes()), "(global)"; got != want {
		t.Errorf("beta nodes = %s, want %s", got, want)
	}
}

func TestLimit_ExcludeRootClearsPointer(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	f.fn(fg, "worker", 1, nil, nil)

	l := Limit{ExcludeFunctions: []string{RootNodeToken}}
	l.Apply([]*Group{fg}, quietLogger())

	if fg.RootNode != nil {
		t.Error("RootNode pointer survived its node's exclusion")
	}
	if got, want := nodeTokens(fg.AllNodes()), "worker"; got != want {
		t.Errorf("nodes = %s, want %s", got, want)
	}
}

func TestLimit_IncludeOnlyFunctions(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	f.fn(fg, "keep", 1, nil, nil)
	f.fn(fg, "drop", 3, nil, nil)
	cls := f.class(fg, "Worker", 5)
	f.fn(cls, "keep", 6, nil, nil)

	l := Limit{IncludeOnlyFunctions: []string{"keep"}}
	l.Apply([]*Group{fg}, quietLogger())

	if got, want := nodeTokens(fg.AllNodes()), "keep,keep"; got != want {
		t.Errorf("nodes = %s, want %s", got, want)
	}
}

func TestLimit_ExcludeNamespaces(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	f.fn(fg, "toplevel", 1, nil, nil)
	worker := f.class(fg, "Worker", 3)
	f.fn(worker, "run", 4, nil, nil)
	inner := f.class(worker, "Inner", 6)
	f.fn(inner, "go", 7, nil, nil)

	l := Limit{ExcludeNamespaces: []string{"Worker"}}
	l.Apply([]*Group{fg}, quietLogger())

	// Excluding a class empties it and everything nested under it; the
	// file's own nodes are untouched.
	if got, want := nodeTokens(fg.AllNodes()), "(global),toplevel"; got != want {
		t.Errorf("nodes = %s, want %s", got, want)
	}
}

func TestLimit_ExcludeNamespaceFileWide(t *testing.T) {
	f := newTestForest()
	doomed := f.file("doomed")
	f.fn(doomed, "gone", 1, nil, nil)
	kept := f.file("kept")
	f.fn(kept, "stays", 1, nil, nil)

	l := Limit{ExcludeNamespaces: []string{"doomed"}}
	l.Apply([]*Group{doomed, kept}, quietLogger())

	if got := len(doomed.AllNodes()); got != 0 {
		t.Errorf("excluded file still has %d nodes", got)
	}
	if got, want := nodeTokens(kept.AllNodes()), "(global),stays"; got != want {
		t.Errorf("kept file nodes = %s, want %s", got, want)
	}
}

func TestLimit_IncludeOnlyNamespaces(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	f.fn(fg, "toplevel", 1, nil, nil)
	worker := f.class(fg, "Worker", 3)
	f.fn(worker, "run", 4, nil, nil)
	inner := f.class(worker, "Inner", 6)
	f.fn(inner, "go", 7, nil, nil)

	l := Limit{IncludeOnlyNamespaces: []string{"Worker"}}
	l.Apply([]*Group{fg}, quietLogger())

	// The class matches by token and Inner by ancestry; the file group
	// matches neither, so its direct nodes go.
	if got, want := nodeTokens(fg.AllNodes()), "run,go"; got != want {
		t.Errorf("nodes = %s, want %s", got, want)
	}
}

func TestLimit_WarnsOnUnmatchedExcludes(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	f.fn(fg, "worker", 1, nil, nil)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	l := Limit{
		ExcludeFunctions:  []string{"worker", "no_such_function"},
		ExcludeNamespaces: []string{"no_such_namespace"},
	}
	l.Apply([]*Group{fg}, logger)

	logged := buf.String()
	if !strings.Contains(logged, "could not exclude namespace") ||
		!strings.Contains(logged, "no_such_namespace") {
		t.Errorf("missing namespace warning in:\n%s", logged)
	}
	if !strings.Contains(logged, "could not exclude function") ||
		!strings.Contains(logged, "no_such_function") {
		t.Errorf("missing function warning in:\n%s", logged)
	}
	if strings.Contains(logged, `function=worker`) {
		t.Errorf("warned about a filter that matched:\n%s", logged)
	}
}

func TestSubsetParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  SubsetParams
		wantMsg string
	}{
		{"empty is valid", SubsetParams{}, ""},
		{"upstream needs target",
			SubsetParams{UpstreamDepth: 2},
			"--upstream-depth requires --target-function"},
		{"downstream needs target",
			SubsetParams{DownstreamDepth: 1},
			"--downstream-depth requires --target-function"},
		{"target needs a depth",
			SubsetParams{TargetFunction: "f"},
			"--target-function requires --upstream-depth or --downstream-depth"},
		{"negative upstream",
			SubsetParams{TargetFunction: "f", UpstreamDepth: -1},
			"--upstream-depth must be >= 0"},
		{"negative downstream",
			SubsetParams{TargetFunction: "f", DownstreamDepth: -2},
			"--downstream-depth must be >= 0"},
		{"upstream only", SubsetParams{TargetFunction: "f", UpstreamDepth: 3}, ""},
		{"downstream only", SubsetParams{TargetFunction: "f", DownstreamDepth: 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidSubset) {
				t.Fatalf("Validate() = %v, want ErrInvalidSubset", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

// diamondGraph builds a->b, a->c, b->d, c->d, d->e plus a disconnected
// loner node, and returns the graph with the named nodes.
func diamondGraph(t *testing.T) (*Graph, map[string]*Node) {
	t.Helper()
	f := newTestForest()
	fg := f.file("mod")
	byName := make(map[string]*Node)
	for i, name := range []string{"a", "b", "c", "d", "e", "loner"} {
		byName[name] = f.fn(fg, name, i+1, nil, nil)
	}

	g := NewGraph("/p")
	if err := g.AddFileGroup(fg); err != nil {
		t.Fatalf("AddFileGroup: %v", err)
	}
	for _, pair := range [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}, {"d", "e"}} {
		if err := g.AddEdge(byName[pair[0]], byName[pair[1]]); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", pair[0], pair[1], err)
		}
	}
	return g, byName
}

func TestFilterForSubset_Depths(t *testing.T) {
	tests := []struct {
		name      string
		params    SubsetParams
		wantNodes string
		wantEdges int
	}{
		{"one hop upstream",
			SubsetParams{TargetFunction: "d", UpstreamDepth: 1},
			"b,c,d", 2},
		{"one hop downstream",
			SubsetParams{TargetFunction: "d", DownstreamDepth: 1},
			"d,e", 1},
		{"both directions",
			SubsetParams{TargetFunction: "d", UpstreamDepth: 2, DownstreamDepth: 1},
			"a,b,c,d,e", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := diamondGraph(t)
			if err := FilterForSubset(g, tt.params); err != nil {
				t.Fatalf("FilterForSubset: %v", err)
			}
			kept := []*Node{}
			for _, n := range g.Nodes() {
				if n.Token != RootNodeToken {
					kept = append(kept, n)
				}
			}
			if got := nodeTokens(kept); got != tt.wantNodes {
				t.Errorf("kept nodes = %s, want %s", got, tt.wantNodes)
			}
			if got := len(g.Edges()); got != tt.wantEdges {
				t.Errorf("kept edges = %d, want %d", got, tt.wantEdges)
			}
		})
	}
}

func TestFilterForSubset_CycleSafe(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	a := f.fn(fg, "a", 1, nil, nil)
	b := f.fn(fg, "b", 2, nil, nil)

	g := NewGraph("/p")
	if err := g.AddFileGroup(fg); err != nil {
		t.Fatalf("AddFileGroup: %v", err)
	}
	if err := g.AddEdge(a, b); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge(b, a); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	err := FilterForSubset(g, SubsetParams{TargetFunction: "a", UpstreamDepth: 10})
	if err != nil {
		t.Fatalf("FilterForSubset: %v", err)
	}
	if got := len(g.Edges()); got != 2 {
		t.Errorf("cycle edges = %d, want 2", got)
	}
}

func TestFilterForSubset_TargetErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		g, _ := diamondGraph(t)
		err := FilterForSubset(g, SubsetParams{TargetFunction: "nope", UpstreamDepth: 1})
		if !errors.Is(err, ErrTargetNotFound) {
			t.Errorf("FilterForSubset = %v, want ErrTargetNotFound", err)
		}
	})

	t.Run("ambiguous", func(t *testing.T) {
		f := newTestForest()
		one := f.file("one")
		f.fn(one, "run", 1, nil, nil)
		two := f.file("two")
		f.fn(two, "run", 1, nil, nil)

		g := NewGraph("/p")
		for _, fg := range []*Group{one, two} {
			if err := g.AddFileGroup(fg); err != nil {
				t.Fatalf("AddFileGroup: %v", err)
			}
		}

		err := FilterForSubset(g, SubsetParams{TargetFunction: "run", UpstreamDepth: 1})
		if !errors.Is(err, ErrAmbiguousTarget) {
			t.Fatalf("FilterForSubset = %v, want ErrAmbiguousTarget", err)
		}
		if !strings.Contains(err.Error(), "matches 2 nodes") {
			t.Errorf("ambiguity error %q does not count the matches", err)
		}
	})

	t.Run("qualified name disambiguates", func(t *testing.T) {
		f := newTestForest()
		one := f.file("one")
		target := f.fn(one, "run", 1, nil, nil)
		two := f.file("two")
		f.fn(two, "run", 1, nil, nil)

		g := NewGraph("/p")
		for _, fg := range []*Group{one, two} {
			if err := g.AddFileGroup(fg); err != nil {
				t.Fatalf("AddFileGroup: %v", err)
			}
		}

		got, err := findTargetNode(g.Nodes(), "one::run")
		if err != nil {
			t.Fatalf("findTargetNode: %v", err)
		}
		if got != target {
			t.Errorf("findTargetNode = %s, want one::run", got.QualifiedName())
		}
	})
}

func TestTrimOrphans(t *testing.T) {
	g, byName := diamondGraph(t)

	var buf bytes.Buffer
	TrimOrphans(g, slog.New(slog.NewTextHandler(&buf, nil)))

	for _, n := range g.Nodes() {
		if n == byName["loner"] {
			t.Error("loner survived trimming")
		}
		if n.Token == RootNodeToken {
			t.Error("edgeless root node survived trimming")
		}
	}
	// loner plus the file's root node.
	if got := g.Stats().NodesTrimmed; got != 2 {
		t.Errorf("NodesTrimmed = %d, want 2", got)
	}
	if !strings.Contains(buf.String(), "trimmed functions") {
		t.Errorf("missing trim log in:\n%s", buf.String())
	}
}

func TestTrimOrphans_NoOrphansNoLog(t *testing.T) {
	f := newTestForest()
	fg := f.file("mod")
	a := f.fn(fg, "a", 1, nil, nil)
	b := f.fn(fg, "b", 2, nil, nil)

	g := NewGraph("/p")
	if err := g.AddFileGroup(fg); err != nil {
		t.Fatalf("AddFileGroup: %v", err)
	}
	if err := g.AddEdge(a, b); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge(b, fg.RootNode); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	var buf bytes.Buffer
	TrimOrphans(g, slog.New(slog.NewTextHandler(&buf, nil)))

	if got := len(g.Nodes()); got != 3 {
		t.Errorf("nodes after no-op trim = %d, want 3", got)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}
