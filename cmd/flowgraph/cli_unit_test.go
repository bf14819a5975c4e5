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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/flowgraph/services/flowgraph/ast"
	"github.com/AleutianAI/flowgraph/services/flowgraph/config"
	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
	"github.com/AleutianAI/flowgraph/services/flowgraph/lang"
	"github.com/AleutianAI/flowgraph/services/flowgraph/render"
)

// execute runs one full CLI invocation in-process on a fresh command tree
// and returns the captured output streams.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCommand()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

// fixtureDir returns the sample Python project checked in under
// test/fixtures.
func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join("..", "..", "test", "fixtures", "pyproject")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("fixture project missing: %v", err)
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

// snapshotIDFrom extracts the snapshot UUID from generate's stdout.
func snapshotIDFrom(t *testing.T, stdout string) string {
	t.Helper()
	for _, line := range strings.Split(stdout, "\n") {
		if id, ok := strings.CutPrefix(line, "snapshot saved: "); ok {
			return id
		}
	}
	t.Fatalf("no snapshot ID in output:\n%s", stdout)
	return ""
}

func TestHelp_ListsCommandsAndFlags(t *testing.T) {
	stdout, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("--help error: %v", err)
	}
	for _, want := range []string{
		"flowgraph [sources...]",
		"--output",
		"--target-function",
		"snapshots",
		"diff",
		"version",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if got, want := stdout, "flowgraph dev\n"; got != want {
		t.Errorf("version output = %q, want %q", got, want)
	}
}

func TestRootCommand_FlagsRegistered(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{
		"output", "target-function", "upstream-depth", "downstream-depth",
		"exclude-functions", "exclude-namespaces",
		"include-only-functions", "include-only-namespaces",
		"no-grouping", "no-trimming", "hide-legend",
		"skip-parse-errors", "strict", "workers",
		"snapshot", "snapshot-label", "snapshot-dir",
		"neo4j-uri", "neo4j-user", "neo4j-clean",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	for _, name := range []string{"quiet", "verbose", "debug-observability"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not registered", name)
		}
	}
}

func TestGenerate_WritesDOT(t *testing.T) {
	out := filepath.Join(t.TempDir(), "graph.gv")
	stdout, _, err := execute(t, fixtureDir(t), "-o", out, "-q")
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	dot := string(data)

	if !strings.HasPrefix(dot, "digraph G {") {
		t.Errorf("output does not start with digraph header:\n%.80s", dot)
	}
	for _, want := range []string{
		`label="5: main()"`,
		`name="app::main"`,
		`name="models::Worker.__init__"`,
		`name="models::Worker.run"`,
		`name="models::Worker.finish"`,
		`name="utils::announce"`,
		`name="utils::helper"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %s", want)
		}
	}
	if strings.Contains(dot, "orphan") {
		t.Error("DOT output contains trimmed function orphan")
	}
	if got := strings.Count(dot, " -> "); got != 6 {
		t.Errorf("edge count = %d, want 6", got)
	}
	if !strings.Contains(stdout, "7 nodes, 6 edges (3 files, 0 skipped") {
		t.Errorf("summary missing counts:\n%s", stdout)
	}
}

func TestGenerate_WritesJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "graph.json")
	_, _, err := execute(t, fixtureDir(t), "-o", out, "-q")
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var doc struct {
		Graph struct {
			Directed bool `json:"directed"`
			Nodes    map[string]struct {
				UID   string `json:"uid"`
				Label string `json:"label"`
				Name  string `json:"name"`
			} `json:"nodes"`
			Edges []struct {
				Directed bool   `json:"directed"`
				Source   string `json:"source"`
				Target   string `json:"target"`
			} `json:"edges"`
		} `json:"graph"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if !doc.Graph.Directed {
		t.Error("graph.directed = false, want true")
	}
	if got := len(doc.Graph.Nodes); got != 7 {
		t.Errorf("node count = %d, want 7", got)
	}
	if got := len(doc.Graph.Edges); got != 6 {
		t.Errorf("edge count = %d, want 6", got)
	}
	names := make(map[string]bool, len(doc.Graph.Nodes))
	for uid, n := range doc.Graph.Nodes {
		if uid != n.UID {
			t.Errorf("node keyed %s carries uid %s", uid, n.UID)
		}
		names[n.Name] = true
	}
	for _, want := range []string{"app::main", "models::Worker.run", "utils::helper"} {
		if !names[want] {
			t.Errorf("JSON nodes missing %s", want)
		}
	}
}

func TestGenerate_ImageOutputRejected(t *testing.T) {
	_, _, err := execute(t, fixtureDir(t), "-o", filepath.Join(t.TempDir(), "graph.png"), "-q")
	if !errors.Is(err, render.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
	if !strings.Contains(err.Error(), "graphviz") {
		t.Errorf("error %q does not point at graphviz", err)
	}
}

func TestGenerate_SubsetFlagValidation(t *testing.T) {
	outDir := t.TempDir()
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "depth without target",
			args:    []string{"--upstream-depth", "2"},
			wantMsg: "--upstream-depth requires --target-function",
		},
		{
			name:    "target without depth",
			args:    []string{"--target-function", "main"},
			wantMsg: "requires --upstream-depth or --downstream-depth",
		},
		{
			name:    "negative depth",
			args:    []string{"--target-function", "main", "--upstream-depth=-1"},
			wantMsg: "must be >= 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{fixtureDir(t), "-q", "-o", filepath.Join(outDir, "s.gv")}, tt.args...)
			_, _, err := execute(t, args...)
			if !errors.Is(err, graph.ErrInvalidSubset) {
				t.Fatalf("error = %v, want ErrInvalidSubset", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q missing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestGenerate_TargetFunctionSubset(t *testing.T) {
	out := filepath.Join(t.TempDir(), "subset.gv")
	_, _, err := execute(t, fixtureDir(t), "-q", "-o", out,
		"--target-function", "finish", "--upstream-depth", "2")
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	dot := string(data)
	for _, want := range []string{"finish()", "run()", "main()"} {
		if !strings.Contains(dot, want) {
			t.Errorf("subset missing %s", want)
		}
	}
	if strings.Contains(dot, "announce") {
		t.Error("subset leaked node outside the upstream walk")
	}
}

func TestGenerate_ExcludeFunctions(t *testing.T) {
	out := filepath.Join(t.TempDir(), "filtered.gv")
	_, _, err := execute(t, fixtureDir(t), "-q", "-o", out, "--exclude-functions", "announce")
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	dot := string(data)
	if strings.Contains(dot, "announce") {
		t.Error("excluded function still present")
	}
	if strings.Contains(dot, "helper") {
		t.Error("helper should be trimmed once its only caller is excluded")
	}
	if !strings.Contains(dot, "main") {
		t.Error("unrelated nodes were dropped")
	}
}

func TestGenerate_ParseErrorModes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.py", "def fine():\n    return 1\n\n\nfine()\n")
	writeFile(t, dir, "bad.py", "def broken(:\n    pass\n")

	out := filepath.Join(t.TempDir(), "g.gv")
	stdout, _, err := execute(t, dir, "-o", out, "-q")
	if err != nil {
		t.Fatalf("default mode should skip the bad file, got: %v", err)
	}
	if !strings.Contains(stdout, "1 skipped") {
		t.Errorf("summary does not report the skipped file:\n%s", stdout)
	}

	_, _, err = execute(t, dir, "-o", out, "-q", "--strict")
	if !errors.Is(err, ast.ErrSyntax) {
		t.Fatalf("strict mode error = %v, want ErrSyntax", err)
	}
}

func TestGenerate_QuietVerboseConflict(t *testing.T) {
	_, _, err := execute(t, fixtureDir(t), "-q", "-v")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("error = %v, want mutually exclusive flags rejection", err)
	}
}

func TestGenerate_ConfigFileDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "def a():\n    b()\n\n\ndef b():\n    return 1\n")

	cfgOut := filepath.Join(t.TempDir(), "from_config.json")
	writeFile(t, dir, config.FileName, "output: \""+cfgOut+"\"\nhide_legend: true\n")

	if _, _, err := execute(t, dir, "-q"); err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if _, err := os.Stat(cfgOut); err != nil {
		t.Fatalf("config-selected output not written: %v", err)
	}

	flagOut := filepath.Join(t.TempDir(), "cli.gv")
	if _, _, err := execute(t, dir, "-q", "-o", flagOut); err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if _, err := os.Stat(flagOut); err != nil {
		t.Fatalf("flag override not honored: %v", err)
	}
}

func TestGenerate_ConfigFileInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "def a():\n    return 1\n")
	writeFile(t, dir, config.FileName, "workers: -3\n")

	_, _, err := execute(t, dir, "-q", "-o", filepath.Join(t.TempDir(), "g.gv"))
	if err == nil || !strings.Contains(err.Error(), config.FileName) {
		t.Fatalf("error = %v, want config validation failure naming %s", err, config.FileName)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	store := t.TempDir()
	outDir := t.TempDir()
	fixture := fixtureDir(t)

	stdout, _, err := execute(t, fixture, "-q", "-o", filepath.Join(outDir, "a.gv"),
		"--snapshot", "--snapshot-label", "baseline", "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("generate --snapshot error: %v", err)
	}
	id := snapshotIDFrom(t, stdout)

	stdout, _, err = execute(t, "snapshots", "list", "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("snapshots list error: %v", err)
	}
	if !strings.Contains(stdout, id) || !strings.Contains(stdout, "baseline") {
		t.Errorf("list missing the saved snapshot:\n%s", stdout)
	}

	stdout, _, err = execute(t, "snapshots", "list", fixture, "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("snapshots list with project filter error: %v", err)
	}
	if !strings.Contains(stdout, id) {
		t.Errorf("project-filtered list missing the snapshot:\n%s", stdout)
	}

	stdout, _, err = execute(t, "snapshots", "show", id, "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("snapshots show error: %v", err)
	}
	absFixture, _ := filepath.Abs(fixture)
	for _, want := range []string{id, absFixture, "baseline", "Nodes:", "Edges:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("show output missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = execute(t, "snapshots", "show", "--latest", fixture, "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("snapshots show --latest error: %v", err)
	}
	if !strings.Contains(stdout, id) {
		t.Errorf("show --latest did not find the snapshot:\n%s", stdout)
	}

	stdout, _, err = execute(t, "snapshots", "delete", id, "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("snapshots delete error: %v", err)
	}
	if !strings.Contains(stdout, "deleted") {
		t.Errorf("delete output = %q", stdout)
	}

	stdout, _, err = execute(t, "snapshots", "list", "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("snapshots list after delete error: %v", err)
	}
	if !strings.Contains(stdout, "no snapshots found") {
		t.Errorf("list after delete = %q", stdout)
	}

	_, _, err = execute(t, "snapshots", "show", id, "--snapshot-dir", store)
	if !errors.Is(err, graph.ErrSnapshotNotFound) {
		t.Errorf("show after delete error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshots_MissingStore(t *testing.T) {
	_, _, err := execute(t, "snapshots", "list",
		"--snapshot-dir", filepath.Join(t.TempDir(), "nope"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("error = %v, want missing store rejection", err)
	}
}

func TestDiffCommand(t *testing.T) {
	store := t.TempDir()
	outDir := t.TempDir()
	fixture := fixtureDir(t)

	out1, _, err := execute(t, fixture, "-q", "-o", filepath.Join(outDir, "before.gv"),
		"--snapshot", "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("first generate error: %v", err)
	}
	beforeID := snapshotIDFrom(t, out1)

	out2, _, err := execute(t, fixture, "-q", "-o", filepath.Join(outDir, "after.gv"),
		"--snapshot", "--snapshot-dir", store, "--exclude-functions", "announce")
	if err != nil {
		t.Fatalf("second generate error: %v", err)
	}
	afterID := snapshotIDFrom(t, out2)

	stdout, _, err := execute(t, "diff", beforeID, afterID, "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("diff error: %v", err)
	}
	wantSummary := "nodes: 0 added, 2 removed, 0 changed; edges: 0 added, 2 removed"
	if !strings.HasPrefix(stdout, wantSummary) {
		t.Errorf("diff summary = %q, want prefix %q", stdout, wantSummary)
	}
	for _, want := range []string{
		"- utils::announce",
		"- utils::helper",
		"- app::main -> utils::announce",
		"- utils::announce -> utils::helper",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("diff output missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = execute(t, "diff", beforeID, afterID, "--snapshot-dir", store, "--json")
	if err != nil {
		t.Fatalf("diff --json error: %v", err)
	}
	var diff struct {
		RemovedNodes []string `json:"removed_nodes"`
		RemovedEdges []string `json:"removed_edges"`
	}
	if err := json.Unmarshal([]byte(stdout), &diff); err != nil {
		t.Fatalf("diff --json output invalid: %v", err)
	}
	if len(diff.RemovedNodes) != 2 || len(diff.RemovedEdges) != 2 {
		t.Errorf("diff --json removed %d nodes / %d edges, want 2 / 2",
			len(diff.RemovedNodes), len(diff.RemovedEdges))
	}

	stdout, _, err = execute(t, "diff", beforeID, beforeID, "--snapshot-dir", store)
	if err != nil {
		t.Fatalf("self diff error: %v", err)
	}
	if !strings.HasPrefix(stdout, "nodes: 0 added, 0 removed, 0 changed") {
		t.Errorf("self diff should be empty:\n%s", stdout)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported format", fmt.Errorf("resolving: %w", render.ErrUnsupportedFormat), 2},
		{"invalid subset", graph.ErrInvalidSubset, 2},
		{"no sources", lang.ErrNoSources, 2},
		{"target not found", graph.ErrTargetNotFound, 3},
		{"ambiguous target", graph.ErrAmbiguousTarget, 3},
		{"snapshot not found", graph.ErrSnapshotNotFound, 3},
		{"anything else", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRun_ExitCodes(t *testing.T) {
	fixture := fixtureDir(t)
	outDir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want int
	}{
		{
			name: "success",
			args: []string{fixture, "-q", "-o", filepath.Join(outDir, "ok.gv")},
			want: 0,
		},
		{
			name: "unsupported extension",
			args: []string{fixture, "-q", "-o", filepath.Join(outDir, "g.png")},
			want: 2,
		},
		{
			name: "no sources",
			args: []string{t.TempDir(), "-q", "-o", filepath.Join(outDir, "g.gv")},
			want: 2,
		},
		{
			name: "target not found",
			args: []string{fixture, "-q", "-o", filepath.Join(outDir, "t.gv"),
				"--target-function", "nosuch", "--downstream-depth", "1"},
			want: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestSetupDebugObservability(t *testing.T) {
	flagDebugObservability = true
	defer func() {
		flagDebugObservability = false
		otelShutdown = nil
	}()

	if err := setupDebugObservability(); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if otelShutdown == nil {
		t.Fatal("shutdown hook not installed")
	}
	if err := otelShutdown(context.Background()); err != nil {
		t.Errorf("shutdown error: %v", err)
	}
}
