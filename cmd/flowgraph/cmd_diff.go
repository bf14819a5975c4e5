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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// Diff flags, bound in newDiffCommand.
var (
	diffSnapshotDir string
	diffJSON        bool
)

func newDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <before-id> <after-id>",
		Short: "Compare two saved snapshots",
		Long: `Diff compares two snapshots of the same project structurally: functions
are matched across runs by their qualified name, edges by the
caller -> callee pair. A diff never fails just because the graphs
differ; the differences are the output.`,
		Args: cobra.ExactArgs(2),
		RunE: runDiffCommand,
	}
	cmd.Flags().StringVar(&diffSnapshotDir, "snapshot-dir", defaultSnapshotDirName,
		"snapshot store directory")
	cmd.Flags().BoolVar(&diffJSON, "json", false, "emit the diff as JSON")
	return cmd
}

func runDiffCommand(cmd *cobra.Command, args []string) error {
	mgr, closeStore, err := openSnapshotStore(diffSnapshotDir)
	if err != nil {
		return err
	}
	defer closeStore()

	before, _, err := mgr.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading before snapshot: %w", err)
	}
	after, _, err := mgr.Load(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("loading after snapshot: %w", err)
	}

	diff := graph.DiffSnapshots(before, after)
	out := cmd.OutOrStdout()

	if diffJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diff); err != nil {
			return fmt.Errorf("encoding diff: %w", err)
		}
		return nil
	}

	fmt.Fprintln(out, diff.Summary())
	if diff.Empty() {
		return nil
	}
	fmt.Fprintln(out)
	printDiffEntries(out, "added nodes", "+", ansiGreen, diff.AddedNodes)
	printDiffEntries(out, "removed nodes", "-", ansiRed, diff.RemovedNodes)
	if len(diff.ChangedNodes) > 0 {
		fmt.Fprintln(out, "changed nodes:")
		for _, change := range diff.ChangedNodes {
			line := fmt.Sprintf("  ~ %s: line %d -> %d",
				change.QualifiedName, change.OldLine, change.NewLine)
			fmt.Fprintln(out, paint(ansiYellow, line))
		}
	}
	printDiffEntries(out, "added edges", "+", ansiGreen, diff.AddedEdges)
	printDiffEntries(out, "removed edges", "-", ansiRed, diff.RemovedEdges)
	return nil
}

// printDiffEntries writes one diff section, skipping empty ones.
func printDiffEntries(w io.Writer, heading, marker, color string, entries []string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", heading)
	for _, entry := range entries {
		fmt.Fprintln(w, paint(color, "  "+marker+" "+entry))
	}
}
