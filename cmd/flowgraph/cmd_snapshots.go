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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// defaultSnapshotDirName is the store directory created under the project
// root when no --snapshot-dir is given.
const defaultSnapshotDirName = ".flowgraph"

// Snapshot inspection flags, bound in newSnapshotsCommand.
var (
	snapshotsDir        string
	snapshotsLimit      int
	snapshotsShowLatest bool
)

func newSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect the saved snapshot store",
		Long: `Snapshots are saved with 'flowgraph <sources> --snapshot'. These commands
list, show, and delete them. Run from the project root, or point
--snapshot-dir at the store directly.`,
	}
	cmd.PersistentFlags().StringVar(&snapshotsDir, "snapshot-dir", defaultSnapshotDirName,
		"snapshot store directory")

	list := &cobra.Command{
		Use:   "list [project-root]",
		Short: "List saved snapshots, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSnapshotsListCommand,
	}
	list.Flags().IntVar(&snapshotsLimit, "limit", 0, "cap the number of rows (0 uses the store default)")

	show := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show one snapshot's metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSnapshotsShowCommand,
	}
	show.Flags().BoolVar(&snapshotsShowLatest, "latest", false,
		"show the newest snapshot for a project root instead of a snapshot ID")

	del := &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotsDeleteCommand,
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func runSnapshotsListCommand(cmd *cobra.Command, args []string) error {
	projectHash := ""
	dir := snapshotsDir
	if len(args) == 1 {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving project root: %w", err)
		}
		projectHash = graph.ProjectHash(root)
		dir = resolveStoreDir(cmd, root)
	}

	mgr, closeStore, err := openSnapshotStore(dir)
	if err != nil {
		return err
	}
	defer closeStore()

	metas, err := mgr.List(cmd.Context(), projectHash, snapshotsLimit)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no snapshots found")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT ID\tCREATED\tNODES\tEDGES\tLABEL")
	for _, meta := range metas {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			meta.SnapshotID, formatMilli(meta.CreatedAtMilli),
			meta.NodeCount, meta.EdgeCount, meta.Label)
	}
	return tw.Flush()
}

func runSnapshotsShowCommand(cmd *cobra.Command, args []string) error {
	var (
		meta *graph.SnapshotMetadata
		err  error
	)
	if snapshotsShowLatest {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		abs, absErr := filepath.Abs(root)
		if absErr != nil {
			return fmt.Errorf("resolving project root: %w", absErr)
		}
		mgr, closeStore, openErr := openSnapshotStore(resolveStoreDir(cmd, abs))
		if openErr != nil {
			return openErr
		}
		defer closeStore()
		_, meta, err = mgr.LoadLatest(cmd.Context(), graph.ProjectHash(abs))
	} else {
		if len(args) != 1 {
			return errors.New("show requires a snapshot ID, or --latest with an optional project root")
		}
		mgr, closeStore, openErr := openSnapshotStore(snapshotsDir)
		if openErr != nil {
			return openErr
		}
		defer closeStore()
		_, meta, err = mgr.Load(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Snapshot ID:\t%s\n", meta.SnapshotID)
	fmt.Fprintf(tw, "Project root:\t%s\n", meta.ProjectRoot)
	fmt.Fprintf(tw, "Run ID:\t%s\n", meta.RunID)
	if meta.Label != "" {
		fmt.Fprintf(tw, "Label:\t%s\n", meta.Label)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", formatMilli(meta.CreatedAtMilli))
	fmt.Fprintf(tw, "Schema:\t%s\n", meta.SchemaVersion)
	fmt.Fprintf(tw, "Nodes:\t%d\n", meta.NodeCount)
	fmt.Fprintf(tw, "Edges:\t%d\n", meta.EdgeCount)
	fmt.Fprintf(tw, "Files:\t%d processed, %d skipped\n",
		meta.Stats.FilesProcessed, meta.Stats.FilesSkipped)
	fmt.Fprintf(tw, "Calls:\t%d resolved, %d unresolved\n",
		meta.Stats.CallsResolved, meta.Stats.CallsUnresolved)
	fmt.Fprintf(tw, "Duration:\t%dms\n", meta.Stats.DurationMilli)
	fmt.Fprintf(tw, "Compressed:\t%d bytes\n", meta.CompressedSize)
	return tw.Flush()
}

func runSnapshotsDeleteCommand(cmd *cobra.Command, args []string) error {
	mgr, closeStore, err := openSnapshotStore(snapshotsDir)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted snapshot %s\n", args[0])
	return nil
}

// resolveStoreDir picks the store directory for commands that were given a
// project root: an explicit --snapshot-dir wins, otherwise the project's
// default store.
func resolveStoreDir(cmd *cobra.Command, projectRoot string) string {
	if cmd.Flags().Changed("snapshot-dir") || projectRoot == "" {
		return snapshotsDir
	}
	return filepath.Join(projectRoot, defaultSnapshotDirName)
}

// openSnapshotStore opens the badger store for the read-side commands.
// Unlike the save path, a missing directory is an error rather than a
// fresh, empty store.
func openSnapshotStore(dir string) (*graph.SnapshotManager, func(), error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("snapshot store %s does not exist", dir)
		}
		return nil, nil, fmt.Errorf("reading snapshot store %s: %w", dir, err)
	}
	db, err := graph.OpenSnapshotDB(dir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := graph.NewSnapshotManager(db, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mgr, func() { _ = db.Close() }, nil
}

// formatMilli renders a unix-milliseconds timestamp for display.
func formatMilli(milli int64) string {
	return time.UnixMilli(milli).UTC().Format(time.RFC3339)
}
