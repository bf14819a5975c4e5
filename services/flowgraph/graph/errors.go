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

import "errors"

// Sentinel errors returned by graph operations. Callers match them with
// errors.Is; most are wrapped with additional context via fmt.Errorf.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrMaxNodesExceeded is returned when the node cap is reached.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the edge cap is reached.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrBuildCancelled is returned when a build is cancelled via context.
	ErrBuildCancelled = errors.New("graph build cancelled")

	// ErrNilAnalyzer is returned when a Builder is constructed without a
	// file analyzer.
	ErrNilAnalyzer = errors.New("file analyzer is nil")

	// ErrNoSources is returned when Build is invoked with no source files.
	ErrNoSources = errors.New("no source files to analyze")

	// ErrTargetNotFound is returned when a subset target matches no node.
	ErrTargetNotFound = errors.New("target function not found")

	// ErrAmbiguousTarget is returned when a subset target matches more than
	// one node; qualify it as class.func or file::class.func.
	ErrAmbiguousTarget = errors.New("target function is ambiguous")

	// ErrInvalidSubset is returned for inconsistent subset parameters.
	ErrInvalidSubset = errors.New("invalid subset parameters")

	// ErrSnapshotNotFound is returned when a snapshot ID does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupt is returned when stored snapshot data fails its
	// integrity check.
	ErrSnapshotCorrupt = errors.New("snapshot data corrupt")

	// ErrUnsupportedSchema is returned when serialized graph data carries an
	// unknown schema version.
	ErrUnsupportedSchema = errors.New("unsupported graph schema version")
)
