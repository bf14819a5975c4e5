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
	"sort"
)

// NodeChange records a node present in both snapshots whose definition
// moved.
type NodeChange struct {
	// QualifiedName identifies the node across runs.
	QualifiedName string `json:"qualified_name"`

	// OldLine and NewLine are the definition lines in each snapshot.
	OldLine int `json:"old_line"`
	NewLine int `json:"new_line"`
}

// SnapshotDiff is the structural difference between two graphs. Nodes are
// matched by qualified name, never by uid; uids are assigned per run and
// carry no cross-run identity. All slices are sorted.
type SnapshotDiff struct {
	// AddedNodes and RemovedNodes hold qualified names.
	AddedNodes   []string `json:"added_nodes"`
	RemovedNodes []string `json:"removed_nodes"`

	// ChangedNodes holds nodes present in both whose line moved.
	ChangedNodes []NodeChange `json:"changed_nodes"`

	// AddedEdges and RemovedEdges hold "caller -> callee" qualified pairs.
	AddedEdges   []string `json:"added_edges"`
	RemovedEdges []string `json:"removed_edges"`
}

// Empty reports whether the two snapshots are structurally identical.
func (d *SnapshotDiff) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.ChangedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// Summary renders the counts on one line.
func (d *SnapshotDiff) Summary() string {
	return fmt.Sprintf("nodes: %d added, %d removed, %d changed; edges: %d added, %d removed",
		len(d.AddedNodes), len(d.RemovedNodes), len(d.ChangedNodes),
		len(d.AddedEdges), len(d.RemovedEdges))
}

// DiffSnapshots compares two graphs, typically snapshots of the same
// project taken at different times.
//
// Description:
//
//	Nodes are keyed by qualified name. A name only in after is added,
//	only in before removed, and in both with a different definition line
//	changed. Edges are keyed by the qualified caller→callee pair;
//	duplicate call sites collapse to one key for diffing purposes.
//
// Outputs:
//   - *SnapshotDiff: never nil, slices sorted for stable output.
func DiffSnapshots(before, after *Graph) *SnapshotDiff {
	d := &SnapshotDiff{}

	beforeNodes := nodesByQualifiedName(before)
	afterNodes := nodesByQualifiedName(after)

	for name, bn := range beforeNodes {
		an, ok := afterNodes[name]
		if !ok {
			d.RemovedNodes = append(d.RemovedNodes, name)
			continue
		}
		if bn.LineNumber != an.LineNumber {
			d.ChangedNodes = append(d.ChangedNodes, NodeChange{
				QualifiedName: name,
				OldLine:       bn.LineNumber,
				NewLine:       an.LineNumber,
			})
		}
	}
	for name := range afterNodes {
		if _, ok := beforeNodes[name]; !ok {
			d.AddedNodes = append(d.AddedNodes, name)
		}
	}

	beforeEdges := edgeKeys(before)
	afterEdges := edgeKeys(after)
	for key := range beforeEdges {
		if !afterEdges[key] {
			d.RemovedEdges = append(d.RemovedEdges, key)
		}
	}
	for key := range afterEdges {
		if !beforeEdges[key] {
			d.AddedEdges = append(d.AddedEdges, key)
		}
	}

	sort.Strings(d.AddedNodes)
	sort.Strings(d.RemovedNodes)
	sort.Slice(d.ChangedNodes, func(i, j int) bool {
		return d.ChangedNodes[i].QualifiedName < d.ChangedNodes[j].QualifiedName
	})
	sort.Strings(d.AddedEdges)
	sort.Strings(d.RemovedEdges)
	return d
}

func nodesByQualifiedName(g *Graph) map[string]*Node {
	out := make(map[string]*Node)
	if g == nil {
		return out
	}
	for _, n := range g.Nodes() {
		out[n.QualifiedName()] = n
	}
	return out
}

func edgeKeys(g *Graph) map[string]bool {
	out := make(map[string]bool)
	if g == nil {
		return out
	}
	for _, e := range g.Edges() {
		out[e.Node0.QualifiedName()+" -> "+e.Node1.QualifiedName()] = true
	}
	return out
}
