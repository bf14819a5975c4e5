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
)

// GraphSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const GraphSchemaVersion = "1.0"

// SerializableGraph is the JSON wire form of a frozen Graph.
//
// Description:
//
//	Carries the group forest, node flags, and edges; raw Call and
//	Variable records are analysis-time scaffolding and are deliberately
//	not persisted. Groups, nodes, and edges keep their registration
//	order, which the builder makes deterministic, so encoding the same
//	graph twice yields identical bytes.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// ProjectRoot is the analyzed project's root path.
	ProjectRoot string `json:"project_root"`

	// RunID labels the analysis run that produced the graph.
	RunID string `json:"run_id"`

	// CreatedAtMilli is the build start time in Unix milliseconds.
	CreatedAtMilli int64 `json:"created_at_milli"`

	// Stats are the final build counters.
	Stats GraphStats `json:"stats"`

	// FileGroups is the group forest, one entry per source file.
	FileGroups []SerializableGroup `json:"file_groups"`

	// Edges are the resolved calls, in creation order.
	Edges []SerializableEdge `json:"edges"`
}

// SerializableGroup is the JSON wire form of a Group subtree.
type SerializableGroup struct {
	// UID is the run-unique group identifier.
	UID string `json:"uid"`

	// Token is the file or class name.
	Token string `json:"token"`

	// Type is the human-readable group type ("file" or "class").
	Type string `json:"type"`

	// TypeCode is the integer group type for exact reconstruction.
	TypeCode GroupType `json:"type_code"`

	// LineNumber is the definition line, 0 for file groups.
	LineNumber int `json:"line_number"`

	// ImportTokens are the names the group is importable as.
	ImportTokens []string `json:"import_tokens,omitempty"`

	// Inherits are base-class names, class groups only.
	Inherits []string `json:"inherits,omitempty"`

	// RootNodeUID designates the (global) node, file groups only.
	RootNodeUID string `json:"root_node_uid,omitempty"`

	// Nodes are the group's direct nodes.
	Nodes []SerializableNode `json:"nodes,omitempty"`

	// Subgroups are nested class groups.
	Subgroups []SerializableGroup `json:"subgroups,omitempty"`
}

// SerializableNode is the JSON wire form of a Node.
type SerializableNode struct {
	// UID is the run-unique node identifier.
	UID string `json:"uid"`

	// Token is the definition name.
	Token string `json:"token"`

	// LineNumber is the definition's source line.
	LineNumber int `json:"line_number"`

	// ImportTokens is the fully-qualified name.
	ImportTokens []string `json:"import_tokens,omitempty"`

	// IsConstructor marks __init__/__new__ methods.
	IsConstructor bool `json:"is_constructor,omitempty"`

	// IsLeaf is true when the node calls nothing.
	IsLeaf bool `json:"is_leaf"`

	// IsTrunk is true when nothing calls the node.
	IsTrunk bool `json:"is_trunk"`
}

// SerializableEdge is the JSON wire form of an Edge.
type SerializableEdge struct {
	// Node0UID is the caller's uid.
	Node0UID string `json:"node0_uid"`

	// Node1UID is the callee's uid.
	Node1UID string `json:"node1_uid"`
}

// ToSerializable converts a Graph to its JSON wire form.
//
// Description:
//
//	Walks the file group forest in registration order, capturing group
//	and node identity plus the flags rendering needs. Edge endpoints are
//	stored by uid.
//
// Outputs:
//   - *SerializableGraph: never nil; empty collections for a nil graph.
//
// Thread Safety:
//   - Safe for concurrent use on frozen graphs.
func (g *Graph) ToSerializable() *SerializableGraph {
	if g == nil {
		return &SerializableGraph{
			SchemaVersion: GraphSchemaVersion,
			FileGroups:    []SerializableGroup{},
			Edges:         []SerializableEdge{},
		}
	}

	fileGroups := g.FileGroups()
	groups := make([]SerializableGroup, 0, len(fileGroups))
	for _, fg := range fileGroups {
		groups = append(groups, serializeGroup(fg))
	}

	graphEdges := g.Edges()
	edges := make([]SerializableEdge, 0, len(graphEdges))
	for _, e := range graphEdges {
		edges = append(edges, SerializableEdge{
			Node0UID: e.Node0.UID,
			Node1UID: e.Node1.UID,
		})
	}

	return &SerializableGraph{
		SchemaVersion:  GraphSchemaVersion,
		ProjectRoot:    g.ProjectRoot,
		RunID:          g.RunID,
		CreatedAtMilli: g.CreatedAtMilli,
		Stats:          g.Stats(),
		FileGroups:     groups,
		Edges:          edges,
	}
}

func serializeGroup(grp *Group) SerializableGroup {
	sg := SerializableGroup{
		UID:          grp.UID,
		Token:        grp.Token,
		Type:         grp.GroupType.String(),
		TypeCode:     grp.GroupType,
		LineNumber:   grp.LineNumber,
		ImportTokens: grp.ImportTokens,
		Inherits:     grp.Inherits,
	}
	if grp.RootNode != nil {
		sg.RootNodeUID = grp.RootNode.UID
	}
	for _, n := range grp.Nodes {
		sg.Nodes = append(sg.Nodes, SerializableNode{
			UID:           n.UID,
			Token:         n.Token,
			LineNumber:    n.LineNumber,
			ImportTokens:  n.ImportTokens,
			IsConstructor: n.IsConstructor,
			IsLeaf:        n.IsLeaf,
			IsTrunk:       n.IsTrunk,
		})
	}
	for _, sub := range grp.Subgroups {
		sg.Subgroups = append(sg.Subgroups, serializeGroup(sub))
	}
	return sg
}

// FromSerializable reconstructs a frozen Graph from its wire form.
//
// Description:
//
//	Rebuilds the group forest with the persisted uids, registers each
//	file group, reconnects edges by uid, then restores the original
//	counters and identity before freezing. Raw Call and Variable records
//	are not part of the wire form, so the result supports rendering,
//	diffing, and re-serialization, not re-resolution.
//
// Inputs:
//   - sg: the wire form. Must not be nil.
//   - opts: optional graph options (for example WithMaxNodes).
//
// Outputs:
//   - *Graph: the reconstructed graph, frozen.
//   - error: ErrUnsupportedSchema for a version mismatch, or a
//     description of the structural defect.
func FromSerializable(sg *SerializableGraph, opts ...GraphOption) (*Graph, error) {
	if sg == nil {
		return nil, fmt.Errorf("serializable graph must not be nil")
	}
	if sg.SchemaVersion != GraphSchemaVersion {
		return nil, fmt.Errorf("%w: %q (expected %q)",
			ErrUnsupportedSchema, sg.SchemaVersion, GraphSchemaVersion)
	}

	g := NewGraph(sg.ProjectRoot, opts...)
	byUID := make(map[string]*Node)

	for i := range sg.FileGroups {
		fg, err := deserializeGroup(&sg.FileGroups[i], nil, byUID)
		if err != nil {
			return nil, err
		}
		if err := g.AddFileGroup(fg); err != nil {
			return nil, fmt.Errorf("adding file group %s: %w", fg.Token, err)
		}
	}

	for i, se := range sg.Edges {
		caller, ok := byUID[se.Node0UID]
		if !ok {
			return nil, fmt.Errorf("edge %d references unknown caller %s", i, se.Node0UID)
		}
		callee, ok := byUID[se.Node1UID]
		if !ok {
			return nil, fmt.Errorf("edge %d references unknown callee %s", i, se.Node1UID)
		}
		if err := g.AddEdge(caller, callee); err != nil {
			return nil, fmt.Errorf("adding edge %d (%s -> %s): %w", i, se.Node0UID, se.Node1UID, err)
		}
	}

	// Restore the originating run's counters and identity.
	g.setStats(func(s *GraphStats) { *s = sg.Stats })
	g.Freeze()
	g.RunID = sg.RunID
	g.CreatedAtMilli = sg.CreatedAtMilli

	return g, nil
}

func deserializeGroup(sg *SerializableGroup, parent *Group, byUID map[string]*Node) (*Group, error) {
	grp := &Group{
		Token:        sg.Token,
		LineNumber:   sg.LineNumber,
		GroupType:    sg.TypeCode,
		ImportTokens: sg.ImportTokens,
		Inherits:     sg.Inherits,
		Parent:       parent,
		UID:          sg.UID,
	}
	for _, sn := range sg.Nodes {
		if _, exists := byUID[sn.UID]; exists {
			return nil, fmt.Errorf("duplicate node uid %s", sn.UID)
		}
		n := &Node{
			Token:         sn.Token,
			LineNumber:    sn.LineNumber,
			Parent:        grp,
			ImportTokens:  sn.ImportTokens,
			IsConstructor: sn.IsConstructor,
			IsLeaf:        sn.IsLeaf,
			IsTrunk:       sn.IsTrunk,
			UID:           sn.UID,
		}
		byUID[sn.UID] = n
		grp.Nodes = append(grp.Nodes, n)
		if sg.RootNodeUID != "" && sn.UID == sg.RootNodeUID {
			grp.RootNode = n
		}
	}
	for i := range sg.Subgroups {
		sub, err := deserializeGroup(&sg.Subgroups[i], grp, byUID)
		if err != nil {
			return nil, err
		}
		grp.Subgroups = append(grp.Subgroups, sub)
	}
	return grp, nil
}
