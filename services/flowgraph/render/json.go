// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// JSON renders the graph following the json-graph-specification shape:
// nodes keyed by UID, edges as source/target pairs.
// See https://github.com/jsongraph/json-graph-specification.
type JSON struct{}

type jsonDoc struct {
	Graph jsonGraph `json:"graph"`
}

type jsonGraph struct {
	Directed bool                `json:"directed"`
	Nodes    map[string]jsonNode `json:"nodes"`
	Edges    []jsonEdge          `json:"edges"`
}

type jsonNode struct {
	UID   string `json:"uid"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

type jsonEdge struct {
	Directed bool   `json:"directed"`
	Source   string `json:"source"`
	Target   string `json:"target"`
}

// Render writes the JSON document. Grouping options do not apply; node
// ordering is deterministic because map keys are marshaled sorted and edges
// keep registration order.
func (JSON) Render(w io.Writer, g *graph.Graph, _ Options) error {
	nodes := make(map[string]jsonNode)
	for _, n := range g.Nodes() {
		nodes[n.UID] = jsonNode{
			UID:   n.UID,
			Label: n.Label(),
			Name:  n.QualifiedName(),
		}
	}

	graphEdges := g.Edges()
	edges := make([]jsonEdge, 0, len(graphEdges))
	for _, e := range graphEdges {
		edges = append(edges, jsonEdge{
			Directed: true,
			Source:   e.Node0.UID,
			Target:   e.Node1.UID,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonDoc{Graph: jsonGraph{
		Directed: true,
		Nodes:    nodes,
		Edges:    edges,
	}}); err != nil {
		return fmt.Errorf("encoding graph json: %w", err)
	}
	return nil
}
