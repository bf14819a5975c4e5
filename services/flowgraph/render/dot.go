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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// Node fill colors. A node keeps the trunk color when nothing calls it and
// the leaf color when it calls nothing; trunk wins when both hold.
const (
	regularColor = "#cccccc"
	trunkColor   = "#966F33"
	leafColor    = "#6db33f"
)

// edgeColors is cycled by the caller's UID counter so all edges leaving one
// node share a color.
var edgeColors = [...]string{
	"#000000", "#E69F00", "#56B4E9", "#009E73",
	"#F0E442", "#0072B2", "#D55E00", "#CC79A7",
}

// polylineEdgeCount is the edge count at which splines switch from ortho to
// polyline; graphviz's ortho router chokes on large graphs.
const polylineEdgeCount = 500

const dotLegend = `subgraph legend{
    rank = min;
    label = "legend";
    Legend [shape=none, margin=0, label = <
        <table cellspacing="0" cellpadding="0" border="1"><tr><td>Flowgraph Legend</td></tr><tr><td>
        <table cellspacing="0">
        <tr><td>Regular function</td><td width="50px" bgcolor='#cccccc'></td></tr>
        <tr><td>Trunk function (nothing calls this)</td><td bgcolor='#966F33'></td></tr>
        <tr><td>Leaf function (this calls nothing else)</td><td bgcolor='#6db33f'></td></tr>
        <tr><td>Function call</td><td><font color='black'>&#8594;</font></td></tr>
        </table></td></tr></table>
        >];
}
`

// DOT renders the graph as a Graphviz digraph with one cluster per group.
type DOT struct{}

// Render writes the DOT document.
//
// Description:
//
//	Emits digraph G with concentrate on and left-to-right ranking. Groups
//	become nested cluster subgraphs unless opts.NoGrouping is set; the
//	legend is included unless opts.HideLegend is set. Output is fully
//	deterministic for a given graph.
func (DOT) Render(w io.Writer, g *graph.Graph, opts Options) error {
	var b strings.Builder
	edges := g.Edges()

	b.WriteString("digraph G {\n")
	b.WriteString("concentrate=true;\n")

	splines := "ortho"
	if len(edges) >= polylineEdgeCount {
		splines = "polyline"
	}
	fmt.Fprintf(&b, "splines=%q;\n", splines)
	b.WriteString("rankdir=\"LR\";\n")

	if !opts.HideLegend {
		b.WriteString(dotLegend)
	}

	if opts.NoGrouping {
		for _, n := range g.Nodes() {
			writeDotNode(&b, n, 1)
		}
	} else {
		for _, fg := range g.FileGroups() {
			writeDotCluster(&b, fg, 1)
		}
	}

	for _, e := range edges {
		fmt.Fprintf(&b, "    %s -> %s [color=%q penwidth=\"2\"];\n",
			e.Node0.UID, e.Node1.UID, callerColor(e.Node0.UID))
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDotNode(b *strings.Builder, n *graph.Node, depth int) {
	fill := regularColor
	switch {
	case n.IsTrunk:
		fill = trunkColor
	case n.IsLeaf:
		fill = leafColor
	}
	indent := strings.Repeat("    ", depth)
	fmt.Fprintf(b, "%s%s [label=%q name=%q shape=\"rect\" style=\"rounded,filled\" fillcolor=%q];\n",
		indent, n.UID, n.Label(), n.QualifiedName(), fill)
}

func writeDotCluster(b *strings.Builder, grp *graph.Group, depth int) {
	indent := strings.Repeat("    ", depth)
	fmt.Fprintf(b, "%ssubgraph %s {\n", indent, grp.UID)
	for _, n := range grp.Nodes {
		writeDotNode(b, n, depth+1)
	}
	fmt.Fprintf(b, "%s    label=%q;\n", indent, grp.Label())
	fmt.Fprintf(b, "%s    name=%q;\n", indent, grp.Token)
	fmt.Fprintf(b, "%s    style=\"filled\";\n", indent)
	fmt.Fprintf(b, "%s    graph[style=dotted];\n", indent)
	for _, sg := range grp.Subgroups {
		writeDotCluster(b, sg, depth+1)
	}
	fmt.Fprintf(b, "%s};\n", indent)
}

// callerColor picks the edge color from the caller's UID counter value so
// every call a node makes shares one color.
func callerColor(uid string) string {
	counter, err := strconv.ParseUint(strings.TrimPrefix(uid, "node_"), 16, 64)
	if err != nil {
		return edgeColors[0]
	}
	return edgeColors[counter%uint64(len(edgeColors))]
}
