// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns finished graphs into output formats: Graphviz DOT,
// json-graph JSON, and Neo4j upserts.
package render

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// ErrUnsupportedFormat is returned for output extensions no renderer
// handles.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Options adjusts rendering. Renderers ignore options that do not apply to
// their format.
type Options struct {
	// NoGrouping flattens the output: nodes are emitted without their
	// file/class clusters.
	NoGrouping bool

	// HideLegend omits the legend block.
	HideLegend bool
}

// Renderer writes a frozen graph to w.
type Renderer interface {
	Render(w io.Writer, g *graph.Graph, opts Options) error
}

// ForPath selects the renderer for an output path by extension.
//
// Outputs:
//   - Renderer: DOT for .dot/.gv, JSON for .json.
//   - error: ErrUnsupportedFormat for anything else. Image extensions get
//     a message pointing at the text formats; turning DOT into images is
//     graphviz tooling, not this program.
func ForPath(path string) (Renderer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".dot", ".gv":
		return DOT{}, nil
	case ".json":
		return JSON{}, nil
	case ".png", ".svg", ".jpg", ".jpeg", ".gif", ".pdf":
		return nil, fmt.Errorf("%w: %s: image output is not generated directly, write .dot/.gv/.json and render with graphviz", ErrUnsupportedFormat, ext)
	default:
		return nil, fmt.Errorf("%w: %q (supported: .dot, .gv, .json)", ErrUnsupportedFormat, ext)
	}
}
