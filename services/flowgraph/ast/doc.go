// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast parses Python source into a normalized abstract syntax tree.
//
// The package wraps the tree-sitter Python grammar and reduces its concrete
// syntax tree to the small, closed set of node variants the call-graph
// analysis needs: modules, class and function definitions, call expressions,
// attribute and subscript chains, identifiers, assignments, and imports.
// Everything else is carried as an opaque node so nested expressions remain
// reachable during body walks.
//
// # Ownership Model
//
// Parse returns a fresh tree per call. Nodes are plain data:
//   - Callers MUST NOT mutate a returned tree while sharing it across
//     goroutines.
//   - The parser retains no reference to returned trees.
//
// # Thread Safety
//
// PythonParser is stateless apart from its configuration and is safe for
// concurrent use. Each Parse call creates its own tree-sitter parser.
//
// # Lifecycle
//
// A typical use:
//  1. Create with NewPythonParser()
//  2. Call Parse(ctx, content, filePath) per source file
//  3. Walk the returned *Module
package ast
