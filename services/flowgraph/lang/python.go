// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lang hosts the per-language analyzers that turn source files into
// graph groups. Python is the only language implemented.
package lang

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/flowgraph/services/flowgraph/ast"
	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// PythonOption configures a Python analyzer.
type PythonOption func(*Python)

// WithPythonLogger sets the logger for analysis diagnostics.
func WithPythonLogger(logger *slog.Logger) PythonOption {
	return func(p *Python) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxFileSize sets the largest source file the analyzer will accept.
func WithMaxFileSize(bytes int64) PythonOption {
	return func(p *Python) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Python analyzes Python source files into the group/node/call/variable
// records the graph builder consumes.
//
// Description:
//
//	Python implements graph.FileAnalyzer. Each AnalyzeFile call parses one
//	file and separates its namespaces: the file becomes a file group with a
//	(global) root node, every class becomes a class group, and every
//	function or method becomes a node attributed to the nearest enclosing
//	file or class group. Call sites and local bindings are extracted per
//	node so the resolver can later connect them.
//
// Thread Safety:
//
//	Python instances are safe for concurrent use; AnalyzeFile keeps no
//	state between calls.
type Python struct {
	maxFileSize int64
	logger      *slog.Logger
	parser      *ast.PythonParser
}

// NewPython creates a Python analyzer.
func NewPython(opts ...PythonOption) *Python {
	p := &Python{
		maxFileSize: ast.DefaultMaxFileSize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.parser = ast.NewPythonParser(ast.WithPythonMaxFileSize(p.maxFileSize))
	return p
}

// AnalyzeFile parses path and returns its file group.
//
// Inputs:
//   - ctx: Context for cancellation, forwarded to the parser.
//   - path: Source file to analyze.
//   - alloc: Run-wide UID allocator. Every group and node UID is drawn
//     from it.
//
// Outputs:
//   - *graph.Group: The file group, never nil on success.
//   - error: Read failures, or the parser's ErrSyntax / ErrFileTooLarge /
//     ErrInvalidEncoding sentinels.
//
// Thread Safety: Safe for concurrent calls.
func (p *Python) AnalyzeFile(ctx context.Context, path string, alloc *graph.UIDAllocator) (*graph.Group, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}

	mod, err := p.parser.Parse(ctx, content, path)
	if err != nil {
		return nil, err
	}

	fg := p.fileGroup(mod, path, alloc)

	p.logger.Debug("analyzed file",
		slog.String("file", path),
		slog.Int("nodes", len(fg.AllNodes())),
		slog.Int("groups", len(fg.AllGroups())))

	return fg, nil
}

// FileImportToken returns the token the file is importable as: the base
// name without its extension.
func (p *Python) FileImportToken(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// fileGroup assembles the file group for one parsed module: root node from
// the loose module body, one node per function, one subgroup per class.
func (p *Python) fileGroup(mod *ast.Module, path string, alloc *graph.UIDAllocator) *graph.Group {
	token := p.FileImportToken(path)
	fg := graph.NewGroup(token, graph.GroupFile, 0, []string{token}, nil, alloc)

	sep := separate(mod.Body)
	for _, imp := range sep.imports {
		fg.Imports = append(fg.Imports, importVariables(imp)...)
	}

	root := graph.NewNode(graph.RootNodeToken, 0,
		extractCalls(sep.body), extractVariables(sep.body), fg, alloc)
	fg.AddRootNode(root)

	for _, def := range sep.defs {
		fg.AddNode(buildNode(def, fg, alloc))
	}
	for _, class := range sep.classes {
		fg.AddSubgroup(p.classGroup(class, fg, alloc))
	}
	return fg
}

// classGroup assembles a class group: one node per method, one subgroup per
// nested class. Loose class-body statements carry no calls of their own;
// only the class's imports are kept.
func (p *Python) classGroup(cd *ast.ClassDef, parent *graph.Group, alloc *graph.UIDAllocator) *graph.Group {
	cg := graph.NewGroup(cd.Name, graph.GroupClass, cd.Line(),
		[]string{parent.Token + "." + cd.Name}, parent, alloc)
	cg.Inherits = inheritsOf(cd)

	sep := separate(cd.Body)
	for _, imp := range sep.imports {
		cg.Imports = append(cg.Imports, importVariables(imp)...)
	}
	for _, def := range sep.defs {
		cg.AddNode(buildNode(def, cg, alloc))
	}
	for _, nested := range sep.classes {
		cg.AddSubgroup(p.classGroup(nested, cg, alloc))
	}
	return cg
}

// inheritsOf keeps base classes referenced as plain identifiers. Attribute,
// subscript, and call bases are dropped silently.
func inheritsOf(cd *ast.ClassDef) []string {
	var inherits []string
	for _, base := range cd.Bases {
		if name, ok := base.(*ast.NameExpr); ok {
			inherits = append(inherits, name.ID)
		}
	}
	return inherits
}

// buildNode extracts one function's calls and variables and wraps them in a
// node owned by parent.
func buildNode(fd *ast.FunctionDef, parent *graph.Group, alloc *graph.UIDAllocator) *graph.Node {
	return graph.NewNode(fd.Name, fd.Line(),
		extractCalls(fd.Body), extractVariables(fd.Body), parent, alloc)
}

// separated is the outcome of namespace separation over one statement list:
// function definitions attributed to the current group, class definitions
// that become subgroups, import statements made directly in the group body,
// and the loose statements left over.
type separated struct {
	defs    []*ast.FunctionDef
	classes []*ast.ClassDef
	imports []*ast.ImportStmt
	body    []ast.Node
}

// separate partitions a group body. Definitions inside compound statements
// (if/for/while/try) are lifted to the current group; functions nested
// inside other functions are lifted too, so every definition lands on the
// nearest file or class group. The lifted statements stay embedded in their
// enclosing trees; extraction skips definition subtrees, so each call site
// is counted for exactly one node.
func separate(stmts []ast.Node) separated {
	var sep separated
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.FunctionDef:
			sep.defs = append(sep.defs, s)
			sep.liftNested(s.Body)
		case *ast.ClassDef:
			sep.classes = append(sep.classes, s)
		case *ast.ImportStmt:
			sep.imports = append(sep.imports, s)
		default:
			sep.body = append(sep.body, stmt)
			sep.liftFromSubtree(stmt)
		}
	}
	return sep
}

// liftNested pulls definitions out of a function body. Nested functions
// and classes are recorded against the group under separation; their own
// bodies are scanned the same way.
func (sep *separated) liftNested(stmts []ast.Node) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.FunctionDef:
			sep.defs = append(sep.defs, s)
			sep.liftNested(s.Body)
		case *ast.ClassDef:
			sep.classes = append(sep.classes, s)
		default:
			sep.liftFromSubtree(stmt)
		}
	}
}

// liftFromSubtree lifts definitions hiding inside a compound statement.
func (sep *separated) liftFromSubtree(stmt ast.Node) {
	ast.Walk(stmt, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.FunctionDef:
			sep.defs = append(sep.defs, s)
			sep.liftNested(s.Body)
			return false
		case *ast.ClassDef:
			sep.classes = append(sep.classes, s)
			return false
		}
		return true
	})
}

// walkBody runs visit over every expression in the statement list, skipping
// nested definition subtrees: those belong to the nodes built for them.
func walkBody(stmts []ast.Node, visit func(ast.Node)) {
	for _, stmt := range stmts {
		ast.Walk(stmt, func(n ast.Node) bool {
			switch n.Kind() {
			case ast.KindFunction, ast.KindClass:
				return false
			}
			visit(n)
			return true
		})
	}
}

// extractCalls returns one call record per call expression in the body
// whose callee classifies to something resolvable.
func extractCalls(stmts []ast.Node) []graph.Call {
	var calls []graph.Call
	walkBody(stmts, func(n ast.Node) {
		ce, ok := n.(*ast.CallExpr)
		if !ok {
			return
		}
		if call, ok := callFromCallee(ce.Func); ok {
			calls = append(calls, call)
		}
	})
	return calls
}

// callFromCallee classifies a callee expression into a call record.
//
// Bare names carry an empty owner. Attribute chains of plain identifiers
// carry the dotted receiver path. A subscript anywhere in the chain drops
// the record entirely; a call result or any other expression in the chain
// yields the UNKNOWN_VAR owner. Subscript and call-result callees produce
// no record.
func callFromCallee(callee ast.Node) (graph.Call, bool) {
	switch c := callee.(type) {
	case *ast.NameExpr:
		return graph.Call{Token: c.ID, LineNumber: c.Line()}, true
	case *ast.AttributeExpr:
		owner, ok := ownerPath(c.Value)
		if !ok {
			return graph.Call{}, false
		}
		return graph.Call{Token: c.Attr, OwnerToken: owner, LineNumber: c.Line()}, true
	default:
		return graph.Call{}, false
	}
}

// ownerPath renders a receiver chain as a dotted path. The second return
// is false when the chain contains a subscript and the whole call record
// must be dropped. A super() link contributes the super token so the
// resolver's self-reference rule can see it.
func ownerPath(value ast.Node) (string, bool) {
	switch v := value.(type) {
	case *ast.NameExpr:
		return v.ID, true
	case *ast.AttributeExpr:
		prefix, ok := ownerPath(v.Value)
		if !ok {
			return "", false
		}
		if prefix == graph.UnknownVar {
			return graph.UnknownVar, true
		}
		return prefix + "." + v.Attr, true
	case *ast.SubscriptExpr:
		return "", false
	case *ast.CallExpr:
		if name, ok := v.Func.(*ast.NameExpr); ok && name.ID == "super" {
			return "super", true
		}
		return graph.UnknownVar, true
	default:
		return graph.UnknownVar, true
	}
}

// extractVariables returns the body's local bindings: assignments whose
// right-hand side is a call, and imports made inside the body.
func extractVariables(stmts []ast.Node) []graph.Variable {
	var vars []graph.Variable
	walkBody(stmts, func(n ast.Node) {
		switch s := n.(type) {
		case *ast.AssignStmt:
			vars = append(vars, assignmentVariables(s)...)
		case *ast.ImportStmt:
			vars = append(vars, importVariables(s)...)
		}
	})
	return vars
}

// assignmentVariables records one binding per identifier target of an
// assignment whose value is a call. Tuple and attribute targets, and
// non-call values, record nothing.
func assignmentVariables(s *ast.AssignStmt) []graph.Variable {
	call, ok := s.Value.(*ast.CallExpr)
	if !ok {
		return nil
	}
	pointsTo, ok := callFromCallee(call.Func)
	if !ok {
		return nil
	}

	var vars []graph.Variable
	for _, target := range s.Targets {
		name, ok := target.(*ast.NameExpr)
		if !ok {
			continue
		}
		vars = append(vars, graph.Variable{
			Token:      name.ID,
			PointsTo:   pointsTo,
			LineNumber: s.Line(),
		})
	}
	return vars
}

// importVariables records one binding per imported name. The local token is
// the alias when present, else the name as written; the dotted origin path
// rides in PointsTo.Token ("from M import N" yields "M.N"). Wildcard
// imports introduce no named binding and record nothing.
func importVariables(s *ast.ImportStmt) []graph.Variable {
	var vars []graph.Variable
	for _, imported := range s.Names {
		if imported.Name == "*" {
			continue
		}
		token := imported.Alias
		if token == "" {
			token = imported.Name
		}
		path := imported.Name
		if s.From != "" {
			path = s.From + "." + imported.Name
		}
		vars = append(vars, graph.Variable{
			Token:      token,
			PointsTo:   graph.Call{Token: path, LineNumber: s.Line()},
			LineNumber: s.Line(),
			IsImport:   true,
		})
	}
	return vars
}
