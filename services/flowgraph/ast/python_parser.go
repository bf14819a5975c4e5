// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

const (
	// DefaultMaxFileSize is the largest source file Parse accepts by default (10 MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which Parse logs a warning before proceeding (1 MB).
	WarnFileSize = 1 * 1024 * 1024
)

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
//
// Example:
//
//	parser := NewPythonParser(WithPythonMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser turns Python source into the normalized AST of this package.
//
// Description:
//
//	PythonParser uses tree-sitter to parse Python source and lower the
//	concrete syntax tree into the closed Node vocabulary (Module, ClassDef,
//	FunctionDef, CallExpr, ...). Constructs outside that vocabulary are
//	preserved as Opaque carriers so call sites nested inside them stay
//	reachable by Walk.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser internally.
//
// Example:
//
//	parser := NewPythonParser()
//	mod, err := parser.Parse(ctx, []byte("def hello(): pass"), "main.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d top-level statements\n", len(mod.Body))
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a new PythonParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions (WithPythonMaxFileSize)
//
// Outputs:
//   - *PythonParser: Configured parser instance, never nil
//
// Thread Safety:
//
//	The returned PythonParser is safe for concurrent use.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		maxFileSize: DefaultMaxFileSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse converts Python source code into a normalized Module tree.
//
// Description:
//
//	Parse runs tree-sitter over the content and lowers the resulting
//	concrete syntax tree. Files containing syntax errors are rejected
//	whole: call extraction over a half-parsed tree produces misleading
//	graphs, so a single ERROR node anywhere fails the file with ErrSyntax.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//     Note: Tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw Python source code bytes. Must be valid UTF-8.
//   - filePath: Path of the file, used only for error reporting and logs.
//
// Outputs:
//   - *Module: Root of the normalized tree. Never nil on success.
//   - error: Non-nil for any failure:
//   - ErrFileTooLarge: Content exceeds the configured size limit
//   - ErrInvalidEncoding: Content is not valid UTF-8
//   - ErrSyntax: The file does not parse cleanly
//   - Context errors: Context was canceled or timed out
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*Module, error) {
	ctx, span := startParseSpan(ctx, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, filePath, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, filePath)
	}

	// New tree-sitter parser per call so concurrent Parse calls never share one.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("%w: %s: tree-sitter returned no root", ErrSyntax, filePath)
	}
	if root.HasError() {
		recordParseMetrics(ctx, time.Since(start), len(content), false)
		return nil, fmt.Errorf("%w: %s", ErrSyntax, filePath)
	}

	mod := &Module{
		position: position{line: lineOf(root)},
		Body:     convertBody(root, content),
	}

	setParseSpanResult(span, len(mod.Body))
	recordParseMetrics(ctx, time.Since(start), len(content), true)

	return mod, nil
}

// lineOf reports the 1-based source line of a tree-sitter node.
func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// text returns the source text covered by a tree-sitter node.
func text(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

// convertBody lowers every named child of a block-like CST node, dropping
// constructs that carry nothing of interest (comments, literals, pass).
func convertBody(n *sitter.Node, content []byte) []Node {
	count := int(n.NamedChildCount())
	body := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		for _, converted := range convertStatement(child, content) {
			if converted != nil {
				body = append(body, converted)
			}
		}
	}
	return body
}

// convertStatement lowers one statement-level CST node. A single statement
// can produce several normalized nodes (semicolon-joined expression
// statements), so the result is a slice.
func convertStatement(n *sitter.Node, content []byte) []Node {
	switch n.Type() {
	case "class_definition":
		return []Node{convertClass(n, content)}
	case "function_definition":
		return []Node{convertFunction(n, content)}
	case "decorated_definition":
		// Decorators are dropped; only the wrapped definition survives.
		if def := n.ChildByFieldName("definition"); def != nil {
			return convertStatement(def, content)
		}
		return nil
	case "import_statement":
		return []Node{convertImport(n, content)}
	case "import_from_statement":
		return []Node{convertImportFrom(n, content)}
	case "future_import_statement":
		// `from __future__ import ...` binds no callable names.
		return nil
	case "expression_statement":
		out := make([]Node, 0, 1)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "assignment" {
				out = append(out, convertAssignment(child, content))
				continue
			}
			out = append(out, convertExpr(child, content))
		}
		return out
	default:
		return []Node{convertExpr(n, content)}
	}
}

// convertClass lowers a class_definition to a ClassDef.
func convertClass(n *sitter.Node, content []byte) Node {
	cls := &ClassDef{position: position{line: lineOf(n)}}
	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name = text(name, content)
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			if base := convertExpr(supers.NamedChild(i), content); base != nil {
				cls.Bases = append(cls.Bases, base)
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		cls.Body = convertBody(body, content)
	}
	return cls
}

// convertFunction lowers a function_definition to a FunctionDef. Parameters
// and return annotations are not represented; only the body is kept.
func convertFunction(n *sitter.Node, content []byte) Node {
	fn := &FunctionDef{position: position{line: lineOf(n)}}
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = text(name, content)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && child.Type() == "async" {
			fn.Async = true
			break
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.Body = convertBody(body, content)
	}
	return fn
}

// convertImport lowers `import a.b, c as d` to an ImportStmt with From unset.
func convertImport(n *sitter.Node, content []byte) Node {
	stmt := &ImportStmt{position: position{line: lineOf(n)}}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			stmt.Names = append(stmt.Names, ImportedName{Name: text(child, content)})
		case "aliased_import":
			stmt.Names = append(stmt.Names, convertAliasedImport(child, content))
		}
	}
	return stmt
}

// convertImportFrom lowers `from m import n as o, ...`. Leading relative dots
// are stripped from the module path; a wildcard import records the name "*".
func convertImportFrom(n *sitter.Node, content []byte) Node {
	stmt := &ImportStmt{position: position{line: lineOf(n)}}
	sawImport := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			// import_prefix dots are dropped; keep any trailing dotted_name.
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if gc := child.NamedChild(j); gc.Type() == "dotted_name" {
					stmt.From = text(gc, content)
				}
			}
		case "dotted_name":
			if sawImport {
				stmt.Names = append(stmt.Names, ImportedName{Name: text(child, content)})
			} else {
				stmt.From = text(child, content)
			}
		case "aliased_import":
			stmt.Names = append(stmt.Names, convertAliasedImport(child, content))
		case "wildcard_import":
			stmt.Names = append(stmt.Names, ImportedName{Name: "*"})
		}
	}
	return stmt
}

// convertAliasedImport splits `name as alias` into its two identifiers.
func convertAliasedImport(n *sitter.Node, content []byte) ImportedName {
	imp := ImportedName{}
	if name := n.ChildByFieldName("name"); name != nil {
		imp.Name = text(name, content)
	}
	if alias := n.ChildByFieldName("alias"); alias != nil {
		imp.Alias = text(alias, content)
	}
	return imp
}

// convertAssignment lowers an assignment statement. Chains like `a = b = f()`
// flatten into one AssignStmt with both targets. Annotated assignments stay
// Opaque so their right-hand sides never produce variable records, matching
// how plain assignments alone participate in name resolution.
func convertAssignment(n *sitter.Node, content []byte) Node {
	if n.ChildByFieldName("type") != nil {
		return opaqueFrom(n, content)
	}

	stmt := &AssignStmt{position: position{line: lineOf(n)}}
	cur := n
	for {
		left := cur.ChildByFieldName("left")
		if left == nil {
			return opaqueFrom(n, content)
		}
		if target := convertExpr(left, content); target != nil {
			stmt.Targets = append(stmt.Targets, target)
		}
		right := cur.ChildByFieldName("right")
		if right == nil {
			// Bare annotation or malformed chain; nothing to point at.
			return opaqueFrom(n, content)
		}
		if right.Type() == "assignment" && right.ChildByFieldName("type") == nil {
			cur = right
			continue
		}
		stmt.Value = convertExpr(right, content)
		return stmt
	}
}

// convertExpr lowers an expression-level CST node. Anything outside the
// closed vocabulary becomes an Opaque carrying its lowered named children,
// or nil when nothing beneath it survives.
func convertExpr(n *sitter.Node, content []byte) Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "call":
		call := &CallExpr{position: position{line: lineOf(n)}}
		if fn := n.ChildByFieldName("function"); fn != nil {
			call.Func = convertExpr(fn, content)
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				if arg := convertExpr(args.NamedChild(i), content); arg != nil {
					call.Args = append(call.Args, arg)
				}
			}
		}
		return call
	case "attribute":
		attr := &AttributeExpr{position: position{line: lineOf(n)}}
		if obj := n.ChildByFieldName("object"); obj != nil {
			attr.Value = convertExpr(obj, content)
		}
		if name := n.ChildByFieldName("attribute"); name != nil {
			attr.Attr = text(name, content)
		}
		return attr
	case "identifier":
		return &NameExpr{position: position{line: lineOf(n)}, ID: text(n, content)}
	case "subscript":
		sub := &SubscriptExpr{position: position{line: lineOf(n)}}
		val := n.ChildByFieldName("value")
		if val != nil {
			sub.Value = convertExpr(val, content)
		}
		var indexes []Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if val != nil && child.StartByte() == val.StartByte() && child.EndByte() == val.EndByte() {
				continue
			}
			if idx := convertExpr(child, content); idx != nil {
				indexes = append(indexes, idx)
			}
		}
		switch len(indexes) {
		case 0:
		case 1:
			sub.Index = indexes[0]
		default:
			sub.Index = &Opaque{position: position{line: lineOf(n)}, Children: indexes}
		}
		return sub
	case "parenthesized_expression":
		// Transparent: `(x).y()` behaves as `x.y()`.
		if n.NamedChildCount() == 1 {
			return convertExpr(n.NamedChild(0), content)
		}
		return opaqueFrom(n, content)
	case "class_definition":
		return convertClass(n, content)
	case "function_definition":
		return convertFunction(n, content)
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			return convertExpr(def, content)
		}
		return nil
	case "import_statement":
		return convertImport(n, content)
	case "import_from_statement":
		return convertImportFrom(n, content)
	case "assignment":
		return convertAssignment(n, content)
	case "comment", "string", "integer", "float", "true", "false", "none", "ellipsis", "pass_statement", "break_statement", "continue_statement":
		return nil
	default:
		return opaqueFrom(n, content)
	}
}

// opaqueFrom wraps an unrecognized CST node, keeping whatever lowered
// children it has so nested calls and definitions remain walkable. Nodes
// with no surviving children are dropped entirely.
func opaqueFrom(n *sitter.Node, content []byte) Node {
	count := int(n.NamedChildCount())
	var children []Node
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "assignment" {
			if converted := convertAssignment(child, content); converted != nil {
				children = append(children, converted)
			}
			continue
		}
		if converted := convertExpr(child, content); converted != nil {
			children = append(children, converted)
		}
	}
	if len(children) == 0 {
		return nil
	}
	return &Opaque{position: position{line: lineOf(n)}, Children: children}
}
