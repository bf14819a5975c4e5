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

// Kind identifies a normalized AST node variant.
//
// The set is closed: analysis code dispatches with exhaustive switches and
// treats KindOpaque as "walk the children, extract nothing here".
type Kind uint8

const (
	// KindModule is the root of one parsed source file.
	KindModule Kind = iota

	// KindClass is a class definition.
	KindClass

	// KindFunction is a function or method definition.
	KindFunction

	// KindCall is a call expression.
	KindCall

	// KindAttribute is an attribute access (receiver.member).
	KindAttribute

	// KindName is a bare identifier.
	KindName

	// KindSubscript is a subscript expression (receiver[index]).
	KindSubscript

	// KindAssign is a plain assignment statement.
	KindAssign

	// KindImport is one imported binding from an import statement.
	KindImport

	// KindOpaque is any other statement or expression. Its children are
	// preserved so nested calls and definitions stay reachable.
	KindOpaque
)

// kindNames maps Kind values to human-readable names.
var kindNames = map[Kind]string{
	KindModule:    "module",
	KindClass:     "class",
	KindFunction:  "function",
	KindCall:      "call",
	KindAttribute: "attribute",
	KindName:      "name",
	KindSubscript: "subscript",
	KindAssign:    "assign",
	KindImport:    "import",
	KindOpaque:    "opaque",
}

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Node is the closed interface over normalized AST variants.
//
// Every node carries the 1-based source line it starts on; the module root
// reports line 0.
type Node interface {
	Kind() Kind
	Line() int
}

// position carries the shared line field of every concrete node.
type position struct {
	line int
}

// Line returns the 1-based source line the node starts on.
func (p position) Line() int { return p.line }

// Module is the root node of one parsed source file.
type Module struct {
	position

	// Body holds the module-level statements in source order.
	Body []Node
}

// Kind returns KindModule.
func (*Module) Kind() Kind { return KindModule }

// ClassDef is a class definition statement.
type ClassDef struct {
	position

	// Name is the class name.
	Name string

	// Bases holds the raw base-class expressions in declaration order.
	// Callers filter these down to plain identifiers; attribute, subscript,
	// and call bases are carried opaquely and dropped during analysis.
	Bases []Node

	// Body holds the class body statements in source order.
	Body []Node
}

// Kind returns KindClass.
func (*ClassDef) Kind() Kind { return KindClass }

// FunctionDef is a function or method definition statement.
//
// Decorator expressions are not carried; they are stripped during
// normalization and never contribute calls or variables.
type FunctionDef struct {
	position

	// Name is the function name.
	Name string

	// Async reports whether the definition used "async def".
	Async bool

	// Body holds the function body statements in source order.
	Body []Node
}

// Kind returns KindFunction.
func (*FunctionDef) Kind() Kind { return KindFunction }

// CallExpr is a call expression.
type CallExpr struct {
	position

	// Func is the callee expression: a NameExpr for bare calls, an
	// AttributeExpr for method calls, or any other expression for dynamic
	// callees.
	Func Node

	// Args holds the argument expressions in source order. Nil elements
	// never appear; literal-only arguments are simply absent.
	Args []Node
}

// Kind returns KindCall.
func (*CallExpr) Kind() Kind { return KindCall }

// AttributeExpr is an attribute access such as receiver.member.
type AttributeExpr struct {
	position

	// Value is the receiver expression.
	Value Node

	// Attr is the accessed member name.
	Attr string
}

// Kind returns KindAttribute.
func (*AttributeExpr) Kind() Kind { return KindAttribute }

// NameExpr is a bare identifier.
type NameExpr struct {
	position

	// ID is the identifier text.
	ID string
}

// Kind returns KindName.
func (*NameExpr) Kind() Kind { return KindName }

// SubscriptExpr is a subscript expression such as receiver[index].
type SubscriptExpr struct {
	position

	// Value is the subscripted expression.
	Value Node

	// Index is the subscript expression, nil when it normalizes to nothing
	// (for example a bare integer literal).
	Index Node
}

// Kind returns KindSubscript.
func (*SubscriptExpr) Kind() Kind { return KindSubscript }

// AssignStmt is a plain assignment statement.
//
// Chained assignments (a = b = expr) are flattened into a single AssignStmt
// with every left-hand side in Targets. Annotated and augmented assignments
// do not normalize to AssignStmt; they are carried as opaque nodes so their
// right-hand calls are still walked.
type AssignStmt struct {
	position

	// Targets holds the left-hand side expressions. Only NameExpr targets
	// participate in variable extraction; tuple and attribute targets are
	// carried opaquely.
	Targets []Node

	// Value is the right-hand side expression, nil when it normalizes to
	// nothing.
	Value Node
}

// Kind returns KindAssign.
func (*AssignStmt) Kind() Kind { return KindAssign }

// ImportStmt is one import statement.
//
// A statement importing several names carries one ImportedName per binding.
type ImportStmt struct {
	position

	// From is the source module path of a from-import, "" for plain
	// imports. Relative dots are stripped: "from ..pkg import x" carries
	// From "pkg", and "from . import x" carries From "".
	From string

	// Names holds the imported bindings in source order.
	Names []ImportedName
}

// Kind returns KindImport.
func (*ImportStmt) Kind() Kind { return KindImport }

// ImportedName is a single binding introduced by an import statement.
type ImportedName struct {
	// Name is the imported path segment as written, possibly dotted for
	// plain imports ("os.path"), or "*" for wildcard imports.
	Name string

	// Alias is the local alias from an "as" clause, "" when absent.
	Alias string
}

// Opaque is any statement or expression with no dedicated variant.
type Opaque struct {
	position

	// Children holds the normalized named children so nested calls,
	// definitions, and imports stay reachable during walks.
	Children []Node
}

// Kind returns KindOpaque.
func (*Opaque) Kind() Kind { return KindOpaque }

// Children returns the direct child nodes of n in source order.
//
// Nil children are never returned. The result aliases the node's own slices
// where possible; callers must not mutate it.
func Children(n Node) []Node {
	switch v := n.(type) {
	case *Module:
		return v.Body
	case *ClassDef:
		out := make([]Node, 0, len(v.Bases)+len(v.Body))
		out = append(out, v.Bases...)
		out = append(out, v.Body...)
		return out
	case *FunctionDef:
		return v.Body
	case *CallExpr:
		out := make([]Node, 0, len(v.Args)+1)
		if v.Func != nil {
			out = append(out, v.Func)
		}
		out = append(out, v.Args...)
		return out
	case *AttributeExpr:
		if v.Value == nil {
			return nil
		}
		return []Node{v.Value}
	case *SubscriptExpr:
		out := make([]Node, 0, 2)
		if v.Value != nil {
			out = append(out, v.Value)
		}
		if v.Index != nil {
			out = append(out, v.Index)
		}
		return out
	case *AssignStmt:
		out := make([]Node, 0, len(v.Targets)+1)
		out = append(out, v.Targets...)
		if v.Value != nil {
			out = append(out, v.Value)
		}
		return out
	case *Opaque:
		return v.Children
	default:
		return nil
	}
}

// Walk visits n and its descendants in pre-order.
//
// Inputs:
//
//	n - The subtree root. Nil is a no-op.
//	visit - Called per node; returning false skips that node's children.
func Walk(n Node, visit func(Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, child := range Children(n) {
		Walk(child, visit)
	}
}
