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

import "testing"

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindModule, "module"},
		{KindClass, "class"},
		{KindFunction, "function"},
		{KindCall, "call"},
		{KindAttribute, "attribute"},
		{KindName, "name"},
		{KindSubscript, "subscript"},
		{KindAssign, "assign"},
		{KindImport, "import"},
		{KindOpaque, "opaque"},
		{Kind(255), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestChildren_CoversEveryKind(t *testing.T) {
	callee := &NameExpr{ID: "f"}
	call := &CallExpr{Func: callee, Args: []Node{&NameExpr{ID: "arg"}}}
	assign := &AssignStmt{Targets: []Node{&NameExpr{ID: "x"}}, Value: call}
	attr := &AttributeExpr{Value: &NameExpr{ID: "obj"}, Attr: "field"}
	sub := &SubscriptExpr{Value: &NameExpr{ID: "items"}, Index: &NameExpr{ID: "i"}}
	fn := &FunctionDef{Name: "fn", Body: []Node{assign}}
	base := &NameExpr{ID: "Base"}
	cls := &ClassDef{Name: "C", Bases: []Node{base}, Body: []Node{fn}}
	imp := &ImportStmt{Names: []ImportedName{{Name: "os"}}}
	opaque := &Opaque{Children: []Node{attr, sub}}
	mod := &Module{Body: []Node{cls, imp, opaque}}

	tests := []struct {
		name string
		node Node
		want int
	}{
		{"module", mod, 3},
		{"class bases and body", cls, 2},
		{"function body", fn, 1},
		{"assign targets and value", assign, 2},
		{"call func and args", call, 2},
		{"attribute value", attr, 1},
		{"subscript value and index", sub, 2},
		{"name leaf", callee, 0},
		{"import leaf", imp, 0},
		{"opaque children", opaque, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(Children(tt.node)); got != tt.want {
				t.Errorf("len(Children()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWalk_PreOrder(t *testing.T) {
	inner := &CallExpr{Func: &NameExpr{ID: "g"}}
	outer := &CallExpr{Func: &NameExpr{ID: "f"}, Args: []Node{inner}}
	mod := &Module{Body: []Node{outer}}

	var order []Kind
	Walk(mod, func(n Node) bool {
		order = append(order, n.Kind())
		return true
	})

	want := []Kind{KindModule, KindCall, KindName, KindCall, KindName}
	if len(order) != len(want) {
		t.Fatalf("visited %d nodes, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %v, want %v", i, order[i], want[i])
		}
	}
}

func TestWalk_PruneSubtree(t *testing.T) {
	hidden := &CallExpr{Func: &NameExpr{ID: "hidden"}}
	nested := &FunctionDef{Name: "inner", Body: []Node{hidden}}
	visible := &CallExpr{Func: &NameExpr{ID: "visible"}}
	outer := &FunctionDef{Name: "outer", Body: []Node{nested, visible}}

	var calls int
	Walk(outer, func(n Node) bool {
		if fn, ok := n.(*FunctionDef); ok && fn.Name == "inner" {
			return false
		}
		if n.Kind() == KindCall {
			calls++
		}
		return true
	})

	if calls != 1 {
		t.Errorf("calls visited = %d, want 1 (pruned subtree leaked)", calls)
	}
}

func TestWalk_NilNode(t *testing.T) {
	visited := 0
	Walk(nil, func(n Node) bool {
		visited++
		return true
	})
	if visited != 0 {
		t.Errorf("Walk(nil) visited %d nodes, want 0", visited)
	}
}
