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

// Resolver turns the raw Calls recorded on each Node into caller→callee
// edges by looking receivers up in the immutable Index.
//
// Resolution never creates nodes and never touches shared state: the only
// mutations are the resolved Call's own DefiniteConstructor/IsLibrary flags
// and the returned edge slice. Any number of goroutines may resolve
// distinct nodes through one Resolver concurrently.
type Resolver struct {
	idx *Index
}

// NewResolver returns a Resolver reading from idx.
func NewResolver(idx *Index) *Resolver {
	return &Resolver{idx: idx}
}

// match is one resolution outcome.
type match struct {
	// node is the resolved callee.
	node *Node

	// viaClass is true when the lookup landed on a class group and the
	// node is that class's (possibly inherited) constructor.
	viaClass bool

	// competingFunc is true when a bare function with the same token
	// shared the scope the class was matched in.
	competingFunc bool
}

// ResolveNode resolves every Call recorded on n.
//
// Description:
//
//	Applies the receiver rules in order: bare calls search the sibling,
//	inheritance, and file scopes; self/super calls search the enclosing
//	class and its inheritance chain; attribute calls are looked up
//	through in-scope variable bindings, one hop. Calls that resolve
//	produce one Edge each, in call order; calls that do not are flagged
//	IsLibrary and produce nothing.
//
// Inputs:
//   - n: the node whose calls to resolve. Its Call flags are mutated in
//     place; nothing else is written.
//
// Outputs:
//   - []Edge: one entry per resolved call, callers all n.
//
// Thread Safety:
//   - Safe to call concurrently for distinct nodes.
func (r *Resolver) ResolveNode(n *Node) []Edge {
	var edges []Edge
	for i := range n.Calls {
		c := &n.Calls[i]
		m, ok := r.resolveCall(n, c)
		if !ok {
			c.IsLibrary = true
			continue
		}
		if m.node.IsConstructor || (m.viaClass && !m.competingFunc) {
			c.DefiniteConstructor = true
		}
		edges = append(edges, Edge{Node0: n, Node1: m.node})
	}
	return edges
}

func (r *Resolver) resolveCall(n *Node, c *Call) (match, bool) {
	switch c.OwnerToken {
	case "":
		return r.resolveBare(n, c)
	case "self", "super":
		return r.resolveSelfRef(n, c)
	case UnknownVar:
		return match{}, false
	default:
		return r.resolveThroughVariables(n, c)
	}
}

// resolveBare resolves an unqualified call. Scope order: siblings in the
// owning group, then the enclosing class's inheritance chain, then the
// file group's top level. Variables are never consulted for bare calls.
func (r *Resolver) resolveBare(n *Node, c *Call) (match, bool) {
	if n.Parent == nil {
		return match{}, false
	}
	if m, ok := r.lookupScope(n.Parent, c.Token); ok {
		return m, true
	}
	if n.Parent.GroupType == GroupClass {
		for _, anc := range r.idx.InheritanceChain(n.Parent) {
			if m, ok := r.lookupScope(anc, c.Token); ok {
				return m, true
			}
		}
	}
	if fg := n.FileGroup(); fg != nil && fg != n.Parent {
		if m, ok := r.lookupScope(fg, c.Token); ok {
			return m, true
		}
	}
	return match{}, false
}

// resolveSelfRef resolves calls whose receiver is the current instance.
// self searches the enclosing class then its inheritance chain; super
// skips the enclosing class and searches only the chain.
func (r *Resolver) resolveSelfRef(n *Node, c *Call) (match, bool) {
	cls := enclosingClass(n)
	if cls == nil {
		return match{}, false
	}
	if c.OwnerToken == "self" {
		if m, ok := r.lookupScope(cls, c.Token); ok {
			return m, true
		}
	}
	for _, anc := range r.idx.InheritanceChain(cls) {
		if m, ok := r.lookupScope(anc, c.Token); ok {
			return m, true
		}
	}
	return match{}, false
}

// resolveThroughVariables resolves a qualified call by matching its
// receiver against in-scope bindings: the calling node's variables
// recorded at or before the call line, nearest first, then the enclosing
// groups' imports walking outward. Each matched binding is followed one
// hop; a failed member lookup falls through to the next binding, while an
// import naming nothing in the analyzed tree stops resolution outright.
func (r *Resolver) resolveThroughVariables(n *Node, c *Call) (match, bool) {
	for i := len(n.Variables) - 1; i >= 0; i-- {
		v := &n.Variables[i]
		if v.Token != c.OwnerToken || v.LineNumber > c.LineNumber {
			continue
		}
		m, ok, stop := r.followVariable(v, c.Token)
		if ok {
			return m, true
		}
		if stop {
			return match{}, false
		}
	}
	for grp := n.Parent; grp != nil; grp = grp.Parent {
		for i := range grp.Imports {
			v := &grp.Imports[i]
			if v.Token != c.OwnerToken {
				continue
			}
			m, ok, stop := r.followVariable(v, c.Token)
			if ok {
				return m, true
			}
			if stop {
				return match{}, false
			}
		}
	}
	return match{}, false
}

// followVariable performs the single-hop lookup of token through one
// binding. stop reports the import hard stop: the binding names a module
// outside the analyzed tree, so no later binding can rescue the call.
func (r *Resolver) followVariable(v *Variable, token string) (m match, ok, stop bool) {
	if v.IsImport {
		return r.followImport(v, token)
	}
	for _, cls := range r.idx.ClassesNamed(v.PointsTo.Token) {
		if m, ok := r.lookupClassMember(cls, token); ok {
			return m, true, false
		}
	}
	return match{}, false, false
}

// followImport matches the binding's imported path against first-party
// import tokens. A file target looks token up among its top-level nodes;
// a class target also searches its inheritance chain. A path matching
// nothing is a hard stop; a matched target without the member falls
// through.
func (r *Resolver) followImport(v *Variable, token string) (m match, ok, stop bool) {
	path := v.PointsTo.Token
	groups := r.idx.GroupsWithImportToken(path)
	nodes := r.idx.NodesWithImportToken(path)
	if len(groups) == 0 && len(nodes) == 0 {
		return match{}, false, true
	}
	for _, grp := range groups {
		if grp.GroupType == GroupClass {
			if m, ok := r.lookupClassMember(grp, token); ok {
				return m, true, false
			}
			continue
		}
		if m, ok := r.lookupScope(grp, token); ok {
			return m, true, false
		}
	}
	// Imported nodes are plain callables with no members to look up.
	return match{}, false, false
}

// lookupClassMember looks token up in a class scope and then its
// inheritance chain.
func (r *Resolver) lookupClassMember(cls *Group, token string) (match, bool) {
	if m, ok := r.lookupScope(cls, token); ok {
		return m, true
	}
	for _, anc := range r.idx.InheritanceChain(cls) {
		if m, ok := r.lookupScope(anc, token); ok {
			return m, true
		}
	}
	return match{}, false
}

// lookupScope applies the single-scope competition rules inside one group:
// a subgroup class named token resolves to its constructor and beats a
// same-named function node; a class with no reachable constructor is not a
// candidate.
func (r *Resolver) lookupScope(grp *Group, token string) (match, bool) {
	var fn *Node
	for _, n := range grp.Nodes {
		if n.Token == token {
			fn = n
			break
		}
	}
	for _, sg := range grp.Subgroups {
		if sg.GroupType != GroupClass || sg.Token != token {
			continue
		}
		if ctor := r.idx.ConstructorFor(sg); ctor != nil {
			return match{node: ctor, viaClass: true, competingFunc: fn != nil}, true
		}
	}
	if fn != nil {
		return match{node: fn}, true
	}
	return match{}, false
}

// enclosingClass walks parent groups to the nearest class, nil when the
// node is owned by a file group.
func enclosingClass(n *Node) *Group {
	for g := n.Parent; g != nil; g = g.Parent {
		if g.GroupType == GroupClass {
			return g
		}
	}
	return nil
}
