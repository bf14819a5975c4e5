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

// Index is the flat lookup structure over a fully built graph. It is
// constructed once at the build/resolve barrier and never mutated
// afterwards, so resolver goroutines may share one Index without locking.
//
// All multi-valued lookups preserve declaration order: file groups in the
// order they were added to the graph, then groups and nodes in source
// order within each file. Resolution outcomes therefore depend only on
// the source tree, never on goroutine scheduling.
type Index struct {
	nodesByToken        map[string][]*Node
	classesByToken      map[string][]*Group
	groupsByImportToken map[string][]*Group
	nodesByImportToken  map[string][]*Node
	nodeByUID           map[string]*Node
	groupByUID          map[string]*Group
}

// NewIndex walks every file group of g and builds the lookup maps.
//
// Description:
//
//	Flattens the group forest into uid, token, and import-token keyed
//	maps. Multi-valued entries keep insertion order so that "first
//	declared wins" tie-breaks are stable across runs.
//
// Inputs:
//   - g: the graph to index. Its groups and nodes must be fully built;
//     the index does not observe later mutations.
//
// Outputs:
//   - *Index: ready for concurrent read-only use.
func NewIndex(g *Graph) *Index {
	idx := &Index{
		nodesByToken:        make(map[string][]*Node),
		classesByToken:      make(map[string][]*Group),
		groupsByImportToken: make(map[string][]*Group),
		nodesByImportToken:  make(map[string][]*Node),
		nodeByUID:           make(map[string]*Node),
		groupByUID:          make(map[string]*Group),
	}
	for _, fg := range g.FileGroups() {
		for _, grp := range fg.AllGroups() {
			idx.groupByUID[grp.UID] = grp
			if grp.GroupType == GroupClass {
				idx.classesByToken[grp.Token] = append(idx.classesByToken[grp.Token], grp)
			}
			for _, tok := range grp.ImportTokens {
				idx.groupsByImportToken[tok] = append(idx.groupsByImportToken[tok], grp)
			}
		}
		for _, n := range fg.AllNodes() {
			idx.nodeByUID[n.UID] = n
			idx.nodesByToken[n.Token] = append(idx.nodesByToken[n.Token], n)
			for _, tok := range n.ImportTokens {
				idx.nodesByImportToken[tok] = append(idx.nodesByImportToken[tok], n)
			}
		}
	}
	return idx
}

// NodesNamed returns every node with the given token, in declaration order.
func (idx *Index) NodesNamed(token string) []*Node {
	return idx.nodesByToken[token]
}

// ClassesNamed returns every class group with the given token, in
// declaration order.
func (idx *Index) ClassesNamed(token string) []*Group {
	return idx.classesByToken[token]
}

// GroupsWithImportToken returns the groups whose ImportTokens contain tok.
func (idx *Index) GroupsWithImportToken(tok string) []*Group {
	return idx.groupsByImportToken[tok]
}

// NodesWithImportToken returns the nodes whose ImportTokens contain tok.
func (idx *Index) NodesWithImportToken(tok string) []*Node {
	return idx.nodesByImportToken[tok]
}

// NodeByUID returns the node with the given uid, nil when absent.
func (idx *Index) NodeByUID(uid string) *Node {
	return idx.nodeByUID[uid]
}

// GroupByUID returns the group with the given uid, nil when absent.
func (idx *Index) GroupByUID(uid string) *Group {
	return idx.groupByUID[uid]
}

// InheritanceChain returns the class groups cls transitively inherits
// from, breadth-first, excluding cls itself.
//
// Description:
//
//	Each base identifier in a class's Inherits list is resolved to every
//	class group carrying that token, in declaration order. The walk is
//	breadth-first over the resulting groups so that direct bases come
//	before their own bases, matching Python's left-to-right method
//	resolution closely enough for call lookup. A visited set guards
//	against inheritance cycles in malformed sources.
//
// Inputs:
//   - cls: the class group whose ancestry is wanted. A nil or non-class
//     group yields an empty chain.
//
// Outputs:
//   - []*Group: ancestor class groups, nearest first. Never contains cls.
func (idx *Index) InheritanceChain(cls *Group) []*Group {
	if cls == nil || cls.GroupType != GroupClass {
		return nil
	}
	var chain []*Group
	visited := map[*Group]bool{cls: true}
	queue := []*Group{cls}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, base := range cur.Inherits {
			for _, cand := range idx.classesByToken[base] {
				if visited[cand] {
					continue
				}
				visited[cand] = true
				chain = append(chain, cand)
				queue = append(queue, cand)
			}
		}
	}
	return chain
}

// ConstructorFor returns the constructor node for a class, consulting the
// class's own nodes first and then its inheritance chain. Returns nil when
// neither the class nor any ancestor defines __init__ or __new__.
func (idx *Index) ConstructorFor(cls *Group) *Node {
	if cls == nil {
		return nil
	}
	if ctor := cls.GetConstructor(); ctor != nil {
		return ctor
	}
	for _, anc := range idx.InheritanceChain(cls) {
		if ctor := anc.GetConstructor(); ctor != nil {
			return ctor
		}
	}
	return nil
}
