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

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// UnknownVar marks a call receiver that is not a pure identifier or
	// attribute chain. Calls carrying it never resolve.
	UnknownVar = "UNKNOWN_VAR"

	// RootNodeToken is the token of the synthetic node holding a file's
	// module-level calls and assignments.
	RootNodeToken = "(global)"

	// DefaultMaxNodes caps nodes per graph unless overridden.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges caps edges per graph unless overridden.
	DefaultMaxEdges = 5_000_000
)

// GroupType classifies a namespace Group.
type GroupType int

const (
	// GroupFile is a source-file namespace.
	GroupFile GroupType = iota

	// GroupClass is a class namespace, possibly nested.
	GroupClass
)

// String returns the lowercase name of the group type.
func (t GroupType) String() string {
	switch t {
	case GroupFile:
		return "file"
	case GroupClass:
		return "class"
	default:
		return "unknown"
	}
}

// DisplayType returns the capitalized form used in rendered labels.
func (t GroupType) DisplayType() string {
	switch t {
	case GroupFile:
		return "File"
	case GroupClass:
		return "Class"
	default:
		return "Unknown"
	}
}

// UIDAllocator hands out run-unique identifiers for nodes and groups.
//
// Description:
//
//	One allocator is created per build and threaded through file analysis.
//	Counters are atomic so parallel file workers can allocate concurrently;
//	identifiers are monotonic in allocation order, fixed-width hex.
//
// Thread Safety: Safe for concurrent use.
type UIDAllocator struct {
	nodes  atomic.Uint64
	groups atomic.Uint64
}

// NewUIDAllocator creates an allocator with both counters at zero.
func NewUIDAllocator() *UIDAllocator {
	return &UIDAllocator{}
}

// NextNodeUID returns the next node identifier, format node_%08x.
func (a *UIDAllocator) NextNodeUID() string {
	return fmt.Sprintf("node_%08x", a.nodes.Add(1)-1)
}

// NextGroupUID returns the next group identifier, format cluster_%08x.
func (a *UIDAllocator) NextGroupUID() string {
	return fmt.Sprintf("cluster_%08x", a.groups.Add(1)-1)
}

// Call is an unresolved call expression observed inside a node body.
// It is an ephemeral analysis record: resolution reads it, flips its two
// flags, and the exported graph carries only the resulting Edges.
type Call struct {
	// Token is the invoked member or function name.
	Token string

	// OwnerToken is the textual dotted path of the receiver expression,
	// empty for bare calls, or UnknownVar for receivers that are not a
	// pure identifier/attribute chain.
	OwnerToken string

	// LineNumber is the source line of the callee expression.
	LineNumber int

	// DefiniteConstructor is set during resolution when the call provably
	// constructs a class instance.
	DefiniteConstructor bool

	// IsLibrary is set during resolution when the call never resolved to a
	// first-party definition.
	IsLibrary bool
}

// IsAttr reports whether the call has a receiver.
func (c *Call) IsAttr() bool {
	return c.OwnerToken != ""
}

// String renders the call as source-like text, e.g. "obj.run()" or "run()".
func (c *Call) String() string {
	if c.OwnerToken != "" {
		return fmt.Sprintf("%s.%s()", c.OwnerToken, c.Token)
	}
	return fmt.Sprintf("%s()", c.Token)
}

// Variable is a local binding recorded for call resolution: either an
// assignment whose right-hand side was a call, or an imported name. The
// binding's origin is carried as a Call record in PointsTo (for imports the
// dotted module path rides in PointsTo.Token).
type Variable struct {
	// Token is the bound name.
	Token string

	// PointsTo describes what the binding was constructed from.
	PointsTo Call

	// LineNumber is the line of the assignment or import statement.
	LineNumber int

	// IsImport is true for bindings recorded from import statements;
	// PointsTo.Token then carries the imported dotted path instead of a
	// callee name.
	IsImport bool
}

// String renders the binding, e.g. "db->Database()".
func (v *Variable) String() string {
	return fmt.Sprintf("%s->%s", v.Token, v.PointsTo.String())
}

// Node is a callable definition: a function, a method, or a file's synthetic
// (global) root.
type Node struct {
	// Token is the definition name.
	Token string

	// LineNumber is the definition's source line; 0 for root nodes.
	LineNumber int

	// Calls holds the raw call records extracted from the body.
	Calls []Call

	// Variables holds the raw variable records extracted from the body.
	Variables []Variable

	// Parent is the owning Group. Every node has exactly one.
	Parent *Group

	// ImportTokens is the fully-qualified name: parent token joined with
	// the node token by ".".
	ImportTokens []string

	// IsConstructor is true iff the parent is a class and the token is
	// __init__ or __new__.
	IsConstructor bool

	// IsLibrary is false for every node built from a definition.
	IsLibrary bool

	// IsLeaf is true until the node becomes the source of an edge.
	IsLeaf bool

	// IsTrunk is true until the node becomes the target of an edge.
	IsTrunk bool

	// UID is the run-unique identifier, format node_%08x.
	UID string
}

// NewNode builds a node owned by parent. IsConstructor and ImportTokens are
// computed here, once, from (token, parent).
func NewNode(token string, line int, calls []Call, variables []Variable, parent *Group, alloc *UIDAllocator) *Node {
	n := &Node{
		Token:      token,
		LineNumber: line,
		Calls:      calls,
		Variables:  variables,
		Parent:     parent,
		IsLeaf:     true,
		IsTrunk:    true,
		UID:        alloc.NextNodeUID(),
	}
	if parent != nil {
		n.ImportTokens = []string{parent.Token + "." + token}
		if parent.GroupType == GroupClass && (token == "__init__" || token == "__new__") {
			n.IsConstructor = true
		}
	}
	return n
}

// Label returns the rendered node label, "{line}: {token}()".
func (n *Node) Label() string {
	return fmt.Sprintf("%d: %s()", n.LineNumber, n.Token)
}

// TokenWithOwnership prefixes method tokens with their class name.
func (n *Node) TokenWithOwnership() string {
	if n.Parent != nil && n.Parent.GroupType == GroupClass {
		return n.Parent.Token + "." + n.Token
	}
	return n.Token
}

// QualifiedName returns the stable cross-run identity of the node:
// "{file}::{class.token}" for methods, "{file}::{token}" otherwise.
func (n *Node) QualifiedName() string {
	fg := n.FileGroup()
	if fg == nil {
		return n.TokenWithOwnership()
	}
	return fg.Token + "::" + n.TokenWithOwnership()
}

// FileGroup walks up to the file group owning this node.
func (n *Node) FileGroup() *Group {
	if n.Parent == nil {
		return nil
	}
	return n.Parent.FileGroup()
}

// Group is a namespace: a source file or a class.
type Group struct {
	// Token is the file base name or the class name.
	Token string

	// LineNumber is the definition line; 0 for file groups.
	LineNumber int

	// GroupType distinguishes files from classes.
	GroupType GroupType

	// Nodes are owned directly by this group (the root node included for
	// file groups).
	Nodes []*Node

	// RootNode is the designated (global) entry node of a file group; nil
	// for class groups.
	RootNode *Node

	// Subgroups are nested class groups.
	Subgroups []*Group

	// Parent is the enclosing group; nil for file groups.
	Parent *Group

	// Inherits lists base-class names referenced as simple identifiers.
	Inherits []string

	// Imports holds variable records for import statements made directly
	// in this group's body, outside any node.
	Imports []Variable

	// ImportTokens are the dotted paths under which this group is
	// importable.
	ImportTokens []string

	// UID is the run-unique identifier, format cluster_%08x.
	UID string
}

// NewGroup builds a group. File groups pass a nil parent; class groups are
// attached to their parent by AddSubgroup.
func NewGroup(token string, groupType GroupType, line int, importTokens []string, parent *Group, alloc *UIDAllocator) *Group {
	return &Group{
		Token:        token,
		LineNumber:   line,
		GroupType:    groupType,
		ImportTokens: importTokens,
		Parent:       parent,
		UID:          alloc.NextGroupUID(),
	}
}

// Label returns the rendered group label, "{DisplayType}: {Token}".
func (g *Group) Label() string {
	return fmt.Sprintf("%s: %s", g.GroupType.DisplayType(), g.Token)
}

// AddNode appends a node owned directly by this group.
func (g *Group) AddNode(n *Node) {
	g.Nodes = append(g.Nodes, n)
}

// AddRootNode appends the synthetic (global) node and designates it as the
// group's entry.
func (g *Group) AddRootNode(n *Node) {
	g.RootNode = n
	g.Nodes = append(g.Nodes, n)
}

// AddSubgroup nests a class group under this group.
func (g *Group) AddSubgroup(sg *Group) {
	sg.Parent = g
	g.Subgroups = append(g.Subgroups, sg)
}

// AllNodes returns the group's nodes and every descendant group's nodes in
// declaration order.
func (g *Group) AllNodes() []*Node {
	out := make([]*Node, 0, len(g.Nodes))
	out = append(out, g.Nodes...)
	for _, sg := range g.Subgroups {
		out = append(out, sg.AllNodes()...)
	}
	return out
}

// AllGroups returns this group and every descendant group in declaration
// order.
func (g *Group) AllGroups() []*Group {
	out := []*Group{g}
	for _, sg := range g.Subgroups {
		out = append(out, sg.AllGroups()...)
	}
	return out
}

// GetConstructor returns the group's own __init__ or __new__ node, nil when
// the class defines neither. Inherited constructors are the resolver's
// concern, not the group's.
func (g *Group) GetConstructor() *Node {
	for _, n := range g.Nodes {
		if n.IsConstructor {
			return n
		}
	}
	return nil
}

// FileGroup walks up to the file group at the root of this group's tree.
func (g *Group) FileGroup() *Group {
	cur := g
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Edge is one resolved caller→callee relation. Edges are never
// deduplicated: one edge exists per resolved call site.
type Edge struct {
	// Node0 is the caller.
	Node0 *Node

	// Node1 is the callee.
	Node1 *Node
}

// String renders the edge in DOT form, "{caller.uid} -> {callee.uid}".
func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.Node0.UID, e.Node1.UID)
}

// GraphStats carries counters for one completed build.
type GraphStats struct {
	FilesProcessed  int   `json:"files_processed"`
	FilesSkipped    int   `json:"files_skipped"`
	GroupsCreated   int   `json:"groups_created"`
	NodesCreated    int   `json:"nodes_created"`
	EdgesCreated    int   `json:"edges_created"`
	CallsResolved   int   `json:"calls_resolved"`
	CallsUnresolved int   `json:"calls_unresolved"`
	NodesTrimmed    int   `json:"nodes_trimmed"`
	DurationMilli   int64 `json:"duration_milli"`
}

// GraphOption configures a Graph at construction.
type GraphOption func(*Graph)

// WithMaxNodes overrides the node cap. Non-positive values are ignored.
func WithMaxNodes(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxNodes = n
		}
	}
}

// WithMaxEdges overrides the edge cap. Non-positive values are ignored.
func WithMaxEdges(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxEdges = n
		}
	}
}

// Graph is the container for one analysis run: the file group forest, flat
// node and edge lists, and lifecycle state.
//
// Lifecycle:
//
//	NewGraph → (building: AddFileGroup / AddEdge) → Freeze → read-only
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use. The Builder
//	nevertheless serializes mutations; the lock is a correctness backstop,
//	not a concurrency design.
type Graph struct {
	// ProjectRoot is the analyzed project's root path.
	ProjectRoot string

	// RunID labels this analysis run.
	RunID string

	// CreatedAtMilli is the build start time in Unix milliseconds.
	CreatedAtMilli int64

	mu         sync.RWMutex
	fileGroups []*Group
	nodes      []*Node
	edges      []Edge
	frozen     bool
	maxNodes   int
	maxEdges   int
	stats      GraphStats
}

// NewGraph creates an empty graph in the building state.
func NewGraph(projectRoot string, opts ...GraphOption) *Graph {
	g := &Graph{
		ProjectRoot:    projectRoot,
		RunID:          uuid.NewString(),
		CreatedAtMilli: time.Now().UnixMilli(),
		maxNodes:       DefaultMaxNodes,
		maxEdges:       DefaultMaxEdges,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddFileGroup registers a completed file group and all nodes beneath it.
//
// Outputs:
//   - error: ErrGraphFrozen after Freeze; ErrMaxNodesExceeded when the
//     group's nodes would push the graph past its cap.
func (g *Graph) AddFileGroup(fg *Group) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return ErrGraphFrozen
	}

	nodes := fg.AllNodes()
	if len(g.nodes)+len(nodes) > g.maxNodes {
		return fmt.Errorf("%w: %d + %d would exceed %d", ErrMaxNodesExceeded, len(g.nodes), len(nodes), g.maxNodes)
	}

	g.fileGroups = append(g.fileGroups, fg)
	g.nodes = append(g.nodes, nodes...)
	g.stats.GroupsCreated += len(fg.AllGroups())
	g.stats.NodesCreated += len(nodes)
	g.stats.FilesProcessed++
	return nil
}

// AddEdge records a resolved caller→callee relation and flips the caller's
// leaf flag and the callee's trunk flag.
//
// Outputs:
//   - error: ErrGraphFrozen after Freeze; ErrMaxEdgesExceeded at the cap.
func (g *Graph) AddEdge(caller, callee *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return ErrGraphFrozen
	}
	if len(g.edges) >= g.maxEdges {
		return fmt.Errorf("%w: cap %d", ErrMaxEdgesExceeded, g.maxEdges)
	}

	g.edges = append(g.edges, Edge{Node0: caller, Node1: callee})
	caller.IsLeaf = false
	callee.IsTrunk = false
	g.stats.EdgesCreated++
	return nil
}

// Freeze moves the graph to the read-only state. Freezing twice is a no-op.
func (g *Graph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frozen = true
}

// IsFrozen reports whether the graph has been frozen.
func (g *Graph) IsFrozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// FileGroups returns the file group forest in registration order.
func (g *Graph) FileGroups() []*Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Group, len(g.fileGroups))
	copy(out, g.fileGroups)
	return out
}

// Nodes returns every node in registration order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns every edge in creation order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Stats returns a copy of the build counters.
func (g *Graph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats
}

// setStats overwrites counters the builder accumulates outside the graph.
func (g *Graph) setStats(update func(*GraphStats)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	update(&g.stats)
}

// removeNodes drops the given nodes (by identity), the edges touching them,
// and any groups left empty. Used by trimming and subset filtering before
// Freeze; a no-op on frozen graphs.
func (g *Graph) removeNodes(drop map[*Node]bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen || len(drop) == 0 {
		return
	}

	kept := g.nodes[:0]
	for _, n := range g.nodes {
		if !drop[n] {
			kept = append(kept, n)
		}
	}
	g.stats.NodesTrimmed += len(g.nodes) - len(kept)
	g.nodes = kept

	keptEdges := g.edges[:0]
	for _, e := range g.edges {
		if !drop[e.Node0] && !drop[e.Node1] {
			keptEdges = append(keptEdges, e)
		}
	}
	g.stats.EdgesCreated -= len(g.edges) - len(keptEdges)
	g.edges = keptEdges

	for _, fg := range g.fileGroups {
		for _, grp := range fg.AllGroups() {
			keptNodes := grp.Nodes[:0]
			for _, n := range grp.Nodes {
				if !drop[n] {
					keptNodes = append(keptNodes, n)
				}
			}
			grp.Nodes = keptNodes
			if grp.RootNode != nil && drop[grp.RootNode] {
				grp.RootNode = nil
			}
		}
	}

	keptGroups := g.fileGroups[:0]
	for _, fg := range g.fileGroups {
		pruneEmptySubgroups(fg)
		if len(fg.Nodes) > 0 || len(fg.Subgroups) > 0 {
			keptGroups = append(keptGroups, fg)
		}
	}
	g.fileGroups = keptGroups
}

// pruneEmptySubgroups removes descendant groups that own no nodes and have
// no surviving subgroups of their own.
func pruneEmptySubgroups(g *Group) {
	kept := g.Subgroups[:0]
	for _, sg := range g.Subgroups {
		pruneEmptySubgroups(sg)
		if len(sg.Nodes) > 0 || len(sg.Subgroups) > 0 {
			kept = append(kept, sg)
		}
	}
	g.Subgroups = kept
}
