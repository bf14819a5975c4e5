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
	"context"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AleutianAI/flowgraph/services/flowgraph/graph"
)

// defaultNeo4jBatchSize caps the row count per UNWIND statement.
const defaultNeo4jBatchSize = 1000

// Neo4jExporter loads a finished graph into a Neo4j database using batch
// UNWIND queries.
//
// Description:
//
//	Functions become (:Function) nodes and groups become (:Namespace)
//	nodes, both keyed by their run UID. Ownership is expressed as
//	CONTAINS relationships and resolved calls as CALLS relationships;
//	repeated calls between the same pair collapse into one relationship
//	carrying a count property.
//
// Thread Safety: the underlying driver is safe for concurrent use, but
// Export itself is meant to be called once per graph.
type Neo4jExporter struct {
	driver    neo4j.DriverWithContext
	secret    *memguard.LockedBuffer
	batchSize int
	clean     bool
	logger    *slog.Logger
}

// Neo4jOption configures a Neo4jExporter.
type Neo4jOption func(*Neo4jExporter)

// WithNeo4jBatchSize sets the maximum rows per UNWIND statement. Values
// below one keep the default.
func WithNeo4jBatchSize(n int) Neo4jOption {
	return func(e *Neo4jExporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithClean deletes previously exported graph data before loading.
func WithClean() Neo4jOption {
	return func(e *Neo4jExporter) {
		e.clean = true
	}
}

// WithNeo4jLogger sets the structured logger.
func WithNeo4jLogger(logger *slog.Logger) Neo4jOption {
	return func(e *Neo4jExporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewNeo4jExporter connects to Neo4j and verifies the connection. The
// password enclave is opened here and the secret stays in locked memory
// until Close.
func NewNeo4jExporter(ctx context.Context, uri, user string, password *memguard.Enclave, opts ...Neo4jOption) (*Neo4jExporter, error) {
	e := &Neo4jExporter{
		batchSize: defaultNeo4jBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	secret, err := password.Open()
	if err != nil {
		return nil, fmt.Errorf("opening credential enclave: %w", err)
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, secret.String(), ""))
	if err != nil {
		secret.Destroy()
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		secret.Destroy()
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	e.driver = driver
	e.secret = secret
	return e, nil
}

// Close releases the driver and wipes the credential buffer.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	err := e.driver.Close(ctx)
	e.secret.Destroy()
	if err != nil {
		return fmt.Errorf("closing neo4j driver: %w", err)
	}
	return nil
}

// Export loads the graph. The graph should be frozen; a graph still being
// built may export a partial edge set.
func (e *Neo4jExporter) Export(ctx context.Context, g *graph.Graph) error {
	if e.clean {
		if err := e.cleanGraph(ctx); err != nil {
			return err
		}
	}
	if err := e.createIndexes(ctx); err != nil {
		return err
	}
	if err := e.loadNamespaces(ctx, g); err != nil {
		return err
	}
	if err := e.loadFunctions(ctx, g); err != nil {
		return err
	}
	if err := e.loadContains(ctx, g); err != nil {
		return err
	}
	return e.loadCalls(ctx, g)
}

func (e *Neo4jExporter) runCypher(ctx context.Context, cypher string, params map[string]any) error {
	if _, err := neo4j.ExecuteQuery(ctx, e.driver, cypher, params, neo4j.EagerResultTransformer); err != nil {
		return fmt.Errorf("running cypher: %w", err)
	}
	return nil
}

// runBatched splits rows into batchSize chunks and runs the statement once
// per chunk with the chunk bound as $batch.
func (e *Neo4jExporter) runBatched(ctx context.Context, cypher string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += e.batchSize {
		end := min(start+e.batchSize, len(rows))
		if err := e.runCypher(ctx, cypher, map[string]any{"batch": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// cleanGraph removes all previously exported nodes and relationships.
func (e *Neo4jExporter) cleanGraph(ctx context.Context) error {
	e.logger.Info("cleaning existing graph data")
	queries := []string{
		"MATCH ()-[r:CALLS]->() DELETE r",
		"MATCH ()-[r:CONTAINS]->() DELETE r",
		"MATCH (n:Function) DETACH DELETE n",
		"MATCH (n:Namespace) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := e.runCypher(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

// createIndexes ensures the required Neo4j indexes exist.
func (e *Neo4jExporter) createIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX flowgraph_function_uid IF NOT EXISTS FOR (n:Function) ON (n.uid)",
		"CREATE INDEX flowgraph_function_name IF NOT EXISTS FOR (n:Function) ON (n.name)",
		"CREATE INDEX flowgraph_namespace_uid IF NOT EXISTS FOR (n:Namespace) ON (n.uid)",
	}
	for _, q := range indexes {
		if err := e.runCypher(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

// loadNamespaces upserts one Namespace node per group.
func (e *Neo4jExporter) loadNamespaces(ctx context.Context, g *graph.Graph) error {
	rows := namespaceRows(g)
	e.logger.Info("loading namespaces", slog.Int("count", len(rows)))
	return e.runBatched(ctx,
		`UNWIND $batch AS row
		 MERGE (n:Namespace {uid: row.uid})
		 SET n.name = row.name, n.kind = row.kind, n.file = row.file,
		     n.line = row.line`,
		rows,
	)
}

// loadFunctions upserts one Function node per graph node.
func (e *Neo4jExporter) loadFunctions(ctx context.Context, g *graph.Graph) error {
	rows := functionRows(g)
	e.logger.Info("loading functions", slog.Int("count", len(rows)))
	return e.runBatched(ctx,
		`UNWIND $batch AS row
		 MERGE (n:Function {uid: row.uid})
		 SET n.name = row.name, n.label = row.label, n.token = row.token,
		     n.file = row.file, n.line = row.line,
		     n.is_trunk = row.is_trunk, n.is_leaf = row.is_leaf`,
		rows,
	)
}

// loadContains creates CONTAINS relationships from groups to their direct
// nodes and from groups to their subgroups.
func (e *Neo4jExporter) loadContains(ctx context.Context, g *graph.Graph) error {
	nodeRows, groupRows := containsRows(g)
	e.logger.Info("loading containment",
		slog.Int("functions", len(nodeRows)),
		slog.Int("namespaces", len(groupRows)))

	err := e.runBatched(ctx,
		`UNWIND $batch AS row
		 MATCH (ns:Namespace {uid: row.ns}), (fn:Function {uid: row.fn})
		 MERGE (ns)-[:CONTAINS]->(fn)`,
		nodeRows,
	)
	if err != nil {
		return err
	}
	return e.runBatched(ctx,
		`UNWIND $batch AS row
		 MATCH (p:Namespace {uid: row.parent}), (c:Namespace {uid: row.child})
		 MERGE (p)-[:CONTAINS]->(c)`,
		groupRows,
	)
}

// loadCalls creates CALLS relationships between Function nodes. Duplicate
// caller→callee pairs are collapsed before loading because MERGE keeps one
// relationship per pair; the multiplicity survives as the count property.
func (e *Neo4jExporter) loadCalls(ctx context.Context, g *graph.Graph) error {
	rows := callRows(g)
	e.logger.Info("loading calls", slog.Int("count", len(rows)))
	return e.runBatched(ctx,
		`UNWIND $batch AS row
		 MATCH (a:Function {uid: row.caller}), (b:Function {uid: row.callee})
		 MERGE (a)-[r:CALLS]->(b)
		 SET r.count = row.count`,
		rows,
	)
}

func namespaceRows(g *graph.Graph) []map[string]any {
	var rows []map[string]any
	for _, fg := range g.FileGroups() {
		for _, grp := range fg.AllGroups() {
			rows = append(rows, map[string]any{
				"uid":  grp.UID,
				"name": grp.Token,
				"kind": grp.GroupType.String(),
				"file": grp.FileGroup().Token,
				"line": grp.LineNumber,
			})
		}
	}
	return rows
}

func functionRows(g *graph.Graph) []map[string]any {
	nodes := g.Nodes()
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		file := ""
		if fg := n.FileGroup(); fg != nil {
			file = fg.Token
		}
		rows = append(rows, map[string]any{
			"uid":      n.UID,
			"name":     n.QualifiedName(),
			"label":    n.Label(),
			"token":    n.Token,
			"file":     file,
			"line":     n.LineNumber,
			"is_trunk": n.IsTrunk,
			"is_leaf":  n.IsLeaf,
		})
	}
	return rows
}

func containsRows(g *graph.Graph) (nodeRows, groupRows []map[string]any) {
	for _, fg := range g.FileGroups() {
		for _, grp := range fg.AllGroups() {
			for _, n := range grp.Nodes {
				nodeRows = append(nodeRows, map[string]any{
					"ns": grp.UID,
					"fn": n.UID,
				})
			}
			for _, sg := range grp.Subgroups {
				groupRows = append(groupRows, map[string]any{
					"parent": grp.UID,
					"child":  sg.UID,
				})
			}
		}
	}
	return nodeRows, groupRows
}

func callRows(g *graph.Graph) []map[string]any {
	type pair struct {
		caller string
		callee string
	}
	counts := make(map[pair]int)
	var order []pair
	for _, edge := range g.Edges() {
		p := pair{caller: edge.Node0.UID, callee: edge.Node1.UID}
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}

	rows := make([]map[string]any, 0, len(order))
	for _, p := range order {
		rows = append(rows, map[string]any{
			"caller": p.caller,
			"callee": p.callee,
			"count":  counts[p],
		})
	}
	return rows
}
