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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerDB key prefixes for graph snapshots.
const (
	keyPrefixSnap      = "flowgraph:snap:"
	keyPrefixSnapIndex = "flowgraph:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// SnapshotMetadata describes one saved graph snapshot.
type SnapshotMetadata struct {
	// SnapshotID is the snapshot's UUID.
	SnapshotID string `json:"snapshot_id"`

	// ProjectRoot is the analyzed project's root path.
	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16] for key grouping.
	ProjectHash string `json:"project_hash"`

	// RunID is the analysis run that produced the graph.
	RunID string `json:"run_id"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds).
	CreatedAtMilli int64 `json:"created_at_milli"`

	// NodeCount and EdgeCount summarize the stored graph for listings.
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`

	// Stats are the build counters of the stored run.
	Stats GraphStats `json:"stats"`

	// SchemaVersion is the serialization schema version.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip-compressed JSON payload.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 hash of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager saves and loads graph snapshots in BadgerDB.
//
// Description:
//
//	Snapshots are gzip-compressed SerializableGraph JSON plus a metadata
//	record, keyed by project hash and snapshot UUID. A per-project
//	"latest" pointer tracks the most recent save, and a reverse index
//	maps snapshot IDs back to their project.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a manager over an opened BadgerDB. The caller
// owns the DB lifecycle.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// OpenSnapshotDB opens the snapshot store at dir with Badger's own logging
// suppressed. Callers must Close the returned DB.
func OpenSnapshotDB(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store at %s: %w", dir, err)
	}
	return db, nil
}

// Save persists a frozen graph.
//
// Description:
//
//	Serializes the graph, compresses it, and writes data, metadata, the
//	per-project latest pointer, and the reverse index entry in one
//	transaction.
//
// Inputs:
//   - ctx: reserved for cancellation symmetry with the other operations.
//   - g: the graph to snapshot. Must not be nil, should be frozen.
//   - label: optional human-readable label.
//
// Outputs:
//   - *SnapshotMetadata: metadata of the saved snapshot.
//   - error: non-nil when serialization or storage fails.
//
// Key Schema:
//
//	flowgraph:snap:{projectHash}:{snapshotID}:data → gzip(JSON(SerializableGraph))
//	flowgraph:snap:{projectHash}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	flowgraph:snap:{projectHash}:latest            → snapshotID
//	flowgraph:snap:index:{snapshotID}              → projectHash
func (m *SnapshotManager) Save(ctx context.Context, g *Graph, label string) (*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}

	sg := g.ToSerializable()
	jsonData, err := json.Marshal(sg)
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	projectHash := ProjectHash(g.ProjectRoot)
	snapshotID := uuid.NewString()

	meta := &SnapshotMetadata{
		SnapshotID:     snapshotID,
		ProjectRoot:    g.ProjectRoot,
		ProjectHash:    projectHash,
		RunID:          g.RunID,
		Label:          label,
		CreatedAtMilli: time.Now().UnixMilli(),
		NodeCount:      len(g.Nodes()),
		EdgeCount:      len(g.Edges()),
		Stats:          g.Stats(),
		SchemaVersion:  GraphSchemaVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(indexKey), []byte(projectHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", g.ProjectRoot),
		slog.Int("node_count", meta.NodeCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a snapshot by its UUID.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*Graph, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := m.getProjectHash(snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return m.loadByKeys(projectHash, snapshotID)
}

// LoadLatest loads the most recent snapshot for a project hash.
func (m *SnapshotManager) LoadLatest(ctx context.Context, projectHash string) (*Graph, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if projectHash == "" {
		return nil, nil, fmt.Errorf("project hash must not be empty")
	}

	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil, fmt.Errorf("%w: no snapshots for project %s", ErrSnapshotNotFound, projectHash)
		}
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", projectHash, err)
	}
	return m.loadByKeys(projectHash, snapshotID)
}

// List returns snapshot metadata, newest first, optionally filtered to one
// project hash. limit <= 0 defaults to 100.
func (m *SnapshotManager) List(ctx context.Context, projectHash string, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	prefix := keyPrefixSnap
	if projectHash != "" {
		prefix = keyPrefixSnap + projectHash + ":"
	}

	var results []*SnapshotMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}

			var meta SnapshotMetadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				m.logger.Warn("skipping corrupt metadata",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot's data, metadata, and reverse index entry. If
// the snapshot was the project's latest, the pointer is removed too.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := m.getProjectHash(snapshotID)
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting data: %w", err)
		}
		if err := txn.Delete([]byte(metaKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting metadata: %w", err)
		}
		if err := txn.Delete([]byte(indexKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting reverse index: %w", err)
		}

		item, err := txn.Get([]byte(latestKey))
		if err == nil {
			var currentLatest string
			_ = item.Value(func(val []byte) error {
				currentLatest = string(val)
				return nil
			})
			if currentLatest == snapshotID {
				if err := txn.Delete([]byte(latestKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("deleting latest pointer: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// loadByKeys loads and reconstructs a graph from known keys.
func (m *SnapshotManager) loadByKeys(projectHash, snapshotID string) (*Graph, *SnapshotMetadata, error) {
	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta

	var compressedData, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		compressedData, err = dataItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}

		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		metaJSON, err = metaItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
		}
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if meta.ContentHash != "" && meta.ContentHash != hashBytes(compressedData) {
		return nil, nil, fmt.Errorf("%w: %s failed its content hash check", ErrSnapshotCorrupt, snapshotID)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decompressing %s: %v", ErrSnapshotCorrupt, snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %v", ErrSnapshotCorrupt, snapshotID, err)
	}

	var sg SerializableGraph
	if err := json.Unmarshal(jsonData, &sg); err != nil {
		return nil, nil, fmt.Errorf("%w: unmarshaling %s: %v", ErrSnapshotCorrupt, snapshotID, err)
	}

	g, err := FromSerializable(&sg)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing graph for %s: %w", snapshotID, err)
	}
	return g, &meta, nil
}

// getProjectHash resolves a snapshot ID to its project hash through the
// reverse index.
func (m *SnapshotManager) getProjectHash(snapshotID string) (string, error) {
	indexKey := keyPrefixSnapIndex + snapshotID
	var projectHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", ErrSnapshotNotFound
		}
		return "", err
	}
	return projectHash, nil
}

// ProjectHash returns SHA256(projectRoot)[:16] for use as a key prefix.
func ProjectHash(projectRoot string) string {
	h := sha256.Sum256([]byte(projectRoot))
	return hex.EncodeToString(h[:])[:16]
}

// hashBytes returns the hex-encoded SHA256 hash of a byte slice.
func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// isMetaKey reports whether the key ends with the metadata suffix.
func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
