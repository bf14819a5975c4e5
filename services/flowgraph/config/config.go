// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the optional per-project configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the project root.
const FileName = "flowgraph.config.yaml"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds user-provided defaults for graph generation.
//
// Description:
//
//	Loaded from <projectRoot>/flowgraph.config.yaml. All fields are
//	optional; a missing config file is not an error (zero-config works out
//	of the box). Command-line flags override anything set here.
//
// Thread Safety: Safe for concurrent reads after loading.
type Config struct {
	// Output is the default output path. Its extension selects the
	// renderer. Empty keeps the CLI default.
	Output string `yaml:"output"`

	// Workers caps the parallel file-analysis goroutines. Zero means one
	// worker per CPU.
	Workers int `yaml:"workers" validate:"gte=0"`

	// MaxFileSizeBytes caps individual source file size. Zero keeps the
	// parser default.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" validate:"gte=0"`

	// MaxNodes and MaxEdges abort runs that explode past these counts.
	// Zero keeps the built-in caps.
	MaxNodes int `yaml:"max_nodes" validate:"gte=0"`
	MaxEdges int `yaml:"max_edges" validate:"gte=0"`

	// ExcludeFunctions drops functions by exact token before resolution.
	ExcludeFunctions []string `yaml:"exclude_functions"`

	// ExcludeNamespaces drops whole files or classes by exact token.
	ExcludeNamespaces []string `yaml:"exclude_namespaces"`

	// IncludeOnlyFunctions keeps only the named functions.
	IncludeOnlyFunctions []string `yaml:"include_only_functions"`

	// IncludeOnlyNamespaces keeps only the named files or classes.
	IncludeOnlyNamespaces []string `yaml:"include_only_namespaces"`

	// NoGrouping renders a flat graph without namespace clusters.
	NoGrouping bool `yaml:"no_grouping"`

	// NoTrimming keeps nodes that gained no edges.
	NoTrimming bool `yaml:"no_trimming"`

	// HideLegend omits the legend from DOT output.
	HideLegend bool `yaml:"hide_legend"`

	// Strict fails the whole run on the first unparsable file instead of
	// skipping it.
	Strict bool `yaml:"strict"`

	// SnapshotDir is where the snapshot store lives. Empty resolves to
	// .flowgraph under the project root.
	SnapshotDir string `yaml:"snapshot_dir"`

	// Neo4j configures the optional graph database export.
	Neo4j Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds the Neo4j export target. The password is never read
// from the file; it comes from the FLOWGRAPH_NEO4J_PASSWORD environment
// variable.
type Neo4jConfig struct {
	// URI is the bolt/neo4j endpoint, e.g. "neo4j://localhost:7687".
	URI string `yaml:"uri" validate:"omitempty,uri"`

	// User is the database user name.
	User string `yaml:"user"`

	// BatchSize is the number of rows per UNWIND batch. Zero keeps the
	// exporter default.
	BatchSize int `yaml:"batch_size" validate:"gte=0"`
}

// Default returns the zero-configuration defaults.
func Default() Config {
	return Config{}
}

// Load reads flowgraph.config.yaml from the project root.
//
// Description:
//
//	Reads, parses, and validates the config file. If the project root is
//	empty or the file does not exist, returns the defaults with no error.
//	An error means the file exists but is malformed or invalid.
//
// Inputs:
//   - projectRoot: Path to the project root. May be empty.
//
// Outputs:
//   - Config: The parsed config, or the defaults when the file is missing.
//   - error: Non-nil only for unreadable, unparsable, or invalid files.
//
// Thread Safety: Safe for concurrent use.
func Load(projectRoot string) (Config, error) {
	if projectRoot == "" {
		return Default(), nil
	}

	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("reading %s: %w", FileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Validate checks field constraints. The CLI calls it again after applying
// flag overrides.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validating %s: %w", FileName, err)
	}
	return nil
}
