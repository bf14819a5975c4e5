// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lang

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSources is returned by DiscoverSources when the given paths contain
// no Python files.
var ErrNoSources = errors.New("no python source files found")

// DiscoverSources expands files and directories into the list of Python
// sources to analyze.
//
// Description:
//
//	Directories are walked recursively. Files with a .py or .pyi extension
//	are kept; hidden entries and __pycache__ directories are skipped.
//	Explicitly named files that are not Python sources are ignored. The
//	result is sorted and deduplicated so runs over the same tree see the
//	same file order.
//
// Outputs:
//   - []string: Sorted unique source paths.
//   - error: Stat/walk failures, or ErrNoSources when nothing matched.
func DiscoverSources(paths ...string) ([]string, error) {
	var sources []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("reading source path: %w", err)
		}

		if !info.IsDir() {
			if isPythonSource(info.Name()) {
				sources = append(sources, path)
			}
			continue
		}

		root := path
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && (strings.HasPrefix(name, ".") || name == "__pycache__") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			if isPythonSource(name) {
				sources = append(sources, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	sort.Strings(sources)
	sources = dedupe(sources)

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}

// isPythonSource reports whether the file name carries a Python extension.
func isPythonSource(name string) bool {
	switch filepath.Ext(name) {
	case ".py", ".pyi":
		return true
	}
	return false
}

// dedupe removes adjacent duplicates from a sorted slice. Passing the same
// file both directly and through its directory must not analyze it twice.
func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
