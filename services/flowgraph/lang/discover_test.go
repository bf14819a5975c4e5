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
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", f, err)
		}
		if err := os.WriteFile(path, []byte("pass\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
}

func joined(root string, paths []string) string {
	rels := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		rels[i] = filepath.ToSlash(rel)
	}
	return strings.Join(rels, ", ")
}

func TestDiscoverSources_WalksAndFilters(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"app.py",
		"pkg/models.py",
		"pkg/types.pyi",
		"pkg/__pycache__/sneaky.py",
		".venv/lib/site.py",
		".hidden.py",
		"README.md",
	)

	got, err := DiscoverSources(root)
	if err != nil {
		t.Fatalf("DiscoverSources() error = %v", err)
	}

	want := "app.py, pkg/models.py, pkg/types.pyi"
	if s := joined(root, got); s != want {
		t.Errorf("DiscoverSources() = %q, want %q", s, want)
	}
}

func TestDiscoverSources_ExplicitFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "one.py", "notes.txt")

	t.Run("python file", func(t *testing.T) {
		got, err := DiscoverSources(filepath.Join(root, "one.py"))
		if err != nil {
			t.Fatalf("DiscoverSources() error = %v", err)
		}
		if s := joined(root, got); s != "one.py" {
			t.Errorf("DiscoverSources() = %q, want %q", s, "one.py")
		}
	})

	t.Run("non-python file alone", func(t *testing.T) {
		_, err := DiscoverSources(filepath.Join(root, "notes.txt"))
		if !errors.Is(err, ErrNoSources) {
			t.Errorf("DiscoverSources() error = %v, want ErrNoSources", err)
		}
	})
}

func TestDiscoverSources_DeduplicatesOverlap(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "app.py")

	got, err := DiscoverSources(root, filepath.Join(root, "app.py"))
	if err != nil {
		t.Fatalf("DiscoverSources() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(DiscoverSources()) = %d, want 1 (%v)", len(got), got)
	}
}

func TestDiscoverSources_ExplicitHiddenDirIsWalked(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, ".tools/gen.py")

	got, err := DiscoverSources(filepath.Join(root, ".tools"))
	if err != nil {
		t.Fatalf("DiscoverSources() error = %v", err)
	}
	if s := joined(root, got); s != ".tools/gen.py" {
		t.Errorf("DiscoverSources() = %q, want %q", s, ".tools/gen.py")
	}
}

func TestDiscoverSources_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := DiscoverSources(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("DiscoverSources() error = %v, want fs.ErrNotExist", err)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := DiscoverSources(t.TempDir())
		if !errors.Is(err, ErrNoSources) {
			t.Errorf("DiscoverSources() error = %v, want ErrNoSources", err)
		}
	})
}
