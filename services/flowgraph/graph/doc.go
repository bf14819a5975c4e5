// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and resolves the call graph of a Python codebase.
//
// The pipeline has two phases separated by a hard barrier:
//
//	               parallel per file                      global
//	 ┌──────────┐  ┌────────────────────┐   barrier   ┌──────────────┐
//	 │ sources  │─▶│ FileAnalyzer       │────────────▶│ Index        │
//	 └──────────┘  │  groups, nodes,    │             │  (read-only) │
//	               │  calls, variables  │             └──────┬───────┘
//	               └────────────────────┘                    │
//	                                                         ▼
//	                                          ┌──────────────────────────┐
//	                                          │ Resolver (parallel/node) │
//	                                          │  calls → callee nodes    │
//	                                          └────────────┬─────────────┘
//	                                                       ▼
//	                                          ┌──────────────────────────┐
//	                                          │ Edges, trim, Freeze      │
//	                                          └──────────────────────────┘
//
// During the build phase every file is analyzed independently: its Groups
// (file, classes), Nodes (callables), raw Call records, and Variable records
// are produced with no knowledge of other files. Only after every file has
// landed does the Builder construct the Index; resolution runs against that
// immutable index, so its outcome never depends on file or goroutine order.
//
// A Graph starts in the building state and is frozen exactly once. All
// mutating operations return ErrGraphFrozen afterwards; renderers and the
// snapshot store only accept frozen graphs.
package graph
