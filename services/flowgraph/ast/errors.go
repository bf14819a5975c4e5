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

import "errors"

// Sentinel errors for parse operations.
var (
	// ErrSyntax is returned when the Python grammar cannot produce a clean
	// tree for the file. The whole file is rejected; there is no partial
	// extraction from files with syntax errors.
	ErrSyntax = errors.New("syntax error in source file")

	// ErrFileTooLarge is returned when the source content exceeds the
	// configured maximum file size.
	ErrFileTooLarge = errors.New("source file exceeds size limit")

	// ErrInvalidEncoding is returned when the source content is not valid
	// UTF-8.
	ErrInvalidEncoding = errors.New("source file is not valid UTF-8")
)
