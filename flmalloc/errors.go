// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

import "errors"

// Sentinel errors for callers that want error values instead of the
// nil/bool returns of the core API.
var (
	// ErrInit means Init refused the segment (nil or too small).
	ErrInit = errors.New("flmalloc: init refused")

	// ErrNoSpace means no free block large enough was found.
	ErrNoSpace = errors.New("flmalloc: out of space")
)
