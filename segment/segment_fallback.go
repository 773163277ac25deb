// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build !unix

package segment

import (
	"fmt"
)

// Reserve returns an ordinary heap slice of size bytes and a no-op
// release function.
func Reserve(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("segment: invalid size %d", size)
	}
	mem := make([]byte, size)
	return mem, func() error { return nil }, nil
}
