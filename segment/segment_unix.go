// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build unix

package segment

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Reserve maps size bytes of anonymous private memory and returns the
// region plus a release function. The region is page aligned, so the
// allocator loses nothing to start-address alignment.
func Reserve(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("segment: invalid size %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("segment: mmap %d bytes: %w", size, err)
	}
	release := func() error {
		if mem == nil {
			return nil
		}
		err := unix.Munmap(mem)
		mem = nil
		if errors.Is(err, unix.EINVAL) {
			// treat double release as a no-op for callers
			return nil
		}
		return err
	}
	return mem, release, nil
}
