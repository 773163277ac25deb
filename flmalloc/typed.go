// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

// Typed veneers over the pointer API. Unlike Malloc, these zero the
// returned memory.

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// New allocates a value of an arbitrary type in the arena.
func New[T any](m *FLMalloc) (*T, error) {
	size := uint64(sizeof[T]())
	p := m.Malloc(size)
	if p == nil {
		return nil, ErrNoSpace
	}
	clear(unsafe.Slice((*byte)(p), size))
	return (*T)(p), nil
}

// NewSlice returns a slice of the requested type, length and
// capacity, with the data residing in the arena. The slice header
// itself is an ordinary Go value.
//
// NewSlice is variadic so that capacity can be optional; if not given
// it equals length. It panics on negative length/capacity, on
// length > capacity or when more than one capacity is given.
//
// Appending beyond the allocated capacity converts the slice into an
// ordinary heap slice and the arena memory is not freed.
func NewSlice[T any, N constraints.Integer](m *FLMalloc, length N, capacity ...N) ([]T, error) {
	if length < 0 {
		panic("flmalloc.NewSlice: invalid argument: length < 0")
	}

	var c uint64
	switch len(capacity) {
	case 0:
		c = uint64(length)
	case 1:
		if capacity[0] < 0 {
			panic("flmalloc.NewSlice: invalid argument: capacity < 0")
		}
		c = uint64(capacity[0])
	default:
		panic("flmalloc.NewSlice: multiple values provided for capacity")
	}
	if uint64(length) > c {
		panic("flmalloc.NewSlice: invalid arguments: length > capacity")
	}
	if c == 0 {
		return []T{}, nil
	}

	p := m.Malloc(uint64(sizeof[T]()) * c)
	if p == nil {
		return nil, ErrNoSpace
	}
	s := unsafe.Slice((*T)(p), c)
	clear(s)
	return s[:length], nil
}

// Release frees a value previously obtained from New. A nil p is a
// no-op.
func Release[T any](m *FLMalloc, p *T) {
	if p == nil {
		return
	}
	m.Free(unsafe.Pointer(p))
}

// ReleaseSlice frees the data of a slice obtained from NewSlice.
func ReleaseSlice[T any](m *FLMalloc, s []T) {
	if s == nil || cap(s) == 0 {
		return
	}
	m.Free(unsafe.Pointer(unsafe.SliceData(s)))
}

func sizeof[T any]() uintptr {
	return unsafe.Sizeof(*(*T)(nil))
}
