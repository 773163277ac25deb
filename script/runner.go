// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package script

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/intuitivelabs/mallocs/flmalloc"
)

// ErrCorrupt means a per-operation heap validation failed.
var ErrCorrupt = errors.New("script: heap validation failed")

// Runner executes parsed operations against an allocator, binding
// script ids to live pointers.
type Runner struct {
	// Check runs a full heap validation after every operation.
	Check bool

	// Executed counts the operations run so far.
	Executed int

	m     *flmalloc.FLMalloc
	ptrs  map[int]unsafe.Pointer
	sizes map[int]uint64
}

// NewRunner returns a Runner bound to an initialised allocator.
func NewRunner(m *flmalloc.FLMalloc) *Runner {
	return &Runner{
		m:     m,
		ptrs:  make(map[int]unsafe.Pointer),
		sizes: make(map[int]uint64),
	}
}

// Ptr returns the pointer currently bound to id, nil if unbound.
func (r *Runner) Ptr(id int) unsafe.Pointer { return r.ptrs[id] }

// Size returns the requested size currently bound to id.
func (r *Runner) Size(id int) uint64 { return r.sizes[id] }

// Live returns the number of bound ids.
func (r *Runner) Live() int { return len(r.ptrs) }

// Run executes the operations in order and stops at the first
// failure. An allocation or reallocation that returns no memory
// fails the run with flmalloc.ErrNoSpace.
func (r *Runner) Run(ops []Op) error {
	for _, op := range ops {
		if err := r.step(op); err != nil {
			return err
		}
		r.Executed++
		if r.Check && !r.m.Valid() {
			return fmt.Errorf("line %d: after %c %d: %w",
				op.Line, op.Kind, op.ID, ErrCorrupt)
		}
	}
	return nil
}

func (r *Runner) step(op Op) error {
	switch op.Kind {
	case OpAlloc:
		p := r.m.Malloc(op.Size)
		if p == nil {
			return fmt.Errorf("line %d: a %d %d: %w",
				op.Line, op.ID, op.Size, flmalloc.ErrNoSpace)
		}
		r.ptrs[op.ID] = p
		r.sizes[op.ID] = op.Size
	case OpRealloc:
		p := r.m.Realloc(r.ptrs[op.ID], op.Size)
		if p == nil {
			return fmt.Errorf("line %d: r %d %d: %w",
				op.Line, op.ID, op.Size, flmalloc.ErrNoSpace)
		}
		r.ptrs[op.ID] = p
		r.sizes[op.ID] = op.Size
	case OpFree:
		r.m.Free(r.ptrs[op.ID])
		delete(r.ptrs, op.ID)
		delete(r.sizes, op.ID)
	default:
		return fmt.Errorf("line %d: unknown op kind %q", op.Line, op.Kind)
	}
	return nil
}
