// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

// Whole-heap consistency checker, read only. Meant for tests and
// debugging: it may be invoked between any two public calls and
// reports the first violated check through the BUG log shorthand.

import (
	"unsafe"
)

// inSegment returns true if a block base address lies inside the
// segment.
func (m *FLMalloc) inSegment(b *blk) bool {
	return blkAddr(b) >= blkAddr(m.first) && blkAddr(b) < m.segEnd
}

// walkChecks walks every block from segment start and verifies the
// header of each: status is exactly FREE or USED, the size is an
// aligned value of at least the minimum payload, and the walk
// terminates exactly at segment end. It returns the number of free
// blocks seen and whether all checks passed.
func (m *FLMalloc) walkChecks() (uint64, bool) {
	var freeSeen uint64
	b := m.first
	for uintptr(unsafe.Pointer(b)) < m.segEnd {
		if st := b.status(); st != blkFree && st != blkUsed {
			BUG("Valid: block %p has invalid status %#x\n", b, st)
			return 0, false
		}
		sz := b.size()
		if sz < m.minPayload() || sz%Alignment != 0 {
			BUG("Valid: block %p has invalid size %d\n", b, sz)
			return 0, false
		}
		if b.isFree() {
			freeSeen++
		}
		b = b.next()
	}
	if uintptr(unsafe.Pointer(b)) != m.segEnd {
		BUG("Valid: walk overran segment end (%p != %#x)\n", b, m.segEnd)
		return 0, false
	}
	return freeSeen, true
}

// listChecks traverses the free list, forward from the head or
// backward from the tail, and verifies: every visited block is inside
// the segment and free, links are mutually consistent, addresses are
// strictly ascending (descending on the reverse pass) and the length
// matches the bookkeeping count.
func (m *FLMalloc) listChecks(reverse bool) bool {
	if m.freeNo == 0 {
		if m.head != nil || m.tail != nil {
			BUG("Valid: empty free list with non-nil head/tail\n")
			return false
		}
		return true
	}

	f := m.head
	if reverse {
		f = m.tail
	}
	var count uint64
	var last *blk
	for f != nil {
		count++
		if count > m.freeNo {
			BUG("Valid: free list longer than its count %d\n", m.freeNo)
			return false
		}
		if !m.inSegment(f) {
			BUG("Valid: free list link %p outside the segment\n", f)
			return false
		}
		if !f.isFree() {
			BUG("Valid: used block %p on the free list\n", f)
			return false
		}
		// the back link must point at the block visited just before
		// (nil at the starting end)
		back := f.prevFree
		if reverse {
			back = f.nextFree
		}
		if back != last {
			BUG("Valid: inconsistent links at %p (back %p, expected %p)\n",
				f, back, last)
			return false
		}
		if last != nil {
			if !reverse && blkAddr(f) <= blkAddr(last) {
				BUG("Valid: free list not in ascending address order at %p\n", f)
				return false
			}
			if reverse && blkAddr(f) >= blkAddr(last) {
				BUG("Valid: free list not in descending address order at %p\n", f)
				return false
			}
		}
		last = f
		if reverse {
			f = f.prevFree
		} else {
			f = f.nextFree
		}
	}
	if count != m.freeNo {
		BUG("Valid: free list length %d != count %d\n", count, m.freeNo)
		return false
	}
	return true
}

// Valid checks the whole heap for consistency and returns false if
// any invariant is broken. It never modifies the heap. In implicit
// mode only the block walk is checked; there is no free list and
// adjacent free blocks are legal.
func (m *FLMalloc) Valid() bool {
	if m.first == nil {
		BUG("Valid: allocator not initialised\n")
		return false
	}
	freeSeen, ok := m.walkChecks()
	if !ok {
		return false
	}
	if m.Implicit() {
		return true
	}
	if freeSeen != m.freeNo {
		BUG("Valid: walker saw %d free blocks, free list counts %d\n",
			freeSeen, m.freeNo)
		return false
	}
	return m.listChecks(false) && m.listChecks(true)
}
