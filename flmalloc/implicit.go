// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

// Implicit mode: the engine restricted to headers only. Allocation
// scans every block through the heap walker instead of a free list,
// freeing flips the status bits, nothing coalesces. Blocks can be as
// small as one aligned word, so any leftover bigger than a bare
// header is worth splitting off.

import (
	"unsafe"
)

// mallocImplicit serves an allocation by linear scan over all blocks.
// need is already rounded.
func (m *FLMalloc) mallocImplicit(need uint64) unsafe.Pointer {
	for b := m.first; uintptr(unsafe.Pointer(b)) < m.segEnd; b = b.next() {
		if !b.isFree() || b.size() < need {
			continue
		}
		s := b.size()
		if s-need <= hdrSize {
			// leftover cannot host a header plus one word, keep it as
			// padding
			b.setHdr(s, blkUsed)
		} else {
			b.setHdr(need, blkUsed)
			rest := b.next()
			rest.setHdr(s-need-hdrSize, blkFree)
			m.addOverhead(hdrSize)
		}
		m.addUsed(b.size())
		if m.Debug() {
			DBG("Malloc(%d) -> %p (implicit, block size %d)\n",
				need, b.addr(), b.size())
		}
		return b.addr()
	}
	WARN("Malloc(%d): no free block large enough\n", need)
	return nil
}

// reallocImplicit resizes in place when the existing block already
// fits, else falls back to allocate-copy-free. There is no neighbour
// absorption in this mode.
func (m *FLMalloc) reallocImplicit(f *blk, p unsafe.Pointer, need, size uint64) unsafe.Pointer {
	oldSize := f.size()
	if oldSize >= need {
		if oldSize-need > hdrSize {
			f.setHdr(need, blkUsed)
			rest := f.next()
			rest.setHdr(oldSize-need-hdrSize, blkFree)
			m.addOverhead(hdrSize)
			m.subUsed(oldSize - need)
		}
		return p
	}

	np := m.Malloc(size)
	if np == nil {
		ERR("Realloc(%p, %d): fallback allocation failed\n", p, size)
		return nil
	}
	copy(unsafe.Slice((*byte)(np), oldSize), unsafe.Slice((*byte)(p), oldSize))
	m.Free(p)
	return np
}
