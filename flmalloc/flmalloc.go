// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package flmalloc implements a single-segment first-fit memory
// allocator with an explicit, address-ordered, doubly linked free
// list. The caller supplies the backing memory at Init time; the
// allocator never grows it. A restricted "implicit" mode (MImplicit)
// drops the free list and the coalescer and scans all blocks instead.
package flmalloc

import (
	"unsafe"
)

const NAME = "flmalloc"

// Alignment is the payload alignment and size granularity,
// must be 2^n.
const (
	Alignment     = 8
	AlignmentMask = ^(uint64(Alignment) - 1)
)

// Minimum payload sizes. The explicit engine needs room for the two
// free-list link words; the implicit variant only needs one aligned
// word.
const (
	MinPayload         = 16
	MinPayloadImplicit = 8
)

// MUsed contains the flmalloc memory usage statistics.
type MUsed struct {
	Used        uint64 // total payload size allocated
	RealUsed    uint64 // real size = Used + header overhead
	MaxRealUsed uint64
}

// Options encodes various configuration flags for FLMalloc.
type Options uint32

const (
	MDebug    Options = 1 << iota // log every operation
	MImplicit                     // no free list, no coalescing
	MDumpShort                    // dump status in log, short version

	MDefaultOptions Options = 0
)

// FLMalloc is the memory arena used for allocating. It manages a
// single contiguous segment supplied at Init time and includes all
// the bookkeeping information and the classical malloc functions
// (as methods).
//
// FLMalloc is single threaded and non-reentrant: callers must
// serialize access externally.
type FLMalloc struct {
	options Options
	size    uint64 // segment size after alignment trim
	used    MUsed  // statistics

	first  *blk    // lowest block, at segment start
	segEnd uintptr // exclusive segment end

	// explicit free list: doubly linked, ascending address order
	head   *blk
	tail   *blk
	freeNo uint64

	mem []byte // backing memory, keeps the segment alive
}

// Debug returns true if per-operation debug logging is turned on.
func (m *FLMalloc) Debug() bool { return m.options&MDebug != 0 }

// Implicit returns true if the allocator runs in the restricted
// implicit mode.
func (m *FLMalloc) Implicit() bool { return m.options&MImplicit != 0 }

// minPayload returns the minimum payload size for the current mode.
func (m *FLMalloc) minPayload() uint64 {
	if m.Implicit() {
		return MinPayloadImplicit
	}
	return MinPayload
}

// addUsed increases the "used" stats with the given payload size.
func (m *FLMalloc) addUsed(size uint64) {
	m.used.Used += size
	m.used.RealUsed += size
	if m.used.MaxRealUsed < m.used.RealUsed {
		m.used.MaxRealUsed = m.used.RealUsed
	}
}

// subUsed subtracts a freed payload size from the stats.
func (m *FLMalloc) subUsed(size uint64) {
	m.used.Used -= size
	m.used.RealUsed -= size
}

// addOverhead adds one block header to the internal bookkeeping.
func (m *FLMalloc) addOverhead(h uint64) {
	m.used.RealUsed += h
	if m.used.MaxRealUsed < m.used.RealUsed {
		m.used.MaxRealUsed = m.used.RealUsed
	}
}

// subOverhead removes one block header from the internal bookkeeping.
func (m *FLMalloc) subOverhead(h uint64) {
	m.used.RealUsed -= h
}

// MUsage returns current memory usage values.
func (m *FLMalloc) MUsage() MUsed { return m.used }

// Size returns the segment size managed by the allocator (after
// alignment trimming at Init).
func (m *FLMalloc) Size() uint64 { return m.size }

// Available returns how many bytes are available for allocation
// (the sum of all free payloads, not necessarily contiguous).
func (m *FLMalloc) Available() uint64 {
	return m.size - m.used.RealUsed
}

// Owns returns whether or not p lies inside the managed segment.
// Behaviour is undefined if p was Free()d.
func (m *FLMalloc) Owns(p unsafe.Pointer) bool {
	if m.first == nil {
		return false
	}
	return uintptr(p) > blkAddr(m.first) && uintptr(p) < m.segEnd
}

// Init (re)initialises the allocator on the given memory. The start
// is aligned up and the length trimmed down to the Alignment; the
// remaining segment must host at least one minimum block plus its
// header. It returns true on success and false otherwise; on failure
// the allocator is unusable.
//
// Re-init is allowed and discards all outstanding pointers.
func (m *FLMalloc) Init(mem []byte, options Options) bool {
	*m = FLMalloc{} // zero, in case of re-init
	m.options = options
	if len(mem) == 0 {
		return false
	}
	addr := uintptr(unsafe.Pointer(&mem[0]))
	start := uintptr(roundUp(uint64(addr)))
	size := uint64(len(mem))
	if size < uint64(start-addr) {
		return false
	}
	size = roundDown(size - uint64(start-addr))
	if size < hdrSize+m.minPayload() {
		return false
	}

	m.mem = mem
	m.size = size
	m.segEnd = start + uintptr(size)

	first := (*blk)(unsafe.Pointer(&mem[start-addr]))
	first.setHdr(size-hdrSize, blkFree)
	m.first = first
	m.addOverhead(hdrSize)

	if !m.Implicit() {
		first.prevFree = nil
		first.nextFree = nil
		m.head, m.tail = first, first
		m.freeNo = 1
	}
	return true
}

// roundUp rounds up a size to the next Alignment multiple.
func roundUp(s uint64) uint64 {
	return (s + (Alignment - 1)) & AlignmentMask
}

// roundDown rounds down a size to the next Alignment multiple.
func roundDown(s uint64) uint64 {
	return s & AlignmentMask
}

// roundUpSz rounds a requested size up to the Alignment, with a floor
// at the minimum payload (a zero request is served by a minimum
// block).
func (m *FLMalloc) roundUpSz(s uint64) uint64 {
	if mp := m.minPayload(); s <= mp {
		return mp
	}
	return roundUp(s)
}

// insertFree inserts a free block into the address-ordered free list.
func (m *FLMalloc) insertFree(f *blk) {
	m.freeNo++

	if m.head == nil {
		f.prevFree = nil
		f.nextFree = nil
		m.head, m.tail = f, f
		return
	}
	if blkAddr(f) < blkAddr(m.head) {
		f.prevFree = nil
		f.nextFree = m.head
		m.head.prevFree = f
		m.head = f
		return
	}
	if blkAddr(m.tail) < blkAddr(f) {
		f.prevFree = m.tail
		f.nextFree = nil
		m.tail.nextFree = f
		m.tail = f
		return
	}

	// head < f < tail: scan for the first free block after f
	nxt := m.head
	for blkAddr(nxt) < blkAddr(f) {
		nxt = nxt.nextFree
	}
	prv := nxt.prevFree
	prv.nextFree = f
	nxt.prevFree = f
	f.prevFree = prv
	f.nextFree = nxt
}

// detachFree removes a block from the free list.
func (m *FLMalloc) detachFree(f *blk) {
	m.freeNo--
	prv, nxt := f.prevFree, f.nextFree
	if prv != nil {
		prv.nextFree = nxt
	}
	if nxt != nil {
		nxt.prevFree = prv
	}
	if m.head == f {
		m.head = nxt
	}
	if m.tail == f {
		m.tail = prv
	}
}

// replaceFree puts nu into the free-list position held by old
// (same neighbours, head/tail patched). Used when a split leaves a
// trailing free block where the chosen one was.
func (m *FLMalloc) replaceFree(old, nu *blk) {
	nu.prevFree = old.prevFree
	nu.nextFree = old.nextFree
	if nu.prevFree != nil {
		nu.prevFree.nextFree = nu
	}
	if nu.nextFree != nil {
		nu.nextFree.prevFree = nu
	}
	if m.head == old {
		m.head = nu
	}
	if m.tail == old {
		m.tail = nu
	}
}

// findFree finds the first free block of at least size, walking the
// list from head towards tail (first fit in address order).
// It returns nil if no block is big enough.
func (m *FLMalloc) findFree(size uint64) *blk {
	for f := m.head; f != nil; f = f.nextFree {
		if f.size() >= size {
			return f
		}
	}
	return nil
}

// Malloc allocates size bytes of memory and returns an Alignment
// aligned pointer to it. On failure (out of space) it returns nil and
// the heap is left unchanged.
func (m *FLMalloc) Malloc(size uint64) unsafe.Pointer {
	need := m.roundUpSz(size)
	if need > m.Available() {
		WARN("Malloc(%d): not enough free memory\n", size)
		return nil
	}
	if m.Implicit() {
		return m.mallocImplicit(need)
	}

	f := m.findFree(need)
	if f == nil {
		// enough bytes in total but too fragmented
		WARN("Malloc(%d): no free block large enough\n", size)
		return nil
	}

	leftover := f.size() - need
	if leftover >= hdrSize+MinPayload {
		// split: shrink f, the rest becomes a new free block in the
		// same list position
		f.setHdr(need, blkUsed)
		rest := f.next()
		rest.setHdr(leftover-hdrSize, blkFree)
		m.replaceFree(f, rest)
		m.addOverhead(hdrSize)
	} else {
		// absorb the slack as internal padding
		f.setHdr(f.size(), blkUsed)
		m.detachFree(f)
	}
	m.addUsed(f.size())
	if m.Debug() {
		DBG("Malloc(%d) -> %p (block size %d)\n", size, f.addr(), f.size())
	}
	return f.addr()
}

// Free releases the memory associated with p (p must have been
// previously returned by Malloc or Realloc). A nil p is a no-op.
// The freed block is merged with its right neighbour when that
// neighbour is free; merging leftwards is not attempted.
func (m *FLMalloc) Free(p unsafe.Pointer) {
	if p == nil {
		WARN("free(nil) called\n")
		return
	}
	if !m.Owns(p) {
		PANIC("BUG: Free called with pointer %p outside the segment "+
			"(usable range %p-%#x)\n", p, m.first, m.segEnd)
		return
	}
	f := blkOf(p)
	if !m.Implicit() && f.isFree() {
		PANIC("BUG: attempt to free already freed pointer %p\n", p)
		return
	}
	sz := f.size()
	m.subUsed(sz)

	if m.Implicit() {
		f.setHdr(sz, blkFree)
		return
	}

	right := f.next()
	if uintptr(unsafe.Pointer(right)) < m.segEnd && right.isFree() {
		// coalesce rightwards: f takes over the right neighbour's
		// free-list slot
		f.setHdr(sz+hdrSize+right.size(), blkFree)
		f.prevFree = right.prevFree
		f.nextFree = right.nextFree
		if f.prevFree != nil {
			f.prevFree.nextFree = f
		}
		if f.nextFree != nil {
			f.nextFree.prevFree = f
		}
		if m.head == right {
			m.head = f
		}
		if m.tail == right {
			m.tail = f
		}
		m.subOverhead(hdrSize)
		if m.Debug() {
			DBG("Free(%p): coalesced right, block size %d\n", p, f.size())
		}
		return
	}

	f.setHdr(sz, blkFree)
	m.insertFree(f)
	if m.Debug() {
		DBG("Free(%p): block size %d\n", p, sz)
	}
}

// Realloc tries to grow or shrink a previously allocated pointer to a
// new size. It returns either the old pointer, when the size change
// was possible in place (possibly after absorbing free right
// neighbours), or a new pointer with the old contents copied over and
// the old pointer freed. If not enough memory is available it returns
// nil and p stays valid with its contents unchanged; however any free
// right neighbours absorbed while trying to grow in place remain part
// of p's block and are not restored.
func (m *FLMalloc) Realloc(p unsafe.Pointer, size uint64) unsafe.Pointer {
	if p == nil {
		// it's a malloc
		return m.Malloc(size)
	}
	if !m.Owns(p) {
		PANIC("BUG: Realloc called with pointer %p outside the segment "+
			"(usable range %p-%#x)\n", p, m.first, m.segEnd)
		return nil
	}
	f := blkOf(p)
	if !m.Implicit() && f.isFree() {
		PANIC("BUG: attempt to realloc an already freed pointer %p\n", p)
		return nil
	}

	need := m.roundUpSz(size)
	oldSize := f.size()

	if m.Implicit() {
		return m.reallocImplicit(f, p, need, size)
	}

	// absorb free right neighbours as long as there are any; only the
	// working size grows, the header is rewritten below
	curSize := oldSize
	for {
		right := (*blk)(unsafe.Pointer(
			uintptr(unsafe.Pointer(f)) + hdrSize + uintptr(curSize)))
		if uintptr(unsafe.Pointer(right)) >= m.segEnd || !right.isFree() {
			break
		}
		m.detachFree(right)
		curSize += hdrSize + right.size()
		m.subOverhead(hdrSize)
	}

	if curSize >= need {
		if curSize-need >= hdrSize+MinPayload {
			// split off a trailing free block
			f.setHdr(need, blkUsed)
			rest := f.next()
			rest.setHdr(curSize-need-hdrSize, blkFree)
			m.insertFree(rest)
			m.addOverhead(hdrSize)
			curSize = need
		} else {
			f.setHdr(curSize, blkUsed)
		}
		if curSize >= oldSize {
			m.addUsed(curSize - oldSize)
		} else {
			m.subUsed(oldSize - curSize)
		}
		if m.Debug() {
			DBG("Realloc(%p, %d): in place, block size %d\n", p, size, curSize)
		}
		return p
	}

	// not enough room even after absorption: leave one coherent used
	// block behind, then move
	f.setHdr(curSize, blkUsed)
	m.addUsed(curSize - oldSize)
	np := m.Malloc(size)
	if np == nil {
		ERR("Realloc(%p, %d): fallback allocation failed\n", p, size)
		return nil
	}
	// copy the original payload only; bytes past oldSize were never
	// written by the caller
	copy(unsafe.Slice((*byte)(np), oldSize), unsafe.Slice((*byte)(p), oldSize))
	m.Free(p)
	if m.Debug() {
		DBG("Realloc(%p, %d): moved to %p\n", p, size, np)
	}
	return np
}
