// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

import (
	"unsafe"
)

// Block status, kept in the low 3 bits of the header word.
// Payload sizes are always a multiple of Alignment, so those bits are
// unused by the size.
const (
	blkUsed    uint64 = 0x0 // 0b000
	blkFree    uint64 = 0x7 // 0b111
	statusMask uint64 = 0x7
)

// hdrSize is the size of the in-band block header: one aligned word
// holding size | status.
const hdrSize = 8

// blk overlays a heap block at its base address.
// word is the header. prevFree and nextFree occupy the first two
// payload words and are meaningful only while the block is free;
// while the block is used those bytes belong to the caller and must
// not be touched.
type blk struct {
	word     uint64
	prevFree *blk
	nextFree *blk
}

// size returns the payload size encoded in the header.
func (b *blk) size() uint64 { return b.word &^ statusMask }

// status returns the raw status bits.
func (b *blk) status() uint64 { return b.word & statusMask }

// isFree returns true if this block is free.
func (b *blk) isFree() bool { return b.word&statusMask == blkFree }

// setHdr rewrites the header word with a new size and status.
func (b *blk) setHdr(size, status uint64) { b.word = size | status }

// addr returns the payload address, the pointer handed out to callers.
func (b *blk) addr() unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(b)) + hdrSize)
}

// next returns the block immediately after b in the segment
// (the heap walker step).
func (b *blk) next() *blk {
	return (*blk)(unsafe.Pointer(uintptr(unsafe.Pointer(b)) + hdrSize + uintptr(b.size())))
}

// blkOf maps a payload pointer back to its block.
func blkOf(p unsafe.Pointer) *blk {
	return (*blk)(unsafe.Pointer(uintptr(p) - hdrSize))
}

// blkAddr returns the base address of a block, used for address
// ordering of the free list.
func blkAddr(b *blk) uintptr { return uintptr(unsafe.Pointer(b)) }
