// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func fillPayload(p unsafe.Pointer, n int, pattern byte) {
	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		s[i] = pattern + byte(i)
	}
}

func checkPayload(t *testing.T, p unsafe.Pointer, n int, pattern byte) {
	t.Helper()
	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		require.EqualValues(t, pattern+byte(i), s[i], "payload byte %d", i)
	}
}

func TestReallocNilIsMalloc(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	p := m.Realloc(nil, 32)
	require.NotNil(t, p)
	require.EqualValues(t, 32, blkOf(p).size())
	require.True(t, m.Valid())
}

func TestReallocInPlaceShrink(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	p := m.Malloc(200)
	require.NotNil(t, p)
	fillPayload(p, 40, 0x10)

	q := m.Realloc(p, 40)
	require.Equal(t, p, q)
	require.EqualValues(t, 40, blkOf(q).size())
	checkPayload(t, q, 40, 0x10)

	// the trailing free region was absorbed first, then split off
	// again behind the shrunk block
	require.EqualValues(t, 1, m.freeNo)
	require.EqualValues(t, 968|blkFree, hdrAt(mem, 48))
	require.True(t, m.Valid())
}

func TestReallocGrowByAbsorption(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	a := m.Malloc(16)
	b := m.Malloc(16)
	require.NotNil(t, b)
	fillPayload(a, 16, 0x20)

	m.Free(b)

	c := m.Realloc(a, 64)
	require.Equal(t, a, c)
	require.EqualValues(t, 64, blkOf(c).size())
	checkPayload(t, c, 16, 0x20)

	// one free block remains, trailing the grown allocation
	require.EqualValues(t, 1, m.freeNo)
	require.EqualValues(t, 944|blkFree, hdrAt(mem, 72))
	require.True(t, m.Valid())
}

func TestReallocMoveCopiesPayload(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	a := m.Malloc(16)
	b := m.Malloc(16) // pins a's right edge
	require.NotNil(t, b)
	fillPayload(a, 16, 0x30)

	c := m.Realloc(a, 200)
	require.NotNil(t, c)
	require.NotEqual(t, a, c)
	require.GreaterOrEqual(t, blkOf(c).size(), uint64(200))
	checkPayload(t, c, 16, 0x30)

	// the old block was freed
	require.True(t, blkOf(a).isFree())
	require.True(t, m.Valid())
}

func TestReallocFallbackFailure(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	a := m.Malloc(16)
	b := m.Malloc(16)
	rest := m.Malloc(968) // consume everything after b
	require.NotNil(t, rest)
	fillPayload(a, 16, 0x40)

	m.Free(b)
	require.EqualValues(t, 1, m.freeNo)

	// growing a absorbs b's former block (40 bytes total payload),
	// still not enough, and the fallback allocation cannot succeed
	p := m.Realloc(a, 64)
	require.Nil(t, p)

	// a stays valid: one coherent used block, original bytes intact,
	// but the absorbed neighbour is not given back
	require.False(t, blkOf(a).isFree())
	require.EqualValues(t, 40, blkOf(a).size())
	checkPayload(t, a, 16, 0x40)
	require.EqualValues(t, 0, m.freeNo)
	require.True(t, m.Valid())
}

func TestReallocMoveUsesFreeSpaceElsewhere(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	a := m.Malloc(16)
	b := m.Malloc(16)
	c := m.Malloc(16) // pins b's right edge
	require.NotNil(t, c)
	fillPayload(a, 16, 0x50)

	m.Free(b)

	// absorbing b yields 40 bytes, not enough for 64; the free tail
	// after c serves the fallback allocation
	p := m.Realloc(a, 64)
	require.NotNil(t, p)
	require.NotEqual(t, a, p)
	require.GreaterOrEqual(t, blkOf(p).size(), uint64(64))
	checkPayload(t, p, 16, 0x50)

	// the widened a block went back to the free list
	require.True(t, blkOf(a).isFree())
	require.EqualValues(t, 40, blkOf(a).size())
	require.True(t, m.Valid())
}

func TestReallocSameSize(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	a := m.Malloc(64)
	b := m.Malloc(64) // keep the right neighbour used
	require.NotNil(t, b)
	fillPayload(a, 64, 0x60)

	p := m.Realloc(a, 64)
	require.Equal(t, a, p)
	require.EqualValues(t, 64, blkOf(p).size())
	checkPayload(t, p, 64, 0x60)
	require.True(t, m.Valid())
}

func TestReallocZeroSizeKeepsMinBlock(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	a := m.Malloc(64)
	require.NotNil(t, a)

	p := m.Realloc(a, 0)
	require.Equal(t, a, p)
	require.EqualValues(t, MinPayload, blkOf(p).size())
	require.True(t, m.Valid())
}
