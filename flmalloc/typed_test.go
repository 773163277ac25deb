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

func TestNewZeroesMemory(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	type record struct {
		ID    int64
		Score float64
		Tag   [16]byte
	}

	// dirty the heap first so New has something to clear
	p := m.Malloc(64)
	require.NotNil(t, p)
	fillPayload(p, 64, 0xff)
	m.Free(p)

	r, err := New[record](&m)
	require.NoError(t, err)
	require.Zero(t, r.ID)
	require.Zero(t, r.Score)
	require.Equal(t, [16]byte{}, r.Tag)

	r.ID = 42
	r.Score = 3.5
	require.True(t, m.Owns(unsafe.Pointer(r)))

	Release(&m, r)
	require.True(t, m.Valid())
}

func TestNewSlice(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	s, err := NewSlice[int64](&m, 4, 8)
	require.NoError(t, err)
	require.Len(t, s, 4)
	require.Equal(t, 8, cap(s))

	for i := range s {
		s[i] = int64(i)
	}
	// appending within capacity stays in the arena
	s = append(s, 4, 5)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5}, s)

	ReleaseSlice(&m, s)
	require.True(t, m.Valid())
	require.EqualValues(t, m.Size()-hdrSize, m.Available())
}

func TestNewSliceEmpty(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	s, err := NewSlice[byte](&m, 0)
	require.NoError(t, err)
	require.Empty(t, s)
	// nothing was allocated
	require.EqualValues(t, m.Size()-hdrSize, m.Available())
}

func TestNewOutOfSpace(t *testing.T) {
	mem := testSegment(t, 64)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	_, err := NewSlice[byte](&m, 1024)
	require.ErrorIs(t, err, ErrNoSpace)

	type big struct{ a [256]byte }
	_, err = New[big](&m)
	require.ErrorIs(t, err, ErrNoSpace)
	require.True(t, m.Valid())
}

func TestReleaseNil(t *testing.T) {
	mem := testSegment(t, 1024)
	var m FLMalloc
	require.True(t, m.Init(mem, MDefaultOptions))

	Release[int64](&m, nil)
	ReleaseSlice[byte](&m, nil)
	require.True(t, m.Valid())
}
