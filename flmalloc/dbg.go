// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package flmalloc

import (
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/intuitivelabs/slog"
)

// DumpStatus will write the current heap status in the log: usage
// summary, every block in walk order and the free list. With
// MDumpShort only the summary is written.
func (m *FLMalloc) DumpStatus() {
	const lev = slog.LDBG
	const prefix = "fl_status "

	if !Log.L(lev) {
		return
	}
	Log.LLog(lev, 0, prefix, "(%p):\n", m)
	if m == nil || m.first == nil {
		return
	}
	Log.LLog(lev, 0, prefix, "heap size= %s\n", humanize.Bytes(m.size))
	Log.LLog(lev, 0, prefix, "used= %s, used+overhead= %s, free= %s\n",
		humanize.Bytes(m.used.Used), humanize.Bytes(m.used.RealUsed),
		humanize.Bytes(m.Available()))
	Log.LLog(lev, 0, prefix, "max used (+overhead)= %s\n",
		humanize.Bytes(m.used.MaxRealUsed))
	if m.options&MDumpShort != 0 {
		return
	}

	Log.LLog(lev, 0, prefix, "dumping all blocks:\n")
	i := 0
	for b := m.first; uintptr(unsafe.Pointer(b)) < m.segEnd; b = b.next() {
		status := "used"
		if b.isFree() {
			status = "free"
		}
		Log.LLog(lev, 0, prefix, "   %3d.    address=%p size=%d %s\n",
			i, b.addr(), b.size(), status)
		i++
	}

	if m.Implicit() {
		Log.LLog(lev, 0, prefix, "implicit mode, no free list\n")
		return
	}
	Log.LLog(lev, 0, prefix, "dumping free list: %d block(s)\n", m.freeNo)
	for f := m.head; f != nil; f = f.nextFree {
		Log.LLog(lev, 0, prefix, "   address=%p size=%d\n", f.addr(), f.size())
	}
	Log.LLog(lev, 0, prefix, "-----------------------------\n")
}
