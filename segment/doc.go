// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package segment reserves the contiguous backing region handed to
// the allocator. On unix the region is an anonymous private mapping;
// elsewhere it falls back to an ordinary heap slice.
package segment
