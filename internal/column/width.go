// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package column

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// MaxWidth is the widest fixed-width integer used for indices and offsets.
const MaxWidth = 4

// WidthFor returns the number of bytes (0 to 4) needed to represent every
// value in [0, max]. A width of zero means the value is always zero and is not
// stored at all.
func WidthFor[T constraints.Unsigned](max T) int {
	switch {
	case max == 0:
		return 0
	case uint64(max) <= 0xff:
		return 1
	case uint64(max) <= 0xffff:
		return 2
	case uint64(max) <= 0xffffff:
		return 3
	case uint64(max) <= 0xffffffff:
		return 4
	default:
		panic(errors.AssertionFailedf("value %d does not fit in %d bytes", uint64(max), MaxWidth))
	}
}

// AppendUint appends the low width bytes of v to dst in little-endian order.
func AppendUint(dst []byte, v uint64, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// PutUint writes the low width bytes of v to dst in little-endian order.
func PutUint(dst []byte, v uint64, width int) {
	for i := 0; i < width; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

// ReadUint reads a width-byte little-endian unsigned integer from b. The
// caller must ensure len(b) >= width.
func ReadUint(b []byte, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
