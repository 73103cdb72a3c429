// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package column

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
)

// BytesBuilder builds a column of byte slices, stored as a concatenated data
// section and a uint column of N+1 offsets. The i'th slice is
// data[offsets[i]:offsets[i+1]].
//
//	+-----------------------------------------+
//	|  uint offsets column (see UintBuilder)  |
//	+-----------------------------------------+
//	|  slice data: abcabcada....              |
//	+-----------------------------------------+
//
// The offsets and data may be written to separate regions with FinishOffsets
// and FinishData, or together with Finish.
type BytesBuilder struct {
	offsets UintBuilder
	data    []byte
}

// Reset resets the builder, reusing existing allocated memory.
func (b *BytesBuilder) Reset() {
	b.offsets.Reset()
	b.offsets.Append(0)
	b.data = b.data[:0]
}

// Put appends a slice to the column.
func (b *BytesBuilder) Put(v []byte) {
	if b.offsets.Len() == 0 {
		b.offsets.Append(0)
	}
	b.data = append(b.data, v...)
	b.offsets.Append(uint64(len(b.data)))
}

// Len returns the number of slices in the column.
func (b *BytesBuilder) Len() int { return max(b.offsets.Len()-1, 0) }

// DataSize returns the length of the concatenated slice data.
func (b *BytesBuilder) DataSize() int { return len(b.data) }

// Size returns the number of bytes Finish will append.
func (b *BytesBuilder) Size() int {
	if b.offsets.Len() == 0 {
		b.offsets.Append(0)
	}
	return b.offsets.Size() + len(b.data)
}

// FinishOffsets appends the offsets column to dst.
func (b *BytesBuilder) FinishOffsets(dst []byte) []byte {
	if b.offsets.Len() == 0 {
		b.offsets.Append(0)
	}
	return b.offsets.Finish(dst)
}

// FinishData appends the concatenated slice data to dst.
func (b *BytesBuilder) FinishData(dst []byte) []byte {
	return append(dst, b.data...)
}

// Finish appends the offsets column followed by the slice data to dst.
func (b *BytesBuilder) Finish(dst []byte) []byte {
	return b.FinishData(b.FinishOffsets(dst))
}

// Bytes is a read-only view of a column encoded by BytesBuilder.
type Bytes struct {
	offsets Uints
	data    []byte
}

// DecodeBytes decodes a column of n slices from the front of b, where the
// offsets are immediately followed by the data. It returns the column and the
// number of bytes it occupies.
func DecodeBytes(b []byte, n int) (Bytes, int, error) {
	offsets, off, err := DecodeUints(b, n+1)
	if err != nil {
		return Bytes{}, 0, err
	}
	dataLen := offsets.At(n)
	if dataLen > uint64(len(b)-off) {
		return Bytes{}, 0, base.CorruptionErrorf("prefixtree: bytes column data length %d overflows %d bytes",
			errors.Safe(dataLen), errors.Safe(len(b)-off))
	}
	col, err := MakeBytes(offsets, b[off:off+int(dataLen)])
	return col, off + int(dataLen), err
}

// MakeBytes constructs a Bytes column from separately stored offsets and data,
// validating that offsets are non-decreasing and within data.
func MakeBytes(offsets Uints, data []byte) (Bytes, error) {
	n := offsets.Len()
	if n == 0 {
		return Bytes{}, base.CorruptionErrorf("prefixtree: bytes column has no offsets")
	}
	prev := offsets.At(0)
	if prev != 0 {
		return Bytes{}, base.CorruptionErrorf("prefixtree: bytes column first offset %d != 0", errors.Safe(prev))
	}
	for i := 1; i < n; i++ {
		o := offsets.At(i)
		if o < prev || o > uint64(len(data)) {
			return Bytes{}, base.CorruptionErrorf("prefixtree: bytes column offset %d = %d out of order or range",
				errors.Safe(i), errors.Safe(o))
		}
		prev = o
	}
	return Bytes{offsets: offsets, data: data}, nil
}

// Len returns the number of slices in the column.
func (b Bytes) Len() int { return max(b.offsets.Len()-1, 0) }

// At returns the i'th slice. The result aliases the column's memory.
func (b Bytes) At(i int) []byte {
	return b.data[b.offsets.At(i):b.offsets.At(i+1):b.offsets.At(i+1)]
}

// Data returns the concatenated slice data.
func (b Bytes) Data() []byte { return b.data }
