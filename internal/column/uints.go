// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package column

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
)

// UintDeltaEncoding indicates what delta encoding, if any, is in use by a uint
// column to reduce the per-row storage size.
//
// A uint delta encoding represents every element in an array of uints as a
// delta relative to the column's constant. The logical value of each row is
// computed as C + D[i] where C is the column constant and D[i] is the delta.
//
// The UintDeltaEncoding byte is serialized before the column data.
type UintDeltaEncoding uint8

const (
	// UintDeltaEncodingNone indicates no delta encoding is in use. N rows are
	// represented using N 8-byte values.
	UintDeltaEncodingNone UintDeltaEncoding = 0
	// UintDeltaEncodingConstant indicates that all rows of the column share the
	// same value. The column data encodes the constant value and no deltas.
	UintDeltaEncodingConstant UintDeltaEncoding = 1
	// UintDeltaEncoding8 indicates each delta is represented as a 1-byte uint8.
	UintDeltaEncoding8 UintDeltaEncoding = 2
	// UintDeltaEncoding16 indicates each delta is represented as a 2-byte uint16.
	UintDeltaEncoding16 UintDeltaEncoding = 3
	// UintDeltaEncoding32 indicates each delta is represented as a 4-byte uint32.
	UintDeltaEncoding32 UintDeltaEncoding = 4
)

// String implements fmt.Stringer.
func (d UintDeltaEncoding) String() string {
	switch d {
	case UintDeltaEncodingNone:
		return "none"
	case UintDeltaEncodingConstant:
		return "const"
	case UintDeltaEncoding8:
		return "delta8"
	case UintDeltaEncoding16:
		return "delta16"
	case UintDeltaEncoding32:
		return "delta32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

func (d UintDeltaEncoding) width() int {
	switch d {
	case UintDeltaEncodingNone:
		return 8
	case UintDeltaEncodingConstant:
		return 0
	case UintDeltaEncoding8:
		return 1
	case UintDeltaEncoding16:
		return 2
	case UintDeltaEncoding32:
		return 4
	default:
		panic(errors.AssertionFailedf("unknown uint delta encoding %d", uint8(d)))
	}
}

func (d UintDeltaEncoding) valid() bool {
	return d <= UintDeltaEncoding32
}

// UintBuilder builds a column of unsigned integers. UintBuilder uses a delta
// encoding when possible to store values using lower-width integers. See
// UintDeltaEncoding.
type UintBuilder struct {
	elems   []uint64
	minimum uint64
	maximum uint64
}

// Reset resets the builder, reusing existing allocated memory.
func (b *UintBuilder) Reset() {
	b.elems = b.elems[:0]
	b.minimum = math.MaxUint64
	b.maximum = 0
}

// Append adds a value to the end of the column.
func (b *UintBuilder) Append(v uint64) {
	if len(b.elems) == 0 {
		b.minimum, b.maximum = v, v
	} else {
		b.minimum = min(b.minimum, v)
		b.maximum = max(b.maximum, v)
	}
	b.elems = append(b.elems, v)
}

// Len returns the number of values appended so far.
func (b *UintBuilder) Len() int { return len(b.elems) }

// Get returns the i'th value.
func (b *UintBuilder) Get(i int) uint64 { return b.elems[i] }

// Last returns the most recently appended value.
func (b *UintBuilder) Last() uint64 { return b.elems[len(b.elems)-1] }

func (b *UintBuilder) encoding() UintDeltaEncoding {
	if len(b.elems) == 0 || b.minimum == b.maximum {
		return UintDeltaEncodingConstant
	}
	switch delta := b.maximum - b.minimum; {
	case delta <= math.MaxUint8:
		return UintDeltaEncoding8
	case delta <= math.MaxUint16:
		return UintDeltaEncoding16
	case delta <= math.MaxUint32:
		return UintDeltaEncoding32
	default:
		return UintDeltaEncodingNone
	}
}

func (b *UintBuilder) base() uint64 {
	if len(b.elems) == 0 {
		return 0
	}
	return b.minimum
}

// Size returns the number of bytes Finish will append.
func (b *UintBuilder) Size() int {
	enc := b.encoding()
	if enc == UintDeltaEncodingNone {
		return 1 + 8*len(b.elems)
	}
	return 1 + 8 + enc.width()*len(b.elems)
}

// Finish appends the encoded column to dst.
func (b *UintBuilder) Finish(dst []byte) []byte {
	enc := b.encoding()
	dst = append(dst, byte(enc))
	if enc == UintDeltaEncodingNone {
		for _, v := range b.elems {
			dst = binary.LittleEndian.AppendUint64(dst, v)
		}
		return dst
	}
	base := b.base()
	dst = binary.LittleEndian.AppendUint64(dst, base)
	w := enc.width()
	for _, v := range b.elems {
		dst = AppendUint(dst, v-base, w)
	}
	return dst
}

// Summary returns a one-line description of the encoding Finish would use.
func (b *UintBuilder) Summary() string {
	return fmt.Sprintf("%s base=%d n=%d size=%d", b.encoding(), b.base(), len(b.elems), b.Size())
}

// Uints is a read-only view of a column encoded by UintBuilder.
type Uints struct {
	enc   UintDeltaEncoding
	base  uint64
	width int
	n     int
	data  []byte
}

// DecodeUints decodes a column of n uints from the front of b. It returns the
// column and the number of bytes it occupies.
func DecodeUints(b []byte, n int) (Uints, int, error) {
	if len(b) < 1 {
		return Uints{}, 0, base.CorruptionErrorf("prefixtree: missing uint column encoding")
	}
	enc := UintDeltaEncoding(b[0])
	if !enc.valid() {
		return Uints{}, 0, base.CorruptionErrorf("prefixtree: unknown uint column encoding %d", errors.Safe(b[0]))
	}
	u := Uints{enc: enc, width: enc.width(), n: n}
	off := 1
	if enc != UintDeltaEncodingNone {
		if len(b) < off+8 {
			return Uints{}, 0, base.CorruptionErrorf("prefixtree: truncated uint column constant")
		}
		u.base = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}
	size := u.width * n
	if n < 0 || len(b)-off < size {
		return Uints{}, 0, base.CorruptionErrorf("prefixtree: uint column of %d %d-byte values overflows %d bytes",
			errors.Safe(n), errors.Safe(u.width), errors.Safe(len(b)-off))
	}
	u.data = b[off : off+size]
	return u, off + size, nil
}

// Len returns the number of values in the column.
func (u Uints) Len() int { return u.n }

// Encoding returns the delta encoding in use.
func (u Uints) Encoding() UintDeltaEncoding { return u.enc }

// At returns the i'th value.
func (u Uints) At(i int) uint64 {
	switch u.enc {
	case UintDeltaEncodingConstant:
		return u.base
	case UintDeltaEncodingNone:
		return binary.LittleEndian.Uint64(u.data[i*8:])
	default:
		return u.base + ReadUint(u.data[i*u.width:], u.width)
	}
}

// EncodeInt64 maps a signed integer onto an unsigned integer preserving order,
// so that signed columns can share UintBuilder's delta encoding.
func EncodeInt64(v int64) uint64 { return uint64(v) ^ (1 << 63) }

// DecodeInt64 inverts EncodeInt64.
func DecodeInt64(v uint64) int64 { return int64(v ^ (1 << 63)) }
