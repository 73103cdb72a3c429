// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// The flat cell format is the uncompressed, self-delimiting representation of
// a run of cells used at the codec boundary:
//
//	uint32 keyLen | uint32 valueLen | key | value [| uvarint seqnum]
//
// where key is
//
//	uint16 rowLen | row | uint8 familyLen | family | qualifier | int64 timestamp | uint8 kind
//
// All fixed-width integers are big-endian. The qualifier length is implied by
// keyLen.
const (
	flatLengthsSize    = 8
	flatKeyFixedSize   = 2 + 1 + 8 + 1
	flatKeyTrailerSize = 8 + 1
)

const (
	// MaxRowLength is the longest row a cell may have.
	MaxRowLength = math.MaxInt16
	// MaxFamilyLength is the longest family a cell may have.
	MaxFamilyLength = math.MaxInt8
)

// ValidateCellSize returns an error if the cell's row or family are too long
// to be represented.
func ValidateCellSize(c *Cell) error {
	if len(c.Row) > MaxRowLength {
		return errors.Newf("row length %d exceeds maximum %d", len(c.Row), MaxRowLength)
	}
	if len(c.Family) > MaxFamilyLength {
		return errors.Newf("family length %d exceeds maximum %d", len(c.Family), MaxFamilyLength)
	}
	return nil
}

// FlatKeyLen returns the length of the cell's key in the flat format.
func FlatKeyLen(c *Cell) int {
	return flatKeyFixedSize + len(c.Row) + len(c.Family) + len(c.Qualifier)
}

// FlatLen returns the length of the cell in the flat format.
func FlatLen(c *Cell, includesSeqNum bool) int {
	n := flatLengthsSize + FlatKeyLen(c) + len(c.Value)
	if includesSeqNum {
		n += uvarintLen(c.SeqNum)
	}
	return n
}

// AppendFlatKey appends the flat key of the cell to dst.
func AppendFlatKey(dst []byte, c *Cell) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(c.Row)))
	dst = append(dst, c.Row...)
	dst = append(dst, byte(len(c.Family)))
	dst = append(dst, c.Family...)
	dst = append(dst, c.Qualifier...)
	dst = binary.BigEndian.AppendUint64(dst, uint64(c.Timestamp))
	return append(dst, byte(c.Kind))
}

// AppendFlatCell appends the flat representation of the cell to dst.
func AppendFlatCell(dst []byte, c *Cell, includesSeqNum bool) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(FlatKeyLen(c)))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(c.Value)))
	dst = AppendFlatKey(dst, c)
	dst = append(dst, c.Value...)
	if includesSeqNum {
		dst = binary.AppendUvarint(dst, c.SeqNum)
	}
	return dst
}

// DecodeFlatKey decodes a flat key. The returned cell aliases k and has no
// value.
func DecodeFlatKey(k []byte) (Cell, error) {
	var c Cell
	if len(k) < flatKeyFixedSize {
		return c, CorruptionErrorf("prefixtree: flat key too short (%d bytes)", errors.Safe(len(k)))
	}
	rowLen := int(binary.BigEndian.Uint16(k))
	if 2+rowLen+1 > len(k)-flatKeyTrailerSize {
		return c, CorruptionErrorf("prefixtree: flat key row length %d overflows key of %d bytes",
			errors.Safe(rowLen), errors.Safe(len(k)))
	}
	c.Row = k[2 : 2+rowLen]
	off := 2 + rowLen
	famLen := int(k[off])
	off++
	if off+famLen > len(k)-flatKeyTrailerSize {
		return c, CorruptionErrorf("prefixtree: flat key family length %d overflows key of %d bytes",
			errors.Safe(famLen), errors.Safe(len(k)))
	}
	c.Family = k[off : off+famLen]
	off += famLen
	trailer := len(k) - flatKeyTrailerSize
	c.Qualifier = k[off:trailer]
	c.Timestamp = int64(binary.BigEndian.Uint64(k[trailer:]))
	c.Kind = CellKind(k[len(k)-1])
	return c, nil
}

// DecodeFlatCell decodes the first cell of the flat buffer b, returning the
// cell and the remainder of b. The returned cell aliases b.
func DecodeFlatCell(b []byte, includesSeqNum bool) (Cell, []byte, error) {
	if len(b) < flatLengthsSize {
		return Cell{}, nil, CorruptionErrorf("prefixtree: truncated flat cell header (%d bytes)", errors.Safe(len(b)))
	}
	keyLen := uint64(binary.BigEndian.Uint32(b))
	valLen := uint64(binary.BigEndian.Uint32(b[4:]))
	if uint64(len(b)-flatLengthsSize) < keyLen+valLen {
		return Cell{}, nil, CorruptionErrorf("prefixtree: flat cell lengths (%d, %d) overflow buffer of %d bytes",
			errors.Safe(keyLen), errors.Safe(valLen), errors.Safe(len(b)))
	}
	b = b[flatLengthsSize:]
	c, err := DecodeFlatKey(b[:keyLen])
	if err != nil {
		return Cell{}, nil, err
	}
	c.Value = b[keyLen : keyLen+valLen]
	b = b[keyLen+valLen:]
	if includesSeqNum {
		v, n := binary.Uvarint(b)
		if n <= 0 {
			return Cell{}, nil, CorruptionErrorf("prefixtree: malformed flat cell seqnum")
		}
		c.SeqNum = v
		b = b[n:]
	}
	return c, b, nil
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
