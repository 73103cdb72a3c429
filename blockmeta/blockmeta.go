// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package blockmeta defines the fixed-size header at the front of every
// prefix-tree block.
//
// # Layout
//
// All integers are little-endian. Section offsets are relative to the start of
// the block, i.e. the first byte of the header.
//
//	+--------+---------+-------+------+-------+-------+----------+
//	| magic  | version | flags | famW | qualW | nodeW | reserved |
//	|   4    |    1    |   1   |  1   |   1   |   1   |    3     |
//	+--------+---------+-------+------+-------+-------+----------+
//	| numCells | numRows | numNodes | numFamilies | numQualifiers |
//	| maxRowLength | numFlatBytes           (7 x uint32)          |
//	+------------------------------------------------------------+
//	| (offset, length) x 8 sections          (16 x uint32)        |
//	+------------------------------------------------------------+
//
// The sections, in order, are the row trie, the family dictionary, the
// qualifier dictionary, the timestamp, kind and value offset columns, the value
// data and the optional sequence number column. Bytes following the furthest
// section are ignored.
package blockmeta

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
)

// Magic identifies a prefix-tree block.
const Magic uint32 = 0x65727470 // "ptre"

// Version is the only block version understood by this package.
const Version uint8 = 1

// Size is the serialized size of a BlockMeta.
const Size = 12 + 7*4 + int(NumSections)*8

// Flags records optional features of a block.
type Flags uint8

const (
	// FlagSeqNums is set when the block carries a sequence number column.
	FlagSeqNums Flags = 1 << iota

	flagsMask = FlagSeqNums
)

// SectionID names a region of the block.
type SectionID uint8

const (
	RowTrie SectionID = iota
	Families
	Qualifiers
	Timestamps
	Kinds
	ValueOffsets
	Values
	SeqNums
	NumSections
)

var sectionNames = [NumSections]string{
	RowTrie:      "row-trie",
	Families:     "families",
	Qualifiers:   "qualifiers",
	Timestamps:   "timestamps",
	Kinds:        "kinds",
	ValueOffsets: "value-offsets",
	Values:       "values",
	SeqNums:      "seqnums",
}

// String implements fmt.Stringer.
func (id SectionID) String() string {
	if id < NumSections {
		return sectionNames[id]
	}
	return fmt.Sprintf("section(%d)", uint8(id))
}

// Section locates a region within the block.
type Section struct {
	Offset uint32
	Length uint32
}

// End returns the offset one past the section's last byte.
func (s Section) End() uint64 { return uint64(s.Offset) + uint64(s.Length) }

// Slice returns the section's bytes within block, or nil if the section is
// empty. A non-empty section must have been validated by Parse.
func (s Section) Slice(block []byte) []byte {
	if s.Length == 0 {
		return nil
	}
	return block[s.Offset:s.End():s.End()]
}

// BlockMeta describes the layout of a prefix-tree block: counts, index widths
// and the location of every section.
type BlockMeta struct {
	Version uint8
	Flags   Flags
	// FamilyIndexWidth and QualifierIndexWidth are the number of bytes (0-4)
	// used by each per-cell dictionary index.
	FamilyIndexWidth    uint8
	QualifierIndexWidth uint8
	// NodeOffsetWidth is the number of bytes (1-4) used by each child offset
	// within the row trie.
	NodeOffsetWidth uint8

	NumCells      uint32
	NumRows       uint32
	NumNodes      uint32
	NumFamilies   uint32
	NumQualifiers uint32
	MaxRowLength  uint32
	// NumFlatBytes is the total size of the block's cells in the flat cell
	// format, including sequence numbers if the block carries them.
	NumFlatBytes uint32

	Sections [NumSections]Section
}

// HasSeqNums returns true if the block carries sequence numbers.
func (m *BlockMeta) HasSeqNums() bool { return m.Flags&FlagSeqNums != 0 }

// End returns the offset one past the furthest byte of any section, or Size if
// every section is empty.
func (m *BlockMeta) End() uint64 {
	end := uint64(Size)
	for _, s := range m.Sections {
		end = max(end, s.End())
	}
	return end
}

// AppendTo appends the serialized header to dst.
func (m *BlockMeta) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, Magic)
	dst = append(dst, m.Version, byte(m.Flags), m.FamilyIndexWidth, m.QualifierIndexWidth,
		m.NodeOffsetWidth, 0, 0, 0)
	for _, v := range [...]uint32{
		m.NumCells, m.NumRows, m.NumNodes, m.NumFamilies, m.NumQualifiers, m.MaxRowLength, m.NumFlatBytes,
	} {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	for _, s := range m.Sections {
		dst = binary.LittleEndian.AppendUint32(dst, s.Offset)
		dst = binary.LittleEndian.AppendUint32(dst, s.Length)
	}
	return dst
}

// WriteTo writes the serialized header to w.
func (m *BlockMeta) WriteTo(w io.Writer) (int64, error) {
	var buf [Size]byte
	n, err := w.Write(m.AppendTo(buf[:0]))
	return int64(n), err
}

// Parse decodes the header at the front of block and validates that every
// section lies within block.
func Parse(block []byte) (BlockMeta, error) {
	var m BlockMeta
	if len(block) < Size {
		return m, base.CorruptionErrorf("prefixtree: block of %d bytes is shorter than its %d-byte header",
			errors.Safe(len(block)), errors.Safe(Size))
	}
	if magic := binary.LittleEndian.Uint32(block); magic != Magic {
		return m, base.CorruptionErrorf("prefixtree: bad block magic %#x", errors.Safe(magic))
	}
	m.Version = block[4]
	m.Flags = Flags(block[5])
	m.FamilyIndexWidth = block[6]
	m.QualifierIndexWidth = block[7]
	m.NodeOffsetWidth = block[8]
	if m.Version != Version {
		return m, base.CorruptionErrorf("prefixtree: unknown block version %d", errors.Safe(m.Version))
	}
	if m.Flags&^flagsMask != 0 {
		return m, base.CorruptionErrorf("prefixtree: unknown block flags %#x", errors.Safe(uint8(m.Flags)))
	}
	if m.FamilyIndexWidth > 4 || m.QualifierIndexWidth > 4 || m.NodeOffsetWidth < 1 || m.NodeOffsetWidth > 4 {
		return m, base.CorruptionErrorf("prefixtree: invalid index widths (%d, %d, %d)",
			errors.Safe(m.FamilyIndexWidth), errors.Safe(m.QualifierIndexWidth), errors.Safe(m.NodeOffsetWidth))
	}
	off := 12
	for _, p := range [...]*uint32{
		&m.NumCells, &m.NumRows, &m.NumNodes, &m.NumFamilies, &m.NumQualifiers, &m.MaxRowLength, &m.NumFlatBytes,
	} {
		*p = binary.LittleEndian.Uint32(block[off:])
		off += 4
	}
	for i := range m.Sections {
		s := &m.Sections[i]
		s.Offset = binary.LittleEndian.Uint32(block[off:])
		s.Length = binary.LittleEndian.Uint32(block[off+4:])
		off += 8
		if s.End() > uint64(len(block)) || (s.Length > 0 && s.Offset < uint32(Size)) {
			return m, base.CorruptionErrorf("prefixtree: section %s [%d, %d) outside block of %d bytes",
				errors.Safe(SectionID(i)), errors.Safe(s.Offset), errors.Safe(s.End()), errors.Safe(len(block)))
		}
	}
	if m.HasSeqNums() != (m.Sections[SeqNums].Length > 0) && m.NumCells > 0 {
		return m, base.CorruptionErrorf("prefixtree: seqnum flag disagrees with seqnum section")
	}
	return m, nil
}

// String returns a multi-line human-readable description of the header.
func (m *BlockMeta) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "version=%d seqnums=%t\n", m.Version, m.HasSeqNums())
	fmt.Fprintf(&buf, "cells=%d rows=%d nodes=%d families=%d qualifiers=%d\n",
		m.NumCells, m.NumRows, m.NumNodes, m.NumFamilies, m.NumQualifiers)
	fmt.Fprintf(&buf, "max-row-length=%d flat-bytes=%d\n", m.MaxRowLength, m.NumFlatBytes)
	fmt.Fprintf(&buf, "widths: family=%d qualifier=%d node-offset=%d\n",
		m.FamilyIndexWidth, m.QualifierIndexWidth, m.NodeOffsetWidth)
	for i, s := range m.Sections {
		fmt.Fprintf(&buf, "%-13s [%d, %d)\n", SectionID(i), s.Offset, s.End())
	}
	return buf.String()
}
