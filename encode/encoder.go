// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package encode implements the prefix-tree block encoder.
//
// An Encoder accepts cells in sorted order and, on Flush, writes a single block
// consisting of a blockmeta.BlockMeta header followed by:
//
//   - the row trie: one node per distinct row prefix at which two rows
//     diverge, serialized in pre-order. Each node holds its token (the bytes it
//     adds to its parent's row), the first byte of each child's token, the
//     offset of each child and the run of cells whose row ends at the node.
//     Every cell in the run carries its family and qualifier dictionary index.
//   - the family and qualifier dictionaries, sorted so that index order is byte
//     order.
//   - timestamp, kind, value offset and (optionally) sequence number columns,
//     indexed by cell number, and the concatenated value data.
//
// Node layout:
//
//	uvarint tokenLen | token | uvarint fanOut | fanOut first bytes |
//	fanOut child offsets (NodeOffsetWidth bytes each) | uvarint numCells |
//	[uvarint firstCell | numCells x (family index, qualifier index)]
package encode

import (
	"bytes"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/blockmeta"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/column"
	"github.com/cockroachdb/prefixtree/internal/invariants"
)

// DefaultRetainBufferLimit is the largest block buffer an Encoder keeps across
// Reset when Options.RetainBufferLimit is zero.
const DefaultRetainBufferLimit = 1 << 20

// Options configures an Encoder.
type Options struct {
	// IncludeSeqNum persists each cell's sequence number.
	IncludeSeqNum bool
	// RetainBufferLimit bounds the capacity of buffers retained across Reset.
	RetainBufferLimit int
}

// Encoder builds a single prefix-tree block from a sorted run of cells.
//
// An Encoder is not safe for concurrent use. After an error is returned from
// Write or Flush the encoder is poisoned and every later call returns the same
// error until Reset.
type Encoder struct {
	w    io.Writer
	opts Options

	trie       rowTrie
	families   dictionary
	qualifiers dictionary
	// famIDs and qualIDs hold each cell's provisional dictionary ids.
	famIDs     []uint32
	qualIDs    []uint32
	timestamps column.UintBuilder
	kinds      column.UintBuilder
	values     column.BytesBuilder
	seqNums    column.UintBuilder

	numCells  int
	flatBytes int
	// last holds the columns of the previous cell, for ordering checks in
	// invariants builds.
	last base.Cell

	flushed bool
	err     error

	buf     []byte
	order   []int32
	offsets []int
}

// New returns a new Encoder writing to w.
func New(w io.Writer, opts Options) *Encoder {
	e := &Encoder{}
	e.families.init()
	e.qualifiers.init()
	e.Reset()
	e.Init(w, opts)
	return e
}

// Init prepares a reset Encoder to build a block that will be written to w.
func (e *Encoder) Init(w io.Writer, opts Options) {
	if opts.RetainBufferLimit == 0 {
		opts.RetainBufferLimit = DefaultRetainBufferLimit
	}
	e.w = w
	e.opts = opts
}

// Reset clears all per-block state, retaining buffers for reuse.
func (e *Encoder) Reset() {
	e.w = nil
	e.trie.reset()
	e.families.reset()
	e.qualifiers.reset()
	e.famIDs = e.famIDs[:0]
	e.qualIDs = e.qualIDs[:0]
	e.timestamps.Reset()
	e.kinds.Reset()
	e.values.Reset()
	e.seqNums.Reset()
	e.numCells = 0
	e.flatBytes = 0
	e.last = base.Cell{Family: e.last.Family[:0], Qualifier: e.last.Qualifier[:0]}
	e.flushed = false
	e.err = nil
	if cap(e.buf) > e.opts.RetainBufferLimit {
		e.buf = nil
	}
	e.buf = e.buf[:0]
}

// NumCells returns the number of cells written since the last Reset.
func (e *Encoder) NumCells() int { return e.numCells }

// NumRows returns the number of distinct rows written since the last Reset.
func (e *Encoder) NumRows() int { return e.trie.numRows }

// UnencodedSize returns the size of the written cells in the flat cell format.
func (e *Encoder) UnencodedSize() int { return e.flatBytes }

// Write adds a cell to the block. Cells must be written in ascending order and
// their memory may be reused by the caller once Write returns.
func (e *Encoder) Write(c *base.Cell) error {
	if e.err != nil {
		return e.err
	}
	if e.flushed {
		return e.poison(base.ContractViolationf("prefixtree: Write called after Flush"))
	}
	if err := base.ValidateCellSize(c); err != nil {
		return e.poison(errors.Mark(err, base.ErrContractViolation))
	}
	if !c.Kind.Valid() {
		return e.poison(base.ContractViolationf("prefixtree: invalid cell kind %d", errors.Safe(uint8(c.Kind))))
	}
	if invariants.Enabled && e.numCells > 0 && bytes.Equal(e.trie.lastRow, c.Row) {
		if base.CompareColumns(&e.last, c) >= 0 {
			return e.poison(base.ContractViolationf("prefixtree: cell %s written after %s",
				c.KeyString(), e.last.KeyString()))
		}
	}
	if err := e.trie.addCell(c.Row, e.numCells); err != nil {
		return e.poison(err)
	}
	e.famIDs = append(e.famIDs, e.families.add(c.Family))
	e.qualIDs = append(e.qualIDs, e.qualifiers.add(c.Qualifier))
	e.timestamps.Append(column.EncodeInt64(c.Timestamp))
	e.kinds.Append(uint64(c.Kind))
	e.values.Put(c.Value)
	if e.opts.IncludeSeqNum {
		e.seqNums.Append(c.SeqNum)
	}
	e.numCells++
	e.flatBytes += base.FlatLen(c, e.opts.IncludeSeqNum)
	if invariants.Enabled {
		e.last.Row = e.trie.lastRow
		e.last.Family = append(e.last.Family[:0], c.Family...)
		e.last.Qualifier = append(e.last.Qualifier[:0], c.Qualifier...)
		e.last.Timestamp = c.Timestamp
		e.last.Kind = c.Kind
	}
	return nil
}

func (e *Encoder) poison(err error) error {
	e.err = err
	return err
}

// Flush serializes the block and writes it to the encoder's writer. It returns
// the block's header. Flush may only be called once per block.
func (e *Encoder) Flush() (blockmeta.BlockMeta, error) {
	var m blockmeta.BlockMeta
	if e.err != nil {
		return m, e.err
	}
	if e.flushed {
		return m, e.poison(base.ContractViolationf("prefixtree: Flush called twice"))
	}
	e.flushed = true

	e.families.finish()
	e.qualifiers.finish()
	famWidth := e.families.indexWidth()
	qualWidth := e.qualifiers.indexWidth()

	e.order = e.trie.preorder(e.order[:0])
	var nodeWidth, trieSize int
	e.offsets, nodeWidth, trieSize = e.trie.layout(e.order, e.offsets, famWidth+qualWidth)

	m = blockmeta.BlockMeta{
		Version:             blockmeta.Version,
		FamilyIndexWidth:    uint8(famWidth),
		QualifierIndexWidth: uint8(qualWidth),
		NodeOffsetWidth:     uint8(nodeWidth),
		NumCells:            uint32(e.numCells),
		NumRows:             uint32(e.trie.numRows),
		NumNodes:            uint32(len(e.trie.nodes)),
		NumFamilies:         uint32(e.families.len()),
		NumQualifiers:       uint32(e.qualifiers.len()),
		MaxRowLength:        uint32(e.trie.maxRow),
		NumFlatBytes:        uint32(e.flatBytes),
	}
	if e.opts.IncludeSeqNum {
		m.Flags |= blockmeta.FlagSeqNums
	}

	buf := append(e.buf[:0], make([]byte, blockmeta.Size)...)
	section := func(id blockmeta.SectionID, start int) {
		m.Sections[id] = blockmeta.Section{Offset: uint32(start), Length: uint32(len(buf) - start)}
	}

	start := len(buf)
	famRemap, qualRemap := e.families.remap, e.qualifiers.remap
	buf = e.trie.serialize(buf, e.order, e.offsets, nodeWidth, func(dst []byte, cell int) []byte {
		dst = column.AppendUint(dst, uint64(famRemap[e.famIDs[cell]]), famWidth)
		return column.AppendUint(dst, uint64(qualRemap[e.qualIDs[cell]]), qualWidth)
	})
	if invariants.Enabled && len(buf)-start != trieSize {
		panic(errors.AssertionFailedf("prefixtree: row trie serialized to %d bytes, expected %d",
			len(buf)-start, trieSize))
	}
	section(blockmeta.RowTrie, start)

	start = len(buf)
	buf = e.families.col.Finish(buf)
	section(blockmeta.Families, start)

	start = len(buf)
	buf = e.qualifiers.col.Finish(buf)
	section(blockmeta.Qualifiers, start)

	start = len(buf)
	buf = e.timestamps.Finish(buf)
	section(blockmeta.Timestamps, start)

	start = len(buf)
	buf = e.kinds.Finish(buf)
	section(blockmeta.Kinds, start)

	start = len(buf)
	buf = e.values.FinishOffsets(buf)
	section(blockmeta.ValueOffsets, start)

	start = len(buf)
	buf = e.values.FinishData(buf)
	section(blockmeta.Values, start)

	if e.opts.IncludeSeqNum {
		start = len(buf)
		buf = e.seqNums.Finish(buf)
		section(blockmeta.SeqNums, start)
	}
	e.buf = buf

	if uint64(len(buf)) > math.MaxUint32 {
		return m, e.poison(errors.Newf("prefixtree: block of %d bytes is too large", errors.Safe(len(buf))))
	}
	_ = m.AppendTo(buf[:0])
	if _, err := e.w.Write(buf); err != nil {
		return m, e.poison(err)
	}
	return m, nil
}
