// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package decode implements searching and scanning prefix-tree blocks in
// place, without materializing the block's cells.
package decode

import (
	"fmt"

	"github.com/cockroachdb/crlib/crbytes"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/blockmeta"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/column"
	"github.com/cockroachdb/redact"
)

// State describes where a Searcher is positioned.
type State uint8

const (
	// Unpositioned is the state of a freshly initialized searcher, and of a
	// searcher that encountered an error.
	Unpositioned State = iota
	// Positioned means the searcher is positioned at a cell.
	Positioned
	// EndOfBlock means the searcher moved past the last cell.
	EndOfBlock
	// BeforeFirst means the searcher moved before the first cell.
	BeforeFirst
)

var stateNames = [...]string{
	Unpositioned: "unpositioned",
	Positioned:   "positioned",
	EndOfBlock:   "end-of-block",
	BeforeFirst:  "before-first",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// SafeFormat implements redact.SafeFormatter.
func (s State) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// frame is an entry of the searcher's descent stack: a node on the path from
// the root to the current position.
type frame struct {
	node node
	// depth is the length of the row preceding the node's token.
	depth int
	// child is the index of the child that the next frame descends into.
	child int
}

func (f *frame) rowEnd() int { return f.depth + len(f.node.token) }

// Searcher positions within a prefix-tree block and reads cells directly from
// the block's bytes.
//
// Positioning methods return true when the searcher lands on a cell. They
// return false when the searcher moves past either end of the block or when a
// format error is encountered; Error distinguishes the two. Errors are sticky
// until the next Init.
//
// A Searcher is not safe for concurrent use.
type Searcher struct {
	block []byte
	meta  blockmeta.BlockMeta
	trie  trieReader

	families   column.Bytes
	qualifiers column.Bytes
	timestamps column.Uints
	kinds      column.Uints
	values     column.Bytes
	seqNums    column.Uints

	state State
	stack []frame
	// row holds the row bytes of the path from the root through the top frame.
	row []byte
	// cellIdx is the position within the top frame's run of cells.
	cellIdx int
	cell    base.Cell
	// cellValid is true when cell holds the current position's cell.
	cellValid bool
	scratch   base.Cell
	firstRow  []byte
	err       error
}

// Init prepares the searcher to read block, validating the header and the
// section headers. The searcher is left unpositioned. The block must not be
// modified while the searcher is in use.
func (s *Searcher) Init(block []byte) error {
	s.Reset()
	m, err := blockmeta.Parse(block)
	if err != nil {
		return s.initErr(err)
	}
	s.block = block
	s.meta = m
	sec := func(id blockmeta.SectionID) []byte { return m.Sections[id].Slice(block) }
	numCells := int(m.NumCells)

	s.trie = trieReader{
		data:        sec(blockmeta.RowTrie),
		offsetWidth: int(m.NodeOffsetWidth),
		famWidth:    int(m.FamilyIndexWidth),
		qualWidth:   int(m.QualifierIndexWidth),
		numCells:    numCells,
	}
	if numCells > 0 && (m.NumNodes == 0 || len(s.trie.data) == 0 || m.NumFamilies == 0 || m.NumQualifiers == 0) {
		return s.initErr(base.CorruptionErrorf("prefixtree: block of %d cells has an empty trie or dictionary",
			errors.Safe(numCells)))
	}
	if s.families, _, err = column.DecodeBytes(sec(blockmeta.Families), int(m.NumFamilies)); err != nil {
		return s.initErr(errors.Wrap(err, "families"))
	}
	if s.qualifiers, _, err = column.DecodeBytes(sec(blockmeta.Qualifiers), int(m.NumQualifiers)); err != nil {
		return s.initErr(errors.Wrap(err, "qualifiers"))
	}
	if s.timestamps, _, err = column.DecodeUints(sec(blockmeta.Timestamps), numCells); err != nil {
		return s.initErr(errors.Wrap(err, "timestamps"))
	}
	if s.kinds, _, err = column.DecodeUints(sec(blockmeta.Kinds), numCells); err != nil {
		return s.initErr(errors.Wrap(err, "kinds"))
	}
	offsets, _, err := column.DecodeUints(sec(blockmeta.ValueOffsets), numCells+1)
	if err != nil {
		return s.initErr(errors.Wrap(err, "value offsets"))
	}
	if s.values, err = column.MakeBytes(offsets, sec(blockmeta.Values)); err != nil {
		return s.initErr(errors.Wrap(err, "values"))
	}
	if m.HasSeqNums() {
		if s.seqNums, _, err = column.DecodeUints(sec(blockmeta.SeqNums), numCells); err != nil {
			return s.initErr(errors.Wrap(err, "seqnums"))
		}
	}
	return nil
}

func (s *Searcher) initErr(err error) error {
	s.err = base.MarkCorruptionError(err)
	return s.err
}

// Reset releases the searcher's reference to its block, retaining buffers for
// reuse.
func (s *Searcher) Reset() {
	s.block = nil
	s.meta = blockmeta.BlockMeta{}
	s.trie = trieReader{}
	s.families = column.Bytes{}
	s.qualifiers = column.Bytes{}
	s.timestamps = column.Uints{}
	s.kinds = column.Uints{}
	s.values = column.Bytes{}
	s.seqNums = column.Uints{}
	s.state = Unpositioned
	s.stack = s.stack[:0]
	s.row = s.row[:0]
	s.cellIdx = 0
	s.cell = base.Cell{}
	s.cellValid = false
	s.scratch = base.Cell{}
	s.firstRow = s.firstRow[:0]
	s.err = nil
}

// Meta returns the header of the block.
func (s *Searcher) Meta() *blockmeta.BlockMeta { return &s.meta }

// HasSeqNums returns true if the block carries sequence numbers.
func (s *Searcher) HasSeqNums() bool { return s.meta.HasSeqNums() }

// State returns the searcher's position state.
func (s *Searcher) State() State { return s.state }

// Error returns the format error encountered while reading the block, if any.
func (s *Searcher) Error() error { return s.err }

// Index returns the ordinal of the current cell within the block, or -1 if the
// searcher is not positioned.
func (s *Searcher) Index() int {
	if s.state != Positioned {
		return -1
	}
	return s.top().node.firstCell + s.cellIdx
}

// Current returns the cell at the current position. The returned cell and its
// byte slices are owned by the searcher and are only valid until the next
// positioning call. Calling Current on a searcher that is not positioned at a
// cell is a contract violation.
func (s *Searcher) Current() (*base.Cell, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.state != Positioned {
		return nil, base.ContractViolationf("prefixtree: Current called on %s searcher", s.state)
	}
	if !s.cellValid {
		f := s.top()
		c := &s.cell
		if err := s.columnsAt(&f.node, s.cellIdx, c); err != nil {
			s.fail(err)
			return nil, err
		}
		cell := f.node.firstCell + s.cellIdx
		c.Row = s.row
		c.Value = s.values.At(cell)
		c.SeqNum = 0
		if s.meta.HasSeqNums() {
			c.SeqNum = s.seqNums.At(cell)
		}
		s.cellValid = true
	}
	return &s.cell, nil
}

// columnsAt decodes the family, qualifier, timestamp and kind of the i'th cell
// of n into c.
func (s *Searcher) columnsAt(n *node, i int, c *base.Cell) error {
	fi, qi := s.trie.cellIndices(n, i)
	if fi >= uint64(s.families.Len()) || qi >= uint64(s.qualifiers.Len()) {
		return base.CorruptionErrorf("prefixtree: dictionary index (%d, %d) out of range (%d, %d)",
			errors.Safe(fi), errors.Safe(qi), errors.Safe(s.families.Len()), errors.Safe(s.qualifiers.Len()))
	}
	c.Family = s.families.At(int(fi))
	c.Qualifier = s.qualifiers.At(int(qi))
	cell := n.firstCell + i
	c.Timestamp = column.DecodeInt64(s.timestamps.At(cell))
	kind := s.kinds.At(cell)
	if kind > 0xff || !base.CellKind(kind).Valid() {
		return base.CorruptionErrorf("prefixtree: invalid cell kind %d", errors.Safe(kind))
	}
	c.Kind = base.CellKind(kind)
	return nil
}

// FirstRow returns the row of the first cell in the block without positioning
// the searcher or decoding any cell columns. It returns nil for an empty
// block.
func (s *Searcher) FirstRow() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.meta.NumCells == 0 {
		return nil, nil
	}
	n, err := s.trie.read(0)
	buf := s.firstRow[:0]
	for err == nil {
		buf = append(buf, n.token...)
		if n.numCells > 0 {
			s.firstRow = buf
			return buf, nil
		}
		n, err = s.trie.child(&n, 0)
	}
	s.fail(err)
	return nil, err
}

// PositionAtFirstCell positions the searcher at the first cell of the block.
func (s *Searcher) PositionAtFirstCell() bool {
	if !s.pushRoot() {
		if s.err == nil {
			s.setState(EndOfBlock)
		}
		return false
	}
	return s.descendFirst()
}

// PositionAtLastCell positions the searcher at the last cell of the block.
func (s *Searcher) PositionAtLastCell() bool {
	if !s.pushRoot() {
		if s.err == nil {
			s.setState(BeforeFirst)
		}
		return false
	}
	return s.descendLast()
}

// Advance moves to the next cell. An unpositioned searcher, or one before the
// first cell, moves to the first cell.
func (s *Searcher) Advance() bool {
	if s.err != nil {
		return false
	}
	switch s.state {
	case Unpositioned, BeforeFirst:
		return s.PositionAtFirstCell()
	case EndOfBlock:
		return false
	}
	f := s.top()
	if s.cellIdx+1 < f.node.numCells {
		return s.positionAt(s.cellIdx + 1)
	}
	// A node's children follow its own cells.
	if f.node.fanOut() > 0 {
		return s.pushChild(0) && s.descendFirst()
	}
	return s.nextSubtree()
}

// Previous moves to the previous cell. An unpositioned searcher, or one past
// the last cell, moves to the last cell.
func (s *Searcher) Previous() bool {
	if s.err != nil {
		return false
	}
	switch s.state {
	case Unpositioned, EndOfBlock:
		return s.PositionAtLastCell()
	case BeforeFirst:
		return false
	}
	if s.cellIdx > 0 {
		return s.positionAt(s.cellIdx - 1)
	}
	return s.prevSubtree()
}

// SeekGE positions the searcher at the first cell whose key is greater than or
// equal to key. It returns false, with the searcher at EndOfBlock, if every
// cell is smaller than key.
//
// The trie is descended by comparing the key's row against each node's token
// and following the child whose fan byte matches the next row byte. When the
// key's row diverges between two children, the searcher lands on the first
// cell of the larger child.
func (s *Searcher) SeekGE(key *base.Cell) bool {
	if !s.pushRoot() {
		if s.err == nil {
			s.setState(EndOfBlock)
		}
		return false
	}
	rowPos := 0
	for {
		f := s.top()
		tok := f.node.token
		rem := key.Row[rowPos:]
		cp := crbytes.CommonPrefix(rem, tok)
		if cp < len(tok) {
			if cp == len(rem) || rem[cp] < tok[cp] {
				// Every row in the subtree is greater than the key's row.
				return s.descendFirst()
			}
			// Every row in the subtree is smaller than the key's row.
			return s.nextSubtree()
		}
		rowPos += len(tok)
		if rowPos == len(key.Row) {
			if f.node.numCells > 0 {
				i, ok := s.searchCells(&f.node, key)
				if !ok {
					return false
				}
				if i < f.node.numCells {
					return s.positionAt(i)
				}
			}
			if f.node.fanOut() > 0 {
				return s.pushChild(0) && s.descendFirst()
			}
			return s.nextSubtree()
		}
		i, found := f.node.findChild(key.Row[rowPos])
		switch {
		case found:
			if !s.pushChild(i) {
				return false
			}
		case i < f.node.fanOut():
			return s.pushChild(i) && s.descendFirst()
		default:
			return s.nextSubtree()
		}
	}
}

// SeekRowGE positions the searcher at the first cell whose row is greater than
// or equal to row.
func (s *Searcher) SeekRowGE(row []byte) bool {
	key := base.FirstOnRow(row)
	return s.SeekGE(&key)
}

// SeekLE positions the searcher at the last cell whose key is less than or
// equal to key. It returns false, with the searcher at BeforeFirst, if every
// cell is greater than key.
func (s *Searcher) SeekLE(key *base.Cell) bool {
	if !s.SeekGE(key) {
		if s.err != nil {
			return false
		}
		return s.PositionAtLastCell()
	}
	c, err := s.Current()
	if err != nil {
		return false
	}
	if base.CompareCells(c, key) == 0 {
		return true
	}
	return s.Previous()
}

// SeekExact positions the searcher at the cell whose key equals key, returning
// false if there is no such cell. On false the searcher is positioned as
// SeekGE would leave it.
func (s *Searcher) SeekExact(key *base.Cell) bool {
	if !s.SeekGE(key) {
		return false
	}
	c, err := s.Current()
	return err == nil && base.EqualKeys(c, key)
}

// searchCells returns the index of the first cell in n's run whose columns are
// greater than or equal to key's, or n.numCells if there is none.
func (s *Searcher) searchCells(n *node, key *base.Cell) (int, bool) {
	lo, hi := 0, n.numCells
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if err := s.columnsAt(n, m, &s.scratch); err != nil {
			return 0, s.fail(err)
		}
		if base.CompareColumns(&s.scratch, key) < 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo, true
}

func (s *Searcher) top() *frame { return &s.stack[len(s.stack)-1] }

func (s *Searcher) fail(err error) bool {
	s.err = err
	s.setState(Unpositioned)
	return false
}

func (s *Searcher) setState(state State) {
	s.state = state
	s.cellValid = false
}

func (s *Searcher) positionAt(i int) bool {
	s.cellIdx = i
	s.setState(Positioned)
	return true
}

// pushRoot resets the descent stack to the root. It returns false if the block
// is empty or the root cannot be read.
func (s *Searcher) pushRoot() bool {
	if s.err != nil {
		return false
	}
	s.stack = s.stack[:0]
	s.row = s.row[:0]
	if s.meta.NumCells == 0 {
		return false
	}
	n, err := s.trie.read(0)
	if err != nil {
		return s.fail(err)
	}
	s.stack = append(s.stack, frame{node: n})
	s.row = append(s.row, n.token...)
	return true
}

// pushChild descends into the i'th child of the top frame.
func (s *Searcher) pushChild(i int) bool {
	f := s.top()
	c, err := s.trie.child(&f.node, i)
	if err != nil {
		return s.fail(err)
	}
	f.child = i
	depth := f.rowEnd()
	s.row = append(s.row[:depth], c.token...)
	s.stack = append(s.stack, frame{node: c, depth: depth})
	return true
}

func (s *Searcher) popFrame() {
	f := s.top()
	s.row = s.row[:f.depth]
	s.stack = s.stack[:len(s.stack)-1]
}

// descendFirst positions at the first cell of the subtree rooted at the top
// frame.
func (s *Searcher) descendFirst() bool {
	for {
		f := s.top()
		if f.node.numCells > 0 {
			return s.positionAt(0)
		}
		if !s.pushChild(0) {
			return false
		}
	}
}

// descendLast positions at the last cell of the subtree rooted at the top
// frame.
func (s *Searcher) descendLast() bool {
	for {
		f := s.top()
		if n := f.node.fanOut(); n > 0 {
			if !s.pushChild(n - 1) {
				return false
			}
			continue
		}
		return s.positionAt(f.node.numCells - 1)
	}
}

// nextSubtree positions at the first cell following the subtree rooted at the
// top frame.
func (s *Searcher) nextSubtree() bool {
	for {
		s.popFrame()
		if len(s.stack) == 0 {
			s.setState(EndOfBlock)
			return false
		}
		f := s.top()
		if f.child+1 < f.node.fanOut() {
			return s.pushChild(f.child+1) && s.descendFirst()
		}
	}
}

// prevSubtree positions at the last cell preceding the subtree rooted at the
// top frame.
func (s *Searcher) prevSubtree() bool {
	for {
		s.popFrame()
		if len(s.stack) == 0 {
			s.setState(BeforeFirst)
			return false
		}
		f := s.top()
		if f.child > 0 {
			return s.pushChild(f.child-1) && s.descendLast()
		}
		// A node's own cells precede its children.
		if f.node.numCells > 0 {
			return s.positionAt(f.node.numCells - 1)
		}
	}
}
