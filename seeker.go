// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package prefixtree

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/decode"
	"github.com/cockroachdb/prefixtree/internal/base"
)

// SeekResult describes where SeekToKey positioned a Seeker.
type SeekResult int8

const (
	// SeekBeforeFirst means no cell satisfies the seek; the seeker is
	// positioned at the first cell of the block, if any.
	SeekBeforeFirst SeekResult = -1
	// SeekFound means the seeker is positioned at a cell equal to the key.
	SeekFound SeekResult = 0
	// SeekInexact means the seeker is positioned at the last cell smaller than
	// the key.
	SeekInexact SeekResult = 1
)

func (r SeekResult) String() string {
	switch r {
	case SeekBeforeFirst:
		return "before-first"
	case SeekFound:
		return "found"
	case SeekInexact:
		return "inexact"
	default:
		return fmt.Sprintf("SeekResult(%d)", int8(r))
	}
}

// Seeker reads the cells of one prefix-tree payload at a time through a
// pooled searcher. A Seeker is not safe for concurrent use. Release must be
// called when the seeker is no longer needed.
type Seeker struct {
	codec          *Codec
	cmp            *Comparer
	includesSeqNum bool
	s              *decode.Searcher
	key            []byte
}

// Comparer returns the comparer the seeker was created with.
func (k *Seeker) Comparer() *Comparer { return k.cmp }

// SetCurrentBuffer points the seeker at a new payload and positions it at the
// first cell. The payload must not be modified while the seeker uses it.
func (k *Seeker) SetCurrentBuffer(payload []byte) error {
	k.Release()
	s, err := k.codec.checkOutSearcher(payload)
	if err != nil {
		return err
	}
	if s.HasSeqNums() != k.includesSeqNum {
		k.codec.decoders.CheckIn(s)
		return base.ContractViolationf("prefixtree: block has seqnums=%t, seeker expects seqnums=%t",
			errors.Safe(s.HasSeqNums()), errors.Safe(k.includesSeqNum))
	}
	k.s = s
	k.Rewind()
	return k.err()
}

// Rewind positions the seeker at the first cell, returning false if the block
// is empty.
func (k *Seeker) Rewind() bool {
	if k.s == nil {
		return false
	}
	k.codec.opts.Metrics.seek()
	return k.s.PositionAtFirstCell()
}

// Next advances to the next cell, returning false at the end of the block.
func (k *Seeker) Next() bool {
	if k.s == nil {
		return false
	}
	return k.s.Advance()
}

// SeekToKey positions the seeker at the last cell less than or equal to key,
// or strictly less than key if seekBefore is set.
func (k *Seeker) SeekToKey(key *Cell, seekBefore bool) (SeekResult, error) {
	if k.s == nil {
		return 0, base.ContractViolationf("prefixtree: SeekToKey called without a buffer")
	}
	k.codec.opts.Metrics.seek()
	if !k.s.SeekLE(key) {
		if err := k.err(); err != nil {
			return 0, err
		}
		k.s.PositionAtFirstCell()
		return SeekBeforeFirst, k.err()
	}
	c, err := k.s.Current()
	if err != nil {
		return 0, k.codec.reportCorruption(err)
	}
	if !base.EqualKeys(c, key) {
		return SeekInexact, nil
	}
	if !seekBefore {
		return SeekFound, nil
	}
	if !k.s.Previous() {
		if err := k.err(); err != nil {
			return 0, err
		}
		k.s.PositionAtFirstCell()
		return SeekBeforeFirst, k.err()
	}
	return SeekInexact, nil
}

// Valid returns true if the seeker is positioned at a cell.
func (k *Seeker) Valid() bool {
	return k.s != nil && k.s.State() == decode.Positioned
}

// Cell returns the current cell. Its memory is owned by the seeker until the
// next positioning call.
func (k *Seeker) Cell() (*Cell, error) {
	if k.s == nil {
		return nil, base.ContractViolationf("prefixtree: Cell called without a buffer")
	}
	c, err := k.s.Current()
	if err != nil {
		return nil, k.codec.reportCorruption(err)
	}
	return c, nil
}

// Key returns the key of the current cell in the flat key format, or nil if
// the seeker is not positioned.
func (k *Seeker) Key() []byte {
	if !k.Valid() {
		return nil
	}
	c, err := k.s.Current()
	if err != nil {
		return nil
	}
	k.key = base.AppendFlatKey(k.key[:0], c)
	return k.key
}

// Value returns the value of the current cell, or nil if the seeker is not
// positioned.
func (k *Seeker) Value() []byte {
	if !k.Valid() {
		return nil
	}
	c, err := k.s.Current()
	if err != nil {
		return nil
	}
	return c.Value
}

// Error returns the corruption encountered while positioning, if any.
func (k *Seeker) Error() error {
	if k.s == nil {
		return nil
	}
	return k.s.Error()
}

func (k *Seeker) err() error {
	return k.codec.reportCorruption(k.Error())
}

// Release returns the seeker's searcher to the codec's pool. The seeker may be
// reused with SetCurrentBuffer.
func (k *Seeker) Release() {
	if k.s != nil {
		k.codec.decoders.CheckIn(k.s)
		k.s = nil
	}
}
