// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encode

import (
	"bytes"
	"slices"

	"github.com/cockroachdb/prefixtree/internal/column"
	"github.com/cockroachdb/swiss"
)

// dictionary assigns ids to the distinct values of a column (families or
// qualifiers). Ids are provisional, in order of first appearance, until
// finish sorts the values and produces a remapping to sorted order.
type dictionary struct {
	ids swiss.Map[string, uint32]
	// ends[id] is the end offset within arena of the value with the
	// provisional id.
	ends  []int
	arena []byte
	// last caches the most recent lookup; consecutive cells usually share a
	// family and often a qualifier.
	last struct {
		value []byte
		id    uint32
		ok    bool
	}
	// remap[provisional id] = sorted id, populated by finish.
	remap []uint32
	col   column.BytesBuilder
}

func (d *dictionary) init() {
	d.ids.Init(16)
	d.reset()
}

func (d *dictionary) reset() {
	if d.ids.Len() > 0 {
		d.ids.Init(16)
	}
	d.ends = d.ends[:0]
	d.arena = d.arena[:0]
	d.last.ok = false
	d.remap = d.remap[:0]
	d.col.Reset()
}

// add returns the provisional id of v, assigning one if v is new.
func (d *dictionary) add(v []byte) uint32 {
	if d.last.ok && bytes.Equal(d.last.value, v) {
		return d.last.id
	}
	id, ok := d.ids.Get(string(v))
	if !ok {
		id = uint32(len(d.ends))
		d.arena = append(d.arena, v...)
		d.ends = append(d.ends, len(d.arena))
		d.ids.Put(string(v), id)
	}
	d.last.value = append(d.last.value[:0], v...)
	d.last.id = id
	d.last.ok = true
	return id
}

// len returns the number of distinct values.
func (d *dictionary) len() int { return len(d.ends) }

func (d *dictionary) value(id uint32) []byte {
	start := 0
	if id > 0 {
		start = d.ends[id-1]
	}
	return d.arena[start:d.ends[id]]
}

// finish sorts the values, populates remap and builds the encoded column.
func (d *dictionary) finish() {
	order := make([]uint32, len(d.ends))
	for i := range order {
		order[i] = uint32(i)
	}
	slices.SortFunc(order, func(a, b uint32) int {
		return bytes.Compare(d.value(a), d.value(b))
	})
	d.remap = slices.Grow(d.remap[:0], len(order))[:len(order)]
	d.col.Reset()
	for sorted, provisional := range order {
		d.remap[provisional] = uint32(sorted)
		d.col.Put(d.value(provisional))
	}
}

// indexWidth returns the number of bytes needed for each per-cell index.
func (d *dictionary) indexWidth() int {
	if len(d.ends) <= 1 {
		return 0
	}
	return column.WidthFor(uint32(len(d.ends) - 1))
}
