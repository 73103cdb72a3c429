// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package decode

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/column"
)

// node is a parsed view of a serialized row trie node. All slices alias the
// block.
type node struct {
	offset int
	token  []byte
	// fan holds the first byte of each child's token, ascending.
	fan          []byte
	childOffsets []byte
	firstCell    int
	numCells     int
	// indices holds numCells (family index, qualifier index) pairs.
	indices []byte
}

func (n *node) fanOut() int { return len(n.fan) }

// findChild returns the index of the child whose token begins with b, or the
// index of the first child whose token begins with a byte greater than b
// (possibly fanOut) and false.
func (n *node) findChild(b byte) (int, bool) {
	i, found := 0, false
	// Linear scan for small fan-outs.
	if len(n.fan) > 16 {
		i, found = searchBytes(n.fan, b)
	} else {
		for i < len(n.fan) && n.fan[i] < b {
			i++
		}
		found = i < len(n.fan) && n.fan[i] == b
	}
	return i, found
}

func searchBytes(fan []byte, b byte) (int, bool) {
	lo, hi := 0, len(fan)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if fan[m] < b {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo, lo < len(fan) && fan[lo] == b
}

// trieReader parses nodes out of the row trie section.
type trieReader struct {
	data        []byte
	offsetWidth int
	famWidth    int
	qualWidth   int
	numCells    int
}

// read parses the node at the given offset.
func (r *trieReader) read(off int) (node, error) {
	n := node{offset: off}
	if off < 0 || off >= len(r.data) {
		return n, base.CorruptionErrorf("prefixtree: row trie node offset %d outside trie of %d bytes",
			errors.Safe(off), errors.Safe(len(r.data)))
	}
	p := off
	uvarint := func(what string) (int, error) {
		v, k := binary.Uvarint(r.data[p:])
		if k <= 0 || v > math.MaxInt32 {
			return 0, base.CorruptionErrorf("prefixtree: malformed %s in row trie node at %d",
				errors.Safe(what), errors.Safe(off))
		}
		p += k
		return int(v), nil
	}
	slice := func(size int, what string) ([]byte, error) {
		if size < 0 || size > len(r.data)-p {
			return nil, base.CorruptionErrorf("prefixtree: %s of row trie node at %d overflows trie",
				errors.Safe(what), errors.Safe(off))
		}
		b := r.data[p : p+size : p+size]
		p += size
		return b, nil
	}

	tokenLen, err := uvarint("token length")
	if err != nil {
		return n, err
	}
	if n.token, err = slice(tokenLen, "token"); err != nil {
		return n, err
	}
	fanOut, err := uvarint("fan-out")
	if err != nil {
		return n, err
	}
	if n.fan, err = slice(fanOut, "fan"); err != nil {
		return n, err
	}
	if n.childOffsets, err = slice(fanOut*r.offsetWidth, "child offsets"); err != nil {
		return n, err
	}
	if n.numCells, err = uvarint("cell count"); err != nil {
		return n, err
	}
	if n.numCells > 0 {
		if n.firstCell, err = uvarint("first cell"); err != nil {
			return n, err
		}
		if n.firstCell < 0 || n.numCells > r.numCells || n.firstCell > r.numCells-n.numCells {
			return n, base.CorruptionErrorf("prefixtree: row trie node at %d holds cells [%d, %d) of %d",
				errors.Safe(off), errors.Safe(n.firstCell), errors.Safe(n.firstCell+n.numCells), errors.Safe(r.numCells))
		}
		if n.indices, err = slice(n.numCells*(r.famWidth+r.qualWidth), "cell indices"); err != nil {
			return n, err
		}
	} else if fanOut == 0 {
		return n, base.CorruptionErrorf("prefixtree: row trie node at %d has neither cells nor children",
			errors.Safe(off))
	}
	return n, nil
}

// child parses the i'th child of n, validating that it follows n and that its
// token agrees with n's fan.
func (r *trieReader) child(n *node, i int) (node, error) {
	off := int(column.ReadUint(n.childOffsets[i*r.offsetWidth:], r.offsetWidth))
	if off <= n.offset {
		return node{}, base.CorruptionErrorf("prefixtree: row trie child offset %d does not follow parent at %d",
			errors.Safe(off), errors.Safe(n.offset))
	}
	c, err := r.read(off)
	if err != nil {
		return c, err
	}
	if len(c.token) == 0 || c.token[0] != n.fan[i] {
		return c, base.CorruptionErrorf("prefixtree: row trie child at %d disagrees with parent fan byte %#x",
			errors.Safe(off), errors.Safe(n.fan[i]))
	}
	return c, nil
}

// cellIndices returns the dictionary indices of the i'th cell in n's run.
func (r *trieReader) cellIndices(n *node, i int) (fam, qual uint64) {
	w := r.famWidth + r.qualWidth
	b := n.indices[i*w:]
	return column.ReadUint(b, r.famWidth), column.ReadUint(b[r.famWidth:], r.qualWidth)
}
