// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encode

import (
	"encoding/binary"

	"github.com/cockroachdb/crlib/crbytes"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/column"
)

// trieNode is a node of the row trie under construction. Nodes live in
// rowTrie.nodes and refer to each other by index.
//
// The token of a node is rows[rowStart+depth : rowStart+depth+tokenLen] where
// rowStart is the arena offset of any row that passes through the node. The
// full row of a node is the concatenation of the tokens on the path from the
// root.
type trieNode struct {
	rowStart int
	depth    int
	tokenLen int
	children []int32
	// firstCell and numCells describe the run of cells whose row ends at this
	// node. Cells are numbered in write order, which is also the order of a
	// pre-order traversal of the trie.
	firstCell int
	numCells  int
}

func (n *trieNode) end() int { return n.depth + n.tokenLen }

// rowTrie builds a prefix trie over a sorted sequence of rows. Nodes are split
// only where two rows diverge, and a node's children are kept in ascending
// order simply by appending, because rows arrive sorted.
type rowTrie struct {
	nodes []trieNode
	// rows is an arena holding every distinct row.
	rows []byte
	// path holds the node indices from the root to the terminal node of the
	// most recently inserted row.
	path    []int32
	lastRow []byte
	numRows int
	maxRow  int
	// stack is scratch space for preorder.
	stack []int32
}

func (t *rowTrie) reset() {
	for i := range t.nodes {
		t.nodes[i].children = nil
	}
	t.nodes = t.nodes[:0]
	t.rows = t.rows[:0]
	t.path = t.path[:0]
	t.lastRow = nil
	t.numRows = 0
	t.maxRow = 0
}

func (t *rowTrie) token(n *trieNode) []byte {
	start := n.rowStart + n.depth
	return t.rows[start : start+n.tokenLen]
}

func (t *rowTrie) newNode(n trieNode) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

// addCell records that cell number cell has the given row, which must sort at
// or after the previously added row.
func (t *rowTrie) addCell(row []byte, cell int) error {
	if len(t.nodes) == 0 {
		t.addRow(row)
		t.path = append(t.path, t.newNode(trieNode{rowStart: 0, tokenLen: len(row), firstCell: cell, numCells: 1}))
		return nil
	}
	c := crbytes.CommonPrefix(t.lastRow, row)
	if c == len(row) && c == len(t.lastRow) {
		// Same row as the previous cell: extend the terminal node's run.
		t.nodes[t.path[len(t.path)-1]].numCells++
		return nil
	}
	if c == len(row) || (c < len(t.lastRow) && row[c] < t.lastRow[c]) {
		return base.ContractViolationf("prefixtree: row %q written after row %q", row, t.lastRow)
	}

	rowStart := t.addRow(row)
	leaf := trieNode{rowStart: rowStart, depth: c, tokenLen: len(row) - c, firstCell: cell, numCells: 1}

	// Find the first node on the path whose token extends past the point of
	// divergence.
	for i, idx := range t.path {
		n := &t.nodes[idx]
		if c >= n.end() {
			continue
		}
		if c == n.depth && i > 0 {
			// The rows diverge exactly at the start of n: the new row is a new
			// sibling of n.
			return t.appendChild(i-1, leaf)
		}
		// Split n at c. The suffix keeps n's children and cells; n becomes the
		// shared prefix.
		suffix := trieNode{
			rowStart:  n.rowStart,
			depth:     c,
			tokenLen:  n.end() - c,
			children:  n.children,
			firstCell: n.firstCell,
			numCells:  n.numCells,
		}
		n.tokenLen = c - n.depth
		n.children = nil
		n.numCells = 0
		suffixIdx := t.newNode(suffix)
		n = &t.nodes[idx]
		n.children = append(n.children, suffixIdx)
		return t.appendChild(i, leaf)
	}
	// The previous row is a prefix of the new row.
	return t.appendChild(len(t.path)-1, leaf)
}

// appendChild appends leaf as the last child of path[i] and makes the leaf the
// end of the path.
func (t *rowTrie) appendChild(i int, leaf trieNode) error {
	parent := t.path[i]
	leafIdx := t.newNode(leaf)
	t.nodes[parent].children = append(t.nodes[parent].children, leafIdx)
	t.path = append(t.path[:i+1], leafIdx)
	return nil
}

func (t *rowTrie) addRow(row []byte) int {
	start := len(t.rows)
	t.rows = append(t.rows, row...)
	t.lastRow = t.rows[start:len(t.rows):len(t.rows)]
	t.numRows++
	t.maxRow = max(t.maxRow, len(row))
	return start
}

// preorder returns the node indices in pre-order, which visits rows (and so
// cells) in ascending order.
func (t *rowTrie) preorder(dst []int32) []int32 {
	if len(t.nodes) == 0 {
		return dst
	}
	stack := t.stack[:0]
	stack = append(stack, 0)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dst = append(dst, idx)
		children := t.nodes[idx].children
		for j := len(children) - 1; j >= 0; j-- {
			stack = append(stack, children[j])
		}
	}
	t.stack = stack
	return dst
}

// nodeSize returns the serialized size of the node given the widths of child
// offsets and per-cell dictionary indices.
func (t *rowTrie) nodeSize(n *trieNode, offsetWidth, indexWidth int) int {
	size := uvarintLen(uint64(n.tokenLen)) + n.tokenLen
	fanOut := len(n.children)
	size += uvarintLen(uint64(fanOut)) + fanOut*(1+offsetWidth)
	size += uvarintLen(uint64(n.numCells))
	if n.numCells > 0 {
		size += uvarintLen(uint64(n.firstCell)) + n.numCells*indexWidth
	}
	return size
}

// layout assigns each node an offset within the serialized trie, choosing the
// narrowest child offset width that can address every node. It returns the
// offsets (indexed by node), the offset width and the total size.
func (t *rowTrie) layout(order []int32, offsets []int, indexWidth int) ([]int, int, int) {
	offsets = append(offsets[:0], make([]int, len(t.nodes))...)
	for w := 1; w <= column.MaxWidth; w++ {
		total := 0
		for _, idx := range order {
			offsets[idx] = total
			total += t.nodeSize(&t.nodes[idx], w, indexWidth)
		}
		if len(order) == 0 || uint64(offsets[order[len(order)-1]]) < 1<<(8*w) {
			return offsets, w, total
		}
	}
	panic(errors.AssertionFailedf("prefixtree: row trie too large to address"))
}

// cellIndexer writes the dictionary indices of a cell.
type cellIndexer func(dst []byte, cell int) []byte

// serialize appends the trie to dst, given a pre-order traversal and the
// layout produced by layout.
func (t *rowTrie) serialize(
	dst []byte, order []int32, offsets []int, offsetWidth int, indices cellIndexer,
) []byte {
	for _, idx := range order {
		n := &t.nodes[idx]
		dst = binary.AppendUvarint(dst, uint64(n.tokenLen))
		dst = append(dst, t.token(n)...)
		dst = binary.AppendUvarint(dst, uint64(len(n.children)))
		for _, c := range n.children {
			dst = append(dst, t.token(&t.nodes[c])[0])
		}
		for _, c := range n.children {
			dst = column.AppendUint(dst, uint64(offsets[c]), offsetWidth)
		}
		dst = binary.AppendUvarint(dst, uint64(n.numCells))
		if n.numCells > 0 {
			dst = binary.AppendUvarint(dst, uint64(n.firstCell))
			for i := 0; i < n.numCells; i++ {
				dst = indices(dst, n.firstCell+i)
			}
		}
	}
	return dst
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
