// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "bytes"

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b.
type Compare func(a, b *Cell) int

// ComparerKind distinguishes the ordering families a Comparer belongs to.
// Prefix-tree blocks can only be searched with a plain key comparer.
type ComparerKind uint8

const (
	// ComparerKindKey orders cells bytewise by row; see CompareCells.
	ComparerKindKey ComparerKind = iota
	// ComparerKindMeta orders catalog rows of the form
	// <table>,<startkey>,<id> component-wise.
	ComparerKindMeta
	// ComparerKindRoot orders rows of the catalog's own catalog.
	ComparerKindRoot
)

// Comparer defines a total ordering over cells.
type Comparer struct {
	// Name is the name of the comparer.
	Name    string
	Kind    ComparerKind
	Compare Compare
}

// DefaultComparer orders cells with CompareCells.
var DefaultComparer = &Comparer{
	Name:    "prefixtree.CellComparator",
	Kind:    ComparerKindKey,
	Compare: CompareCells,
}

// MetaComparer orders catalog cells. Rows are split at the first comma and the
// table name component is compared before the remainder.
var MetaComparer = &Comparer{
	Name: "prefixtree.MetaCellComparator",
	Kind: ComparerKindMeta,
	Compare: func(a, b *Cell) int {
		if c := compareMetaRows(a.Row, b.Row); c != 0 {
			return c
		}
		return CompareColumns(a, b)
	},
}

// RootComparer orders cells of the catalog's catalog. Each row embeds a
// catalog row after the first comma.
var RootComparer = &Comparer{
	Name: "prefixtree.RootCellComparator",
	Kind: ComparerKindRoot,
	Compare: func(a, b *Cell) int {
		at, arest, _ := bytes.Cut(a.Row, []byte{','})
		bt, brest, _ := bytes.Cut(b.Row, []byte{','})
		if c := bytes.Compare(at, bt); c != 0 {
			return c
		}
		if c := compareMetaRows(arest, brest); c != 0 {
			return c
		}
		return CompareColumns(a, b)
	},
}

func compareMetaRows(a, b []byte) int {
	at, arest, _ := bytes.Cut(a, []byte{','})
	bt, brest, _ := bytes.Cut(b, []byte{','})
	if c := bytes.Compare(at, bt); c != 0 {
		return c
	}
	return bytes.Compare(arest, brest)
}
