// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlatCellFormat(t *testing.T) {
	c := ParseCell("ab/f:q@258#PUT,300=v")
	b := AppendFlatCell(nil, &c, true)
	require.Equal(t, []byte{
		0, 0, 0, 16, // key length
		0, 0, 0, 1, // value length
		0, 2, 'a', 'b', // row
		1, 'f', // family
		'q',                         // qualifier
		0, 0, 0, 0, 0, 0, 0x01, 0x02, // timestamp
		4,       // kind
		'v',     // value
		0xac, 2, // seqnum
	}, b)
	require.Equal(t, len(b), FlatLen(&c, true))

	got, rest, err := DecodeFlatCell(b, true)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, c.String(), got.String())
}

func TestFlatCellSequence(t *testing.T) {
	cells := []Cell{
		ParseCell("a/:@1#PUT="),
		ParseCell("a/f:@1#DEL=x"),
		ParseCell("b/f:qualifier@-5#DELFAM=yyy"),
	}
	for _, withSeq := range []bool{false, true} {
		var buf []byte
		for i := range cells {
			buf = AppendFlatCell(buf, &cells[i], withSeq)
		}
		var decoded []Cell
		for len(buf) > 0 {
			c, rest, err := DecodeFlatCell(buf, withSeq)
			require.NoError(t, err)
			decoded = append(decoded, c)
			buf = rest
		}
		require.Len(t, decoded, len(cells))
		for i := range cells {
			require.True(t, EqualKeys(&cells[i], &decoded[i]))
			require.True(t, bytes.Equal(cells[i].Value, decoded[i].Value))
		}
	}
}

func TestFlatCellCorruption(t *testing.T) {
	c := ParseCell("row/fam:q@1#PUT=value")
	b := AppendFlatCell(nil, &c, false)
	for i := 0; i < len(b); i++ {
		_, _, err := DecodeFlatCell(b[:i], false)
		require.Error(t, err)
		require.True(t, IsCorruptionError(err))
	}
	// Row length pointing past the key.
	bad := bytes.Clone(b)
	bad[8], bad[9] = 0xff, 0xff
	_, _, err := DecodeFlatCell(bad, false)
	require.True(t, IsCorruptionError(err))
}

func TestValidateCellSize(t *testing.T) {
	c := Cell{Row: make([]byte, MaxRowLength+1)}
	require.Error(t, ValidateCellSize(&c))
	c = Cell{Row: []byte("r"), Family: make([]byte, MaxFamilyLength+1)}
	require.Error(t, ValidateCellSize(&c))
	c = Cell{Row: make([]byte, MaxRowLength), Family: make([]byte, MaxFamilyLength)}
	require.NoError(t, ValidateCellSize(&c))
}
