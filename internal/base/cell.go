// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// CellKind enumerates the kind of a cell: a put, or one of the deletion
// markers. The numeric values are part of the file format and should not be
// changed.
type CellKind uint8

// These constants are part of the file format, and should not be changed.
const (
	// KindMinimum sorts after every other kind on the same coordinates. It
	// never appears in a block; it exists for constructing seek keys.
	KindMinimum      CellKind = 0
	KindPut          CellKind = 4
	KindDelete       CellKind = 8
	KindDeleteColumn CellKind = 12
	KindDeleteFamily CellKind = 14
	// KindMaximum sorts before every other kind on the same coordinates.
	KindMaximum CellKind = 255
)

const (
	// MaxTimestamp is the newest possible timestamp. Cells with this timestamp
	// sort before all other versions of the same column.
	MaxTimestamp int64 = math.MaxInt64
	// MinTimestamp is the oldest possible timestamp.
	MinTimestamp int64 = math.MinInt64
)

var cellKindNames = map[CellKind]string{
	KindMinimum:      "MIN",
	KindPut:          "PUT",
	KindDelete:       "DEL",
	KindDeleteColumn: "DELCOL",
	KindDeleteFamily: "DELFAM",
	KindMaximum:      "MAX",
}

var cellKindsByName = map[string]CellKind{
	"MIN":    KindMinimum,
	"PUT":    KindPut,
	"DEL":    KindDelete,
	"DELCOL": KindDeleteColumn,
	"DELFAM": KindDeleteFamily,
	"MAX":    KindMaximum,
}

// String implements fmt.Stringer.
func (k CellKind) String() string {
	if s, ok := cellKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN:%d", uint8(k))
}

// SafeFormat implements redact.SafeFormatter.
func (k CellKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// Valid returns true if k is one of the kinds that may be stored in a block.
func (k CellKind) Valid() bool {
	_, ok := cellKindNames[k]
	return ok
}

// ParseKind parses the string representation of a cell kind.
func ParseKind(s string) (CellKind, error) {
	if k, ok := cellKindsByName[s]; ok {
		return k, nil
	}
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		return CellKind(v), nil
	}
	return 0, errors.Newf("unknown cell kind %q", s)
}

// Cell is a single versioned key-value record. The key of a cell is the tuple
// (Row, Family, Qualifier, Timestamp, Kind).
//
// Byte slices held by a Cell returned from a searcher alias the searcher's
// memory and are invalidated by the next positioning call.
type Cell struct {
	Row       []byte
	Family    []byte
	Qualifier []byte
	Timestamp int64
	Kind      CellKind
	Value     []byte
	// SeqNum is only persisted when a block is encoded with sequence numbers.
	SeqNum uint64
}

// FirstOnRow returns the smallest possible cell on the given row.
func FirstOnRow(row []byte) Cell {
	return Cell{Row: row, Timestamp: MaxTimestamp, Kind: KindMaximum}
}

// CompareCells compares the keys of two cells, returning -1, 0 or +1.
func CompareCells(a, b *Cell) int {
	if c := bytes.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	return CompareColumns(a, b)
}

// CompareColumns compares the non-row portion of two cell keys. It is used
// when both cells are known to share a row.
func CompareColumns(a, b *Cell) int {
	if c := bytes.Compare(a.Family, b.Family); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Qualifier, b.Qualifier); c != 0 {
		return c
	}
	// Timestamps and kinds sort descending.
	if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(b.Kind, a.Kind)
}

// EqualKeys returns true if the two cells have identical keys.
func EqualKeys(a, b *Cell) bool {
	return CompareCells(a, b) == 0
}

// Clone returns a deep copy of the cell that does not alias c.
func (c *Cell) Clone() Cell {
	return Cell{
		Row:       bytes.Clone(c.Row),
		Family:    bytes.Clone(c.Family),
		Qualifier: bytes.Clone(c.Qualifier),
		Timestamp: c.Timestamp,
		Kind:      c.Kind,
		Value:     bytes.Clone(c.Value),
		SeqNum:    c.SeqNum,
	}
}

// KeyString returns a human-readable representation of the cell's key.
func (c *Cell) KeyString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s/%s:%s@%d#%s", c.Row, c.Family, c.Qualifier, c.Timestamp, c.Kind)
	if c.SeqNum != 0 {
		fmt.Fprintf(&buf, ",%d", c.SeqNum)
	}
	return buf.String()
}

// String returns a human-readable representation of the cell in the format
// accepted by ParseCell.
func (c Cell) String() string {
	return c.KeyString() + "=" + string(c.Value)
}

// SafeFormat implements redact.SafeFormatter. Row, column and value bytes are
// considered unsafe.
func (c Cell) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s/%s:%s@%d#%s", c.Row, c.Family, c.Qualifier,
		redact.Safe(c.Timestamp), c.Kind)
	if c.SeqNum != 0 {
		w.Printf(",%d", redact.Safe(c.SeqNum))
	}
}

// ParseCell parses the string representation of a cell:
//
//	<row>/<family>:<qualifier>@<timestamp>#<kind>[,<seqnum>][=<value>]
//
// The timestamp may be "max" or "min". It panics if the string is malformed;
// it is intended for tests and tooling. See TryParseCell for a variant that
// returns an error.
func ParseCell(s string) Cell {
	c, err := TryParseCell(s)
	if err != nil {
		panic(err)
	}
	return c
}

// TryParseCell is like ParseCell but returns an error instead of panicking.
func TryParseCell(s string) (Cell, error) {
	var c Cell
	key, value, hasValue := strings.Cut(s, "=")
	if hasValue {
		c.Value = []byte(value)
	}
	hashIdx := strings.LastIndexByte(key, '#')
	atIdx := strings.LastIndexByte(key, '@')
	slashIdx := strings.IndexByte(key, '/')
	if hashIdx < 0 || atIdx < 0 || slashIdx < 0 || !(slashIdx < atIdx && atIdx < hashIdx) {
		return Cell{}, errors.Newf("malformed cell %q", s)
	}
	kindStr, seqStr, hasSeq := strings.Cut(key[hashIdx+1:], ",")
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Cell{}, err
	}
	c.Kind = kind
	if hasSeq {
		if c.SeqNum, err = strconv.ParseUint(seqStr, 10, 64); err != nil {
			return Cell{}, errors.Wrapf(err, "malformed seqnum in %q", s)
		}
	}
	switch tsStr := key[atIdx+1 : hashIdx]; tsStr {
	case "max":
		c.Timestamp = MaxTimestamp
	case "min":
		c.Timestamp = MinTimestamp
	default:
		if c.Timestamp, err = strconv.ParseInt(tsStr, 10, 64); err != nil {
			return Cell{}, errors.Wrapf(err, "malformed timestamp in %q", s)
		}
	}
	c.Row = []byte(key[:slashIdx])
	column := key[slashIdx+1 : atIdx]
	family, qualifier, _ := strings.Cut(column, ":")
	c.Family = []byte(family)
	c.Qualifier = []byte(qualifier)
	return c, nil
}
