// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package prefixtree provides a prefix-tree data block encoding for sorted
// runs of cells.
//
// A block is built by an encode.Encoder, which factors shared row prefixes into
// a trie and repeated families, qualifiers and timestamps into dictionaries
// and columns, and is read in place by a decode.Searcher. The Codec in this
// package wraps both with instance pools, physical block framing
// (compression and checksums), metrics and the flat cell format used at the
// engine boundary:
//
//	codec := prefixtree.NewCodec(nil)
//	ctx, _ := codec.NewEncodingContext(compression.ZstdLevel3, prefixtree.EncodingPrefixTree, header)
//	physical, _ := codec.Encode(cells, false, ctx)
//
// Physical blocks are decoded with a DecodingContext and read with a Seeker.
package prefixtree

import "github.com/cockroachdb/prefixtree/internal/base"

// Cell exports the base.Cell type.
type Cell = base.Cell

// CellKind exports the base.CellKind type.
type CellKind = base.CellKind

// These constants are part of the file format, and should not be changed.
const (
	KindMinimum      = base.KindMinimum
	KindPut          = base.KindPut
	KindDelete       = base.KindDelete
	KindDeleteColumn = base.KindDeleteColumn
	KindDeleteFamily = base.KindDeleteFamily
	KindMaximum      = base.KindMaximum
)

// Comparer exports the base.Comparer type.
type Comparer = base.Comparer

// DefaultComparer exports the base.DefaultComparer variable.
var DefaultComparer = base.DefaultComparer

// MetaComparer exports the base.MetaComparer variable.
var MetaComparer = base.MetaComparer

// RootComparer exports the base.RootComparer variable.
var RootComparer = base.RootComparer

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger variable.
var DefaultLogger = base.DefaultLogger

// NoopLogger exports the base.NoopLogger type.
type NoopLogger = base.NoopLogger

// ParseCell exports the base.ParseCell function.
var ParseCell = base.ParseCell

// FirstOnRow exports the base.FirstOnRow function.
var FirstOnRow = base.FirstOnRow

// ErrCorruption is a marker to indicate that data in a block is corrupted.
var ErrCorruption = base.ErrCorruption

// ErrContractViolation is a marker to indicate that a caller broke the API
// contract of the codec.
var ErrContractViolation = base.ErrContractViolation

// ErrConfiguration is a marker to indicate an unsupported encoding, comparer
// or option.
var ErrConfiguration = base.ErrConfiguration

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return base.IsCorruptionError(err)
}
