// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across the prefix-tree codec,
// including cells, cell ordering, comparers, the flat cell wire format, error
// markers and the logger interface.
//
// # Cell ordering
//
// Cells are ordered by row, family and qualifier (bytewise ascending), then by
// timestamp (descending, so newer versions sort first) and finally by kind
// (descending by code, so KindMaximum sorts before every real kind and
// KindMinimum after). Sequence numbers and values never participate in the
// ordering.
//
// FirstOnRow constructs the smallest possible cell on a row. It is the key
// used by row-oriented seeks.
package base
