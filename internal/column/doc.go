// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package column implements the columnar encodings shared by the prefix-tree
// encoder and decoder: delta-encoded unsigned integer columns, byte-slice
// columns and fixed-width little-endian integers.
//
// Unlike the aligned columnar formats used elsewhere, a prefix-tree block may
// begin at any offset within a framed block, so every decoder here reads
// through bounds-checked byte slices.
package column
