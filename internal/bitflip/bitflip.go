// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bitflip diagnoses checksum mismatches caused by a single flipped
// bit.
package bitflip

// ScanLimit is the number of leading bytes of a block that Find examines.
const ScanLimit = 40 << 10

// Find flips each bit of the first ScanLimit bytes of data in turn and reports
// the first position at which data's checksum matches want. data is restored
// before Find returns.
func Find(data []byte, checksum func([]byte) uint32, want uint32) (index, bit int, ok bool) {
	for i := 0; i < min(len(data), ScanLimit); i++ {
		for b := 0; b < 8; b++ {
			data[i] ^= 1 << b
			match := checksum(data) == want
			data[i] ^= 1 << b
			if match {
				return i, b, true
			}
		}
	}
	return 0, 0, false
}
