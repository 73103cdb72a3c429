// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bitflip

import (
	"bytes"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	sum := func(b []byte) uint32 { return uint32(xxhash.Sum64(b)) }
	data := []byte("the quick brown fox jumps over the lazy dog")
	want := sum(data)
	orig := bytes.Clone(data)

	data[7] ^= 1 << 5
	corrupt := bytes.Clone(data)
	index, bit, ok := Find(data, sum, want)
	require.True(t, ok)
	require.Equal(t, 7, index)
	require.Equal(t, 5, bit)
	require.Equal(t, corrupt, data)

	// Two flipped bits are not diagnosed.
	data[9] ^= 1
	_, _, ok = Find(data, sum, want)
	require.False(t, ok)
	require.NotEqual(t, orig, data)
}
