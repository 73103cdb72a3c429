// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package column

import (
	"testing"

	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	var b BytesBuilder
	b.Reset()
	require.Equal(t, 0, b.Len())
	slices := []string{"apple", "", "banana", "c"}
	for _, s := range slices {
		b.Put([]byte(s))
	}
	require.Equal(t, len(slices), b.Len())
	require.Equal(t, 12, b.DataSize())

	encoded := b.Finish(nil)
	require.Len(t, encoded, b.Size())
	col, n, err := DecodeBytes(encoded, len(slices))
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, len(slices), col.Len())
	for i, s := range slices {
		require.Equal(t, s, string(col.At(i)))
	}

	// Separately stored offsets and data.
	offsets, _, err := DecodeUints(b.FinishOffsets(nil), len(slices)+1)
	require.NoError(t, err)
	col, err = MakeBytes(offsets, b.FinishData(nil))
	require.NoError(t, err)
	require.Equal(t, "banana", string(col.At(2)))

	// Data truncated.
	_, _, err = DecodeBytes(encoded[:len(encoded)-1], len(slices))
	require.True(t, base.IsCorruptionError(err))

	// Data shorter than the offsets claim.
	_, err = MakeBytes(offsets, []byte("short"))
	require.True(t, base.IsCorruptionError(err))
}

func TestBytesEmpty(t *testing.T) {
	var b BytesBuilder
	encoded := b.Finish(nil)
	col, n, err := DecodeBytes(encoded, 0)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, 0, col.Len())
}
