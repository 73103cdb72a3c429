// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundtrip(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	for _, s := range presets {
		t.Run(s.String(), func(t *testing.T) {
			for _, compressible := range []bool{false, true} {
				payload := make([]byte, 1<<10+rng.IntN(10<<10 /* 10 KiB */))
				for i := range payload {
					if compressible {
						payload[i] = byte('a' + i%7)
					} else {
						payload[i] = byte(rng.Uint32())
					}
				}
				// Create a randomly-sized buffer to house the compressed output. If
				// it's not sufficient, Compress should allocate one that is.
				compressedBuf := make([]byte, 1+rng.IntN(1<<10 /* 1 KiB */))
				compressor := GetCompressor(s)
				compressed, st := compressor.Compress(compressedBuf, payload)
				compressor.Close()
				if compressible && s.Algorithm != NoCompression {
					require.Equal(t, s.Algorithm, st.Algorithm)
					require.Less(t, len(compressed), len(payload))
				}
				got, err := Decompress(st.Algorithm, compressed)
				require.NoError(t, err)
				require.Equal(t, payload, got)
			}
		})
	}
}

// TestDecompressionError tests that decompressing a value that does not
// decompress returns a corruption error.
func TestDecompressionError(t *testing.T) {
	defer leaktest.AfterTest(t)()
	rng := rand.New(rand.NewPCG(0, 1 /* fixed seed */))

	// Create a buffer to represent a faux compressed block. It's prefixed with a
	// uvarint of the appropriate length, followed by garbage.
	fauxCompressed := make([]byte, 64+rng.IntN(10<<10 /* 10 KiB */))
	compressedPayloadLen := len(fauxCompressed) - binary.MaxVarintLen64
	n := binary.PutUvarint(fauxCompressed, uint64(compressedPayloadLen))
	fauxCompressed = fauxCompressed[:n+compressedPayloadLen]
	for i := n; i < len(fauxCompressed); i++ {
		fauxCompressed[i] = byte(rng.Uint32())
	}

	for _, a := range []Algorithm{Zstd, LZ4} {
		v, err := Decompress(a, fauxCompressed)
		t.Log(err)
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err), "%s: %v", a, err)
		require.Nil(t, v)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for a := Algorithm(0); a < NumAlgorithms; a++ {
		got, err := ParseAlgorithm(a.String())
		require.NoError(t, err)
		require.Equal(t, a, got)
	}
	got, err := ParseAlgorithm("zstd")
	require.NoError(t, err)
	require.Equal(t, Zstd, got)
	_, err = ParseAlgorithm("brotli")
	require.Error(t, err)

	_, err = GetDecompressor(NumAlgorithms)
	require.Error(t, err)
}

func TestLZ4Incompressible(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 2))
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(rng.Uint32())
	}
	c := GetCompressor(LZ4Default)
	defer c.Close()
	out, st := c.Compress(nil, payload)
	if st.Algorithm == NoCompression {
		require.True(t, bytes.Equal(payload, out))
	}
	got, err := Decompress(st.Algorithm, out)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
