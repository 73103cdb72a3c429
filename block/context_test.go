// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/compression"
	"github.com/stretchr/testify/require"
)

var settings = []compression.Setting{
	compression.None,
	compression.SnappySetting,
	compression.ZstdLevel1,
	compression.ZstdLevel3,
	compression.MinLZFastest,
	compression.MinLZBalanced,
	compression.LZ4Default,
}

var checksums = []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64}

func encodeBlock(t *testing.T, c *EncodingContext, kind Kind, payload []byte) []byte {
	w, err := c.PrepareEncoding()
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	physical, err := c.PostEncoding(kind)
	require.NoError(t, err)
	return bytes.Clone(physical)
}

func TestRoundTrip(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	compressible := bytes.Repeat([]byte("row0001/family:qualifier@1#PUT=value "), 200)
	random := make([]byte, 4<<10)
	for i := range random {
		random[i] = byte(rng.Uint32())
	}
	header := []byte("hdr")

	for _, s := range settings {
		for _, ct := range checksums {
			t.Run(fmt.Sprintf("%s/%s", s, ct), func(t *testing.T) {
				c, err := NewEncodingContext(s, 6, header, Options{Checksum: ct})
				require.NoError(t, err)
				defer c.Close()
				d := NewDecodingContext(Options{Checksum: ct})

				for _, payload := range [][]byte{compressible, random, nil} {
					physical := encodeBlock(t, c, KindEncodedData, payload)
					dec, err := d.Decode(physical, len(header))
					require.NoError(t, err)
					require.Equal(t, header, dec.Header)
					require.Equal(t, uint16(6), dec.EncodingID)
					require.Equal(t, c.LastCompression().Algorithm, dec.Compression)
					require.Equal(t, len(payload), len(dec.Payload))
					require.True(t, bytes.Equal(payload, dec.Payload))
					if len(payload) == 0 || bytes.Equal(payload, random) {
						// Compression does not pay off.
						require.Equal(t, compression.NoCompression, dec.Compression)
					}
				}
				if s.Algorithm != compression.NoCompression {
					encodeBlock(t, c, KindEncodedData, compressible)
					require.Equal(t, s.Algorithm, c.LastCompression().Algorithm)
				}
			})
		}
	}
}

func TestKindData(t *testing.T) {
	c, err := NewEncodingContext(compression.None, 6, nil, Options{Checksum: ChecksumTypeXXHash64})
	require.NoError(t, err)
	defer c.Close()
	physical := encodeBlock(t, c, KindData, []byte("raw"))
	require.Len(t, physical, EncodingIDLen+3+TrailerLen)
	dec, err := NewDecodingContext(Options{Checksum: ChecksumTypeXXHash64}).Decode(physical, 0)
	require.NoError(t, err)
	require.Zero(t, dec.EncodingID)
	require.Equal(t, "raw", string(dec.Payload))
}

func TestMinReductionPercent(t *testing.T) {
	// A payload that zstd shrinks, but by well under half.
	rng := rand.New(rand.NewPCG(0, 1))
	payload := make([]byte, 8<<10)
	for i := range payload {
		payload[i] = "abcdefghijklmnop"[rng.IntN(16)]
	}
	for _, tc := range []struct {
		percent int
		want    compression.Algorithm
	}{
		{percent: -1, want: compression.Zstd},
		{percent: 10, want: compression.Zstd},
		{percent: 90, want: compression.NoCompression},
	} {
		c, err := NewEncodingContext(compression.ZstdLevel3, 6, nil, Options{MinReductionPercent: tc.percent})
		require.NoError(t, err)
		encodeBlock(t, c, KindEncodedData, payload)
		require.Equal(t, tc.want, c.LastCompression().Algorithm, "percent=%d", tc.percent)
		c.Close()
	}
}

func TestCorruption(t *testing.T) {
	payload := bytes.Repeat([]byte("corruption "), 100)
	for _, ct := range []ChecksumType{ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		c, err := NewEncodingContext(compression.SnappySetting, 6, []byte("h"), Options{Checksum: ct})
		require.NoError(t, err)
		physical := encodeBlock(t, c, KindEncodedData, payload)
		c.Close()
		d := NewDecodingContext(Options{Checksum: ct})

		for i := 0; i < len(physical); i += 7 {
			corrupt := bytes.Clone(physical)
			corrupt[i] ^= 0x10
			_, err := d.Decode(corrupt, 1)
			require.Error(t, err)
			require.True(t, base.IsCorruptionError(err), "%+v", err)
		}
		for _, n := range []int{0, 1, TrailerLen, len(physical) / 2, len(physical) - 1} {
			_, err := d.Decode(physical[:n], 1)
			require.True(t, base.IsCorruptionError(err), "truncated to %d: %v", n, err)
		}
	}
}

func TestUnknownIndicator(t *testing.T) {
	c, err := NewEncodingContext(compression.None, 6, nil, Options{Checksum: ChecksumTypeXXHash64})
	require.NoError(t, err)
	physical := encodeBlock(t, c, KindEncodedData, []byte("payload"))
	// Rewrite the indicator and recompute the checksum so that only the
	// indicator is wrong.
	n := len(physical) - TrailerLen
	cs := Checksummer{Type: ChecksumTypeXXHash64}
	trailer := MakeTrailer(0xee, cs.Checksum(physical[:n], 0xee))
	copy(physical[n:], trailer[:])
	_, err = NewDecodingContext(Options{Checksum: ChecksumTypeXXHash64}).Decode(physical, 0)
	require.True(t, base.IsCorruptionError(err))
	require.ErrorContains(t, err, "unknown compression indicator")
}

func TestContextContract(t *testing.T) {
	c, err := NewEncodingContext(compression.None, 6, nil, Options{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PostEncoding(KindEncodedData)
	require.True(t, errors.Is(err, base.ErrContractViolation))

	_, err = c.PrepareEncoding()
	require.NoError(t, err)
	_, err = c.PrepareEncoding()
	require.True(t, errors.Is(err, base.ErrContractViolation))
	c.Abort()
	_, err = c.PrepareEncoding()
	require.NoError(t, err)

	_, err = NewEncodingContext(compression.Setting{Algorithm: compression.NumAlgorithms}, 6, nil, Options{})
	require.True(t, errors.Is(err, base.ErrConfiguration))
	_, err = NewEncodingContext(compression.None, 6, nil, Options{Checksum: 9})
	require.True(t, errors.Is(err, base.ErrConfiguration))
}

func TestParseChecksumType(t *testing.T) {
	for _, ct := range checksums {
		got, err := ParseChecksumType(ct.String())
		require.NoError(t, err)
		require.Equal(t, ct, got)
	}
	_, err := ParseChecksumType("md5")
	require.True(t, errors.Is(err, base.ErrConfiguration))
}
