// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package column

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/stretchr/testify/require"
)

func TestUints(t *testing.T) {
	var b UintBuilder
	datadriven.RunTest(t, "testdata/uints", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "build":
			b.Reset()
			var values []uint64
			for _, f := range strings.Fields(td.Input) {
				v, err := strconv.ParseUint(f, 10, 64)
				require.NoError(t, err)
				b.Append(v)
				values = append(values, v)
			}
			encoded := b.Finish(nil)
			require.Len(t, encoded, b.Size())

			u, n, err := DecodeUints(encoded, len(values))
			require.NoError(t, err)
			require.Equal(t, len(encoded), n)
			for i, v := range values {
				require.Equal(t, v, u.At(i))
			}
			return fmt.Sprintf("%s\n% x\n", b.Summary(), encoded)
		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func TestUintsRandomized(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	spans := []uint64{0, 1, math.MaxUint8, math.MaxUint16, math.MaxUint32, math.MaxUint64}
	var b UintBuilder
	for i := 0; i < 100; i++ {
		b.Reset()
		span := spans[rng.IntN(len(spans))]
		start := rng.Uint64()
		n := rng.IntN(200)
		values := make([]uint64, n)
		for j := range values {
			if span == math.MaxUint64 {
				values[j] = rng.Uint64()
			} else {
				values[j] = start + rng.Uint64N(span+1)
			}
			b.Append(values[j])
		}
		encoded := b.Finish([]byte("prefix"))
		require.Equal(t, "prefix", string(encoded[:6]))
		u, size, err := DecodeUints(encoded[6:], n)
		require.NoError(t, err)
		require.Equal(t, b.Size(), size)
		for j, v := range values {
			require.Equal(t, v, u.At(j))
		}
		// Every truncation must be detected.
		if size > 0 {
			_, _, err = DecodeUints(encoded[6:6+rng.IntN(size)], n)
			require.True(t, base.IsCorruptionError(err))
		}
	}
}

func TestInt64Mapping(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	for i := range values {
		require.Equal(t, values[i], DecodeInt64(EncodeInt64(values[i])))
		if i > 0 {
			require.Less(t, EncodeInt64(values[i-1]), EncodeInt64(values[i]))
		}
	}
}

func TestWidth(t *testing.T) {
	for _, tc := range []struct {
		max   uint64
		width int
	}{
		{0, 0}, {1, 1}, {255, 1}, {256, 2}, {65535, 2}, {65536, 3}, {1<<24 - 1, 3}, {1 << 24, 4}, {math.MaxUint32, 4},
	} {
		require.Equal(t, tc.width, WidthFor(tc.max), "max=%d", tc.max)
		buf := AppendUint(nil, tc.max, tc.width)
		require.Len(t, buf, tc.width)
		require.Equal(t, tc.max, ReadUint(buf, tc.width))
		buf2 := make([]byte, tc.width)
		PutUint(buf2, tc.max, tc.width)
		require.Equal(t, buf, buf2)
	}
	require.Panics(t, func() { WidthFor(uint64(math.MaxUint32) + 1) })
}
