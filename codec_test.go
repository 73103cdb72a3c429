// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package prefixtree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/block"
	"github.com/cockroachdb/prefixtree/blockmeta"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/compression"
	"github.com/cockroachdb/prefixtree/internal/pool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (l *recordingLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(&l.buf, "info: "+format+"\n", args...)
}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(&l.buf, "error: "+format+"\n", args...)
}

func (l *recordingLogger) Fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

func (l *recordingLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func testCells(rng *rand.Rand, n int) []Cell {
	kinds := []CellKind{KindPut, KindPut, KindPut, KindDelete, KindDeleteColumn, KindDeleteFamily}
	cells := make([]Cell, 0, n)
	for i := 0; i < n; i++ {
		cells = append(cells, ParseCell(fmt.Sprintf("user%04d/f%d:q%d@%d#%s,%d=%s",
			rng.IntN(n), rng.IntN(2), rng.IntN(4), rng.Int64N(10), kinds[rng.IntN(len(kinds))],
			rng.Uint64N(1<<30), strings.Repeat("v", rng.IntN(20)))))
	}
	slices.SortFunc(cells, func(a, b Cell) int { return base.CompareCells(&a, &b) })
	return slices.CompactFunc(cells, func(a, b Cell) bool { return base.EqualKeys(&a, &b) })
}

func flatten(cells []Cell, includesSeqNum bool) []byte {
	var buf []byte
	for i := range cells {
		buf = base.AppendFlatCell(buf, &cells[i], includesSeqNum)
	}
	return buf
}

func withoutSeqNums(cells []Cell) []Cell {
	res := make([]Cell, len(cells))
	for i := range cells {
		res[i] = cells[i]
		res[i].SeqNum = 0
	}
	return res
}

func TestCodecRoundTrip(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	metrics := NewMetrics("test")
	c := NewCodec(&Options{Metrics: metrics, Logger: base.NoopLogger{}})
	header := []byte("engine-header")
	d := c.NewDecodingContext()

	blocks := 0
	for _, setting := range []compression.Setting{
		compression.None, compression.SnappySetting, compression.ZstdLevel3,
		compression.MinLZFastest, compression.LZ4Default,
	} {
		for _, includesSeqNum := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/seqnums=%t", setting, includesSeqNum), func(t *testing.T) {
				cells := testCells(rng, 1+rng.IntN(500))
				if !includesSeqNum {
					cells = withoutSeqNums(cells)
				}
				ctx, err := c.NewEncodingContext(setting, EncodingPrefixTree, header)
				require.NoError(t, err)
				defer ctx.Close()

				physical, err := c.Encode(cells, includesSeqNum, ctx)
				require.NoError(t, err)
				physical = bytes.Clone(physical)
				blocks++

				// The flat-format entry point produces the same block.
				raw := flatten(cells, includesSeqNum)
				fromRaw, err := c.EncodeCells(raw, includesSeqNum, ctx)
				require.NoError(t, err)
				require.Equal(t, physical, fromRaw)
				blocks++

				dec, err := c.DecodePhysical(d, physical, len(header))
				require.NoError(t, err)
				require.Equal(t, header, dec.Header)

				flat, err := c.DecodeCells(dec.Payload, 0, 0, includesSeqNum)
				require.NoError(t, err)
				require.Equal(t, raw, flat)

				first, err := c.FirstKeyInBlock(dec.Payload)
				require.NoError(t, err)
				require.Equal(t, base.AppendFlatKey(nil, &cells[0]), first)

				row, err := c.FirstRowInBlock(dec.Payload)
				require.NoError(t, err)
				require.Equal(t, cells[0].Row, row)
			})
		}
	}
	require.Equal(t, float64(blocks), testutil.ToFloat64(metrics.BlocksEncoded))
	require.Equal(t, float64(blocks/2), testutil.ToFloat64(metrics.BlocksDecoded))
	require.Zero(t, testutil.ToFloat64(metrics.Corruptions))
}

func encodePayload(t *testing.T, c *Codec, cells []Cell, includesSeqNum bool) []byte {
	ctx, err := c.NewEncodingContext(compression.None, EncodingPrefixTree, nil)
	require.NoError(t, err)
	defer ctx.Close()
	physical, err := c.Encode(cells, includesSeqNum, ctx)
	require.NoError(t, err)
	dec, err := c.DecodePhysical(c.NewDecodingContext(), physical, 0)
	require.NoError(t, err)
	return bytes.Clone(dec.Payload)
}

func TestDecodeCellsHeaderAndSkip(t *testing.T) {
	c := NewCodec(nil)
	cells := []Cell{ParseCell("a/f:q@1#PUT=1"), ParseCell("b/f:q@1#PUT=2")}
	payload := encodePayload(t, c, cells, false)

	src := append(bytes.Clone(payload), "checksum"...)
	flat, err := c.DecodeCells(src, 3, len("checksum"), false)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0}, flat[:3])
	require.Equal(t, flatten(cells, false), flat[3:])

	flat, err = c.DecodeCellsFrom(bytes.NewReader(payload), 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, flatten(cells, false), flat)

	_, err = c.DecodeCells(payload, 0, 0, true)
	require.True(t, errors.Is(err, ErrContractViolation))
	_, err = c.DecodeCells(payload, 0, len(payload)+1, false)
	require.True(t, errors.Is(err, ErrContractViolation))
}

func TestFirstKeyAndRowInEmptyBlock(t *testing.T) {
	c := NewCodec(nil)
	payload := encodePayload(t, c, nil, false)
	key, err := c.FirstKeyInBlock(payload)
	require.NoError(t, err)
	require.Nil(t, key)
	row, err := c.FirstRowInBlock(payload)
	require.NoError(t, err)
	require.Nil(t, row)

	flat, err := c.DecodeCells(payload, 0, 0, false)
	require.NoError(t, err)
	require.Empty(t, flat)
}

func TestFirstRowInBlock(t *testing.T) {
	c := NewCodec(nil)
	cells := []Cell{
		ParseCell("row1/f:a@2#PUT=v"),
		ParseCell("row1/f:b@1#PUT=v"),
		ParseCell("row10/f:a@1#PUT=v"),
		ParseCell("row2/f:a@1#DEL"),
	}
	payload := encodePayload(t, c, cells, false)
	row, err := c.FirstRowInBlock(payload)
	require.NoError(t, err)
	require.Equal(t, []byte("row1"), row)

	// The result is owned by the caller once the searcher is pooled again.
	row[0] = 'x'
	again, err := c.FirstRowInBlock(payload)
	require.NoError(t, err)
	require.Equal(t, []byte("row1"), again)

	_, err = c.FirstRowInBlock(payload[:blockmeta.Size-1])
	require.True(t, IsCorruptionError(err))
}

func TestDecodeCellsFlatSize(t *testing.T) {
	c := NewCodec(nil)

	// A block whose flat form is many times its payload still decodes.
	row := bytes.Repeat([]byte("r"), 200)
	var cells []Cell
	for ts := int64(300); ts > 0; ts-- {
		cells = append(cells, Cell{Row: row, Family: []byte("f"), Qualifier: []byte("q"),
			Timestamp: ts, Kind: KindPut})
	}
	payload := encodePayload(t, c, cells, false)
	require.Greater(t, len(flatten(cells, false)), maxFlatExpansion*len(payload))
	flat, err := c.DecodeCells(payload, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, flatten(cells, false), flat)

	// A corrupt flat size is rejected after decoding rather than allocated.
	const flatBytesOffset = 12 + 6*4
	for _, size := range []uint32{1<<32 - 1, 1 << 30, uint32(len(flat) - 1)} {
		corrupt := bytes.Clone(payload)
		binary.LittleEndian.PutUint32(corrupt[flatBytesOffset:], size)
		_, err := c.DecodeCells(corrupt, 0, 0, false)
		require.True(t, IsCorruptionError(err), "flat size %d: %v", size, err)
	}
}

type otherContext struct{ prepared bool }

func (o *otherContext) PrepareEncoding() (io.Writer, error) {
	o.prepared = true
	return io.Discard, nil
}

func (o *otherContext) PostEncoding(block.Kind) ([]byte, error) { return nil, nil }

func TestCodecConfiguration(t *testing.T) {
	c := NewCodec(nil)

	for _, enc := range []Encoding{EncodingNone, EncodingPrefix, EncodingDiff, EncodingFastDiff} {
		_, err := c.NewEncodingContext(compression.None, enc, nil)
		require.True(t, errors.Is(err, ErrConfiguration), "%s", enc)
	}

	other := &otherContext{}
	_, err := c.EncodeCells(nil, false, other)
	require.True(t, errors.Is(err, ErrContractViolation))
	require.False(t, other.prepared)

	for _, cmp := range []*Comparer{nil, MetaComparer, RootComparer} {
		_, err := c.NewSeeker(cmp, false)
		require.True(t, errors.Is(err, ErrConfiguration))
	}
	s, err := c.NewSeeker(DefaultComparer, false)
	require.NoError(t, err)
	require.Equal(t, DefaultComparer, s.Comparer())

	// An encoding context over another encoding id is rejected when decoding.
	ctx, err := block.NewEncodingContext(compression.None, uint16(EncodingDiff), nil, c.Options().blockOptions())
	require.NoError(t, err)
	defer ctx.Close()
	physical, err := c.Encode(nil, false, ctx)
	require.NoError(t, err)
	_, err = c.DecodePhysical(c.NewDecodingContext(), physical, 0)
	require.True(t, errors.Is(err, ErrConfiguration))
}

func TestEncodeFailureAbortsContext(t *testing.T) {
	c := NewCodec(nil)
	ctx, err := c.NewEncodingContext(compression.None, EncodingPrefixTree, nil)
	require.NoError(t, err)
	defer ctx.Close()

	cells := []Cell{ParseCell("b/f:q@1#PUT="), ParseCell("a/f:q@1#PUT=")}
	_, err = c.Encode(cells, false, ctx)
	require.True(t, errors.Is(err, ErrContractViolation))

	// Malformed flat input.
	_, err = c.EncodeCells([]byte{0, 0, 0}, false, ctx)
	require.True(t, IsCorruptionError(err))

	// The context is usable again and the encoder was returned to the pool.
	_, err = c.Encode(cells[1:], false, ctx)
	require.NoError(t, err)
	require.Equal(t, 0, c.encoders.Stats().Live)
}

func TestSeeker(t *testing.T) {
	c := NewCodec(nil)
	cells := []Cell{
		ParseCell("a/f:q@2#PUT,7=a2"),
		ParseCell("a/f:q@1#PUT,6=a1"),
		ParseCell("ab/f:q@1#DEL,5="),
		ParseCell("b/f:q@1#PUT,4=b1"),
	}
	payload := encodePayload(t, c, cells, true)

	s, err := c.NewSeeker(DefaultComparer, true)
	require.NoError(t, err)
	defer s.Release()
	require.False(t, s.Valid())
	require.NoError(t, s.SetCurrentBuffer(payload))

	var got []string
	for ok := s.Valid(); ok; ok = s.Next() {
		cell, err := s.Cell()
		require.NoError(t, err)
		got = append(got, cell.String())
		require.Equal(t, base.AppendFlatKey(nil, cell), s.Key())
		require.Equal(t, cell.Value, s.Value())
	}
	require.Equal(t, []string{
		"a/f:q@2#PUT,7=a2", "a/f:q@1#PUT,6=a1", "ab/f:q@1#DEL,5=", "b/f:q@1#PUT,4=b1",
	}, got)
	require.Nil(t, s.Key())

	seek := func(key string, seekBefore bool) string {
		k := ParseCell(key)
		res, err := s.SeekToKey(&k, seekBefore)
		require.NoError(t, err)
		cell, err := s.Cell()
		require.NoError(t, err)
		return fmt.Sprintf("%d %s", res, cell.KeyString())
	}
	require.Equal(t, "0 a/f:q@1#PUT,6", seek("a/f:q@1#PUT", false))
	require.Equal(t, "1 a/f:q@2#PUT,7", seek("a/f:q@1#PUT", true))
	require.Equal(t, "1 a/f:q@1#PUT,6", seek("aa/f:q@1#PUT", false))
	require.Equal(t, "1 b/f:q@1#PUT,4", seek("z/f:q@1#PUT", false))
	require.Equal(t, "-1 a/f:q@2#PUT,7", seek("0/f:q@1#PUT", false))
	require.Equal(t, "-1 a/f:q@2#PUT,7", seek("a/f:q@2#PUT", true))

	require.True(t, s.Rewind())
	require.Equal(t, "a", string(s.Key()[2:3]))

	// A seeker expecting no seqnums rejects the block.
	s2, err := c.NewSeeker(DefaultComparer, false)
	require.NoError(t, err)
	require.True(t, errors.Is(s2.SetCurrentBuffer(payload), ErrContractViolation))
	require.Equal(t, 1, c.decoders.Stats().Live)
}

func TestPoolExhaustion(t *testing.T) {
	logger := &recordingLogger{}
	metrics := NewMetrics("test")
	c := NewCodec(&Options{
		Logger:      logger,
		Metrics:     metrics,
		DecoderPool: pool.Options{MaxLive: 1},
	})
	payload := encodePayload(t, c, []Cell{ParseCell("r/f:q@1#PUT=v")}, false)

	s, err := c.NewSeeker(DefaultComparer, false)
	require.NoError(t, err)
	require.NoError(t, s.SetCurrentBuffer(payload))

	_, err = c.FirstKeyInBlock(payload)
	require.True(t, errors.Is(err, ErrContractViolation))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.PoolRejections))
	require.Contains(t, logger.String(), "searcher pool exhausted")

	s.Release()
	_, err = c.FirstKeyInBlock(payload)
	require.NoError(t, err)
}

func TestCorruptionReporting(t *testing.T) {
	logger := &recordingLogger{}
	metrics := NewMetrics("test")
	c := NewCodec(&Options{Logger: logger, Metrics: metrics})
	payload := encodePayload(t, c, []Cell{ParseCell("r/f:q@1#PUT=v")}, false)

	_, err := c.DecodeCells(payload[:len(payload)-1], 0, 0, false)
	require.True(t, IsCorruptionError(err))
	_, err = c.FirstKeyInBlock(payload[:10])
	require.True(t, IsCorruptionError(err))
	require.Equal(t, float64(2), testutil.ToFloat64(metrics.Corruptions))
	require.Contains(t, logger.String(), "error: prefixtree: corrupted block")

	// Physical block checksums.
	ctx, err := c.NewEncodingContext(compression.None, EncodingPrefixTree, nil)
	require.NoError(t, err)
	defer ctx.Close()
	physical, err := c.Encode([]Cell{ParseCell("r/f:q@1#PUT=v")}, false, ctx)
	require.NoError(t, err)
	physical = bytes.Clone(physical)
	physical[len(physical)/2] ^= 0x01
	_, err = c.DecodePhysical(c.NewDecodingContext(), physical, 0)
	require.True(t, IsCorruptionError(err))
	require.Equal(t, float64(3), testutil.ToFloat64(metrics.Corruptions))
}

// diffCodec stands in for an engine-provided implementation of another
// encoding.
type diffCodec struct{ *Codec }

func (diffCodec) Encoding() Encoding { return EncodingDiff }

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	c, err := r.Lookup(EncodingPrefixTree)
	require.NoError(t, err)
	require.Equal(t, EncodingPrefixTree, c.Encoding())

	_, err = r.Lookup(EncodingDiff)
	require.True(t, errors.Is(err, ErrConfiguration))

	// A codec is only accepted under the encoding it implements.
	for _, enc := range []Encoding{EncodingNone, EncodingDiff, EncodingFastDiff} {
		err := r.Register(enc, NewCodec(nil))
		require.True(t, errors.Is(err, ErrConfiguration), "%s", enc)
		require.Contains(t, err.Error(), "PREFIX_TREE codec registered for encoding "+enc.String())
	}
	require.True(t, errors.Is(r.Register(EncodingPrefixTree, NewCodec(nil)), ErrConfiguration))
	require.True(t, errors.Is(r.Register(EncodingFastDiff, nil), ErrConfiguration))
	require.Equal(t, []Encoding{EncodingPrefixTree}, r.Encodings())

	diff := diffCodec{NewCodec(nil)}
	require.True(t, errors.Is(r.Register(EncodingFastDiff, diff), ErrConfiguration))
	require.NoError(t, r.Register(EncodingDiff, diff))
	require.True(t, errors.Is(r.Register(EncodingDiff, diff), ErrConfiguration))
	c, err = r.Lookup(EncodingDiff)
	require.NoError(t, err)
	require.Equal(t, diff, c)
	require.Equal(t, []Encoding{EncodingDiff, EncodingPrefixTree}, r.Encodings())

	require.Equal(t, "PREFIX_TREE", EncodingPrefixTree.String())
	require.Equal(t, "Encoding(9)", Encoding(9).String())
}

func TestOptionsEnsureDefaults(t *testing.T) {
	var nilOpts *Options
	o := nilOpts.EnsureDefaults()
	require.Equal(t, DefaultLogger, o.Logger)
	require.Equal(t, block.ChecksumTypeXXHash64, o.Checksum)
	require.Equal(t, block.DefaultMinReductionPercent, o.MinReductionPercent)

	o = (&Options{DisableChecksums: true, Checksum: block.ChecksumTypeCRC32c}).EnsureDefaults()
	require.Equal(t, block.ChecksumTypeNone, o.Checksum)

	o = (&Options{Checksum: block.ChecksumTypeCRC32c}).EnsureDefaults()
	require.Equal(t, block.ChecksumTypeCRC32c, o.Checksum)
}

func TestCollectors(t *testing.T) {
	require.Nil(t, NewCodec(nil).Collectors("test"))
	c := NewCodec(&Options{Metrics: NewMetrics("test")})
	// Metrics plus live and idle gauges for both pools.
	require.Len(t, c.Collectors("test"), len(c.opts.Metrics.Collectors())+4)
}
