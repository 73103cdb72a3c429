// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree"
	"github.com/cockroachdb/prefixtree/internal/compression"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	minLatency = 100 * time.Nanosecond
	maxLatency = 10 * time.Second
)

// benchT implements the bench command, which measures the latency of encoding,
// materializing and seeking blocks.
type benchT struct {
	Root *cobra.Command

	t           *T
	compression compressionFlag
	concurrency int
	iterations  int
	rows        int
	columns     int
	valueSize   int
	seed        uint64
}

func newBench(t *T) *benchT {
	b := &benchT{t: t}
	b.compression.setting = compression.None

	b.Root = &cobra.Command{
		Use:   "bench [cells-file]",
		Short: "benchmark encoding and seeking prefix-tree blocks",
		Long: `
Repeatedly encode, materialize and seek a block. The cells are read from
[cells-file] if given, otherwise a block of --rows rows with --columns
columns each is generated.
`,
		Args: cobra.MaximumNArgs(1),
		Run:  b.run,
	}
	b.Root.Flags().Var(
		&b.compression, "compression", "compression algorithm (none, snappy, zstd, minlz, lz4)")
	b.Root.Flags().IntVarP(
		&b.concurrency, "concurrency", "c", 1, "number of concurrent workers")
	b.Root.Flags().IntVarP(
		&b.iterations, "iterations", "n", 100, "iterations per worker")
	b.Root.Flags().IntVar(
		&b.rows, "rows", 256, "number of generated rows")
	b.Root.Flags().IntVar(
		&b.columns, "columns", 4, "number of generated columns per row")
	b.Root.Flags().IntVar(
		&b.valueSize, "value", 16, "size of generated values")
	b.Root.Flags().Uint64Var(
		&b.seed, "seed", 1, "seed for generated cells and seek keys")
	return b
}

func (b *benchT) generate() []prefixtree.Cell {
	rng := rand.New(rand.NewPCG(0, b.seed))
	value := make([]byte, b.valueSize)
	cells := make([]prefixtree.Cell, 0, b.rows*b.columns)
	for r := 0; r < b.rows; r++ {
		row := []byte(fmt.Sprintf("user%08d", r))
		for c := 0; c < b.columns; c++ {
			for i := range value {
				value[i] = byte('a' + rng.IntN(26))
			}
			cells = append(cells, prefixtree.Cell{
				Row:       row,
				Family:    []byte("f"),
				Qualifier: []byte(fmt.Sprintf("q%03d", c)),
				Timestamp: rng.Int64N(1 << 40),
				Kind:      prefixtree.KindPut,
				Value:     bytes.Clone(value),
			})
		}
	}
	return cells
}

type benchHistograms struct {
	encode *hdrhistogram.Histogram
	decode *hdrhistogram.Histogram
	seek   *hdrhistogram.Histogram
}

func newBenchHistograms() benchHistograms {
	newHist := func() *hdrhistogram.Histogram {
		return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 2)
	}
	return benchHistograms{encode: newHist(), decode: newHist(), seek: newHist()}
}

func (h *benchHistograms) merge(o benchHistograms) {
	h.encode.Merge(o.encode)
	h.decode.Merge(o.decode)
	h.seek.Merge(o.seek)
}

func (b *benchT) run(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	var cells []prefixtree.Cell
	if len(args) == 1 {
		var err error
		if cells, err = readCells(args[0]); err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return
		}
	} else {
		cells = b.generate()
	}
	if len(cells) == 0 {
		fmt.Fprintf(stderr, "no cells to benchmark\n")
		return
	}
	if b.concurrency < 1 || b.iterations < 1 {
		fmt.Fprintf(stderr, "concurrency and iterations must be positive\n")
		return
	}
	includesSeqNum := hasSeqNums(cells)

	codec := b.t.newCodec()
	hists := make([]benchHistograms, b.concurrency)
	var physicalSize, payloadSize int
	start := time.Now()
	g := errgroup.Group{}
	for w := range hists {
		hists[w] = newBenchHistograms()
		g.Go(func() error {
			h := hists[w]
			rng := rand.New(rand.NewPCG(uint64(w), b.seed))
			ctx, err := codec.NewEncodingContext(b.compression.setting, prefixtree.EncodingPrefixTree, nil)
			if err != nil {
				return err
			}
			defer ctx.Close()
			d := codec.NewDecodingContext()
			k, err := codec.NewSeeker(prefixtree.DefaultComparer, includesSeqNum)
			if err != nil {
				return err
			}
			defer k.Release()

			for i := 0; i < b.iterations; i++ {
				t0 := time.Now()
				physical, err := codec.Encode(cells, includesSeqNum, ctx)
				if err != nil {
					return err
				}
				t1 := time.Now()
				dec, err := codec.DecodePhysical(d, physical, 0)
				if err != nil {
					return err
				}
				if _, err := codec.DecodeCells(dec.Payload, 0, 0, includesSeqNum); err != nil {
					return err
				}
				t2 := time.Now()
				if err := k.SetCurrentBuffer(dec.Payload); err != nil {
					return err
				}
				key := &cells[rng.IntN(len(cells))]
				res, err := k.SeekToKey(key, false)
				if err != nil {
					return err
				}
				if res != prefixtree.SeekFound {
					return errors.AssertionFailedf("seek to %s returned %s", key.KeyString(), res)
				}
				t3 := time.Now()

				_ = h.encode.RecordValue(t1.Sub(t0).Nanoseconds())
				_ = h.decode.RecordValue(t2.Sub(t1).Nanoseconds())
				_ = h.seek.RecordValue(t3.Sub(t2).Nanoseconds())
				if w == 0 && i == 0 {
					physicalSize, payloadSize = len(physical), len(dec.Payload)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	elapsed := time.Since(start)

	total := newBenchHistograms()
	for _, h := range hists {
		total.merge(h)
	}
	fmt.Fprintf(stdout, "%s cells, payload %s, physical %s (%s), %d workers, %s\n",
		crhumanize.Count(int64(len(cells)), crhumanize.Compact),
		crhumanize.Bytes(int64(payloadSize), crhumanize.Compact, crhumanize.OmitI),
		crhumanize.Bytes(int64(physicalSize), crhumanize.Compact, crhumanize.OmitI),
		b.compression.setting, b.concurrency, elapsed.Round(time.Millisecond))

	tbl := tablewriter.NewWriter(stdout)
	tbl.SetHeader([]string{"Op", "Count", "Mean", "p50", "p99", "Max"})
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range []struct {
		name string
		h    *hdrhistogram.Histogram
	}{
		{"encode", total.encode},
		{"decode", total.decode},
		{"seek", total.seek},
	} {
		tbl.Append([]string{
			r.name,
			fmt.Sprintf("%d", r.h.TotalCount()),
			time.Duration(r.h.Mean()).String(),
			time.Duration(r.h.ValueAtQuantile(50)).String(),
			time.Duration(r.h.ValueAtQuantile(99)).String(),
			time.Duration(r.h.Max()).String(),
		})
	}
	tbl.Render()
}
