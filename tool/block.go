// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree"
	"github.com/cockroachdb/prefixtree/block"
	"github.com/cockroachdb/prefixtree/blockmeta"
	"github.com/cockroachdb/prefixtree/decode"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/compression"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// blockT implements block-level tools, including both configuration state and
// the commands themselves.
type blockT struct {
	Root   *cobra.Command
	Encode *cobra.Command
	Dump   *cobra.Command
	Scan   *cobra.Command
	Seek   *cobra.Command

	t           *T
	compression compressionFlag
	header      string
	headerLen   int
	fmtValue    valueFormatter
	reverse     bool
	start       string
	before      bool
}

func newBlock(t *T) *blockT {
	b := &blockT{t: t}
	b.compression.setting = compression.None
	b.fmtValue.mustSet("quoted")

	b.Root = &cobra.Command{
		Use:   "block",
		Short: "prefix-tree block tools",
	}
	b.Encode = &cobra.Command{
		Use:   "encode <cells-file> <block-file>",
		Short: "encode cells into a physical block",
		Long: `
Encode the cells listed in <cells-file>, one per line in the
row/family:qualifier@timestamp#KIND[,seqnum][=value] format, and write
the physical block to <block-file>. The cells must be sorted. Sequence
numbers are encoded if any cell carries one.
`,
		Args: cobra.ExactArgs(2),
		Run:  b.runEncode,
	}
	b.Dump = &cobra.Command{
		Use:   "dump <block-file>",
		Short: "print the layout of a physical block",
		Args:  cobra.ExactArgs(1),
		Run:   b.runDump,
	}
	b.Scan = &cobra.Command{
		Use:   "scan <block-file>",
		Short: "print the cells of a physical block",
		Args:  cobra.ExactArgs(1),
		Run:   b.runScan,
	}
	b.Seek = &cobra.Command{
		Use:   "seek <block-file> <cell>...",
		Short: "seek to the last cell at or before each key",
		Args:  cobra.MinimumNArgs(2),
		Run:   b.runSeek,
	}

	b.Root.AddCommand(b.Encode, b.Dump, b.Scan, b.Seek)
	b.Encode.Flags().Var(
		&b.compression, "compression", "compression algorithm (none, snappy, zstd, minlz, lz4)")
	b.Encode.Flags().StringVar(
		&b.header, "header", "", "engine header written before the block")
	for _, c := range []*cobra.Command{b.Dump, b.Scan, b.Seek} {
		c.Flags().IntVar(
			&b.headerLen, "header-len", 0, "length of the engine header preceding the block")
	}
	for _, c := range []*cobra.Command{b.Scan, b.Seek} {
		c.Flags().Var(
			&b.fmtValue, "value", "value formatter")
	}
	b.Scan.Flags().BoolVarP(
		&b.reverse, "reverse", "r", false, "scan from the last cell to the first")
	b.Scan.Flags().StringVar(
		&b.start, "start", "", "start the scan at the first cell of this row")
	b.Seek.Flags().BoolVar(
		&b.before, "before", false, "seek strictly before each key")
	return b
}

func (b *blockT) runEncode(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	cells, err := readCells(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	codec := b.t.newCodec()
	ctx, err := codec.NewEncodingContext(b.compression.setting, prefixtree.EncodingPrefixTree, []byte(b.header))
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer ctx.Close()
	physical, err := codec.Encode(cells, hasSeqNums(cells), ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	if err := os.WriteFile(args[1], physical, 0644); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	fmt.Fprintf(stdout, "%s: %d cells, %s (%s)\n", args[1], len(cells),
		crhumanize.Bytes(int64(len(physical)), crhumanize.Compact, crhumanize.OmitI),
		ctx.LastCompression())
}

// load reads a physical block and returns its payload.
func (b *blockT) load(codec *prefixtree.Codec, path string) (block.Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return block.Decoded{}, err
	}
	if b.headerLen < 0 || b.headerLen > len(data) {
		return block.Decoded{}, errors.Newf("%s: header length %d out of range", path, b.headerLen)
	}
	d, err := codec.DecodePhysical(codec.NewDecodingContext(), data, b.headerLen)
	return d, errors.Wrapf(err, "%s", path)
}

func (b *blockT) runDump(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	codec := b.t.newCodec()
	d, err := b.load(codec, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	m, err := blockmeta.Parse(d.Payload)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
		return
	}
	fmt.Fprintf(stdout, "%s\n", args[0])
	fmt.Fprintf(stdout, "  header:      %d bytes\n", len(d.Header))
	fmt.Fprintf(stdout, "  compression: %s\n", d.Compression)
	fmt.Fprintf(stdout, "  payload:     %s\n",
		crhumanize.Bytes(int64(len(d.Payload)), crhumanize.Compact, crhumanize.OmitI))
	fmt.Fprintf(stdout, "  cells:       %s (%s flat)\n",
		crhumanize.Count(int64(m.NumCells), crhumanize.Compact),
		crhumanize.Bytes(int64(m.NumFlatBytes), crhumanize.Compact, crhumanize.OmitI))
	fmt.Fprintf(stdout, "  rows:        %d (max length %d, %d nodes)\n", m.NumRows, m.MaxRowLength, m.NumNodes)
	fmt.Fprintf(stdout, "  columns:     %d families, %d qualifiers\n", m.NumFamilies, m.NumQualifiers)
	fmt.Fprintf(stdout, "  seqnums:     %t\n", m.HasSeqNums())
	if row, err := codec.FirstRowInBlock(d.Payload); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
	} else if row != nil {
		fmt.Fprintf(stdout, "  first row:   %s\n", row)
	}
	dumpSections(stdout, &m)
}

func dumpSections(w io.Writer, m *blockmeta.BlockMeta) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Section", "Offset", "Length", "Share"})
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	end := int64(m.End())
	for i, s := range m.Sections {
		tbl.Append([]string{
			blockmeta.SectionID(i).String(),
			fmt.Sprintf("%d", s.Offset),
			fmt.Sprintf("%d", s.Length),
			string(crhumanize.Percent(int64(s.Length), end)),
		})
	}
	tbl.Render()
}

func (b *blockT) runScan(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	d, err := b.load(b.t.newCodec(), args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	var s decode.Searcher
	if err := s.Init(d.Payload); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
		return
	}

	var ok bool
	switch {
	case b.start != "":
		ok = s.SeekRowGE([]byte(b.start))
	case b.reverse:
		ok = s.PositionAtLastCell()
	default:
		ok = s.PositionAtFirstCell()
	}
	for ; ok; ok = b.step(&s) {
		c, err := s.Current()
		if err != nil {
			break
		}
		formatCell(stdout, &b.fmtValue, c)
	}
	if err := s.Error(); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
	}
}

func (b *blockT) step(s *decode.Searcher) bool {
	if b.reverse {
		return s.Previous()
	}
	return s.Advance()
}

func (b *blockT) runSeek(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	codec := b.t.newCodec()
	d, err := b.load(codec, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	m, err := blockmeta.Parse(d.Payload)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
		return
	}
	k, err := codec.NewSeeker(prefixtree.DefaultComparer, m.HasSeqNums())
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer k.Release()
	if err := k.SetCurrentBuffer(d.Payload); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
		return
	}
	for _, arg := range args[1:] {
		key, err := base.TryParseCell(arg)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return
		}
		res, err := k.SeekToKey(&key, b.before)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
			return
		}
		fmt.Fprintf(stdout, "%s: %s ", key.KeyString(), res)
		if !k.Valid() {
			fmt.Fprintf(stdout, ".\n")
			continue
		}
		c, err := k.Cell()
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
			return
		}
		formatCell(stdout, &b.fmtValue, c)
	}
}
