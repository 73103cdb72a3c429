// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/compression"
)

// valueFormatter is a pflag.Value selecting how cell values are printed.
type valueFormatter struct {
	spec string
	fn   func(w io.Writer, v []byte)
}

func (f *valueFormatter) String() string {
	return f.spec
}

func (f *valueFormatter) Type() string {
	return "formatter"
}

func (f *valueFormatter) Set(spec string) error {
	f.spec = spec
	switch spec {
	case "hex":
		f.fn = formatHex
	case "null":
		f.fn = formatNull
	case "quoted":
		f.fn = formatQuoted
	case "size":
		f.fn = formatSize
	default:
		if strings.Count(spec, "%") != 1 {
			return errors.Newf("unknown formatter: %q", spec)
		}
		f.fn = func(w io.Writer, v []byte) {
			fmt.Fprintf(w, f.spec, v)
		}
	}
	return nil
}

func (f *valueFormatter) mustSet(spec string) {
	if err := f.Set(spec); err != nil {
		panic(err)
	}
}

func formatHex(w io.Writer, v []byte) {
	fmt.Fprintf(w, "[% x]", v)
}

func formatNull(w io.Writer, v []byte) {
}

func formatQuoted(w io.Writer, v []byte) {
	q := strconv.AppendQuote(make([]byte, 0, len(v)), string(v))
	q = q[1 : len(q)-1]
	w.Write(q)
}

func formatSize(w io.Writer, v []byte) {
	fmt.Fprintf(w, "<%d>", len(v))
}

func formatCell(w io.Writer, fmtValue *valueFormatter, c *prefixtree.Cell) {
	io.WriteString(w, c.KeyString())
	if fmtValue.spec != "null" {
		w.Write([]byte{' '})
		fmtValue.fn(w, c.Value)
	}
	w.Write([]byte{'\n'})
}

// compressionFlag is a pflag.Value selecting a compression algorithm at its
// default level.
type compressionFlag struct {
	setting compression.Setting
}

func (f *compressionFlag) String() string {
	return f.setting.Algorithm.String()
}

func (f *compressionFlag) Type() string {
	return "algorithm"
}

func (f *compressionFlag) Set(s string) error {
	a, err := compression.ParseAlgorithm(s)
	if err != nil {
		return err
	}
	f.setting = compression.DefaultSetting(a)
	return nil
}

const maxLineLength = 16 << 20

// readCells reads a sorted run of cells, one per line in the format accepted
// by prefixtree.ParseCell. Blank lines and lines starting with "--" are
// ignored.
func readCells(path string) ([]prefixtree.Cell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cells []prefixtree.Cell
	s := bufio.NewScanner(f)
	s.Buffer(nil, maxLineLength)
	for line := 1; s.Scan(); line++ {
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "--") {
			continue
		}
		c, err := base.TryParseCell(text)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, line)
		}
		if n := len(cells); n > 0 && base.CompareCells(&cells[n-1], &c) >= 0 {
			return nil, errors.Newf("%s:%d: cell %s is not greater than %s",
				path, line, c.KeyString(), cells[n-1].KeyString())
		}
		cells = append(cells, c)
	}
	return cells, s.Err()
}

// hasSeqNums returns true if any cell carries a sequence number.
func hasSeqNums(cells []prefixtree.Cell) bool {
	for i := range cells {
		if cells[i].SeqNum != 0 {
			return true
		}
	}
	return false
}
