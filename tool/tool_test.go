// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testCells = `
-- a small block with sequence numbers
a/f:q@2#PUT,7=a2
a/f:q@1#PUT,6=a1
ab/f:q@1#DEL,5
b/f:q@1#PUT,4=b1
`

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.AddCommand(New(nil).Commands...)
	c.SetArgs(args)
	c.SetOutput(&buf)
	require.NoError(t, c.Execute())
	return buf.String()
}

func writeCells(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "cells")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestBlockCommands(t *testing.T) {
	cells := writeCells(t, testCells)
	blk := filepath.Join(t.TempDir(), "block")

	out := runCommand(t, "block", "encode", "--compression", "zstd", "--header", "hdr", cells, blk)
	require.True(t, strings.HasPrefix(out, blk+": 4 cells, "), "%s", out)

	out = runCommand(t, "block", "scan", "--header-len", "3", blk)
	require.Equal(t, "a/f:q@2#PUT,7 a2\n"+
		"a/f:q@1#PUT,6 a1\n"+
		"ab/f:q@1#DEL,5 \n"+
		"b/f:q@1#PUT,4 b1\n", out)

	out = runCommand(t, "block", "scan", "--header-len", "3", "--reverse", "--value", "size", blk)
	require.Equal(t, `b/f:q@1#PUT,4 <2>
ab/f:q@1#DEL,5 <0>
a/f:q@1#PUT,6 <2>
a/f:q@2#PUT,7 <2>
`, out)

	out = runCommand(t, "block", "scan", "--header-len", "3", "--start", "aa", "--value", "null", blk)
	require.Equal(t, "ab/f:q@1#DEL,5\nb/f:q@1#PUT,4\n", out)

	out = runCommand(t, "block", "seek", "--header-len", "3", blk,
		"a/f:q@1#PUT", "aa/f:q@1#PUT", "0/f:q@1#PUT", "z/f:q@1#PUT")
	require.Equal(t, `a/f:q@1#PUT: found a/f:q@1#PUT,6 a1
aa/f:q@1#PUT: inexact a/f:q@1#PUT,6 a1
0/f:q@1#PUT: before-first a/f:q@2#PUT,7 a2
z/f:q@1#PUT: inexact b/f:q@1#PUT,4 b1
`, out)

	out = runCommand(t, "block", "seek", "--header-len", "3", "--before", blk, "a/f:q@1#PUT")
	require.Equal(t, "a/f:q@1#PUT: inexact a/f:q@2#PUT,7 a2\n", out)

	out = runCommand(t, "block", "dump", "--header-len", "3", blk)
	for _, s := range []string{
		"header:      3 bytes",
		"compression: ",
		"cells:       4",
		"rows:        3",
		"columns:     1 families, 1 qualifiers",
		"seqnums:     true",
		"first row:   a\n",
		"row-trie",
		"value-offsets",
	} {
		require.Contains(t, out, s)
	}
}

func TestBlockChecksums(t *testing.T) {
	cells := writeCells(t, testCells)
	blk := filepath.Join(t.TempDir(), "block")
	runCommand(t, "block", "encode", "--checksum", "crc32c", cells, blk)

	out := runCommand(t, "block", "scan", "--checksum", "crc32c", "--value", "null", blk)
	require.Equal(t, 4, strings.Count(out, "\n"))

	out = runCommand(t, "block", "scan", blk)
	require.Contains(t, out, "checksum mismatch")

	out = runCommand(t, "block", "scan", filepath.Join(t.TempDir(), "missing"))
	require.Contains(t, out, "no such file")
}

func TestEncodeErrors(t *testing.T) {
	blk := filepath.Join(t.TempDir(), "block")

	out := runCommand(t, "block", "encode", writeCells(t, "b/f:q@1#PUT\na/f:q@1#PUT\n"), blk)
	require.Contains(t, out, "is not greater than")

	out = runCommand(t, "block", "encode", writeCells(t, "b/f:q@1#BOGUS\n"), blk)
	require.Contains(t, out, "cells:1")

	_, err := os.Stat(blk)
	require.True(t, os.IsNotExist(err))
}

func TestBench(t *testing.T) {
	out := runCommand(t, "bench", "--rows", "10", "--columns", "2", "-n", "3", "-c", "2", "--compression", "snappy")
	require.Contains(t, out, "2 workers")
	for _, op := range []string{"encode", "decode", "seek"} {
		require.Contains(t, out, op)
	}

	out = runCommand(t, "bench", "-n", "2", writeCells(t, testCells))
	require.Contains(t, out, "1 workers")
}
