// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements the ptree commands for creating and inspecting
// prefix-tree blocks.
package tool

import (
	"github.com/cockroachdb/prefixtree"
	"github.com/cockroachdb/prefixtree/block"
	"github.com/spf13/cobra"
)

// T is the container for all of the block tools.
type T struct {
	Commands []*cobra.Command
	block    *blockT
	bench    *benchT
	opts     prefixtree.Options
	checksum checksumFlag
}

// New creates a new block tool. The options are used for every codec the
// tool creates; the checksum may be overridden with the --checksum flag.
func New(opts *prefixtree.Options) *T {
	t := &T{}
	if opts != nil {
		t.opts = *opts
	}
	if t.opts.Logger == nil {
		t.opts.Logger = prefixtree.NoopLogger{}
	}
	t.checksum.t = t.opts.EnsureDefaults().Checksum

	t.block = newBlock(t)
	t.bench = newBench(t)
	t.Commands = []*cobra.Command{
		t.block.Root,
		t.bench.Root,
	}
	for _, c := range t.Commands {
		c.PersistentFlags().Var(&t.checksum, "checksum", "block checksum (none, crc32c, xxhash64)")
	}
	return t
}

// SetLogger sets the logger used by the codecs the tool creates.
func (t *T) SetLogger(l prefixtree.Logger) {
	t.opts.Logger = l
}

// newCodec returns a codec configured by the tool's options and flags.
func (t *T) newCodec() *prefixtree.Codec {
	opts := t.opts
	opts.Checksum = t.checksum.t
	opts.DisableChecksums = t.checksum.t == block.ChecksumTypeNone
	return prefixtree.NewCodec(&opts)
}

type checksumFlag struct {
	t block.ChecksumType
}

func (f *checksumFlag) String() string {
	return f.t.String()
}

func (f *checksumFlag) Type() string {
	return "checksum"
}

func (f *checksumFlag) Set(s string) error {
	t, err := block.ParseChecksumType(s)
	if err != nil {
		return err
	}
	f.t = t
	return nil
}
