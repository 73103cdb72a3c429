// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package prefixtree

import (
	"github.com/cockroachdb/prefixtree/block"
	"github.com/cockroachdb/prefixtree/encode"
	"github.com/cockroachdb/prefixtree/internal/pool"
)

// Options holds the optional parameters for a Codec.
type Options struct {
	// Logger receives reports of corrupted blocks and exhausted pools. The
	// default is DefaultLogger.
	Logger Logger

	// Metrics, if non-nil, is updated by every codec operation. Metrics are
	// not collected by default.
	Metrics *Metrics

	// EncoderPool and DecoderPool bound the instances retained by, and
	// checked out of, the codec's encoder and searcher pools.
	EncoderPool pool.Options
	DecoderPool pool.Options

	// Checksum is the checksum written to physical block trailers. The default
	// is block.ChecksumTypeXXHash64.
	Checksum block.ChecksumType

	// DisableChecksums writes physical blocks with ChecksumTypeNone and skips
	// validation when decoding. It takes precedence over Checksum.
	DisableChecksums bool

	// MinReductionPercent is the minimum size reduction for a compressed
	// payload to be stored compressed. The default is
	// block.DefaultMinReductionPercent.
	MinReductionPercent int

	// RetainBufferLimit bounds the capacity of the buffers an encoder keeps
	// between blocks. The default is encode.DefaultRetainBufferLimit.
	RetainBufferLimit int
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	if o.DisableChecksums {
		o.Checksum = block.ChecksumTypeNone
	} else if o.Checksum == block.ChecksumTypeNone {
		o.Checksum = block.ChecksumTypeXXHash64
	}
	if o.MinReductionPercent == 0 {
		o.MinReductionPercent = block.DefaultMinReductionPercent
	}
	if o.RetainBufferLimit <= 0 {
		o.RetainBufferLimit = encode.DefaultRetainBufferLimit
	}
	return o
}

func (o *Options) blockOptions() block.Options {
	return block.Options{
		Checksum:            o.Checksum,
		MinReductionPercent: o.MinReductionPercent,
	}
}
