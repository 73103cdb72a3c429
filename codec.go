// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package prefixtree

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/block"
	"github.com/cockroachdb/prefixtree/blockmeta"
	"github.com/cockroachdb/prefixtree/decode"
	"github.com/cockroachdb/prefixtree/encode"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/compression"
	"github.com/prometheus/client_golang/prometheus"
)

// EncodingContext is the engine-side sink for an encoded block: the encoder
// writes the payload to the stream returned by PrepareEncoding and
// PostEncoding frames it. The Codec only accepts the *block.EncodingContext
// implementation.
type EncodingContext interface {
	PrepareEncoding() (io.Writer, error)
	PostEncoding(kind block.Kind) ([]byte, error)
}

var _ EncodingContext = (*block.EncodingContext)(nil)

// Codec implements the prefix-tree data block encoding. A Codec is safe for
// concurrent use; it hands out pooled encoders and searchers.
type Codec struct {
	opts     Options
	encoders *encode.Pool
	decoders *decode.Pool
}

// NewCodec returns a codec configured by opts, which may be nil.
func NewCodec(opts *Options) *Codec {
	c := &Codec{}
	if opts != nil {
		c.opts = *opts
	}
	c.opts.EnsureDefaults()
	c.encoders = encode.NewPool(c.opts.EncoderPool)
	c.decoders = decode.NewPool(c.opts.DecoderPool)
	return c
}

// Encoding returns EncodingPrefixTree.
func (c *Codec) Encoding() Encoding { return EncodingPrefixTree }

// Options returns the codec's options, with defaults filled in.
func (c *Codec) Options() *Options { return &c.opts }

// Collectors returns the codec's metrics and gauges over its pools, for
// registration with a prometheus.Registerer. It returns nil if the codec does
// not collect metrics.
func (c *Codec) Collectors(namespace string) []prometheus.Collector {
	if c.opts.Metrics == nil {
		return nil
	}
	res := c.opts.Metrics.Collectors()
	res = append(res, poolGauges(namespace, "encoders", c.encoders.Stats)...)
	res = append(res, poolGauges(namespace, "searchers", c.decoders.Stats)...)
	return res
}

// NewEncodingContext returns a context that frames prefix-tree payloads with
// the given compression and engine header. Any encoding other than
// EncodingPrefixTree is a configuration error.
func (c *Codec) NewEncodingContext(
	setting compression.Setting, enc Encoding, header []byte,
) (*block.EncodingContext, error) {
	if enc != EncodingPrefixTree {
		return nil, base.ConfigurationErrorf("prefixtree: only %s is supported, not %s",
			errors.Safe(EncodingPrefixTree.String()), errors.Safe(enc.String()))
	}
	return block.NewEncodingContext(setting, uint16(enc), header, c.opts.blockOptions())
}

// NewDecodingContext returns a context that validates and decompresses
// physical blocks. The compression algorithm is read from each block's
// trailer.
func (c *Codec) NewDecodingContext() *block.DecodingContext {
	return block.NewDecodingContext(c.opts.blockOptions())
}

// EncodeCells encodes a run of cells in the flat cell format and returns the
// physical block produced by ctx. The cells must be sorted and are read with
// sequence numbers if includesSeqNum is set.
func (c *Codec) EncodeCells(raw []byte, includesSeqNum bool, ctx EncodingContext) ([]byte, error) {
	return c.encode(ctx, includesSeqNum, func(e *encode.Encoder) error {
		for len(raw) > 0 {
			cell, rest, err := base.DecodeFlatCell(raw, includesSeqNum)
			if err != nil {
				return err
			}
			if err := e.Write(&cell); err != nil {
				return err
			}
			raw = rest
		}
		return nil
	})
}

// Encode is like EncodeCells for an in-memory run of sorted cells.
func (c *Codec) Encode(cells []Cell, includesSeqNum bool, ctx EncodingContext) ([]byte, error) {
	return c.encode(ctx, includesSeqNum, func(e *encode.Encoder) error {
		for i := range cells {
			if err := e.Write(&cells[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Codec) encode(
	ctx EncodingContext, includesSeqNum bool, write func(*encode.Encoder) error,
) ([]byte, error) {
	bc, ok := ctx.(*block.EncodingContext)
	if !ok || bc == nil {
		return nil, base.ContractViolationf("prefixtree: only *block.EncodingContext is accepted, not %T", ctx)
	}
	w, err := bc.PrepareEncoding()
	if err != nil {
		return nil, err
	}
	e, err := c.encoders.CheckOut(w, encode.Options{
		IncludeSeqNum:     includesSeqNum,
		RetainBufferLimit: c.opts.RetainBufferLimit,
	})
	if err != nil {
		bc.Abort()
		c.rejected("encoder", err)
		return nil, err
	}
	m, err := func() (blockmeta.BlockMeta, error) {
		defer c.encoders.CheckIn(e)
		if err := write(e); err != nil {
			return blockmeta.BlockMeta{}, err
		}
		return e.Flush()
	}()
	if err != nil {
		bc.Abort()
		return nil, err
	}
	kind := block.KindEncodedData
	if Encoding(bc.EncodingID()) == EncodingNone {
		kind = block.KindData
	}
	physical, err := bc.PostEncoding(kind)
	if err != nil {
		return nil, err
	}
	c.opts.Metrics.encoded(int(m.NumCells), int(m.End()), len(physical))
	return physical, nil
}

// DecodePhysical validates and decompresses a physical block whose engine
// header is headerLen bytes long, returning the prefix-tree payload. Blocks
// written with another encoding are rejected.
func (c *Codec) DecodePhysical(d *block.DecodingContext, physical []byte, headerLen int) (block.Decoded, error) {
	res, err := d.Decode(physical, headerLen)
	if err != nil {
		return block.Decoded{}, c.reportCorruption(err)
	}
	if Encoding(res.EncodingID) != EncodingPrefixTree {
		return block.Decoded{}, base.ConfigurationErrorf("prefixtree: block is encoded with %s",
			errors.Safe(Encoding(res.EncodingID).String()))
	}
	return res, nil
}

// maxFlatExpansion bounds the initial allocation of DecodeCells relative to
// the payload size. Blocks that expand further grow the buffer as they decode.
const maxFlatExpansion = 4

// DecodeCells materializes a prefix-tree payload into the flat cell format,
// preceded by allocateHeaderLength zero bytes. The last skipLastBytes bytes of
// payload are not part of the block. Sequence numbers are written after each
// cell if includesSeqNum is set, which must agree with the block.
func (c *Codec) DecodeCells(
	payload []byte, allocateHeaderLength, skipLastBytes int, includesSeqNum bool,
) ([]byte, error) {
	if allocateHeaderLength < 0 || skipLastBytes < 0 || skipLastBytes > len(payload) {
		return nil, base.ContractViolationf("prefixtree: invalid header length %d or skip %d for %d-byte payload",
			errors.Safe(allocateHeaderLength), errors.Safe(skipLastBytes), errors.Safe(len(payload)))
	}
	s, err := c.checkOutSearcher(payload[:len(payload)-skipLastBytes])
	if err != nil {
		return nil, err
	}
	defer c.decoders.CheckIn(s)
	if s.HasSeqNums() != includesSeqNum {
		return nil, base.ContractViolationf("prefixtree: block has seqnums=%t, decoding with seqnums=%t",
			errors.Safe(s.HasSeqNums()), errors.Safe(includesSeqNum))
	}

	m := s.Meta()
	// NumFlatBytes is only trusted once the cells have been decoded.
	hint := min(int(m.NumFlatBytes), maxFlatExpansion*len(payload))
	dst := make([]byte, allocateHeaderLength, allocateHeaderLength+hint)
	n := 0
	for ok := s.PositionAtFirstCell(); ok; ok = s.Advance() {
		cell, err := s.Current()
		if err != nil {
			return nil, c.reportCorruption(err)
		}
		dst = base.AppendFlatCell(dst, cell, includesSeqNum)
		n++
	}
	if err := s.Error(); err != nil {
		return nil, c.reportCorruption(err)
	}
	if n != int(m.NumCells) || len(dst)-allocateHeaderLength != int(m.NumFlatBytes) {
		return nil, c.reportCorruption(base.CorruptionErrorf(
			"prefixtree: decoded %d cells in %d bytes, header records %d cells in %d bytes",
			errors.Safe(n), errors.Safe(len(dst)-allocateHeaderLength),
			errors.Safe(m.NumCells), errors.Safe(m.NumFlatBytes)))
	}
	c.opts.Metrics.decoded(n)
	return dst, nil
}

// DecodeCellsFrom is like DecodeCells for a payload read from r.
func (c *Codec) DecodeCellsFrom(
	r io.Reader, allocateHeaderLength, skipLastBytes int, includesSeqNum bool,
) ([]byte, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return c.DecodeCells(payload, allocateHeaderLength, skipLastBytes, includesSeqNum)
}

// FirstKeyInBlock returns the key of the first cell of a prefix-tree payload
// in the flat key format, or nil if the block is empty.
func (c *Codec) FirstKeyInBlock(payload []byte) ([]byte, error) {
	s, err := c.checkOutSearcher(payload)
	if err != nil {
		return nil, err
	}
	defer c.decoders.CheckIn(s)
	if !s.PositionAtFirstCell() {
		return nil, c.reportCorruption(s.Error())
	}
	cell, err := s.Current()
	if err != nil {
		return nil, c.reportCorruption(err)
	}
	return base.AppendFlatKey(nil, cell), nil
}

// FirstRowInBlock returns the row of the first cell of a prefix-tree payload,
// or nil if the block is empty. Only the row trie is read.
func (c *Codec) FirstRowInBlock(payload []byte) ([]byte, error) {
	s, err := c.checkOutSearcher(payload)
	if err != nil {
		return nil, err
	}
	defer c.decoders.CheckIn(s)
	row, err := s.FirstRow()
	if err != nil {
		return nil, c.reportCorruption(err)
	}
	if row == nil {
		return nil, nil
	}
	return bytes.Clone(row), nil
}

// NewSeeker returns a Seeker over prefix-tree payloads. The comparer must
// order cells by key; the catalog comparers (MetaComparer, RootComparer) are
// incompatible with the encoding.
func (c *Codec) NewSeeker(cmp *Comparer, includesSeqNum bool) (*Seeker, error) {
	switch {
	case cmp == nil:
		return nil, base.ConfigurationErrorf("prefixtree: a comparer is required")
	case cmp == MetaComparer || cmp.Kind == base.ComparerKindMeta:
		return nil, base.ConfigurationErrorf("prefixtree: %s is not compatible with the meta catalog",
			errors.Safe(EncodingPrefixTree.String()))
	case cmp == RootComparer || cmp.Kind == base.ComparerKindRoot:
		return nil, base.ConfigurationErrorf("prefixtree: %s is not compatible with the root catalog",
			errors.Safe(EncodingPrefixTree.String()))
	case cmp.Kind != base.ComparerKindKey:
		return nil, base.ConfigurationErrorf("prefixtree: comparer %q does not order cells by key", cmp.Name)
	}
	return &Seeker{codec: c, cmp: cmp, includesSeqNum: includesSeqNum}, nil
}

func (c *Codec) checkOutSearcher(payload []byte) (*decode.Searcher, error) {
	s, err := c.decoders.CheckOut(payload)
	if err != nil {
		if base.IsCorruptionError(err) {
			return nil, c.reportCorruption(err)
		}
		c.rejected("searcher", err)
		return nil, err
	}
	return s, nil
}

// reportCorruption logs and counts err if it is a corruption error, and
// returns it unchanged.
func (c *Codec) reportCorruption(err error) error {
	if err != nil && base.IsCorruptionError(err) {
		c.opts.Metrics.corruption()
		c.opts.Logger.Errorf("prefixtree: corrupted block: %v", err)
	}
	return err
}

func (c *Codec) rejected(what string, err error) {
	if errors.Is(err, base.ErrContractViolation) {
		c.opts.Metrics.poolRejection()
		c.opts.Logger.Infof("prefixtree: %s pool exhausted: %v", what, err)
	}
}
