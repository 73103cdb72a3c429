// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block frames encoded block payloads as physical blocks:
//
//	+----------------+-------------+----------------------+-----------+----------+
//	| engine header  | encoding id | payload (compressed) | indicator | checksum |
//	| (headerLen)    | uint16 LE   |                      | 1 byte    | uint32   |
//	+----------------+-------------+----------------------+-----------+----------+
//
// The indicator is the compression.Algorithm of the payload. The checksum
// covers every preceding byte including the indicator.
package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/compression"
	"github.com/cockroachdb/prefixtree/internal/invariants"
)

// EncodingIDLen is the length of the encoding id following the engine header.
const EncodingIDLen = 2

// DefaultMinReductionPercent is the minimum size reduction, in percent, for a
// compressed payload to be stored compressed.
const DefaultMinReductionPercent = 12

// Kind distinguishes a payload produced by a block encoding from one stored
// in the engine's native layout.
type Kind uint8

const (
	// KindData is an unencoded payload; the encoding id is written as zero.
	KindData Kind = iota
	// KindEncodedData is a payload produced by a block encoding.
	KindEncodedData
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindEncodedData:
		return "encoded-data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Options configures encoding and decoding contexts.
type Options struct {
	// Checksum is the checksum written to, and validated on, block trailers.
	Checksum ChecksumType
	// MinReductionPercent is the minimum size reduction for compression to be
	// kept. Zero selects DefaultMinReductionPercent; a negative value keeps
	// any compressed output that is not larger than the input.
	MinReductionPercent int
}

// EnsureDefaults fills in zero fields with their defaults.
func (o Options) EnsureDefaults() Options {
	if o.MinReductionPercent == 0 {
		o.MinReductionPercent = DefaultMinReductionPercent
	}
	if o.MinReductionPercent < 0 {
		o.MinReductionPercent = 0
	}
	return o
}

// EncodingContext turns encoded payloads into physical blocks. Callers pair
// PrepareEncoding, which returns the stream the payload is written to, with
// PostEncoding, which frames it. An EncodingContext is reusable across blocks
// but not safe for concurrent use.
type EncodingContext struct {
	setting     compression.Setting
	compressor  compression.Compressor
	checksummer Checksummer
	encodingID  uint16
	header      []byte
	minPercent  int

	payload    bytes.Buffer
	compressed []byte
	out        []byte
	prepared   bool
	// used is the compression setting applied to the last block.
	used       compression.Setting
	closeCheck invariants.CloseChecker
}

// NewEncodingContext returns a context that prepends header to every block,
// tags payloads with encodingID and compresses them using setting. Close must
// be called when the context is no longer needed.
func NewEncodingContext(
	setting compression.Setting, encodingID uint16, header []byte, opts Options,
) (*EncodingContext, error) {
	if setting.Algorithm >= compression.NumAlgorithms {
		return nil, base.ConfigurationErrorf("prefixtree: unknown compression algorithm %d",
			errors.Safe(uint8(setting.Algorithm)))
	}
	if opts.Checksum != ChecksumTypeNone && checksumFunc(opts.Checksum) == nil {
		return nil, base.ConfigurationErrorf("prefixtree: unsupported checksum type %d",
			errors.Safe(byte(opts.Checksum)))
	}
	opts = opts.EnsureDefaults()
	return &EncodingContext{
		setting:     setting,
		compressor:  compression.GetCompressor(setting),
		checksummer: Checksummer{Type: opts.Checksum},
		encodingID:  encodingID,
		header:      bytes.Clone(header),
		minPercent:  opts.MinReductionPercent,
	}, nil
}

// EncodingID returns the encoding id written to blocks of KindEncodedData.
func (c *EncodingContext) EncodingID() uint16 { return c.encodingID }

// HeaderLen returns the length of the engine header.
func (c *EncodingContext) HeaderLen() int { return len(c.header) }

// Setting returns the requested compression setting.
func (c *EncodingContext) Setting() compression.Setting { return c.setting }

// LastCompression returns the compression setting applied to the most recent
// block, which is compression.None when compression did not pay off.
func (c *EncodingContext) LastCompression() compression.Setting { return c.used }

// PrepareEncoding begins a new block, returning the stream that the payload
// must be written to. It is a contract violation to call PrepareEncoding again
// before PostEncoding.
func (c *EncodingContext) PrepareEncoding() (io.Writer, error) {
	c.closeCheck.AssertNotClosed()
	if c.prepared {
		return nil, base.ContractViolationf("prefixtree: PrepareEncoding called twice")
	}
	c.prepared = true
	c.payload.Reset()
	return &c.payload, nil
}

// Abort abandons the block begun by PrepareEncoding.
func (c *EncodingContext) Abort() {
	c.prepared = false
	c.payload.Reset()
}

// PostEncoding frames the payload written since PrepareEncoding and returns
// the physical block. The returned slice is owned by the context and is valid
// until the next PrepareEncoding.
func (c *EncodingContext) PostEncoding(kind Kind) ([]byte, error) {
	if !c.prepared {
		return nil, base.ContractViolationf("prefixtree: PostEncoding called without PrepareEncoding")
	}
	c.prepared = false
	var id uint16
	switch kind {
	case KindData:
	case KindEncodedData:
		id = c.encodingID
	default:
		return nil, base.ContractViolationf("prefixtree: unknown block kind %d", errors.Safe(uint8(kind)))
	}

	payload := c.payload.Bytes()
	c.compressed, c.used = c.compressor.Compress(c.compressed[:0], payload)
	body := c.compressed
	if c.used.Algorithm != compression.NoCompression &&
		len(body) > len(payload)-len(payload)*c.minPercent/100 {
		body, c.used = payload, compression.None
	}

	out := append(c.out[:0], c.header...)
	out = binary.LittleEndian.AppendUint16(out, id)
	out = append(out, body...)
	indicator := byte(c.used.Algorithm)
	trailer := MakeTrailer(indicator, c.checksummer.Checksum(out, indicator))
	out = append(out, trailer[:]...)
	c.out = out
	if invariants.Sometimes(10) {
		if err := ValidateChecksum(c.checksummer.Type, out); err != nil {
			panic(errors.AssertionFailedf("prefixtree: framed block fails validation: %v", err))
		}
	}
	return out, nil
}

// Close releases the context's compressor.
func (c *EncodingContext) Close() {
	c.closeCheck.Close()
	if c.compressor != nil {
		c.compressor.Close()
		c.compressor = nil
	}
}

// Decoded describes a physical block split into its parts. Slices alias
// either the physical block or the decoding context's buffer.
type Decoded struct {
	Header      []byte
	EncodingID  uint16
	Compression compression.Algorithm
	Payload     []byte
}

// DecodingContext reverses the framing of an EncodingContext. It is reusable
// but not safe for concurrent use.
type DecodingContext struct {
	checksum ChecksumType
	buf      []byte
}

// NewDecodingContext returns a context validating trailers with the given
// checksum type.
func NewDecodingContext(opts Options) *DecodingContext {
	return &DecodingContext{checksum: opts.Checksum}
}

// Decode validates the trailer of a physical block whose engine header is
// headerLen bytes long, and decompresses its payload. Every failure is a
// corruption error.
func (d *DecodingContext) Decode(physical []byte, headerLen int) (Decoded, error) {
	if headerLen < 0 || len(physical) < headerLen+EncodingIDLen+TrailerLen {
		return Decoded{}, base.CorruptionErrorf("prefixtree: physical block of %d bytes is too short",
			errors.Safe(len(physical)))
	}
	if err := ValidateChecksum(d.checksum, physical); err != nil {
		return Decoded{}, base.MarkCorruptionError(err)
	}
	trailerStart := len(physical) - TrailerLen
	alg := compression.Algorithm(physical[trailerStart])
	if alg >= compression.NumAlgorithms {
		return Decoded{}, base.CorruptionErrorf("prefixtree: unknown compression indicator %d",
			errors.Safe(uint8(alg)))
	}
	res := Decoded{
		Header:      physical[:headerLen:headerLen],
		EncodingID:  binary.LittleEndian.Uint16(physical[headerLen:]),
		Compression: alg,
	}
	body := physical[headerLen+EncodingIDLen : trailerStart]
	if alg == compression.NoCompression {
		res.Payload = body
		return res, nil
	}
	dec, err := compression.GetDecompressor(alg)
	if err != nil {
		return Decoded{}, base.MarkCorruptionError(err)
	}
	defer dec.Close()
	n, err := dec.DecompressedLen(body)
	if err != nil {
		return Decoded{}, base.MarkCorruptionError(err)
	}
	if cap(d.buf) < n {
		d.buf = make([]byte, n)
	}
	d.buf = d.buf[:n]
	if err := dec.DecompressInto(d.buf, body); err != nil {
		return Decoded{}, base.MarkCorruptionError(err)
	}
	res.Payload = d.buf
	return res, nil
}
