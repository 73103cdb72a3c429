// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/pierrec/lz4/v4"
)

// lz4Compressor wraps an lz4.Compressor, which keeps a hash table that is
// worth reusing across blocks.
type lz4Compressor struct {
	c lz4.Compressor
}

var _ Compressor = (*lz4Compressor)(nil)

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4Compressor{}
	},
}

func getLZ4Compressor() *lz4Compressor {
	return lz4CompressorPool.Get().(*lz4Compressor)
}

// Compress prefixes the compressed payload with a uvarint of the decompressed
// length, since LZ4 block format does not record it. If the input is
// incompressible it is returned uncompressed.
func (z *lz4Compressor) Compress(dst, src []byte) ([]byte, Setting) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < binary.MaxVarintLen64+bound {
		dst = make([]byte, binary.MaxVarintLen64+bound)
	}
	dst = dst[:cap(dst)]
	varIntLen := binary.PutUvarint(dst, uint64(len(src)))
	n, err := z.c.CompressBlock(src, dst[varIntLen:])
	if err != nil {
		panic(errors.Wrap(err, "lz4 compression"))
	}
	if n == 0 {
		return noopCompressor{}.Compress(dst, src)
	}
	return dst[:varIntLen+n], LZ4Default
}

func (z *lz4Compressor) Close() {
	lz4CompressorPool.Put(z)
}

type lz4Decompressor struct{}

var _ Decompressor = lz4Decompressor{}

func (lz4Decompressor) DecompressInto(dst, src []byte) error {
	_, prefixLen := binary.Uvarint(src)
	if prefixLen <= 0 {
		return base.CorruptionErrorf("prefixtree: lz4 block has invalid length prefix")
	}
	n, err := lz4.UncompressBlock(src[prefixLen:], dst)
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	if n != len(dst) {
		return base.CorruptionErrorf("prefixtree: lz4 decompressed %d bytes, expected %d", n, len(dst))
	}
	return nil
}

func (lz4Decompressor) DecompressedLen(b []byte) (decompressedLen int, err error) {
	decodedLenU64, varIntLen := binary.Uvarint(b)
	if varIntLen <= 0 {
		return 0, base.CorruptionErrorf("prefixtree: compression block has invalid length")
	}
	return int(decodedLenU64), nil
}

func (lz4Decompressor) Close() {}
