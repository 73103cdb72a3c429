// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression implements the block compression algorithms a
// prefix-tree block may be framed with.
package compression

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/minio/minlz"
)

// Algorithm identifies a compression algorithm. The numeric values are
// persisted in block trailers and should not be changed.
type Algorithm uint8

const (
	NoCompression Algorithm = iota
	Snappy
	Zstd
	MinLZ
	LZ4

	NumAlgorithms
)

var algorithmNames = [NumAlgorithms]string{
	NoCompression: "NoCompression",
	Snappy:        "Snappy",
	Zstd:          "ZSTD",
	MinLZ:         "MinLZ",
	LZ4:           "LZ4",
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	if a < NumAlgorithms {
		return algorithmNames[a]
	}
	return fmt.Sprintf("UnknownAlgorithm(%d)", uint8(a))
}

// ParseAlgorithm parses an algorithm name (case insensitive).
func ParseAlgorithm(s string) (Algorithm, error) {
	for a := Algorithm(0); a < NumAlgorithms; a++ {
		if strings.EqualFold(s, algorithmNames[a]) {
			return a, nil
		}
	}
	if strings.EqualFold(s, "none") {
		return NoCompression, nil
	}
	return 0, errors.Newf("unknown compression algorithm %q", s)
}

// Setting contains the information needed to compress a block: the algorithm
// and its level (if the algorithm supports levels).
type Setting struct {
	Algorithm Algorithm
	// Level is only meaningful for Zstd and MinLZ.
	Level uint8
}

func (s Setting) String() string {
	switch s.Algorithm {
	case Zstd, MinLZ:
		return fmt.Sprintf("%s%d", s.Algorithm, s.Level)
	default:
		return s.Algorithm.String()
	}
}

// Setting presets.
var (
	None          = makePreset(NoCompression, 0)
	SnappySetting = makePreset(Snappy, 0)
	ZstdLevel1    = makePreset(Zstd, 1)
	ZstdLevel3    = makePreset(Zstd, 3)
	MinLZFastest  = makePreset(MinLZ, uint8(minlz.LevelFastest))
	MinLZBalanced = makePreset(MinLZ, uint8(minlz.LevelBalanced))
	LZ4Default    = makePreset(LZ4, 0)
)

var presets []Setting

func makePreset(algorithm Algorithm, level uint8) Setting {
	s := Setting{Algorithm: algorithm, Level: level}
	presets = append(presets, s)
	return s
}

// DefaultSetting returns the preset used when an algorithm is selected without
// an explicit level.
func DefaultSetting(a Algorithm) Setting {
	switch a {
	case NoCompression:
		return None
	case Snappy:
		return SnappySetting
	case Zstd:
		return ZstdLevel3
	case MinLZ:
		return MinLZFastest
	case LZ4:
		return LZ4Default
	default:
		panic(errors.AssertionFailedf("unknown compression algorithm %d", errors.Safe(a)))
	}
}

// Compressor is an interface for compressing data. An instance is associated
// with a specific Setting.
type Compressor interface {
	// Compress a block, appending the compressed data to dst[:0]. Returns the
	// setting that was actually used; it may differ from the requested setting
	// when the algorithm declines to compress the input.
	Compress(dst, src []byte) ([]byte, Setting)

	// Close must be called when the Compressor is no longer needed.
	// After Close is called, the Compressor must not be used again.
	Close()
}

// GetCompressor returns a Compressor for the given setting.
func GetCompressor(s Setting) Compressor {
	switch s.Algorithm {
	case NoCompression:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case Zstd:
		return getZstdCompressor(int(s.Level))
	case MinLZ:
		return getMinlzCompressor(int(s.Level))
	case LZ4:
		return getLZ4Compressor()
	default:
		panic(errors.AssertionFailedf("invalid compression setting %s", errors.Safe(s.String())))
	}
}

// Decompressor is an interface for decompressing data.
type Decompressor interface {
	// DecompressInto decompresses compressed into buf. The buf slice must have
	// the exact size as the decompressed value. Callers may use DecompressedLen
	// to determine the correct size.
	DecompressInto(buf, compressed []byte) error

	// DecompressedLen returns the length of the provided block once
	// decompressed, allowing the caller to allocate a buffer exactly sized to
	// the decompressed payload.
	DecompressedLen(b []byte) (decompressedLen int, err error)

	// Close must be called when the Decompressor is no longer needed.
	// After Close is called, the Decompressor must not be used again.
	Close()
}

// GetDecompressor returns a Decompressor for the given algorithm.
func GetDecompressor(a Algorithm) (Decompressor, error) {
	switch a {
	case NoCompression:
		return noopDecompressor{}, nil
	case Snappy:
		return snappyDecompressor{}, nil
	case Zstd:
		return getZstdDecompressor(), nil
	case MinLZ:
		return minlzDecompressor{}, nil
	case LZ4:
		return lz4Decompressor{}, nil
	default:
		return nil, errors.Newf("unknown compression algorithm %d", errors.Safe(uint8(a)))
	}
}

// Decompress allocates a buffer of the decompressed length and decompresses b
// into it.
func Decompress(a Algorithm, b []byte) ([]byte, error) {
	d, err := GetDecompressor(a)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	n, err := d.DecompressedLen(b)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.DecompressInto(buf, b); err != nil {
		return nil, err
	}
	return buf, nil
}
