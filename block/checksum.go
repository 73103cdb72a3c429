// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
	"github.com/cockroachdb/prefixtree/internal/bitflip"
)

// TrailerLen is the length of the trailer at the end of a physical block.
const TrailerLen = 5

// Trailer is the trailer at the end of a physical block, encoding the
// compression indicator and a checksum.
type Trailer = [TrailerLen]byte

// MakeTrailer constructs a trailer from a compression indicator and a
// checksum.
func MakeTrailer(indicator byte, checksum uint32) (t Trailer) {
	t[0] = indicator
	binary.LittleEndian.PutUint32(t[1:5], checksum)
	return t
}

// ChecksumType specifies the checksum used for physical blocks.
type ChecksumType byte

// The available checksum types. These values are part of the durable format
// and should not be changed.
const (
	ChecksumTypeNone     ChecksumType = 0
	ChecksumTypeCRC32c   ChecksumType = 1
	ChecksumTypeXXHash64 ChecksumType = 3
)

// String implements fmt.Stringer.
func (t ChecksumType) String() string {
	switch t {
	case ChecksumTypeNone:
		return "none"
	case ChecksumTypeCRC32c:
		return "crc32c"
	case ChecksumTypeXXHash64:
		return "xxhash64"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// ParseChecksumType parses the string form of a checksum type.
func ParseChecksumType(s string) (ChecksumType, error) {
	for _, t := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		if s == t.String() {
			return t, nil
		}
	}
	return 0, base.ConfigurationErrorf("prefixtree: unknown checksum type %q", s)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// A Checksummer calculates checksums for physical blocks.
type Checksummer struct {
	Type     ChecksumType
	xxHasher *xxhash.Digest
	buf      [1]byte
}

// Checksum computes a checksum over data followed by the compression
// indicator.
func (c *Checksummer) Checksum(data []byte, indicator byte) uint32 {
	c.buf[0] = indicator
	switch c.Type {
	case ChecksumTypeNone:
		return 0
	case ChecksumTypeCRC32c:
		return crc32.Update(crc32.Checksum(data, castagnoli), castagnoli, c.buf[:])
	case ChecksumTypeXXHash64:
		if c.xxHasher == nil {
			c.xxHasher = xxhash.New()
		} else {
			c.xxHasher.Reset()
		}
		_, _ = c.xxHasher.Write(data)
		_, _ = c.xxHasher.Write(c.buf[:])
		return uint32(c.xxHasher.Sum64())
	default:
		panic(errors.AssertionFailedf("unsupported checksum type: %d", errors.Safe(byte(c.Type))))
	}
}

func checksumFunc(t ChecksumType) func([]byte) uint32 {
	switch t {
	case ChecksumTypeCRC32c:
		return func(b []byte) uint32 { return crc32.Checksum(b, castagnoli) }
	case ChecksumTypeXXHash64:
		return func(b []byte) uint32 { return uint32(xxhash.Sum64(b)) }
	default:
		return nil
	}
}

// ValidateChecksum validates the trailer checksum of a physical block b. A
// mismatch is reported as a corruption error, annotated with the position of
// the flipped bit when a single bit flip explains it.
func ValidateChecksum(t ChecksumType, b []byte) error {
	if len(b) < TrailerLen {
		return base.CorruptionErrorf("prefixtree: physical block of %d bytes has no trailer", errors.Safe(len(b)))
	}
	if t == ChecksumTypeNone {
		return nil
	}
	sum := checksumFunc(t)
	if sum == nil {
		return base.ConfigurationErrorf("prefixtree: unsupported checksum type: %d", errors.Safe(byte(t)))
	}
	n := len(b) - TrailerLen + 1
	expected := binary.LittleEndian.Uint32(b[n:])
	computed := sum(b[:n])
	if expected == computed {
		return nil
	}
	data := slices.Clone(b[:n])
	err := base.CorruptionErrorf("prefixtree: block of %d bytes: %s checksum mismatch %x != %x",
		errors.Safe(len(b)), errors.Safe(t.String()), expected, computed)
	if index, bit, ok := bitflip.Find(data, sum, expected); ok {
		err = errors.WithSafeDetails(err, ". bit flip found: byte index %d. got: %x. want: %x.",
			errors.Safe(index), errors.Safe(data[index]), errors.Safe(data[index]^(1<<bit)))
	}
	return err
}
