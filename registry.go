// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package prefixtree

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
)

// Encoding identifies a data block encoding. The numeric values are written
// to physical blocks and should not be changed.
type Encoding uint16

const (
	EncodingNone       Encoding = 0
	EncodingPrefix     Encoding = 2
	EncodingDiff       Encoding = 3
	EncodingFastDiff   Encoding = 4
	EncodingPrefixTree Encoding = 6
)

var encodingNames = map[Encoding]string{
	EncodingNone:       "NONE",
	EncodingPrefix:     "PREFIX",
	EncodingDiff:       "DIFF",
	EncodingFastDiff:   "FAST_DIFF",
	EncodingPrefixTree: "PREFIX_TREE",
}

// String implements fmt.Stringer.
func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(%d)", uint16(e))
}

// DataBlockCodec is the engine-facing surface of a data block encoding. Codec
// implements it for EncodingPrefixTree.
type DataBlockCodec interface {
	// Encoding returns the encoding the codec reads and writes.
	Encoding() Encoding
	EncodeCells(raw []byte, includesSeqNum bool, ctx EncodingContext) ([]byte, error)
	DecodeCells(payload []byte, allocateHeaderLength, skipLastBytes int, includesSeqNum bool) ([]byte, error)
	FirstKeyInBlock(payload []byte) ([]byte, error)
}

var _ DataBlockCodec = (*Codec)(nil)

// Registry maps encodings to the codecs implementing them. Only the
// prefix-tree encoding is implemented by this package; other encodings may be
// registered by the engine. A Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[Encoding]DataBlockCodec
}

// NewRegistry returns a registry holding a prefix-tree codec built with opts.
func NewRegistry(opts *Options) *Registry {
	r := &Registry{codecs: make(map[Encoding]DataBlockCodec)}
	r.codecs[EncodingPrefixTree] = NewCodec(opts)
	return r
}

// Register associates c with e. It is an error to register an encoding twice
// or to register a codec under an encoding it does not implement.
func (r *Registry) Register(e Encoding, c DataBlockCodec) error {
	if c == nil {
		return base.ConfigurationErrorf("prefixtree: nil codec for %s", errors.Safe(e.String()))
	}
	if got := c.Encoding(); got != e {
		return base.ConfigurationErrorf("prefixtree: %s codec registered for encoding %s",
			errors.Safe(got.String()), errors.Safe(e.String()))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[e]; ok {
		return base.ConfigurationErrorf("prefixtree: encoding %s already registered", errors.Safe(e.String()))
	}
	r.codecs[e] = c
	return nil
}

// Lookup returns the codec registered for e.
func (r *Registry) Lookup(e Encoding) (DataBlockCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[e]
	if !ok {
		return nil, base.ConfigurationErrorf("prefixtree: no codec registered for encoding %s",
			errors.Safe(e.String()))
	}
	return c, nil
}

// Encodings returns the registered encodings in ascending order.
func (r *Registry) Encodings() []Encoding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Encoding, 0, len(r.codecs))
	for e := range r.codecs {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
