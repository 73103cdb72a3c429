// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encode

import (
	"io"

	"github.com/cockroachdb/prefixtree/internal/pool"
)

// Pool recycles Encoders, which retain sizable arenas and column buffers
// between blocks. A Pool is safe for concurrent use.
type Pool struct {
	p pool.Pool[Encoder]
}

// NewPool returns a new encoder pool.
func NewPool(opts pool.Options) *Pool {
	p := &Pool{}
	p.p.Init(func() *Encoder {
		e := &Encoder{}
		e.families.init()
		e.qualifiers.init()
		e.Reset()
		return e
	}, (*Encoder).Reset, opts)
	return p
}

// CheckOut returns a reset Encoder that writes to w.
func (p *Pool) CheckOut(w io.Writer, opts Options) (*Encoder, error) {
	e, err := p.p.CheckOut()
	if err != nil {
		return nil, err
	}
	e.Init(w, opts)
	return e, nil
}

// CheckIn resets e and returns it to the pool. It panics if e is already
// checked in.
func (p *Pool) CheckIn(e *Encoder) {
	p.p.CheckIn(e)
}

// Do checks out an Encoder, passes it to fn and checks it back in on every exit
// path.
func (p *Pool) Do(w io.Writer, opts Options, fn func(*Encoder) error) error {
	e, err := p.CheckOut(w, opts)
	if err != nil {
		return err
	}
	defer p.CheckIn(e)
	return fn(e)
}

// Stats returns the pool's usage counters.
func (p *Pool) Stats() pool.Stats {
	return p.p.Stats()
}
