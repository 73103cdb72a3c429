// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package decode

import "github.com/cockroachdb/prefixtree/internal/pool"

// Pool recycles Searchers. A Pool is safe for concurrent use.
type Pool struct {
	p pool.Pool[Searcher]
}

// NewPool returns a new searcher pool.
func NewPool(opts pool.Options) *Pool {
	p := &Pool{}
	p.p.Init(func() *Searcher { return &Searcher{} }, (*Searcher).Reset, opts)
	return p
}

// CheckOut returns a Searcher initialized over block. If the block fails to
// parse the searcher is checked back in and the error returned.
func (p *Pool) CheckOut(block []byte) (*Searcher, error) {
	s, err := p.p.CheckOut()
	if err != nil {
		return nil, err
	}
	if err := s.Init(block); err != nil {
		p.p.CheckIn(s)
		return nil, err
	}
	return s, nil
}

// CheckIn resets s and returns it to the pool. It panics if s is already
// checked in.
func (p *Pool) CheckIn(s *Searcher) {
	p.p.CheckIn(s)
}

// Stats returns the pool's usage counters.
func (p *Pool) Stats() pool.Stats {
	return p.p.Stats()
}
