// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package pool implements a bounded pool of reusable instances.
package pool

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/prefixtree/internal/base"
)

// DefaultMaxIdle is the number of idle instances retained when Options.MaxIdle
// is zero.
const DefaultMaxIdle = 16

// Options configures a Pool.
type Options struct {
	// MaxIdle is the maximum number of checked-in instances retained for reuse.
	// Instances checked in beyond this limit are dropped. Zero selects
	// DefaultMaxIdle; negative values retain nothing.
	MaxIdle int
	// MaxLive is the maximum number of simultaneously checked-out instances.
	// CheckOut fails with a contract violation, rather than blocking, when the
	// limit would be exceeded. Zero means unbounded.
	MaxLive int
}

// Stats holds counters describing a pool's usage.
type Stats struct {
	// Created is the number of instances constructed.
	Created int64
	// Live is the number of instances currently checked out.
	Live int
	// Idle is the number of instances retained for reuse.
	Idle int
	// CheckOuts is the number of successful CheckOut calls.
	CheckOuts int64
	// Rejected is the number of CheckOut calls refused because of MaxLive.
	Rejected int64
}

// Pool is a mutex-protected free list of *T. Instances are reset when checked
// in and handed out again by CheckOut. A Pool is safe for concurrent use; the
// instances it hands out are not.
type Pool[T any] struct {
	newFn   func() *T
	resetFn func(*T)
	opts    Options

	mu struct {
		sync.Mutex
		free []*T
		// out holds every instance currently checked out, so that a second
		// CheckIn of the same instance is detected.
		out   map[*T]struct{}
		stats Stats
	}
}

// Init initializes the pool. newFn constructs a fresh instance and resetFn
// clears an instance's per-use state while retaining its buffers.
func (p *Pool[T]) Init(newFn func() *T, resetFn func(*T), opts Options) {
	if opts.MaxIdle == 0 {
		opts.MaxIdle = DefaultMaxIdle
	}
	p.newFn = newFn
	p.resetFn = resetFn
	p.opts = opts
	p.mu.free = nil
	p.mu.out = make(map[*T]struct{})
	p.mu.stats = Stats{}
}

// CheckOut returns an instance from the free list, or constructs a new one if
// the free list is empty.
func (p *Pool[T]) CheckOut() (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opts.MaxLive > 0 && len(p.mu.out) >= p.opts.MaxLive {
		p.mu.stats.Rejected++
		return nil, base.ContractViolationf("prefixtree: pool exhausted: %d instances checked out",
			errors.Safe(len(p.mu.out)))
	}
	var x *T
	if n := len(p.mu.free); n > 0 {
		x = p.mu.free[n-1]
		p.mu.free[n-1] = nil
		p.mu.free = p.mu.free[:n-1]
	} else {
		x = p.newFn()
		p.mu.stats.Created++
	}
	p.mu.out[x] = struct{}{}
	p.mu.stats.CheckOuts++
	return x, nil
}

// CheckIn resets x and returns it to the free list. Checking in nil is a
// no-op. Checking in an instance that is not checked out panics.
func (p *Pool[T]) CheckIn(x *T) {
	if x == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.mu.out[x]; !ok {
		panic(errors.AssertionFailedf("prefixtree: instance %p checked in twice or never checked out", x))
	}
	delete(p.mu.out, x)
	p.resetFn(x)
	if len(p.mu.free) < p.opts.MaxIdle {
		p.mu.free = append(p.mu.free, x)
	}
}

// Do checks out an instance, invokes fn with it and checks it back in,
// including when fn panics.
func (p *Pool[T]) Do(fn func(*T) error) error {
	x, err := p.CheckOut()
	if err != nil {
		return err
	}
	defer p.CheckIn(x)
	return fn(x)
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.mu.stats
	s.Live = len(p.mu.out)
	s.Idle = len(p.mu.free)
	return s
}
