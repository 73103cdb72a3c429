// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package prefixtree

import (
	"github.com/cockroachdb/prefixtree/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters a Codec maintains. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	BlocksEncoded prometheus.Counter
	BlocksDecoded prometheus.Counter
	CellsEncoded  prometheus.Counter
	CellsDecoded  prometheus.Counter
	Seeks         prometheus.Counter
	Corruptions   prometheus.Counter
	// PoolRejections counts check-outs refused because a pool reached its
	// MaxLive limit.
	PoolRejections prometheus.Counter
	// EncodedBlockSize is the size of encoded payloads, before compression.
	EncodedBlockSize prometheus.Histogram
	// CompressedBlockSize is the size of physical blocks, including the engine
	// header and trailer.
	CompressedBlockSize prometheus.Histogram
}

// NewMetrics returns a Metrics whose metric names are prefixed with
// namespace.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prefixtree", Name: name, Help: help,
		})
	}
	sizes := func(name, help string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "prefixtree", Name: name, Help: help,
			Buckets: prometheus.ExponentialBuckets(256, 2, 12),
		})
	}
	return &Metrics{
		BlocksEncoded:       counter("blocks_encoded_total", "Number of blocks encoded."),
		BlocksDecoded:       counter("blocks_decoded_total", "Number of blocks materialized into flat cells."),
		CellsEncoded:        counter("cells_encoded_total", "Number of cells encoded."),
		CellsDecoded:        counter("cells_decoded_total", "Number of cells materialized into flat cells."),
		Seeks:               counter("seeks_total", "Number of seeker positioning calls."),
		Corruptions:         counter("corruptions_total", "Number of corrupted blocks detected."),
		PoolRejections:      counter("pool_rejections_total", "Number of pool check-outs refused by MaxLive."),
		EncodedBlockSize:    sizes("encoded_block_bytes", "Size of encoded block payloads."),
		CompressedBlockSize: sizes("physical_block_bytes", "Size of framed physical blocks."),
	}
}

// Collectors returns every metric, for registration with a
// prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{
		m.BlocksEncoded, m.BlocksDecoded, m.CellsEncoded, m.CellsDecoded,
		m.Seeks, m.Corruptions, m.PoolRejections,
		m.EncodedBlockSize, m.CompressedBlockSize,
	}
}

func (m *Metrics) encoded(cells int, payload, physical int) {
	if m == nil {
		return
	}
	m.BlocksEncoded.Inc()
	m.CellsEncoded.Add(float64(cells))
	m.EncodedBlockSize.Observe(float64(payload))
	m.CompressedBlockSize.Observe(float64(physical))
}

func (m *Metrics) decoded(cells int) {
	if m == nil {
		return
	}
	m.BlocksDecoded.Inc()
	m.CellsDecoded.Add(float64(cells))
}

func (m *Metrics) seek() {
	if m != nil {
		m.Seeks.Inc()
	}
}

func (m *Metrics) corruption() {
	if m != nil {
		m.Corruptions.Inc()
	}
}

func (m *Metrics) poolRejection() {
	if m != nil {
		m.PoolRejections.Inc()
	}
}

// poolGauges returns gauges reporting the live and idle instances of a pool.
func poolGauges(namespace, name string, stats func() pool.Stats) []prometheus.Collector {
	gauge := func(suffix, help string, f func(pool.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "prefixtree", Name: name + "_" + suffix, Help: help,
		}, func() float64 { return float64(f(stats())) })
	}
	return []prometheus.Collector{
		gauge("live", "Number of checked-out "+name+".", func(s pool.Stats) int { return s.Live }),
		gauge("idle", "Number of idle "+name+" retained for reuse.", func(s pool.Stats) int { return s.Idle }),
	}
}
