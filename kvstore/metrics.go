// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package kvstore

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes store statistics as prometheus metrics.
type Collector struct {
	store     *Store
	keys      *prometheus.Desc
	shards    *prometheus.Desc
	rehashing *prometheus.Desc
}

// NewCollector returns a prometheus collector for the store.
func NewCollector(s *Store) *Collector {
	return &Collector{
		store: s,
		keys: prometheus.NewDesc("kvstore_keys",
			"Number of keys in the store.", nil, nil),
		shards: prometheus.NewDesc("kvstore_shards",
			"Number of hash table shards.", nil, nil),
		rehashing: prometheus.NewDesc("kvstore_rehashing_shards",
			"Number of shards currently rehashing.", nil, nil),
	}
}

// Describe implements prometheus.Collector interface
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.shards
	ch <- c.rehashing
}

// Collect implements prometheus.Collector interface
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue,
		float64(c.store.Len()))
	ch <- prometheus.MustNewConstMetric(c.shards, prometheus.GaugeValue,
		float64(c.store.NumShards()))
	ch <- prometheus.MustNewConstMetric(c.rehashing, prometheus.GaugeValue,
		float64(c.store.RehashingCount()))
}
