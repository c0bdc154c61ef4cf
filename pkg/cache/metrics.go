package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by artifact kind and tier (memory, redis).
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosync_cache_hits_total",
			Help: "Total artifact cache hits by kind and tier",
		},
		[]string{"kind", "tier"},
	)

	// cacheMisses tracks cache misses by artifact kind.
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosync_cache_misses_total",
			Help: "Total artifact cache misses by kind",
		},
		[]string{"kind"},
	)

	// cacheEvictions tracks LRU evictions by artifact kind.
	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosync_cache_evictions_total",
			Help: "Total LRU evictions by artifact kind",
		},
		[]string{"kind"},
	)

	// cacheEntries tracks the current entry count by artifact kind.
	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geosync_cache_entries",
			Help: "Current number of cached artifacts by kind",
		},
		[]string{"kind"},
	)

	// cacheErrors tracks persistent tier operation errors.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosync_cache_errors_total",
			Help: "Total cache tier operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
