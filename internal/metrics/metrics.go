// Package metrics exposes Prometheus counters and gauges for the file
// store, following the same promauto-vars style used for cache
// instrumentation elsewhere in the ecosystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hits counts cache hits, partitioned by whether they were resolved
	// directly or through a variation indirection.
	Hits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpcache_hits_total",
			Help: "Total number of cache hits.",
		},
		[]string{"kind"}, // "direct", "variation"
	)

	// Misses counts cache misses.
	Misses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_misses_total",
			Help: "Total number of cache misses.",
		},
	)

	// Stores counts successful publications.
	Stores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_stores_total",
			Help: "Total number of responses stored to the cache.",
		},
	)

	// Evictions counts entries removed by capacity-based purge.
	Evictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_evictions_total",
			Help: "Total number of entries evicted by capacity purge.",
		},
	)

	// Expirations counts entries found expired on lookup.
	Expirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_expirations_total",
			Help: "Total number of entries found expired on lookup.",
		},
	)

	// Orphans counts body files unlinked by the orphan sweeper.
	Orphans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_orphans_total",
			Help: "Total number of orphaned body files removed by sweep.",
		},
	)

	// Entries is the current number of permanent metadata/variation files.
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpcache_entries",
			Help: "Current number of permanent cache entries on disk.",
		},
	)
)
