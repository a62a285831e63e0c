package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh entries served, by backend.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_mirror_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks lookups that found nothing or an expired entry.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_mirror_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks failed store operations.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_mirror_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // get, put, delete
	)
)
