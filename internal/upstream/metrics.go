package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts network fetches by status class (2xx, 4xx, error, ...).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_mirror_upstream_requests_total",
			Help: "Total number of upstream requests by status class",
		},
		[]string{"class"},
	)

	// RequestDuration observes time to first byte plus body read.
	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "repo_mirror_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
