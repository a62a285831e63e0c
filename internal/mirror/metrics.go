package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FallbackTotal counts archive-suffix retries by outcome (resolved, not_found).
	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_mirror_archive_fallback_total",
			Help: "Total number of archive-suffix fallback fetches",
		},
		[]string{"result"},
	)

	// RefreshTotal counts map.json refreshes by result (ok, delete_failed, reprime_failed).
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_mirror_map_refresh_total",
			Help: "Total number of map.json cache refreshes",
		},
		[]string{"result"},
	)
)
