package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResponsesTotal counts responses written to clients by branch and status code.
var ResponsesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "repo_mirror_responses_total",
		Help: "Total number of client responses by branch and status code",
	},
	[]string{"branch", "status"},
)
