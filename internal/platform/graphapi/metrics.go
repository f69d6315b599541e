package graphapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graph_api",
			Name:      "attempts_total",
			Help:      "Graph API call attempts by outcome.",
		},
		[]string{"method", "outcome"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graph_api",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests to the Graph API.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
