package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_queue",
			Name:      "jobs_dispatched_total",
			Help:      "Total number of jobs enqueued.",
		},
		[]string{"hook"},
	)

	unauthorizedDispatchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_queue",
			Name:      "unauthorized_dispatches_total",
			Help:      "Dispatch attempts rejected by authorization.",
		},
		[]string{"hook"},
	)

	jobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed by the worker.",
		},
		[]string{"hook", "status"}, // status: completed, failed, error_update_status
	)

	jobsReclaimedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "job_queue",
			Name:      "jobs_reclaimed_total",
			Help:      "Running jobs marked failed after exceeding the visibility timeout.",
		},
	)

	pollErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "job_queue",
			Name:      "poll_errors_total",
			Help:      "Worker poll cycles that failed to acquire jobs.",
		},
	)

	jobProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "job_queue",
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of job processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"hook"},
	)
)
