package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "circuit_breaker",
			Name:      "state",
			Help:      "Current breaker state (0 closed, 1 open, 2 half-open).",
		},
		[]string{"service"},
	)

	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circuit_breaker",
			Name:      "transitions_total",
			Help:      "Total breaker state transitions.",
		},
		[]string{"service", "to"},
	)

	breakerShortCircuits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circuit_breaker",
			Name:      "short_circuits_total",
			Help:      "Calls skipped because the circuit was open.",
		},
		[]string{"service"},
	)
)
