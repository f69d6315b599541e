package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "event_bus",
			Name:      "events_dispatched_total",
			Help:      "Events dispatched, by mode (sync, async, async_fallback, async_reentry).",
		},
		[]string{"mode"},
	)

	handlerFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "event_bus",
			Name:      "handler_failures_total",
			Help:      "Handler errors and panics, by event name.",
		},
		[]string{"event"},
	)

	listenersRejectedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "event_bus",
			Name:      "listeners_rejected_total",
			Help:      "Listen calls rejected by the handler caps.",
		},
	)

	registeredHandlersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "event_bus",
			Name:      "registered_handlers",
			Help:      "Handlers currently registered on the bus.",
		},
	)
)
