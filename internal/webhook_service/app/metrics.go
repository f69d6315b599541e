package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	envelopesPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "envelopes_published_total",
			Help:      "Normalized webhook units published to the event bus.",
		},
		[]string{"kind"}, // message, status, error
	)

	envelopesRejectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "envelopes_rejected_total",
			Help:      "Webhook units dropped before publishing.",
		},
		[]string{"reason"}, // invalid_id, claim_error, decode_error
	)

	duplicatesSkippedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "duplicates_skipped_total",
			Help:      "Messages skipped because their external id was already claimed.",
		},
	)

	unknownFieldsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "unknown_fields_total",
			Help:      "Changes skipped because their field is not routed.",
		},
		[]string{"field"},
	)

	intentsDetectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "intents_detected_total",
			Help:      "Detected intent of inbound messages.",
		},
		[]string{"intent"},
	)

	readReceiptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "read_receipts_total",
			Help:      "Read receipts sent to the Graph API.",
		},
		[]string{"status"}, // sent, failed, circuit_open
	)
)
