package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recipientsMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_recipients_materialized_total",
			Help: "Recipients produced by materialization runs",
		},
		[]string{"outcome"}, // materialized, skipped, error
	)

	outboundJobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_outbound_job_transitions_total",
			Help: "Outbound job state transitions",
		},
		[]string{"to"},
	)

	billingEventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_billing_events_total",
			Help: "Billing ledger events by ingest result",
		},
		[]string{"event_type", "result"}, // inserted, duplicate
	)

	billingProjections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_billing_projections_total",
			Help: "Billing event projections onto message logs",
		},
		[]string{"result"}, // linked, unmatched, stale
	)

	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_messages_sent_total",
			Help: "Template sends by outcome",
		},
		[]string{"result"}, // sent, rejected, not_accepted, unknown
	)
)
