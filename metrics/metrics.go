package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_webhooks_received_total",
		Help: "Total number of webhook requests, labelled by result.",
	}, []string{"result"})

	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_events_enqueued_total",
		Help: "Total number of events placed on the deferred queue.",
	})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_events_processed_total",
		Help: "Total number of events handled by the deferred worker, labelled by type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_events_dropped_total",
		Help: "Total number of events discarded for an unknown type.",
	})

	DeferredRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_deferred_runs_total",
		Help: "Total number of deferred worker executions.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_messages_sent_total",
		Help: "Total number of outbound messages, labelled by channel and status.",
	}, []string{"channel", "status"})

	IntentDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_intent_detections_total",
		Help: "Total number of intent detection calls, labelled by status.",
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_queue_depth",
		Help: "Events currently waiting on the deferred queue.",
	})
)
