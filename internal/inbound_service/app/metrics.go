package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	receiptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_service",
			Name:      "receipts_total",
			Help:      "Inbound receipt creation attempts.",
		},
		[]string{"result"}, // "created", "duplicate", "rejected", "error"
	)

	enqueueFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inbound_service",
			Name:      "enqueue_failures_total",
			Help:      "Processing tasks that could not be enqueued; the sweep re-enqueues them.",
		},
	)

	processTasksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_service",
			Name:      "process_tasks_total",
			Help:      "Processing task outcomes.",
		},
		[]string{"result"}, // "processed", "absorbed", "retried", "failed", "error"
	)

	routedMessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_service",
			Name:      "routed_messages_total",
			Help:      "Messages resolved per route.",
		},
		[]string{"route"},
	)

	sweptReceiptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inbound_service",
			Name:      "swept_receipts_total",
			Help:      "Stuck queued receipts re-enqueued by the sweep.",
		},
	)
)
