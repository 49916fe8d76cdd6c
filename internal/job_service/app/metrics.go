package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	casTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_service",
			Name:      "cas_transitions_total",
			Help:      "Total guarded status transitions attempted.",
		},
		[]string{"to_status", "result"}, // result: "applied", "idempotent", "conflict", "invalid", "error"
	)

	dispatchesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_service",
			Name:      "dispatches_total",
			Help:      "Total dispatch-and-confirm protocol runs.",
		},
		[]string{"result"}, // "confirmed", "idempotent", "send_failed", "error"
	)

	dispatchDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "job_service",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of the send-evidence-confirm protocol.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action_type"},
	)
)
