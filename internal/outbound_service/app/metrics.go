package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound_service",
			Name:      "sends_total",
			Help:      "Outbound send outcomes.",
		},
		[]string{"result"}, // "sent", "duplicate", "failed", "rejected", "error"
	)

	sendDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outbound_service",
			Name:      "provider_send_duration_seconds",
			Help:      "Duration of external provider send calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	deliveryCallbacksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound_service",
			Name:      "delivery_callbacks_total",
			Help:      "Delivery status callbacks applied, by mapped status.",
		},
		[]string{"status"},
	)
)
