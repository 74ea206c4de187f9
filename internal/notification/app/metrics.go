package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srp",
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notifications delivered.",
		},
		[]string{"kind"},
	)

	notificationsRescheduledCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srp",
			Subsystem: "notifications",
			Name:      "rescheduled_total",
			Help:      "Total notification send attempts pushed to a later retry.",
		},
		[]string{"kind"},
	)

	notificationsPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "srp",
			Subsystem: "notifications",
			Name:      "pending",
			Help:      "Current notification queue depth.",
		},
	)
)
