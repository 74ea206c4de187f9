package esi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "srp",
			Subsystem: "esi",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests to ESI.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	throttleWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srp",
			Subsystem: "esi",
			Name:      "throttle_wait_seconds_total",
			Help:      "Total seconds spent waiting on ESI throttle signals.",
		},
	)
)
