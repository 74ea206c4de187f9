package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mailsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srp",
			Subsystem: "mail",
			Name:      "processed_total",
			Help:      "Total inbound mails processed, by outcome.",
		},
		[]string{"outcome"},
	)
)
