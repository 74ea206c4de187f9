package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	journalRowsInsertedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srp",
			Subsystem: "wallet",
			Name:      "journal_rows_inserted_total",
			Help:      "Total wallet journal rows mirrored into local storage.",
		},
	)

	requestsReconciledCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srp",
			Subsystem: "wallet",
			Name:      "requests_reconciled_total",
			Help:      "Total reimbursement requests promoted to paid.",
		},
	)
)
