package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of txCounter.
const (
	outcomeSigned   = "signed"
	outcomeSent     = "sent"
	outcomeRejected = "rejected"
)

var (
	txCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neb_signer",
		Name:      "transactions_total",
		Help:      "Transactions handled by the signer, by outcome.",
	}, []string{"outcome"})

	nodeErrCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neb_signer",
		Name:      "node_errors_total",
		Help:      "Failed node API calls, by call.",
	}, []string{"call"})
)
