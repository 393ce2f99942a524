package issuer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	electionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Name:      "elections_issued_total",
		Help:      "Elections whose credentials were issued.",
	})
	credentialsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Name:      "issued_total",
		Help:      "Voter credentials issued.",
	})
	electionsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Name:      "elections_suspended_total",
		Help:      "Elections suspended after a commitment mismatch.",
	})
	voteRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credentials",
		Subsystem: "ledger",
		Name:      "vote_records_total",
		Help:      "Vote completion records by outcome.",
	}, []string{"outcome"})
)
