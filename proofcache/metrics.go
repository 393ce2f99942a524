package proofcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Subsystem: "proofcache",
		Name:      "hits_total",
		Help:      "Proof lookups served from a cached tree.",
	})
	misses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Subsystem: "proofcache",
		Name:      "misses_total",
		Help:      "Proof lookups that found no cached tree.",
	})
	rebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Subsystem: "proofcache",
		Name:      "rebuilds_total",
		Help:      "Trees rebuilt from the stored secrets.",
	})
	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Subsystem: "proofcache",
		Name:      "evictions_total",
		Help:      "Cached trees dropped from memory.",
	})
	mismatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentials",
		Subsystem: "proofcache",
		Name:      "commitment_mismatches_total",
		Help:      "Rebuilt trees whose root differs from the stored root.",
	})
)
