package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CollectionsLoaded tracks the number of collections resident in the cache.
	CollectionsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "matchd",
			Subsystem: "store",
			Name:      "collections_loaded",
			Help:      "Number of collections loaded into the in-memory cache",
		},
	)

	// LoadFailures counts artifacts that failed to load and were reinitialized empty.
	LoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "store",
			Name:      "load_failures_total",
			Help:      "Total number of collection loads that fell back to an empty collection",
		},
	)
)
