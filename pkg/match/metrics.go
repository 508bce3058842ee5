package match

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchesTotal counts smart-match cascades by terminal outcome.
	// Labels: outcome (found_known, found_unknown, auto_registered, not_found)
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "match",
			Name:      "smart_matches_total",
			Help:      "Total number of smart-match cascades by outcome",
		},
		[]string{"outcome"},
	)

	// CascadeDuration tracks wall-clock duration of whole cascades.
	CascadeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Subsystem: "match",
			Name:      "cascade_duration_seconds",
			Help:      "Duration of smart-match cascades in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FanOutSearchDuration tracks per-collection search time during fan-out.
	FanOutSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Subsystem: "match",
			Name:      "fanout_search_duration_seconds",
			Help:      "Duration of individual collection searches during fan-out",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FanOutFailures counts candidate searches excluded from aggregation.
	FanOutFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "match",
			Name:      "fanout_failures_total",
			Help:      "Total number of candidate collection searches that failed and were excluded",
		},
	)
)
