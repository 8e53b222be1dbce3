// Package metrics provides Prometheus instrumentation for the matching
// engine. It exposes gauges for queue and match counts, counters for
// pairing throughput and outcomes, and histograms for wait and sweep
// durations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of users in the matching queue.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spinmatch_queue_size",
		Help: "Current number of users in the matching queue",
	})

	// ActiveMatches tracks the current number of non-ended matches.
	ActiveMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spinmatch_active_matches",
		Help: "Current number of non-ended matches",
	})

	// PairsCreatedTotal counts matches created by the pairing engine.
	PairsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spinmatch_pairs_created_total",
		Help: "Total number of matches created",
	})

	// OutcomesTotal counts resolved match outcomes, labeled by outcome:
	// "both_yes", "yes_pass", "both_pass", or "abandoned".
	OutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spinmatch_outcomes_total",
		Help: "Total number of resolved match outcomes",
	}, []string{"outcome"})

	// WaitDuration records how long users waited before being paired.
	WaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spinmatch_wait_duration_seconds",
		Help:    "Time from queue join to pairing",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 60, 120, 300},
	})

	// GuardianRepairsTotal counts guardian repairs, labeled by kind:
	// "ghost_entry", "stale_match", "expired_vote", or "state_resync".
	GuardianRepairsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spinmatch_guardian_repairs_total",
		Help: "Total number of inconsistencies repaired by the guardian",
	}, []string{"kind"})

	// SweepDuration records guardian sweep wall time in seconds.
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spinmatch_guardian_sweep_duration_seconds",
		Help:    "Guardian sweep duration in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActiveMatches,
		PairsCreatedTotal,
		OutcomesTotal,
		WaitDuration,
		GuardianRepairsTotal,
		SweepDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
