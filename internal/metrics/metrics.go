// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SuppliersScored counts breakdowns produced by scoring runs.
	SuppliersScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "verdant",
		Name:      "suppliers_scored_total",
		Help:      "Suppliers scored across all scoring runs.",
	})

	// ScoreDuration observes the wall time of a full scoring run.
	ScoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "verdant",
		Name:      "score_duration_seconds",
		Help:      "Duration of population scoring runs.",
		Buckets:   prometheus.DefBuckets,
	})

	// ScenarioRuns counts finished scenario runs by kind and status.
	ScenarioRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verdant",
		Name:      "scenario_runs_total",
		Help:      "Scenario runs by kind and status.",
	}, []string{"kind", "status"})

	// ScenarioDuration observes scenario run time by kind.
	ScenarioDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verdant",
		Name:      "scenario_duration_seconds",
		Help:      "Duration of scenario runs.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	// ScreenFlags counts non-pass screen outcomes.
	ScreenFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verdant",
		Name:      "screen_flags_total",
		Help:      "Non-pass screen outcomes by screen and outcome.",
	}, []string{"screen", "outcome"})

	// RateLimited counts rejected requests.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "verdant",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)

// ObserveScenario records one finished scenario run.
func ObserveScenario(kind, status string, elapsed time.Duration) {
	ScenarioRuns.WithLabelValues(kind, status).Inc()
	ScenarioDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveScore records one finished scoring run.
func ObserveScore(suppliers int, elapsed time.Duration) {
	SuppliersScored.Add(float64(suppliers))
	ScoreDuration.Observe(elapsed.Seconds())
}
