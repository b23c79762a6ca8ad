// Package metrics defines the Prometheus collectors for the optimizer. The
// registry is injected by the caller so test runs stay isolated from each
// other and from the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the optimizer's collectors.
type Metrics struct {
	// GenerationsTotal counts completed generations.
	GenerationsTotal prometheus.Counter

	// Evaluations counts per-individual evaluations by result.
	Evaluations *prometheus.CounterVec

	// EvaluationDuration observes single-backtest wall time in seconds.
	EvaluationDuration prometheus.Histogram

	// BestObjective tracks the cumulative best fitness per objective index.
	BestObjective *prometheus.GaugeVec

	// EliteSetSize tracks the size of the trimmed elite set.
	EliteSetSize prometheus.Gauge

	// SplitRotations counts data-split re-rolls.
	SplitRotations prometheus.Counter

	// SequentialFallbacks counts generations re-run sequentially after a
	// worker-pool failure.
	SequentialFallbacks prometheus.Counter
}

// New registers the optimizer collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GenerationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_generations_total",
			Help: "Number of completed optimization generations",
		}),
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "optimizer_evaluations_total",
			Help: "Number of individual fitness evaluations by result",
		}, []string{"result"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "optimizer_evaluation_duration_seconds",
			Help:    "Wall time of a single backtest evaluation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		BestObjective: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimizer_best_objective",
			Help: "Cumulative best fitness per objective index (minimization)",
		}, []string{"objective"}),
		EliteSetSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "optimizer_elite_set_size",
			Help: "Current size of the trimmed elite set",
		}),
		SplitRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_split_rotations_total",
			Help: "Number of data-split re-rolls",
		}),
		SequentialFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_sequential_fallbacks_total",
			Help: "Generations re-run sequentially after a worker-pool failure",
		}),
	}
}
