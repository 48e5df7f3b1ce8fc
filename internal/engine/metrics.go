package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/benchrun/internal/model"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchrun_runs_total",
			Help: "Total number of runs by final status.",
		},
		[]string{"status"},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchrun_active_runs",
			Help: "1 while the sequencer has a run in progress, 0 when idle.",
		},
	)

	dispatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "benchrun_dispatches_total",
			Help: "Total number of benchmark units handed to a launcher.",
		},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benchrun_execution_seconds",
			Help:    "Wall-clock duration of a benchmark unit, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"group", "result"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(activeRuns)
	prometheus.MustRegister(dispatchesTotal)
	prometheus.MustRegister(executionDuration)

	// Pre-initialize so the series appear in /metrics from startup.
	runsTotal.WithLabelValues(model.RunCompleted)
	runsTotal.WithLabelValues(model.RunAborted)
}
