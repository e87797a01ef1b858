package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrialsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_trials_total",
		Help: "Total number of trials evaluated, by outcome status",
	}, []string{"status"})

	TrialDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_trial_duration_seconds",
		Help:    "Wall-clock duration of a single trial evaluation",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optimizer_active_workers",
		Help: "Number of scheduler workers currently evaluating a trial",
	})

	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_runs_total",
		Help: "Total number of completed optimization runs, by search kind",
	}, []string{"kind"})

	RunsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optimizer_runs_stored",
		Help: "Number of run records currently in the results index",
	})
)
