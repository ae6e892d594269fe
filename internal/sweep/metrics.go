package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medreminder",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Completed all-user sweeps.",
		},
	)

	sweepUserFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medreminder",
			Subsystem: "sweep",
			Name:      "user_failures_total",
			Help:      "Users whose run failed during a sweep.",
		},
	)

	doseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medreminder",
			Subsystem: "sweep",
			Name:      "doses_total",
			Help:      "Doses handled by user runs, by outcome.",
		},
		[]string{"outcome"},
	)
)
