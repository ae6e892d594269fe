package jobqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medreminder",
			Subsystem: "jobqueue",
			Name:      "enqueued_total",
			Help:      "Jobs written to the queue.",
		},
		[]string{"queue"},
	)

	duplicateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medreminder",
			Subsystem: "jobqueue",
			Name:      "duplicate_total",
			Help:      "Enqueue calls ignored because the key already existed.",
		},
		[]string{"queue"},
	)

	processedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medreminder",
			Subsystem: "jobqueue",
			Name:      "processed_total",
			Help:      "Job executions by outcome (done, retry, failed).",
		},
		[]string{"queue", "result"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medreminder",
			Subsystem: "jobqueue",
			Name:      "run_duration_seconds",
			Help:      "Handler execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
)
