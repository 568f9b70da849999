package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики процессора, экспортируемые на /metrics. Регистрируются на
// prometheus.DefaultRegisterer при загрузке пакета, как reqTotal у
// automata-api — ровно один набор на процесс.
var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobcore_jobs_processed_total",
		Help: "Total job attempts processed, by job type and outcome.",
	}, []string{"type", "outcome"})

	AttemptDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobcore_attempt_duration_seconds",
		Help:    "Duration of a single handler invocation, by job type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobcore_queue_depth",
		Help: "Current number of jobs buffered in the in-process queue.",
	})

	DeadLetterTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobcore_dead_letter_total",
		Help: "Total jobs that exhausted their retry budget and moved to dead-letter.",
	})
)
