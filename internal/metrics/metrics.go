package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paywatch_events_normalized_total",
		Help: "Total number of events normalized, labelled by method and provider.",
	}, []string{"method", "provider"})

	NormalizationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paywatch_normalization_failures_total",
		Help: "Total number of normalization failures, labelled by error class.",
	}, []string{"class"})

	AIAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paywatch_ai_attempts_total",
		Help: "Total number of language-model attempts, labelled by model and outcome.",
	}, []string{"model", "outcome"})

	AIFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paywatch_ai_fallbacks_total",
		Help: "Total number of times the secondary model answered for the primary.",
	})

	WorkerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paywatch_worker_cycles_total",
		Help: "Total number of ingestion worker cycles, labelled by outcome.",
	}, []string{"outcome"})

	WorkerBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paywatch_worker_batch_size",
		Help:    "Number of raw records fetched per ingestion cycle.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paywatch_ingest_duration_ms",
		Help:    "End-to-end single-event ingest latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 15000},
	})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paywatch_alerts_emitted_total",
		Help: "Total number of alerts emitted, labelled by severity and type.",
	}, []string{"severity", "type"})
)
