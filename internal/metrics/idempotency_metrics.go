package metrics

import "github.com/prometheus/client_golang/prometheus"

// Исходы обработки запроса с Idempotency-Key для метки outcome.
const (
	IdempotencyFresh    = "fresh"
	IdempotencyReplayed = "replayed"
	IdempotencyConflict = "conflict"
	IdempotencyInFlight = "in_flight"
	IdempotencyError    = "error"
)

// IdempotencyMetrics содержит метрики ключей идемпотентности и воркера их очистки.
type IdempotencyMetrics struct {
	requests       *prometheus.CounterVec
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
}

// NewIdempotencyMetrics создаёт метрики в стандартном регистре prometheus.
func NewIdempotencyMetrics() *IdempotencyMetrics {
	return NewIdempotencyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewIdempotencyMetricsWithRegisterer создаёт метрики в переданном регистре.
func NewIdempotencyMetricsWithRegisterer(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IdempotencyMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopqueue_idempotency_requests_total",
			Help: "Total number of requests carrying an idempotency key grouped by outcome.",
		}, []string{"outcome"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopqueue_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopqueue_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: register[prometheus.Gauge](registerer, "shopqueue_idempotency_cleanup_last_deleted", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopqueue_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		})),
	}
}

// RecordRequest учитывает исход обработки запроса с ключом идемпотентности.
func (m *IdempotencyMetrics) RecordRequest(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

// RecordCleanup учитывает прогон очистки; deleted < 0 означает неуспешный прогон.
func (m *IdempotencyMetrics) RecordCleanup(deleted int) {
	if deleted < 0 {
		m.cleanupRuns.WithLabelValues(ResultError).Inc()
		return
	}
	m.cleanupRuns.WithLabelValues(ResultOK).Inc()
	m.cleanupDeleted.Add(float64(deleted))
	m.lastDeleted.Set(float64(deleted))
}
