package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций жизненного цикла для метки result.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// QueueMetrics содержит метрики очередей и жизненного цикла заказов.
type QueueMetrics struct {
	// Счётчик операций жизненного цикла по результату
	ordersTotal *prometheus.CounterVec

	// Время выполнения операций леджера
	ledgerDuration *prometheus.HistogramVec
	// Сколько записей сдвинуто одним удалением
	renumbered prometheus.Histogram

	// Текущая заполненность очередей
	occupancy *prometheus.GaugeVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewQueueMetrics создаёт метрики в стандартном регистре prometheus.
func NewQueueMetrics() *QueueMetrics {
	return NewQueueMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewQueueMetricsWithRegisterer создаёт метрики в переданном регистре (удобно для тестов).
func NewQueueMetricsWithRegisterer(registerer prometheus.Registerer) *QueueMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &QueueMetrics{
		ordersTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopqueue_orders_total",
			Help: "Total number of order lifecycle operations by operation and result",
		}, []string{"operation", "result"}),
		ledgerDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shopqueue_ledger_operation_duration_seconds",
			Help:    "Duration of queue ledger operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
		renumbered: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shopqueue_ledger_renumbered_entries",
			Help:    "Number of queue entries shifted by a single removal",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		occupancy: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "shopqueue_queue_occupancy",
			Help: "Number of active entries per queue",
		}, []string{"queue_id"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopqueue_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopqueue_outbox_events_enqueued_total",
			Help: "Total number of events written to the outbox",
		}),
	}
}

// RecordOperation увеличивает счётчик операций жизненного цикла.
func (m *QueueMetrics) RecordOperation(operation, result string) {
	m.ordersTotal.WithLabelValues(operation, result).Inc()
}

// RecordLedgerDuration записывает время выполнения операции леджера.
func (m *QueueMetrics) RecordLedgerDuration(operation string, duration time.Duration) {
	m.ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRenumbered фиксирует количество сдвинутых записей.
func (m *QueueMetrics) RecordRenumbered(count int) {
	m.renumbered.Observe(float64(count))
}

// SetOccupancy выставляет текущую заполненность очереди.
func (m *QueueMetrics) SetOccupancy(queueID string, occupancy int) {
	m.occupancy.WithLabelValues(queueID).Set(float64(occupancy))
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *QueueMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *QueueMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
