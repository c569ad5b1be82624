package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewQueueMetrics(t *testing.T) {
	metrics := NewQueueMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewQueueMetricsWithRegisterer should not return nil")
	}
	if metrics.ordersTotal == nil {
		t.Error("ordersTotal counter vec should not be nil")
	}
	if metrics.ledgerDuration == nil {
		t.Error("ledgerDuration histogram vec should not be nil")
	}
	if metrics.renumbered == nil {
		t.Error("renumbered histogram should not be nil")
	}
	if metrics.occupancy == nil {
		t.Error("occupancy gauge vec should not be nil")
	}
}

func TestNewQueueMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewQueueMetricsWithRegisterer(reg)
	second := NewQueueMetricsWithRegisterer(reg)

	first.RecordOperation("create", ResultOK)
	second.RecordOperation("create", ResultOK)

	if got := testutil.ToFloat64(first.ordersTotal.WithLabelValues("create", ResultOK)); got != 2 {
		t.Errorf("expected shared counter value 2, got %f", got)
	}
}

func TestRecordOperation(t *testing.T) {
	metrics := NewQueueMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOperation("cancel", ResultOK)
	metrics.RecordOperation("cancel", ResultRejected)
	metrics.RecordOperation("cancel", ResultRejected)

	if got := testutil.ToFloat64(metrics.ordersTotal.WithLabelValues("cancel", ResultRejected)); got != 2 {
		t.Errorf("expected rejected counter 2, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.ordersTotal.WithLabelValues("cancel", ResultOK)); got != 1 {
		t.Errorf("expected ok counter 1, got %f", got)
	}
}

func TestRecordLedgerDuration(t *testing.T) {
	metrics := NewQueueMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordLedgerDuration("append", 10*time.Millisecond)
	metrics.RecordLedgerDuration("append", 20*time.Millisecond)
	metrics.RecordLedgerDuration("remove", 5*time.Millisecond)

	metric := &dto.Metric{}
	observer := metrics.ledgerDuration.WithLabelValues("append")
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write append metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples for append, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestRecordRenumbered(t *testing.T) {
	metrics := NewQueueMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordRenumbered(0)
	metrics.RecordRenumbered(3)

	metric := &dto.Metric{}
	if err := metrics.renumbered.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() != 3 {
		t.Errorf("expected sum 3, got %f", metric.Histogram.GetSampleSum())
	}
}

func TestSetOccupancy(t *testing.T) {
	metrics := NewQueueMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.SetOccupancy("q-1", 4)
	metrics.SetOccupancy("q-1", 3)
	metrics.SetOccupancy("q-2", 1)

	if got := testutil.ToFloat64(metrics.occupancy.WithLabelValues("q-1")); got != 3 {
		t.Errorf("expected occupancy 3 for q-1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.occupancy.WithLabelValues("q-2")); got != 1 {
		t.Errorf("expected occupancy 1 for q-2, got %f", got)
	}
}

func TestRecordTimelineAndOutboxEvents(t *testing.T) {
	metrics := NewQueueMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()

	if got := testutil.ToFloat64(metrics.timelineEvents); got != 2 {
		t.Errorf("expected timeline counter 2, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.outboxEvents); got != 1 {
		t.Errorf("expected outbox counter 1, got %f", got)
	}
}
