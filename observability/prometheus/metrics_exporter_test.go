package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestExporter(t *testing.T) (*MetricsExporter, *prom.Registry) {
	t.Helper()
	reg := prom.NewRegistry()
	m, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}
	return m, reg
}

func findMetricFamily(t *testing.T, reg *prom.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestRecordTaskDuration(t *testing.T) {
	m, reg := newTestExporter(t)

	m.RecordTaskDuration("p1", 15*time.Millisecond)
	m.RecordTaskDuration("p1", 30*time.Millisecond)

	mf := findMetricFamily(t, reg, "forkjoin_task_duration_seconds")
	if mf == nil {
		t.Fatal("task_duration_seconds not gathered")
	}
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", h.GetSampleCount())
	}
	want := 0.045
	if got := h.GetSampleSum(); got < want-0.001 || got > want+0.001 {
		t.Errorf("expected sum about %v, got %v", want, got)
	}
}

func TestRecordTaskPanic(t *testing.T) {
	m, _ := newTestExporter(t)

	m.RecordTaskPanic("p1", "boom")
	m.RecordTaskPanic("p1", "boom again")

	got := testutil.ToFloat64(m.taskPanicTotal.WithLabelValues("p1"))
	if got != 2 {
		t.Errorf("expected 2 panics, got %v", got)
	}
}

func TestRecordTaskRejected(t *testing.T) {
	m, _ := newTestExporter(t)

	m.RecordTaskRejected("p1", "shutdown")
	m.RecordTaskRejected("p1", "shutdown")
	m.RecordTaskRejected("p1", "")

	if got := testutil.ToFloat64(m.taskRejectedTotal.WithLabelValues("p1", "shutdown")); got != 2 {
		t.Errorf("expected 2 shutdown rejections, got %v", got)
	}
	if got := testutil.ToFloat64(m.taskRejectedTotal.WithLabelValues("p1", "unknown")); got != 1 {
		t.Errorf("expected empty reason to normalize to unknown, got %v", got)
	}
}

func TestRecordSteal(t *testing.T) {
	m, _ := newTestExporter(t)

	m.RecordSteal("p1", true)
	m.RecordSteal("p1", true)
	m.RecordSteal("p1", false)

	if got := testutil.ToFloat64(m.stealTotal.WithLabelValues("p1", "hit")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.stealTotal.WithLabelValues("p1", "miss")); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}
}

func TestRecordQueueDepth(t *testing.T) {
	m, _ := newTestExporter(t)

	m.RecordQueueDepth("p1", 0, 7)
	m.RecordQueueDepth("p1", 0, 3)
	m.RecordQueueDepth("p1", -1, 2)

	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("p1", "0")); got != 3 {
		t.Errorf("expected latest depth 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("p1", "shared")); got != 2 {
		t.Errorf("expected shared depth 2, got %v", got)
	}
}

func TestDuplicateRegistrationReusesCollectors(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second registration should reuse existing collectors: %v", err)
	}

	first.RecordTaskPanic("p1", "x")
	second.RecordTaskPanic("p1", "y")

	if got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("p1")); got != 2 {
		t.Errorf("expected shared counter at 2, got %v", got)
	}
}
