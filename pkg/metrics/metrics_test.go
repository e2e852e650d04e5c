package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "notification-cleanup"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "bazaar_cron_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_cron_job_failure_total", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "bazaar_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestSideEffectMetricsCountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSideEffectMetrics(reg)
	m.Failed(SideEffectPushSend)
	m.Failed(SideEffectPushSend)
	m.Failed(SideEffectEmailSend)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_side_effect_failures_total", "kind", SideEffectPushSend); err != nil || got != 2 {
		t.Fatalf("expected push failures=2, got %f err %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_side_effect_failures_total", "kind", SideEffectEmailSend); err != nil || got != 1 {
		t.Fatalf("expected email failures=1, got %f err %v", got, err)
	}
}

func TestQueueMetricsProcessed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueueMetrics(reg)
	m.Enqueued("imageUpload")
	m.Processed("imageUpload", OutcomeRetried, time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_queue_jobs_enqueued_total", "queue", "imageUpload"); err != nil || got != 1 {
		t.Fatalf("expected enqueued=1, got %f err %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_queue_jobs_processed_total", "outcome", OutcomeRetried); err != nil || got != 1 {
		t.Fatalf("expected retried=1, got %f err %v", got, err)
	}
}

func TestOutboxMetricsSettled(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Batch(3)
	m.Settled("listing.created", OutboxPublished)
	m.Settled("listing.created", OutboxPublished)
	m.Settled("listing.created", OutboxParked)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_outbox_events_total", "outcome", OutboxPublished); err != nil || got != 2 {
		t.Fatalf("expected published=2, got %f err %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_outbox_events_total", "outcome", OutboxParked); err != nil || got != 1 {
		t.Fatalf("expected parked=1, got %f err %v", got, err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewCronJobMetrics(nil).IncSuccess("x")
	NewOutboxMetrics(nil).Settled("x", OutboxRetrying)
	NewSideEffectMetrics(nil).Failed("x")
	NewQueueMetrics(nil).Processed("q", OutcomeCompleted, time.Millisecond)
	var nilMetrics *SideEffectMetrics
	nilMetrics.Failed("x")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
