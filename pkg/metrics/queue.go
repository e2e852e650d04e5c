package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Queue job outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeStalled   = "stalled"
)

// QueueMetrics records background job processing.
type QueueMetrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	enqueued  *prometheus.CounterVec
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	if reg == nil {
		return &QueueMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_jobs_processed_total",
		Help:      "Jobs handled by workers, by queue and outcome.",
	}, []string{"queue", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "queue_job_duration_seconds",
		Help:      "Time spent running a single job attempt.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"queue"})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_jobs_enqueued_total",
		Help:      "Jobs accepted by a queue.",
	}, []string{"queue"})
	reg.MustRegister(processed, duration, enqueued)
	return &QueueMetrics{processed: processed, duration: duration, enqueued: enqueued}
}

func (q *QueueMetrics) Enqueued(queue string) {
	if q == nil || q.enqueued == nil {
		return
	}
	q.enqueued.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (q *QueueMetrics) Processed(queue, outcome string, took time.Duration) {
	if q == nil || q.processed == nil {
		return
	}
	q.processed.WithLabelValues(normalizeLabel(queue), normalizeLabel(outcome)).Inc()
	q.duration.WithLabelValues(normalizeLabel(queue)).Observe(took.Seconds())
}
