package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outbox row outcomes.
const (
	OutboxPublished = "published"
	OutboxRetrying  = "retrying"
	OutboxParked    = "parked"
)

// OutboxMetrics counts outbox rows settled by the publisher.
type OutboxMetrics struct {
	settled *prometheus.CounterVec
	batch   prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox rows settled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_batch_size",
		Help:      "Rows claimed per publisher poll.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
	reg.MustRegister(settled, batch)
	return &OutboxMetrics{settled: settled, batch: batch}
}

func (o *OutboxMetrics) Settled(eventType, outcome string) {
	if o == nil || o.settled == nil {
		return
	}
	o.settled.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (o *OutboxMetrics) Batch(size int) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.Observe(float64(size))
}
