package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bazaar"

// Side effect kinds reported by best-effort paths.
const (
	SideEffectRealtimeEmit  = "realtime_emit"
	SideEffectEmailSend     = "email_send"
	SideEffectPushSend      = "push_send"
	SideEffectTokenCleanup  = "token_cleanup"
	SideEffectUploadEnqueue = "upload_enqueue"
	SideEffectEventPublish  = "event_publish"
	SideEffectInAppInsert   = "in_app_insert"
)

// SideEffectRecorder counts failures of fire-and-forget work.
type SideEffectRecorder interface {
	Failed(kind string)
}

// SideEffectMetrics exports bazaar_side_effect_failures_total{kind}.
type SideEffectMetrics struct {
	failures *prometheus.CounterVec
}

func NewSideEffectMetrics(reg prometheus.Registerer) *SideEffectMetrics {
	if reg == nil {
		return &SideEffectMetrics{}
	}
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effect_failures_total",
		Help:      "Best-effort side effects that failed, by kind.",
	}, []string{"kind"})
	reg.MustRegister(failures)
	return &SideEffectMetrics{failures: failures}
}

func (m *SideEffectMetrics) Failed(kind string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(kind)).Inc()
}

// NopSideEffects discards failure reports.
type NopSideEffects struct{}

func (NopSideEffects) Failed(string) {}
