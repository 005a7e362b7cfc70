package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records delivery outcomes and side-effect health.
type WebhookMetrics struct {
	deliveries  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	reconcile   *prometheus.HistogramVec
	noticesSent *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook deliveries by provider, event kind, and outcome.",
	}, []string{"provider", "kind", "outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_authenticity_rejections_total",
		Help: "Webhook deliveries rejected by signature verification.",
	}, []string{"provider", "reason"})
	reconcile := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_reconcile_duration_seconds",
		Help:    "Duration of the reconcile transaction per event kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "kind"})
	noticesSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Operator notifications delivered.",
	}, []string{"kind"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Side-effect failures by stage.",
	}, []string{"stage"})
	reg.MustRegister(deliveries, rejections, reconcile, noticesSent, sideEffects)
	return &WebhookMetrics{
		deliveries:  deliveries,
		rejections:  rejections,
		reconcile:   reconcile,
		noticesSent: noticesSent,
		sideEffects: sideEffects,
	}
}

// IncDelivery counts one processed delivery.
func (m *WebhookMetrics) IncDelivery(provider, kind, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncRejection counts an authenticity rejection.
func (m *WebhookMetrics) IncRejection(provider, reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

// ObserveReconcile records how long reconciliation of one event took.
func (m *WebhookMetrics) ObserveReconcile(provider, kind string, duration time.Duration) {
	if m == nil || m.reconcile == nil {
		return
	}
	m.reconcile.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind)).Observe(duration.Seconds())
}

// IncNoticeSent counts a delivered notification.
func (m *WebhookMetrics) IncNoticeSent(kind string) {
	if m == nil || m.noticesSent == nil {
		return
	}
	m.noticesSent.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncSideEffectFailure counts a failed side effect (send, queue_full, escalate).
func (m *WebhookMetrics) IncSideEffectFailure(stage string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(stage)).Inc()
}
