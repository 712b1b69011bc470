package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxTerminal  = "terminal"
)

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	pending prometheus.Gauge
}

// NewOutboxMetrics registers the publisher metrics. A nil registerer yields a
// no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "library_outbox_pending",
		Help: "Rows still eligible for publishing after the last batch.",
	})
	reg.MustRegister(events, pending)
	return &OutboxMetrics{events: events, pending: pending}
}

// RecordEvent counts one handled row.
func (m *OutboxMetrics) RecordEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// SetPending publishes the backlog size.
func (m *OutboxMetrics) SetPending(n int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}
