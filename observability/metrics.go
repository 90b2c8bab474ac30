package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the emitter, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsTotal  gu.Counter
	SendsTotal   gu.Counter
	SendLatency  gu.Histogram
	DLQSize      gu.Gauge
	PendingSends gu.Gauge
}

// NewMetrics creates emitter metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector("emitter") for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsTotal:  factory.Counter("emitter_events_total"),
		SendsTotal:   factory.Counter("emitter_sends_total"),
		SendLatency:  factory.Histogram("emitter_send_latency_seconds"),
		DLQSize:      factory.Gauge("emitter_dlq_size"),
		PendingSends: factory.Gauge("emitter_pending_sends"),
	}
}

// RecordEvent records an accepted event by kind.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsTotal.WithLabels(map[string]string{"kind": kind}).Inc()
}

// RecordSend records a send attempt with the given outcome and latency.
func (m *Metrics) RecordSend(status string, latencySeconds float64) {
	m.SendsTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.SendLatency.Observe(latencySeconds)
}
