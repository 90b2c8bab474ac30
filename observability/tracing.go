package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hooklab/emitter"

// Tracer provides OpenTelemetry tracing for webhook sends.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new emitter tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSendSpan starts a new span for a send attempt.
func (t *Tracer) StartSendSpan(ctx context.Context, uid, webhookID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "emitter.send",
		trace.WithAttributes(
			attribute.String("emitter.uid", uid),
			attribute.String("emitter.webhook_id", webhookID),
			attribute.String("emitter.event_type", eventType),
		),
	)
}

// EndSendSpan ends a send span with result attributes.
func (t *Tracer) EndSendSpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("emitter.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("emitter.error", err))
	}
	span.End()
}
