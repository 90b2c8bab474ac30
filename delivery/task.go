package delivery

import (
	"context"

	"github.com/hooklab/emitter/backoff"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
)

// Task is one webhook's delivery obligation for one event occurrence. The
// payload bytes are fixed at creation so every attempt sends, and signs,
// exactly the same body.
type Task struct {
	// UID identifies the event occurrence. All tasks fanned out from the
	// same occurrence share it, and the send record is keyed by it.
	UID id.ID

	// WebhookID is the target webhook. Nil for the system catch-all target.
	WebhookID id.ID

	// EventID references the stored event, when one was persisted.
	EventID id.ID

	// TenantID identifies the tenant the event belongs to.
	TenantID string

	// EventType is the canonical dotted type, used for headers and records.
	EventType string

	// Kind is the event's source taxonomy.
	Kind event.Kind

	// Payload is the exact JSON body to send.
	Payload []byte

	// URL is the destination.
	URL string

	// Secret and Algorithm configure payload signing. An empty secret
	// disables signing.
	Secret    string
	Algorithm string

	// RateLimit caps sends per second for this target. 0 means unlimited.
	RateLimit int

	// Policy yields the delay before each retry. Stateful per task.
	Policy backoff.Policy

	// Attempt counts sends performed so far, starting at 0.
	Attempt int
}

// Result is the outcome of a single send attempt.
type Result struct {
	// StatusCode is the HTTP status, or 0 when no response was obtained.
	StatusCode int

	// Response is the response body, capped at 1KB.
	Response string

	// LatencyMs is the attempt duration in milliseconds.
	LatencyMs int

	// Error describes the failure, empty on success.
	Error string

	// Terminal marks failures that retrying cannot fix, such as an
	// unusable signing configuration.
	Terminal bool
}

// Success reports whether the destination acknowledged the delivery.
func (r Result) Success() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// Retryable reports whether another attempt could succeed.
func (r Result) Retryable() bool {
	return !r.Success() && !r.Terminal
}

// Sender performs a single delivery attempt.
type Sender interface {
	Send(ctx context.Context, task *Task) Result
}
