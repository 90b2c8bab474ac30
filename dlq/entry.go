package dlq

import (
	"encoding/json"
	"time"

	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// Entry represents an abandoned send in the dead letter queue. It carries
// everything needed to replay the send without the original event still
// being reachable.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// UID is the event occurrence whose delivery was abandoned.
	UID id.ID `json:"uid"`

	// WebhookID references the target webhook. Nil for the system
	// catch-all target.
	WebhookID id.ID `json:"webhook_id"`

	// EventID references the stored event, when one was persisted.
	EventID id.ID `json:"event_id"`

	// TenantID identifies the tenant that owns the event.
	TenantID string `json:"tenant_id"`

	// EventType is the canonical dotted type for filtering.
	EventType string `json:"event_type"`

	// URL is the destination at the time of failure.
	URL string `json:"url"`

	// Payload is the exact body that failed to deliver.
	Payload json.RawMessage `json:"payload"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// Attempts is the total number of send attempts made.
	Attempts int `json:"attempts"`

	// LastStatusCode is the HTTP status from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// ReplayedAt is set when the entry has been replayed.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when delivery was abandoned.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset    int
	Limit     int
	TenantID  string
	WebhookID *id.ID
	From      *time.Time
	To        *time.Time
}
