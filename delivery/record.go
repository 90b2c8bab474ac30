package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// ErrSendNotFound is returned when a send record cannot be found.
var ErrSendNotFound = errors.New("delivery: send record not found")

// SendRecord is the durable bookkeeping row for one webhook's delivery of
// one event occurrence. Its ID is the occurrence uid, so every attempt for
// the same occurrence lands on the same record.
type SendRecord struct {
	entity.Entity

	// ID is the occurrence uid this record tracks.
	ID id.ID `json:"id"`

	// WebhookID is the target webhook. Nil for the system catch-all.
	WebhookID id.ID `json:"webhook_id"`

	// EventID references the stored event, when one was persisted.
	EventID id.ID `json:"event_id"`

	// TenantID identifies the tenant the event belongs to.
	TenantID string `json:"tenant_id"`

	// EventType is the canonical dotted type.
	EventType string `json:"event_type"`

	// Status is the HTTP status from the most recent attempt, 0 when no
	// response was obtained.
	Status int `json:"status"`

	// Retries counts attempts after the first. The first attempt leaves it
	// at zero.
	Retries int `json:"retries"`

	// LastError describes the most recent failure, empty on success.
	LastError string `json:"last_error,omitempty"`

	// SentAt is when the most recent attempt finished.
	SentAt time.Time `json:"sent_at"`
}

// SendListOpts configures pagination for send record listing.
type SendListOpts struct {
	Offset int
	Limit  int
}

// Store defines the persistence contract for send records.
type Store interface {
	// RecordAttempt upserts the record for rec.ID. The first call for a
	// uid creates the record with Retries 0; each later call increments
	// Retries and overwrites the outcome fields. The surviving record is
	// returned.
	RecordAttempt(ctx context.Context, rec *SendRecord) (*SendRecord, error)

	// GetSend returns a send record by uid.
	GetSend(ctx context.Context, sendID id.ID) (*SendRecord, error)

	// ListSendsByWebhook returns a webhook's send history, newest first.
	ListSendsByWebhook(ctx context.Context, whID id.ID, opts SendListOpts) ([]*SendRecord, error)

	// ListSendsByEvent returns all send records for a stored event.
	ListSendsByEvent(ctx context.Context, evtID id.ID) ([]*SendRecord, error)
}
