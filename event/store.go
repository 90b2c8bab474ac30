package event

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// ErrNotFound is returned when a stored event cannot be found.
var ErrNotFound = errors.New("event: not found")

// StoredEvent is a canonical event kept for correlation and replay. At
// most one exists per natural key (tenant, kind, source event id).
type StoredEvent struct {
	entity.Entity

	// ID is the unique TypeID for this record.
	ID id.ID `json:"id"`

	// TenantID identifies the owning tenant.
	TenantID string `json:"tenant_id"`

	// Kind is the source taxonomy (USER or ADMIN; only platform-native
	// events are stored).
	Kind Kind `json:"kind"`

	// SourceEventID is the platform's id for the raw event.
	SourceEventID string `json:"source_event_id"`

	// EventType is the canonical dotted type, duplicated for filtering.
	EventType string `json:"event_type"`

	// Payload is the serialized canonical Event, replayed verbatim on a
	// manual resend.
	Payload json.RawMessage `json:"payload"`
}

// Unmarshal decodes the stored payload back into an Event.
func (se *StoredEvent) Unmarshal() (*Event, error) {
	var evt Event
	if err := json.Unmarshal(se.Payload, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// ListOpts configures pagination for stored event listing.
type ListOpts struct {
	Offset int
	Limit  int
}

// Store defines the persistence contract for stored events.
type Store interface {
	// StoreEvent persists se unless a record with the same natural key
	// already exists, in which case the existing record is returned
	// untouched (idempotent insert; look up before insert).
	StoreEvent(ctx context.Context, se *StoredEvent) (*StoredEvent, error)

	// GetEvent returns a stored event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*StoredEvent, error)

	// GetEventByKey returns a stored event by its natural key.
	GetEventByKey(ctx context.Context, tenantID string, kind Kind, sourceEventID string) (*StoredEvent, error)

	// ListEventsByTenant returns stored events for a tenant, newest first.
	ListEventsByTenant(ctx context.Context, tenantID string, opts ListOpts) ([]*StoredEvent, error)
}
