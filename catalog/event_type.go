package catalog

import (
	"encoding/json"
	"time"

	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// Definition is the canonical description of a custom event type. The
// platform's own "access.*" and "admin.*" types are implicit and never
// appear in the catalog.
type Definition struct {
	// Name is the dot-separated event type name, e.g. "order.shipped".
	// Reserved platform prefixes are rejected at registration.
	Name string `json:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description"`

	// Group is an optional category for organizing event types.
	Group string `json:"group,omitempty"`

	// Schema is an optional JSON Schema describing the payload shape. When
	// set, published events of this type are validated against it.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Version is the API version of this event type.
	Version string `json:"version,omitempty"`

	// Example is an optional example payload for documentation.
	Example json.RawMessage `json:"example,omitempty"`
}

// EventType is the stored entity for a registered custom event type.
type EventType struct {
	entity.Entity

	// ID is the unique TypeID for this event type.
	ID id.ID `json:"id"`

	// Definition contains the event type descriptor.
	Definition Definition `json:"definition"`

	// IsDeprecated indicates whether this event type has been soft-deleted.
	// Deprecated types stay visible in history but reject new publishes.
	IsDeprecated bool `json:"deprecated"`

	// DeprecatedAt is when the event type was deprecated.
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

// ListOpts configures filtering and pagination for event type listing.
type ListOpts struct {
	Offset            int
	Limit             int
	Group             string
	IncludeDeprecated bool
}
