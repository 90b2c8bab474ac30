package catalog

import (
	"context"
	"errors"

	"github.com/hooklab/emitter/id"
)

// ErrNotFound is returned when an event type is not registered.
var ErrNotFound = errors.New("catalog: event type not found")

// ErrDeprecated is returned when publishing an event of a deprecated type.
var ErrDeprecated = errors.New("catalog: event type is deprecated")

// Store defines the persistence contract for the event type catalog.
type Store interface {
	// RegisterType creates or updates an event type definition, keyed by
	// definition name.
	RegisterType(ctx context.Context, et *EventType) error

	// GetType returns an event type by name (e.g. "order.shipped").
	GetType(ctx context.Context, name string) (*EventType, error)

	// GetTypeByID returns an event type by its TypeID.
	GetTypeByID(ctx context.Context, etID id.ID) (*EventType, error)

	// ListTypes returns registered event types, optionally filtered.
	ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error)

	// DeleteType soft-deletes (deprecates) an event type.
	DeleteType(ctx context.Context, name string) error
}
