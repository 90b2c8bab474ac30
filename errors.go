package emitter

import (
	"errors"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/webhook"
)

// Sentinel errors returned by Emitter operations. The lookup errors are the
// subsystem sentinels re-exported, so errors.Is works against either name.
var (
	// ErrNoStore is returned when an Emitter is created without a store.
	ErrNoStore = errors.New("emitter: store is required")

	// ErrWebhookNotFound is returned when a webhook cannot be found.
	ErrWebhookNotFound = webhook.ErrNotFound

	// ErrEventNotFound is returned when a stored event cannot be found.
	ErrEventNotFound = event.ErrNotFound

	// ErrSendNotFound is returned when a send record cannot be found.
	ErrSendNotFound = delivery.ErrSendNotFound

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = dlq.ErrNotFound

	// ErrEventTypeNotFound is returned when an event type is not registered
	// in the catalog.
	ErrEventTypeNotFound = catalog.ErrNotFound

	// ErrEventTypeDeprecated is returned when publishing an event with a
	// deprecated type.
	ErrEventTypeDeprecated = catalog.ErrDeprecated

	// ErrReservedEventType is returned when a custom event's type uses a
	// reserved platform prefix.
	ErrReservedEventType = event.ErrReservedType

	// ErrPayloadValidationFailed is returned when a published payload fails
	// JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("emitter: payload validation failed")
)
