package webhook

import (
	"context"
	"errors"

	"github.com/hooklab/emitter/id"
)

// ErrNotFound is returned when a webhook cannot be found, or when it belongs
// to a different tenant than the caller.
var ErrNotFound = errors.New("webhook: not found")

// Store defines the persistence contract for webhooks.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID.
	GetWebhook(ctx context.Context, whID id.ID) (*Webhook, error)

	// UpdateWebhook modifies an existing webhook.
	UpdateWebhook(ctx context.Context, wh *Webhook) error

	// DeleteWebhook removes a webhook and its delivery records.
	DeleteWebhook(ctx context.Context, whID id.ID) error

	// ListWebhooks returns webhooks for a tenant, optionally filtered.
	ListWebhooks(ctx context.Context, tenantID string, opts ListOpts) ([]*Webhook, error)

	// CountWebhooks returns the number of webhooks registered for a tenant.
	CountWebhooks(ctx context.Context, tenantID string) (int, error)

	// SetEnabled enables or disables a webhook without deleting it.
	SetEnabled(ctx context.Context, whID id.ID, enabled bool) error
}
