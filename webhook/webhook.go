package webhook

import (
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// Webhook represents a delivery target registered by a tenant.
type Webhook struct {
	entity.Entity

	// ID is the unique TypeID for this webhook.
	ID id.ID `json:"id"`

	// TenantID identifies the tenant that owns this webhook.
	TenantID string `json:"tenant_id"`

	// URL is the delivery URL.
	URL string `json:"url"`

	// Enabled indicates whether the webhook receives deliveries.
	Enabled bool `json:"enabled"`

	// Secret is the HMAC signing secret for this webhook. Never serialized.
	Secret string `json:"-"`

	// Algorithm is the signing algorithm name (e.g. "HMAC-SHA256").
	Algorithm string `json:"algorithm"`

	// EventTypes are the subscription patterns: "*", a category wildcard
	// like "access.*", a regular expression, or an exact type.
	EventTypes []string `json:"event_types"`

	// RateLimit is the maximum sends per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// CreatedBy records the administrator that registered the webhook.
	CreatedBy string `json:"created_by,omitempty"`
}

// Input is the creation/update payload for webhooks.
type Input struct {
	// URL is the delivery URL. Required.
	URL string `json:"url"`

	// Enabled indicates whether the webhook receives deliveries.
	Enabled bool `json:"enabled"`

	// Secret is the HMAC signing secret. Auto-generated if empty on create;
	// left unchanged if empty on update.
	Secret string `json:"secret,omitempty"`

	// Algorithm is the signing algorithm name. Defaults to HMAC-SHA256.
	Algorithm string `json:"algorithm,omitempty"`

	// EventTypes are the subscription patterns.
	EventTypes []string `json:"event_types"`

	// RateLimit is the maximum sends per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`
}

// ListOpts configures filtering and pagination for webhook listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Enabled *bool
}
