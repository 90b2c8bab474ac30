package webhook

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
	"github.com/hooklab/emitter/signature"
)

// Service provides webhook management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a new webhook for a tenant. A missing secret is
// auto-generated and a missing algorithm falls back to the default.
func (svc *Service) Create(ctx context.Context, tenantID, createdBy string, in Input) (*Webhook, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}
	algorithm, err := resolveAlgorithm(in.Algorithm)
	if err != nil {
		return nil, err
	}

	wh := &Webhook{
		Entity:     entity.New(),
		ID:         id.NewWebhookID(),
		TenantID:   tenantID,
		URL:        in.URL,
		Enabled:    in.Enabled,
		Secret:     secret,
		Algorithm:  algorithm,
		EventTypes: in.EventTypes,
		RateLimit:  in.RateLimit,
		CreatedBy:  createdBy,
	}

	if err := svc.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook created",
		"webhook_id", wh.ID, "tenant_id", tenantID, "url", wh.URL)
	return wh, nil
}

// Get returns a webhook by ID, scoped to a tenant.
func (svc *Service) Get(ctx context.Context, tenantID string, whID id.ID) (*Webhook, error) {
	return svc.get(ctx, tenantID, whID)
}

// Update replaces a webhook's mutable fields. The URL is required; an empty
// secret keeps the existing one, an empty algorithm resets to the default.
func (svc *Service) Update(ctx context.Context, tenantID string, whID id.ID, in Input) (*Webhook, error) {
	wh, err := svc.get(ctx, tenantID, whID)
	if err != nil {
		return nil, err
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	algorithm, err := resolveAlgorithm(in.Algorithm)
	if err != nil {
		return nil, err
	}

	wh.URL = in.URL
	wh.Enabled = in.Enabled
	wh.EventTypes = in.EventTypes
	wh.Algorithm = algorithm
	wh.RateLimit = in.RateLimit
	if in.Secret != "" {
		wh.Secret = in.Secret
	}

	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// Delete removes a webhook and its delivery records.
func (svc *Service) Delete(ctx context.Context, tenantID string, whID id.ID) error {
	if _, err := svc.get(ctx, tenantID, whID); err != nil {
		return err
	}
	return svc.store.DeleteWebhook(ctx, whID)
}

// List returns webhooks for a tenant.
func (svc *Service) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, tenantID, opts)
}

// Count returns the number of webhooks registered for a tenant.
func (svc *Service) Count(ctx context.Context, tenantID string) (int, error) {
	return svc.store.CountWebhooks(ctx, tenantID)
}

// SetEnabled enables or disables a webhook.
func (svc *Service) SetEnabled(ctx context.Context, tenantID string, whID id.ID, enabled bool) error {
	if _, err := svc.get(ctx, tenantID, whID); err != nil {
		return err
	}
	return svc.store.SetEnabled(ctx, whID, enabled)
}

// RotateSecret generates a new signing secret for a webhook and returns it.
func (svc *Service) RotateSecret(ctx context.Context, tenantID string, whID id.ID) (string, error) {
	wh, err := svc.get(ctx, tenantID, whID)
	if err != nil {
		return "", err
	}

	wh.Secret = signature.GenerateSecret()
	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return "", err
	}
	return wh.Secret, nil
}

// get fetches a webhook and enforces tenant ownership. A webhook belonging
// to a different tenant is indistinguishable from a missing one.
func (svc *Service) get(ctx context.Context, tenantID string, whID id.ID) (*Webhook, error) {
	wh, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && wh.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return wh, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "url", Message: "required"}
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	return nil
}

func resolveAlgorithm(name string) (string, error) {
	if name == "" {
		return signature.Default, nil
	}
	alg, err := signature.Normalize(name)
	if err != nil {
		return "", &ValidationError{Field: "algorithm", Message: "unsupported algorithm"}
	}
	return alg, nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
