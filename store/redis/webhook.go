package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
	"github.com/hooklab/emitter/webhook"
)

// webhookModel is the JSON representation stored in Redis.
type webhookModel struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	URL        string    `json:"url"`
	Enabled    bool      `json:"enabled"`
	Secret     string    `json:"secret"`
	Algorithm  string    `json:"algorithm"`
	EventTypes []string  `json:"event_types"`
	RateLimit  int       `json:"rate_limit"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:         wh.ID.String(),
		TenantID:   wh.TenantID,
		URL:        wh.URL,
		Enabled:    wh.Enabled,
		Secret:     wh.Secret,
		Algorithm:  wh.Algorithm,
		EventTypes: wh.EventTypes,
		RateLimit:  wh.RateLimit,
		CreatedBy:  wh.CreatedBy,
		CreatedAt:  wh.CreatedAt,
		UpdatedAt:  wh.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         whID,
		TenantID:   m.TenantID,
		URL:        m.URL,
		Enabled:    m.Enabled,
		Secret:     m.Secret,
		Algorithm:  m.Algorithm,
		EventTypes: m.EventTypes,
		RateLimit:  m.RateLimit,
		CreatedBy:  m.CreatedBy,
	}, nil
}

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)
	key := entityKey(prefixWebhook, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("emitter/redis: create webhook: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zWebhookTenant+m.TenantID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.Enabled {
		pipe.SAdd(ctx, enabledSetKey(m.TenantID), m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("emitter/redis: create webhook indexes: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, whID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, webhook.ErrNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get webhook: %w", err)
	}
	return fromWebhookModel(&m)
}

func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	key := entityKey(prefixWebhook, wh.ID.String())

	var existing webhookModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isNotFound(err) {
			return webhook.ErrNotFound
		}
		return fmt.Errorf("emitter/redis: update webhook get: %w", err)
	}

	m := toWebhookModel(wh)
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("emitter/redis: update webhook: %w", err)
	}

	if m.Enabled {
		s.rdb.SAdd(ctx, enabledSetKey(m.TenantID), m.ID)
	} else {
		s.rdb.SRem(ctx, enabledSetKey(m.TenantID), m.ID)
	}
	return nil
}

// DeleteWebhook removes a webhook, its indexes, and its send history.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	key := entityKey(prefixWebhook, whID.String())

	var m webhookModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return webhook.ErrNotFound
		}
		return fmt.Errorf("emitter/redis: delete webhook get: %w", err)
	}

	// Cascade: drop the webhook's send records and their event indexes.
	sendIDs, err := s.rdb.ZRange(ctx, zSendWebhook+m.ID, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("emitter/redis: delete webhook sends: %w", err)
	}
	for _, sendID := range sendIDs {
		var sm sendModel
		if err := s.getEntity(ctx, entityKey(prefixSend, sendID), &sm); err == nil && sm.EventID != "" {
			s.rdb.ZRem(ctx, zSendEvent+sm.EventID, sendID)
		}
		if err := s.kv.Delete(ctx, entityKey(prefixSend, sendID)); err != nil && !isNotFound(err) {
			return fmt.Errorf("emitter/redis: delete send record: %w", err)
		}
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("emitter/redis: delete webhook: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, zSendWebhook+m.ID)
	pipe.ZRem(ctx, zWebhookTenant+m.TenantID, m.ID)
	pipe.SRem(ctx, enabledSetKey(m.TenantID), m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("emitter/redis: delete webhook indexes: %w", err)
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, tenantID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.ZRange(ctx, zWebhookTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("emitter/redis: list webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, 0, len(ids))
	for _, whID := range ids {
		var m webhookModel
		if err := s.getEntity(ctx, entityKey(prefixWebhook, whID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Enabled != nil && m.Enabled != *opts.Enabled {
			continue
		}
		wh, err := fromWebhookModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountWebhooks(ctx context.Context, tenantID string) (int, error) {
	n, err := s.rdb.ZCard(ctx, zWebhookTenant+tenantID).Result()
	if err != nil {
		return 0, fmt.Errorf("emitter/redis: count webhooks: %w", err)
	}
	return int(n), nil
}

func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	key := entityKey(prefixWebhook, whID.String())

	var m webhookModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return webhook.ErrNotFound
		}
		return fmt.Errorf("emitter/redis: set enabled get: %w", err)
	}

	m.Enabled = enabled
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("emitter/redis: set enabled: %w", err)
	}

	if enabled {
		s.rdb.SAdd(ctx, enabledSetKey(m.TenantID), m.ID)
	} else {
		s.rdb.SRem(ctx, enabledSetKey(m.TenantID), m.ID)
	}
	return nil
}
