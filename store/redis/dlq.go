package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID             string          `json:"id"`
	UID            string          `json:"uid,omitempty"`
	WebhookID      string          `json:"webhook_id,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	TenantID       string          `json:"tenant_id"`
	EventType      string          `json:"event_type"`
	URL            string          `json:"url"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error,omitempty"`
	Attempts       int             `json:"attempts"`
	LastStatusCode int             `json:"last_status_code"`
	ReplayedAt     *time.Time      `json:"replayed_at,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDLQEntryModel(entry *dlq.Entry) *dlqEntryModel {
	m := &dlqEntryModel{
		ID:             entry.ID.String(),
		TenantID:       entry.TenantID,
		EventType:      entry.EventType,
		URL:            entry.URL,
		Payload:        entry.Payload,
		Error:          entry.Error,
		Attempts:       entry.Attempts,
		LastStatusCode: entry.LastStatusCode,
		ReplayedAt:     entry.ReplayedAt,
		FailedAt:       entry.FailedAt,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}
	if !entry.UID.IsNil() {
		m.UID = entry.UID.String()
	}
	if !entry.WebhookID.IsNil() {
		m.WebhookID = entry.WebhookID.String()
	}
	if !entry.EventID.IsNil() {
		m.EventID = entry.EventID.String()
	}
	return m
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	entry := &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		TenantID:       m.TenantID,
		EventType:      m.EventType,
		URL:            m.URL,
		Payload:        m.Payload,
		Error:          m.Error,
		Attempts:       m.Attempts,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}
	if m.UID != "" {
		uid, err := id.ParseSendID(m.UID)
		if err != nil {
			return nil, fmt.Errorf("parse send ID %q: %w", m.UID, err)
		}
		entry.UID = uid
	}
	if m.WebhookID != "" {
		whID, err := id.ParseWebhookID(m.WebhookID)
		if err != nil {
			return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
		}
		entry.WebhookID = whID
	}
	if m.EventID != "" {
		evtID, err := id.ParseEventID(m.EventID)
		if err != nil {
			return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
		}
		entry.EventID = evtID
	}
	return entry, nil
}

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)

	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("emitter/redis: push dlq: %w", err)
	}

	score := scoreFromTime(m.FailedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: score, Member: m.ID})
	if m.TenantID != "" {
		pipe.ZAdd(ctx, zDLQTenant+m.TenantID, goredis.Z{Score: score, Member: m.ID})
	}
	if m.WebhookID != "" {
		pipe.ZAdd(ctx, zDLQWebhook+m.WebhookID, goredis.Z{Score: score, Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("emitter/redis: push dlq indexes: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	indexKey := zDLQAll
	switch {
	case opts.WebhookID != nil:
		indexKey = zDLQWebhook + opts.WebhookID.String()
	case opts.TenantID != "":
		indexKey = zDLQTenant + opts.TenantID
	}

	ids, err := s.revRangeIDs(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("emitter/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.TenantID != "" && m.TenantID != opts.TenantID {
			continue
		}
		if opts.From != nil && m.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && m.FailedAt.After(*opts.To) {
			continue
		}
		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

func (s *Store) MarkReplayed(ctx context.Context, dlqID id.ID) error {
	key := entityKey(prefixDLQ, dlqID.String())

	var m dlqEntryModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return dlq.ErrNotFound
		}
		return fmt.Errorf("emitter/redis: mark replayed get: %w", err)
	}

	ts := now()
	m.ReplayedAt = &ts
	m.UpdatedAt = ts

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("emitter/redis: mark replayed: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	maxScore := fmt.Sprintf("(%f", scoreFromTime(before))
	ids, err := s.rdb.ZRangeByScore(ctx, zDLQAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("emitter/redis: purge range: %w", err)
	}

	var purged int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return purged, err
		}

		if err := s.kv.Delete(ctx, entityKey(prefixDLQ, entryID)); err != nil && !isNotFound(err) {
			return purged, fmt.Errorf("emitter/redis: purge entry: %w", err)
		}

		pipe := s.rdb.Pipeline()
		pipe.ZRem(ctx, zDLQAll, entryID)
		if m.TenantID != "" {
			pipe.ZRem(ctx, zDLQTenant+m.TenantID, entryID)
		}
		if m.WebhookID != "" {
			pipe.ZRem(ctx, zDLQWebhook+m.WebhookID, entryID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("emitter/redis: purge indexes: %w", err)
		}
		purged++
	}
	return purged, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("emitter/redis: count dlq: %w", err)
	}
	return n, nil
}
