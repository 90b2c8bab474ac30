package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// sendModel is the JSON representation stored in Redis.
type sendModel struct {
	ID        string    `json:"id"`
	WebhookID string    `json:"webhook_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	EventType string    `json:"event_type"`
	Status    int       `json:"status"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSendModel(rec *delivery.SendRecord) *sendModel {
	m := &sendModel{
		ID:        rec.ID.String(),
		TenantID:  rec.TenantID,
		EventType: rec.EventType,
		Status:    rec.Status,
		Retries:   rec.Retries,
		LastError: rec.LastError,
		SentAt:    rec.SentAt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if !rec.WebhookID.IsNil() {
		m.WebhookID = rec.WebhookID.String()
	}
	if !rec.EventID.IsNil() {
		m.EventID = rec.EventID.String()
	}
	return m
}

func fromSendModel(m *sendModel) (*delivery.SendRecord, error) {
	sendID, err := id.ParseSendID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse send ID %q: %w", m.ID, err)
	}
	rec := &delivery.SendRecord{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        sendID,
		TenantID:  m.TenantID,
		EventType: m.EventType,
		Status:    m.Status,
		Retries:   m.Retries,
		LastError: m.LastError,
		SentAt:    m.SentAt,
	}
	if m.WebhookID != "" {
		whID, err := id.ParseWebhookID(m.WebhookID)
		if err != nil {
			return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
		}
		rec.WebhookID = whID
	}
	if m.EventID != "" {
		evtID, err := id.ParseEventID(m.EventID)
		if err != nil {
			return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
		}
		rec.EventID = evtID
	}
	return rec, nil
}

// RecordAttempt upserts the send record keyed by uid. The first call
// creates the record with zero retries; later calls increment the count
// and overwrite the outcome.
func (s *Store) RecordAttempt(ctx context.Context, rec *delivery.SendRecord) (*delivery.SendRecord, error) {
	key := entityKey(prefixSend, rec.ID.String())
	m := toSendModel(rec)

	var existing sendModel
	err := s.getEntity(ctx, key, &existing)
	switch {
	case err == nil:
		m.Retries = existing.Retries + 1
		m.CreatedAt = existing.CreatedAt
		m.UpdatedAt = now()
	case isNotFound(err):
		m.Retries = 0
	default:
		return nil, fmt.Errorf("emitter/redis: record attempt get: %w", err)
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return nil, fmt.Errorf("emitter/redis: record attempt: %w", err)
	}

	pipe := s.rdb.Pipeline()
	if m.WebhookID != "" {
		pipe.ZAdd(ctx, zSendWebhook+m.WebhookID, goredis.Z{Score: scoreFromTime(m.SentAt), Member: m.ID})
	}
	if m.EventID != "" {
		pipe.ZAdd(ctx, zSendEvent+m.EventID, goredis.Z{Score: scoreFromTime(m.SentAt), Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("emitter/redis: record attempt indexes: %w", err)
	}

	return fromSendModel(m)
}

func (s *Store) GetSend(ctx context.Context, sendID id.ID) (*delivery.SendRecord, error) {
	var m sendModel
	if err := s.getEntity(ctx, entityKey(prefixSend, sendID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, delivery.ErrSendNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get send: %w", err)
	}
	return fromSendModel(&m)
}

func (s *Store) ListSendsByWebhook(ctx context.Context, whID id.ID, opts delivery.SendListOpts) ([]*delivery.SendRecord, error) {
	ids, err := s.revRangeIDs(ctx, zSendWebhook+whID.String())
	if err != nil {
		return nil, fmt.Errorf("emitter/redis: list sends: %w", err)
	}

	result := make([]*delivery.SendRecord, 0, len(ids))
	for _, sendID := range ids {
		var m sendModel
		if err := s.getEntity(ctx, entityKey(prefixSend, sendID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		rec, err := fromSendModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListSendsByEvent(ctx context.Context, evtID id.ID) ([]*delivery.SendRecord, error) {
	ids, err := s.revRangeIDs(ctx, zSendEvent+evtID.String())
	if err != nil {
		return nil, fmt.Errorf("emitter/redis: list sends by event: %w", err)
	}

	result := make([]*delivery.SendRecord, 0, len(ids))
	for _, sendID := range ids {
		var m sendModel
		if err := s.getEntity(ctx, entityKey(prefixSend, sendID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		rec, err := fromSendModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}
