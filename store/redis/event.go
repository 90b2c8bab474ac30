package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Kind          string          `json:"kind"`
	SourceEventID string          `json:"source_event_id,omitempty"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toEventModel(se *event.StoredEvent) *eventModel {
	return &eventModel{
		ID:            se.ID.String(),
		TenantID:      se.TenantID,
		Kind:          string(se.Kind),
		SourceEventID: se.SourceEventID,
		EventType:     se.EventType,
		Payload:       se.Payload,
		CreatedAt:     se.CreatedAt,
		UpdatedAt:     se.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.StoredEvent, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	return &event.StoredEvent{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            evtID,
		TenantID:      m.TenantID,
		Kind:          event.Kind(m.Kind),
		SourceEventID: m.SourceEventID,
		EventType:     m.EventType,
		Payload:       m.Payload,
	}, nil
}

// StoreEvent persists a stored event, keeping at most one record per
// non-empty natural key via SET NX and returning the surviving record.
func (s *Store) StoreEvent(ctx context.Context, se *event.StoredEvent) (*event.StoredEvent, error) {
	m := toEventModel(se)
	key := entityKey(prefixEvent, m.ID)

	if se.SourceEventID != "" {
		natural := eventNaturalKey(m.TenantID, m.Kind, m.SourceEventID)
		ok, err := s.rdb.SetNX(ctx, natural, m.ID, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("emitter/redis: store event natural key: %w", err)
		}
		if !ok {
			return s.GetEventByKey(ctx, se.TenantID, se.Kind, se.SourceEventID)
		}
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return nil, fmt.Errorf("emitter/redis: store event: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zEventTenant+m.TenantID, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return nil, fmt.Errorf("emitter/redis: store event index: %w", err)
	}
	return se, nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.StoredEvent, error) {
	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get event: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) GetEventByKey(ctx context.Context, tenantID string, kind event.Kind, sourceEventID string) (*event.StoredEvent, error) {
	evtID, err := s.rdb.Get(ctx, eventNaturalKey(tenantID, string(kind), sourceEventID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get event by key: %w", err)
	}

	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &m); err != nil {
		if isNotFound(err) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return fromEventModel(&m)
}

func (s *Store) ListEventsByTenant(ctx context.Context, tenantID string, opts event.ListOpts) ([]*event.StoredEvent, error) {
	ids, err := s.revRangeIDs(ctx, zEventTenant+tenantID)
	if err != nil {
		return nil, fmt.Errorf("emitter/redis: list events: %w", err)
	}

	result := make([]*event.StoredEvent, 0, len(ids))
	for _, evtID := range ids {
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		se, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, se)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
