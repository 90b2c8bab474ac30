package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// eventTypeModel is the JSON representation stored in Redis.
type eventTypeModel struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Group        string          `json:"group,omitempty"`
	Schema       json.RawMessage `json:"schema,omitempty"`
	Version      string          `json:"version,omitempty"`
	Example      json.RawMessage `json:"example,omitempty"`
	IsDeprecated bool            `json:"is_deprecated"`
	DeprecatedAt *time.Time      `json:"deprecated_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:           et.ID.String(),
		Name:         et.Definition.Name,
		Description:  et.Definition.Description,
		Group:        et.Definition.Group,
		Schema:       et.Definition.Schema,
		Version:      et.Definition.Version,
		Example:      et.Definition.Example,
		IsDeprecated: et.IsDeprecated,
		DeprecatedAt: et.DeprecatedAt,
		CreatedAt:    et.CreatedAt,
		UpdatedAt:    et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.Definition{
			Name:        m.Name,
			Description: m.Description,
			Group:       m.Group,
			Schema:      m.Schema,
			Version:     m.Version,
			Example:     m.Example,
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
	}, nil
}

// RegisterType upserts an event type by name. Re-registration replaces
// the definition, keeps the original ID, and lifts any deprecation.
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m := toEventTypeModel(et)

	existingID, err := s.rdb.Get(ctx, uniqueEventTypeName+m.Name).Result()
	switch {
	case err == nil:
		var existing eventTypeModel
		if getErr := s.getEntity(ctx, entityKey(prefixEventType, existingID), &existing); getErr == nil {
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
		}
		m.IsDeprecated = false
		m.DeprecatedAt = nil
		m.UpdatedAt = now()
	case err == goredis.Nil:
		if setErr := s.rdb.Set(ctx, uniqueEventTypeName+m.Name, m.ID, 0).Err(); setErr != nil {
			return fmt.Errorf("emitter/redis: register type name index: %w", setErr)
		}
	default:
		return fmt.Errorf("emitter/redis: register type lookup: %w", err)
	}

	if err := s.setEntity(ctx, entityKey(prefixEventType, m.ID), m); err != nil {
		return fmt.Errorf("emitter/redis: register type: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zEventTypeAll, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("emitter/redis: register type index: %w", err)
	}
	return nil
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	etID, err := s.rdb.Get(ctx, uniqueEventTypeName+name).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get type by name: %w", err)
	}

	var m eventTypeModel
	if err := s.getEntity(ctx, entityKey(prefixEventType, etID), &m); err != nil {
		if isNotFound(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(&m)
}

func (s *Store) GetTypeByID(ctx context.Context, etID id.ID) (*catalog.EventType, error) {
	var m eventTypeModel
	if err := s.getEntity(ctx, entityKey(prefixEventType, etID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("emitter/redis: get type: %w", err)
	}
	return fromEventTypeModel(&m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	ids, err := s.rdb.ZRange(ctx, zEventTypeAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("emitter/redis: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(ids))
	for _, etID := range ids {
		var m eventTypeModel
		if err := s.getEntity(ctx, entityKey(prefixEventType, etID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Group != "" && m.Group != opts.Group {
			continue
		}
		if !opts.IncludeDeprecated && m.IsDeprecated {
			continue
		}
		et, err := fromEventTypeModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeleteType deprecates an event type. The record survives so history
// stays attributable.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	etID, err := s.rdb.Get(ctx, uniqueEventTypeName+name).Result()
	if err != nil {
		if err == goredis.Nil {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("emitter/redis: delete type lookup: %w", err)
	}

	key := entityKey(prefixEventType, etID)
	var m eventTypeModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("emitter/redis: delete type get: %w", err)
	}
	if m.IsDeprecated {
		return catalog.ErrNotFound
	}

	ts := now()
	m.IsDeprecated = true
	m.DeprecatedAt = &ts
	m.UpdatedAt = ts

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("emitter/redis: delete type: %w", err)
	}
	return nil
}
