// Package memory provides an in-memory Store implementation for unit
// testing and embedded use.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	emitterstore "github.com/hooklab/emitter/store"
	"github.com/hooklab/emitter/webhook"
)

// compile-time interface check.
var _ emitterstore.Store = (*Store)(nil)

// ErrClosed is returned when an operation is attempted after Close.
var ErrClosed = errors.New("memory: store is closed")

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	webhooks       map[string]*webhook.Webhook   // keyed by ID string
	events         map[string]*event.StoredEvent // keyed by ID string
	eventsByKey    map[string]*event.StoredEvent // keyed by natural key
	sends          map[string]*delivery.SendRecord
	eventTypes     map[string]*catalog.EventType // keyed by name
	eventTypesByID map[string]*catalog.EventType
	dlqEntries     map[string]*dlq.Entry

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		webhooks:       make(map[string]*webhook.Webhook),
		events:         make(map[string]*event.StoredEvent),
		eventsByKey:    make(map[string]*event.StoredEvent),
		sends:          make(map[string]*delivery.SendRecord),
		eventTypes:     make(map[string]*catalog.EventType),
		eventTypesByID: make(map[string]*catalog.EventType),
		dlqEntries:     make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[wh.ID.String()] = wh
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(_ context.Context, whID id.ID) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[whID.String()]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	return wh, nil
}

// UpdateWebhook modifies an existing webhook.
func (s *Store) UpdateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[wh.ID.String()]; !ok {
		return webhook.ErrNotFound
	}
	wh.UpdatedAt = time.Now().UTC()
	s.webhooks[wh.ID.String()] = wh
	return nil
}

// DeleteWebhook removes a webhook and its send records.
func (s *Store) DeleteWebhook(_ context.Context, whID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[whID.String()]; !ok {
		return webhook.ErrNotFound
	}
	delete(s.webhooks, whID.String())
	for uid, rec := range s.sends {
		if rec.WebhookID == whID {
			delete(s.sends, uid)
		}
	}
	return nil
}

// ListWebhooks returns webhooks for a tenant, optionally filtered.
func (s *Store) ListWebhooks(_ context.Context, tenantID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0)
	for _, wh := range s.webhooks {
		if wh.TenantID != tenantID {
			continue
		}
		if opts.Enabled != nil && wh.Enabled != *opts.Enabled {
			continue
		}
		result = append(result, wh)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountWebhooks returns the number of webhooks registered for a tenant.
func (s *Store) CountWebhooks(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, wh := range s.webhooks {
		if wh.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// SetEnabled enables or disables a webhook.
func (s *Store) SetEnabled(_ context.Context, whID id.ID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[whID.String()]
	if !ok {
		return webhook.ErrNotFound
	}
	wh.Enabled = enabled
	wh.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func naturalKey(tenantID string, kind event.Kind, sourceEventID string) string {
	return tenantID + "\x00" + string(kind) + "\x00" + sourceEventID
}

// StoreEvent persists a stored event, idempotent by natural key.
func (s *Store) StoreEvent(_ context.Context, se *event.StoredEvent) (*event.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if se.SourceEventID != "" {
		key := naturalKey(se.TenantID, se.Kind, se.SourceEventID)
		if existing, ok := s.eventsByKey[key]; ok {
			return existing, nil
		}
		s.eventsByKey[key] = se
	}
	s.events[se.ID.String()] = se
	return se, nil
}

// GetEvent returns a stored event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	se, ok := s.events[evtID.String()]
	if !ok {
		return nil, event.ErrNotFound
	}
	return se, nil
}

// GetEventByKey returns a stored event by its natural key.
func (s *Store) GetEventByKey(_ context.Context, tenantID string, kind event.Kind, sourceEventID string) (*event.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	se, ok := s.eventsByKey[naturalKey(tenantID, kind, sourceEventID)]
	if !ok {
		return nil, event.ErrNotFound
	}
	return se, nil
}

// ListEventsByTenant returns stored events for a tenant, newest first.
func (s *Store) ListEventsByTenant(_ context.Context, tenantID string, opts event.ListOpts) ([]*event.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.StoredEvent, 0)
	for _, se := range s.events {
		if se.TenantID == tenantID {
			result = append(result, se)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// RecordAttempt upserts the send record keyed by uid. The first attempt
// creates the record with zero retries; later attempts increment.
func (s *Store) RecordAttempt(_ context.Context, rec *delivery.SendRecord) (*delivery.SendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sends[rec.ID.String()]
	if !ok {
		rec.Retries = 0
		s.sends[rec.ID.String()] = rec
		return rec, nil
	}

	existing.Retries++
	existing.Status = rec.Status
	existing.LastError = rec.LastError
	existing.SentAt = rec.SentAt
	existing.UpdatedAt = time.Now().UTC()
	return existing, nil
}

// GetSend returns a send record by uid.
func (s *Store) GetSend(_ context.Context, sendID id.ID) (*delivery.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sends[sendID.String()]
	if !ok {
		return nil, delivery.ErrSendNotFound
	}
	return rec, nil
}

// ListSendsByWebhook returns a webhook's send history, newest first.
func (s *Store) ListSendsByWebhook(_ context.Context, whID id.ID, opts delivery.SendListOpts) ([]*delivery.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.SendRecord, 0)
	for _, rec := range s.sends {
		if rec.WebhookID == whID {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListSendsByEvent returns all send records for a stored event.
func (s *Store) ListSendsByEvent(_ context.Context, evtID id.ID) ([]*delivery.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.SendRecord, 0)
	for _, rec := range s.sends {
		if rec.EventID == evtID {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.IsDeprecated = false
		existing.DeprecatedAt = nil
		existing.UpdatedAt = time.Now().UTC()
		et.ID = existing.ID
		return nil
	}

	s.eventTypes[et.Definition.Name] = et
	s.eventTypesByID[et.ID.String()] = et
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return et, nil
}

// GetTypeByID returns an event type by its TypeID.
func (s *Store) GetTypeByID(_ context.Context, etID id.ID) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypesByID[etID.String()]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return et, nil
}

// ListTypes returns registered event types, optionally filtered.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, et)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return catalog.ErrNotFound
	}

	now := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push records an abandoned send in the DLQ.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered, newest failure first.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0)
	for _, entry := range s.dlqEntries {
		if opts.TenantID != "" && entry.TenantID != opts.TenantID {
			continue
		}
		if opts.WebhookID != nil && entry.WebhookID != *opts.WebhookID {
			continue
		}
		if opts.From != nil && entry.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && entry.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, dlq.ErrNotFound
	}
	return entry, nil
}

// MarkReplayed stamps ReplayedAt on an entry.
func (s *Store) MarkReplayed(_ context.Context, dlqID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return dlq.ErrNotFound
	}
	now := time.Now().UTC()
	entry.ReplayedAt = &now
	entry.UpdatedAt = now
	return nil
}

// Purge deletes DLQ entries that failed before the threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, entry := range s.dlqEntries {
		if entry.FailedAt.Before(before) {
			delete(s.dlqEntries, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.dlqEntries)), nil
}

// paginate applies offset/limit to a slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
