package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
	"github.com/hooklab/emitter/webhook"
)

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:emitter_webhooks"`

	ID         string    `grove:"id,pk"`
	TenantID   string    `grove:"tenant_id"`
	URL        string    `grove:"url"`
	Enabled    bool      `grove:"enabled"`
	Secret     string    `grove:"secret"`
	Algorithm  string    `grove:"algorithm"`
	EventTypes string    `grove:"event_types"` // JSON array
	RateLimit  int       `grove:"rate_limit"`
	CreatedBy  string    `grove:"created_by"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	eventTypes, _ := json.Marshal(wh.EventTypes) //nolint:errcheck // best-effort

	return &webhookModel{
		ID:         wh.ID.String(),
		TenantID:   wh.TenantID,
		URL:        wh.URL,
		Enabled:    wh.Enabled,
		Secret:     wh.Secret,
		Algorithm:  wh.Algorithm,
		EventTypes: string(eventTypes),
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

	var eventTypes []string
	if m.EventTypes != "" {
		_ = json.Unmarshal([]byte(m.EventTypes), &eventTypes) //nolint:errcheck // best-effort
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
		EventTypes: eventTypes,
		RateLimit:  m.RateLimit,
		CreatedBy:  m.CreatedBy,
	}, nil
}

// --- Stored event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:emitter_events"`

	ID            string    `grove:"id,pk"`
	TenantID      string    `grove:"tenant_id"`
	Kind          string    `grove:"kind"`
	SourceEventID string    `grove:"source_event_id"`
	EventType     string    `grove:"event_type"`
	Payload       string    `grove:"payload"` // JSON object
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toEventModel(se *event.StoredEvent) *eventModel {
	return &eventModel{
		ID:            se.ID.String(),
		TenantID:      se.TenantID,
		Kind:          string(se.Kind),
		SourceEventID: se.SourceEventID,
		EventType:     se.EventType,
		Payload:       string(se.Payload),
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
		Payload:       json.RawMessage(m.Payload),
	}, nil
}

// --- Send record models ---

type sendModel struct {
	grove.BaseModel `grove:"table:emitter_sends"`

	ID        string    `grove:"id,pk"`
	WebhookID string    `grove:"webhook_id"`
	EventID   string    `grove:"event_id"`
	TenantID  string    `grove:"tenant_id"`
	EventType string    `grove:"event_type"`
	Status    int       `grove:"status"`
	Retries   int       `grove:"retries"`
	LastError string    `grove:"last_error"`
	SentAt    time.Time `grove:"sent_at"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toSendModel(rec *delivery.SendRecord) *sendModel {
	return &sendModel{
		ID:        rec.ID.String(),
		WebhookID: idString(rec.WebhookID),
		EventID:   idString(rec.EventID),
		TenantID:  rec.TenantID,
		EventType: rec.EventType,
		Status:    rec.Status,
		Retries:   rec.Retries,
		LastError: rec.LastError,
		SentAt:    rec.SentAt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func fromSendModel(m *sendModel) (*delivery.SendRecord, error) {
	sendID, err := id.ParseSendID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse send ID %q: %w", m.ID, err)
	}
	whID, err := optionalID(m.WebhookID, id.PrefixWebhook)
	if err != nil {
		return nil, err
	}
	evtID, err := optionalID(m.EventID, id.PrefixEvent)
	if err != nil {
		return nil, err
	}
	return &delivery.SendRecord{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        sendID,
		WebhookID: whID,
		EventID:   evtID,
		TenantID:  m.TenantID,
		EventType: m.EventType,
		Status:    m.Status,
		Retries:   m.Retries,
		LastError: m.LastError,
		SentAt:    m.SentAt,
	}, nil
}

// --- Event type models ---

type eventTypeModel struct {
	grove.BaseModel `grove:"table:emitter_event_types"`

	ID           string     `grove:"id,pk"`
	Name         string     `grove:"name,unique"`
	Description  string     `grove:"description"`
	GroupName    string     `grove:"group_name"`
	Schema       string     `grove:"schema"`
	Version      string     `grove:"version"`
	Example      string     `grove:"example"`
	IsDeprecated bool       `grove:"is_deprecated"`
	DeprecatedAt *time.Time `grove:"deprecated_at"`
	CreatedAt    time.Time  `grove:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:           et.ID.String(),
		Name:         et.Definition.Name,
		Description:  et.Definition.Description,
		GroupName:    et.Definition.Group,
		Schema:       string(et.Definition.Schema),
		Version:      et.Definition.Version,
		Example:      string(et.Definition.Example),
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
			Group:       m.GroupName,
			Schema:      json.RawMessage(m.Schema),
			Version:     m.Version,
			Example:     json.RawMessage(m.Example),
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
	}, nil
}

// --- DLQ models ---

type dlqEntryModel struct {
	grove.BaseModel `grove:"table:emitter_dlq"`

	ID             string     `grove:"id,pk"`
	UID            string     `grove:"uid"`
	WebhookID      string     `grove:"webhook_id"`
	EventID        string     `grove:"event_id"`
	TenantID       string     `grove:"tenant_id"`
	EventType      string     `grove:"event_type"`
	URL            string     `grove:"url"`
	Payload        string     `grove:"payload"` // JSON object
	Error          string     `grove:"error"`
	Attempts       int        `grove:"attempts"`
	LastStatusCode int        `grove:"last_status_code"`
	ReplayedAt     *time.Time `grove:"replayed_at"`
	FailedAt       time.Time  `grove:"failed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toDLQEntryModel(entry *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:             entry.ID.String(),
		UID:            idString(entry.UID),
		WebhookID:      idString(entry.WebhookID),
		EventID:        idString(entry.EventID),
		TenantID:       entry.TenantID,
		EventType:      entry.EventType,
		URL:            entry.URL,
		Payload:        string(entry.Payload),
		Error:          entry.Error,
		Attempts:       entry.Attempts,
		LastStatusCode: entry.LastStatusCode,
		ReplayedAt:     entry.ReplayedAt,
		FailedAt:       entry.FailedAt,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	uid, err := optionalID(m.UID, id.PrefixSend)
	if err != nil {
		return nil, err
	}
	whID, err := optionalID(m.WebhookID, id.PrefixWebhook)
	if err != nil {
		return nil, err
	}
	evtID, err := optionalID(m.EventID, id.PrefixEvent)
	if err != nil {
		return nil, err
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		UID:            uid,
		WebhookID:      whID,
		EventID:        evtID,
		TenantID:       m.TenantID,
		EventType:      m.EventType,
		URL:            m.URL,
		Payload:        json.RawMessage(m.Payload),
		Error:          m.Error,
		Attempts:       m.Attempts,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

// idString renders an ID column, with the nil ID stored as empty.
func idString(v id.ID) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}

// optionalID parses an ID column where empty means the nil ID.
func optionalID(s string, prefix id.Prefix) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	v, err := id.ParseWithPrefix(s, prefix)
	if err != nil {
		return id.Nil, fmt.Errorf("parse %s ID %q: %w", prefix, s, err)
	}
	return v, nil
}
