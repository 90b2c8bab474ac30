package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
	"github.com/hooklab/emitter/webhook"
)

func ctx() context.Context { return context.Background() }

func newWebhook(tenantID string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity:     entity.New(),
		ID:         id.NewWebhookID(),
		TenantID:   tenantID,
		URL:        "https://example.com/hook",
		Enabled:    true,
		Secret:     "whsec_x",
		Algorithm:  "HMAC-SHA256",
		EventTypes: []string{"*"},
	}
}

func newStoredEvent(tenantID, sourceID string) *event.StoredEvent {
	return &event.StoredEvent{
		Entity:        entity.New(),
		ID:            id.NewEventID(),
		TenantID:      tenantID,
		Kind:          event.KindUser,
		SourceEventID: sourceID,
		EventType:     "access.LOGIN",
		Payload:       json.RawMessage(`{"type":"access.LOGIN"}`),
	}
}

func TestWebhookCRUD(t *testing.T) {
	s := New()

	wh := newWebhook("t1")
	if err := s.CreateWebhook(ctx(), wh); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetWebhook(ctx(), wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != wh.URL {
		t.Fatalf("got %q", got.URL)
	}

	got.URL = "https://example.com/v2"
	if err := s.UpdateWebhook(ctx(), got); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetWebhook(ctx(), wh.ID)
	if got.URL != "https://example.com/v2" {
		t.Fatal("update not applied")
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt should be stamped on update")
	}

	if err := s.DeleteWebhook(ctx(), wh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetWebhook(ctx(), wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWebhookListFiltersByTenantAndEnabled(t *testing.T) {
	s := New()

	a := newWebhook("t1")
	b := newWebhook("t1")
	b.Enabled = false
	c := newWebhook("t2")
	for _, wh := range []*webhook.Webhook{a, b, c} {
		if err := s.CreateWebhook(ctx(), wh); err != nil {
			t.Fatal(err)
		}
	}

	whs, err := s.ListWebhooks(ctx(), "t1", webhook.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(whs) != 2 {
		t.Fatalf("expected 2, got %d", len(whs))
	}

	enabled := true
	whs, _ = s.ListWebhooks(ctx(), "t1", webhook.ListOpts{Enabled: &enabled})
	if len(whs) != 1 || whs[0].ID != a.ID {
		t.Fatalf("enabled filter failed: %v", whs)
	}

	n, _ := s.CountWebhooks(ctx(), "t1")
	if n != 2 {
		t.Fatalf("count: %d", n)
	}
}

func TestDeleteWebhookCascadesToSends(t *testing.T) {
	s := New()

	wh := newWebhook("t1")
	if err := s.CreateWebhook(ctx(), wh); err != nil {
		t.Fatal(err)
	}

	rec := &delivery.SendRecord{
		Entity:    entity.New(),
		ID:        id.NewSendID(),
		WebhookID: wh.ID,
		Status:    200,
		SentAt:    time.Now(),
	}
	if _, err := s.RecordAttempt(ctx(), rec); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteWebhook(ctx(), wh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSend(ctx(), rec.ID); !errors.Is(err, delivery.ErrSendNotFound) {
		t.Fatal("send records must be removed with their webhook")
	}
}

func TestStoreEventIdempotence(t *testing.T) {
	s := New()

	first := newStoredEvent("t1", "src-1")
	stored, err := s.StoreEvent(ctx(), first)
	if err != nil {
		t.Fatal(err)
	}
	if stored != first {
		t.Fatal("first store should keep the new record")
	}

	dup := newStoredEvent("t1", "src-1")
	stored, err = s.StoreEvent(ctx(), dup)
	if err != nil {
		t.Fatal(err)
	}
	if stored != first {
		t.Fatal("duplicate natural key must return the surviving record")
	}

	// Different tenant is a different natural key.
	other := newStoredEvent("t2", "src-1")
	stored, _ = s.StoreEvent(ctx(), other)
	if stored != other {
		t.Fatal("same source id under another tenant is a new record")
	}
}

func TestGetEventByKey(t *testing.T) {
	s := New()

	se := newStoredEvent("t1", "src-9")
	if _, err := s.StoreEvent(ctx(), se); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEventByKey(ctx(), "t1", event.KindUser, "src-9")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != se.ID {
		t.Fatal("wrong record")
	}

	if _, err := s.GetEventByKey(ctx(), "t1", event.KindAdmin, "src-9"); !errors.Is(err, event.ErrNotFound) {
		t.Fatal("kind is part of the natural key")
	}
}

func TestListEventsByTenantNewestFirst(t *testing.T) {
	s := New()

	old := newStoredEvent("t1", "src-old")
	old.CreatedAt = time.Now().Add(-time.Hour)
	recent := newStoredEvent("t1", "src-new")
	for _, se := range []*event.StoredEvent{old, recent} {
		if _, err := s.StoreEvent(ctx(), se); err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.ListEventsByTenant(ctx(), "t1", event.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].ID != recent.ID {
		t.Fatal("events must be newest first")
	}
}

func TestRecordAttemptUpsert(t *testing.T) {
	s := New()

	uid := id.NewSendID()
	first := &delivery.SendRecord{
		Entity:    entity.New(),
		ID:        uid,
		WebhookID: id.NewWebhookID(),
		Status:    500,
		LastError: "unexpected status 500",
		SentAt:    time.Now(),
	}
	rec, err := s.RecordAttempt(ctx(), first)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Retries != 0 {
		t.Fatalf("first attempt leaves retries at 0, got %d", rec.Retries)
	}

	second := &delivery.SendRecord{
		Entity: entity.New(),
		ID:     uid,
		Status: 202,
		SentAt: time.Now(),
	}
	rec, err = s.RecordAttempt(ctx(), second)
	if err != nil {
		t.Fatal(err)
	}
	if rec != first {
		t.Fatal("upsert must land on the existing record")
	}
	if rec.Retries != 1 {
		t.Fatalf("second attempt increments retries to 1, got %d", rec.Retries)
	}
	if rec.Status != 202 {
		t.Fatalf("status not overwritten: %d", rec.Status)
	}
}

func TestListSendsByWebhookAndEvent(t *testing.T) {
	s := New()

	whID := id.NewWebhookID()
	evtID := id.NewEventID()
	for i := 0; i < 3; i++ {
		rec := &delivery.SendRecord{
			Entity:    entity.New(),
			ID:        id.NewSendID(),
			WebhookID: whID,
			EventID:   evtID,
			Status:    200,
			SentAt:    time.Now(),
		}
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if _, err := s.RecordAttempt(ctx(), rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ListSendsByWebhook(ctx(), whID, delivery.SendListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("limit not applied: %d", len(recs))
	}
	if recs[0].CreatedAt.Before(recs[1].CreatedAt) {
		t.Fatal("sends must be newest first")
	}

	recs, err = s.ListSendsByEvent(ctx(), evtID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 sends for event, got %d", len(recs))
	}
}

func TestRegisterTypeUpsertByName(t *testing.T) {
	s := New()

	first := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.shipped", Description: "v1"},
	}
	if err := s.RegisterType(ctx(), first); err != nil {
		t.Fatal(err)
	}

	second := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.shipped", Description: "v2"},
	}
	if err := s.RegisterType(ctx(), second); err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatal("upsert must keep the original ID")
	}

	got, err := s.GetType(ctx(), "order.shipped")
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Description != "v2" {
		t.Fatal("definition not updated")
	}
}

func TestDeleteTypeDeprecates(t *testing.T) {
	s := New()

	et := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "a.b"},
	}
	if err := s.RegisterType(ctx(), et); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteType(ctx(), "a.b"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetType(ctx(), "a.b")
	if !got.IsDeprecated || got.DeprecatedAt == nil {
		t.Fatal("delete must deprecate, not remove")
	}

	types, _ := s.ListTypes(ctx(), catalog.ListOpts{})
	if len(types) != 0 {
		t.Fatal("deprecated types hidden by default")
	}
	types, _ = s.ListTypes(ctx(), catalog.ListOpts{IncludeDeprecated: true})
	if len(types) != 1 {
		t.Fatal("deprecated types listed when asked")
	}
}

func TestDLQRoundTrip(t *testing.T) {
	s := New()

	entry := &dlq.Entry{
		Entity:    entity.New(),
		ID:        id.NewDLQID(),
		UID:       id.NewSendID(),
		WebhookID: id.NewWebhookID(),
		TenantID:  "t1",
		EventType: "access.LOGIN",
		Payload:   json.RawMessage(`{}`),
		Error:     "gone",
		Attempts:  4,
		FailedAt:  time.Now().UTC(),
	}
	if err := s.Push(ctx(), entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Error != "gone" {
		t.Fatal("entry not stored")
	}

	if err := s.MarkReplayed(ctx(), entry.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetDLQ(ctx(), entry.ID)
	if got.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set")
	}

	n, _ := s.CountDLQ(ctx())
	if n != 1 {
		t.Fatalf("count: %d", n)
	}
	purged, _ := s.Purge(ctx(), time.Now().Add(time.Minute))
	if purged != 1 {
		t.Fatalf("purged: %d", purged)
	}
}

func TestPingAfterClose(t *testing.T) {
	s := New()
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
