package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/store/memory"
)

func ctx() context.Context { return context.Background() }

func newService() *dlq.Service {
	return dlq.NewService(memory.New(), nil)
}

func failedTask() (*delivery.Task, delivery.Result) {
	task := &delivery.Task{
		UID:       id.NewSendID(),
		WebhookID: id.NewWebhookID(),
		EventID:   id.NewEventID(),
		TenantID:  "tenant-1",
		EventType: "access.LOGIN",
		Kind:      event.KindUser,
		Payload:   []byte(`{"type":"access.LOGIN"}`),
		URL:       "https://example.com/hook",
		Attempt:   6,
	}
	result := delivery.Result{StatusCode: 503, Error: "unexpected status 503"}
	return task, result
}

func TestPushFailed(t *testing.T) {
	svc := newService()

	task, result := failedTask()
	entry, err := svc.PushFailed(ctx(), task, result)
	if err != nil {
		t.Fatal(err)
	}

	if entry.UID != task.UID {
		t.Fatal("entry must carry the occurrence uid")
	}
	if entry.Attempts != 6 {
		t.Fatalf("attempts: %d", entry.Attempts)
	}
	if entry.LastStatusCode != 503 || entry.Error != "unexpected status 503" {
		t.Fatalf("final outcome not recorded: %+v", entry)
	}
	if string(entry.Payload) != string(task.Payload) {
		t.Fatal("entry must keep the exact failed payload")
	}
	if entry.FailedAt.IsZero() {
		t.Fatal("FailedAt must be stamped")
	}

	got, err := svc.Get(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != entry.ID {
		t.Fatal("entry not persisted")
	}
}

func TestListFilters(t *testing.T) {
	svc := newService()

	task1, result := failedTask()
	if _, err := svc.PushFailed(ctx(), task1, result); err != nil {
		t.Fatal(err)
	}
	task2, _ := failedTask()
	task2.TenantID = "tenant-2"
	if _, err := svc.PushFailed(ctx(), task2, result); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.List(ctx(), dlq.ListOpts{TenantID: "tenant-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].TenantID != "tenant-1" {
		t.Fatalf("tenant filter failed: %v", entries)
	}

	entries, err = svc.List(ctx(), dlq.ListOpts{WebhookID: &task2.WebhookID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].WebhookID != task2.WebhookID {
		t.Fatalf("webhook filter failed: %v", entries)
	}
}

func TestMarkReplayed(t *testing.T) {
	svc := newService()

	task, result := failedTask()
	entry, err := svc.PushFailed(ctx(), task, result)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkReplayed(ctx(), entry.ID); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("ReplayedAt should be set")
	}
}

func TestGetNotFound(t *testing.T) {
	svc := newService()

	_, err := svc.Get(ctx(), id.NewDLQID())
	if !errors.Is(err, dlq.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgeAndCount(t *testing.T) {
	svc := newService()

	task, result := failedTask()
	if _, err := svc.PushFailed(ctx(), task, result); err != nil {
		t.Fatal(err)
	}

	n, err := svc.Count(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count: %d", n)
	}

	purged, err := svc.Purge(ctx(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("purged: %d", purged)
	}

	n, _ = svc.Count(ctx())
	if n != 0 {
		t.Fatalf("count after purge: %d", n)
	}
}
