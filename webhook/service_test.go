package webhook_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hooklab/emitter/signature"
	"github.com/hooklab/emitter/store/memory"
	"github.com/hooklab/emitter/webhook"
)

func ctx() context.Context { return context.Background() }

func newService() *webhook.Service {
	return webhook.NewService(memory.New(), nil)
}

func TestWebhookServiceCreate(t *testing.T) {
	svc := newService()

	wh, err := svc.Create(ctx(), "tenant-1", "admin@acme", webhook.Input{
		URL:        "https://example.com/hook",
		Enabled:    true,
		EventTypes: []string{"access.*"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if wh.ID.String() == "" {
		t.Fatal("expected non-empty ID")
	}
	if !strings.HasPrefix(wh.Secret, "whsec_") {
		t.Fatalf("expected auto-generated secret, got %q", wh.Secret)
	}
	if wh.Algorithm != signature.AlgHMACSHA256 {
		t.Fatalf("expected default algorithm, got %q", wh.Algorithm)
	}
	if wh.CreatedBy != "admin@acme" {
		t.Fatalf("expected creator recorded, got %q", wh.CreatedBy)
	}
}

func TestWebhookServiceCreateValidation(t *testing.T) {
	svc := newService()

	// Missing URL
	_, err := svc.Create(ctx(), "t1", "", webhook.Input{EventTypes: []string{"*"}})
	var verr *webhook.ValidationError
	if !errors.As(err, &verr) || verr.Field != "url" {
		t.Fatalf("expected url validation error, got %v", err)
	}

	// Relative URL
	_, err = svc.Create(ctx(), "t1", "", webhook.Input{URL: "/hook"})
	if !errors.As(err, &verr) || verr.Field != "url" {
		t.Fatalf("expected url validation error, got %v", err)
	}

	// Missing tenant
	_, err = svc.Create(ctx(), "", "", webhook.Input{URL: "https://example.com"})
	if !errors.As(err, &verr) || verr.Field != "tenant_id" {
		t.Fatalf("expected tenant_id validation error, got %v", err)
	}

	// Unknown algorithm
	_, err = svc.Create(ctx(), "t1", "", webhook.Input{
		URL:       "https://example.com",
		Algorithm: "HMAC-MD5",
	})
	if !errors.As(err, &verr) || verr.Field != "algorithm" {
		t.Fatalf("expected algorithm validation error, got %v", err)
	}
}

func TestWebhookServiceCreateAcceptsLegacyAlgorithmName(t *testing.T) {
	svc := newService()

	wh, err := svc.Create(ctx(), "t1", "", webhook.Input{
		URL:       "https://example.com",
		Algorithm: "HmacSHA256",
	})
	if err != nil {
		t.Fatal(err)
	}
	if wh.Algorithm != signature.AlgHMACSHA256 {
		t.Fatalf("expected normalized algorithm, got %q", wh.Algorithm)
	}
}

func TestWebhookServiceUpdate(t *testing.T) {
	svc := newService()

	wh, err := svc.Create(ctx(), "t1", "", webhook.Input{
		URL:        "https://example.com/hook",
		Enabled:    true,
		Secret:     "original-secret",
		EventTypes: []string{"*"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Empty secret keeps the existing one; empty algorithm resets to default.
	updated, err := svc.Update(ctx(), "t1", wh.ID, webhook.Input{
		URL:        "https://example.com/v2",
		Enabled:    false,
		EventTypes: []string{"admin.*"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.URL != "https://example.com/v2" {
		t.Fatalf("url not updated: %q", updated.URL)
	}
	if updated.Enabled {
		t.Fatal("enabled not updated")
	}
	if updated.Secret != "original-secret" {
		t.Fatalf("empty secret must keep the existing one, got %q", updated.Secret)
	}
	if updated.Algorithm != signature.AlgHMACSHA256 {
		t.Fatalf("empty algorithm should reset to default, got %q", updated.Algorithm)
	}

	// Non-empty secret replaces.
	updated, err = svc.Update(ctx(), "t1", wh.ID, webhook.Input{
		URL:    "https://example.com/v2",
		Secret: "rotated",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Secret != "rotated" {
		t.Fatalf("secret not replaced: %q", updated.Secret)
	}

	// URL is required on update.
	_, err = svc.Update(ctx(), "t1", wh.ID, webhook.Input{})
	var verr *webhook.ValidationError
	if !errors.As(err, &verr) || verr.Field != "url" {
		t.Fatalf("expected url validation error, got %v", err)
	}
}

func TestWebhookServiceTenantIsolation(t *testing.T) {
	svc := newService()

	wh, err := svc.Create(ctx(), "t1", "", webhook.Input{URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(ctx(), "t2", wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("cross-tenant get must look like not found, got %v", err)
	}
	if err := svc.Delete(ctx(), "t2", wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("cross-tenant delete must look like not found, got %v", err)
	}
	if _, err := svc.Get(ctx(), "t1", wh.ID); err != nil {
		t.Fatalf("owner get failed: %v", err)
	}
}

func TestWebhookServiceDelete(t *testing.T) {
	svc := newService()

	wh, err := svc.Create(ctx(), "t1", "", webhook.Input{URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx(), "t1", wh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx(), "t1", wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestWebhookServiceListAndCount(t *testing.T) {
	svc := newService()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx(), "t1", "", webhook.Input{URL: "https://example.com", Enabled: i < 2}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Create(ctx(), "t2", "", webhook.Input{URL: "https://example.com"}); err != nil {
		t.Fatal(err)
	}

	whs, err := svc.List(ctx(), "t1", webhook.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(whs) != 3 {
		t.Fatalf("expected 3 webhooks, got %d", len(whs))
	}

	enabled := true
	whs, err = svc.List(ctx(), "t1", webhook.ListOpts{Enabled: &enabled})
	if err != nil {
		t.Fatal(err)
	}
	if len(whs) != 2 {
		t.Fatalf("expected 2 enabled webhooks, got %d", len(whs))
	}

	n, err := svc.Count(ctx(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}
}

func TestWebhookServiceRotateSecret(t *testing.T) {
	svc := newService()

	wh, err := svc.Create(ctx(), "t1", "", webhook.Input{URL: "https://example.com", Secret: "old"})
	if err != nil {
		t.Fatal(err)
	}

	secret, err := svc.RotateSecret(ctx(), "t1", wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if secret == "old" || !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("expected new generated secret, got %q", secret)
	}

	got, err := svc.Get(ctx(), "t1", wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != secret {
		t.Fatal("rotated secret not persisted")
	}
}
