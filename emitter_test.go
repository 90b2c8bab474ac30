package emitter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	emitter "github.com/hooklab/emitter"
	"github.com/hooklab/emitter/backoff"
	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/deferred"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/signature"
	"github.com/hooklab/emitter/store/memory"
	"github.com/hooklab/emitter/webhook"
)

// capture records every request a test server receives.
type capture struct {
	mu   sync.Mutex
	reqs []capturedRequest
}

type capturedRequest struct {
	header http.Header
	body   []byte
}

func (c *capture) add(r *http.Request, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, capturedRequest{header: r.Header.Clone(), body: body})
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

func (c *capture) at(i int) capturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[i]
}

// newCaptureServer responds with the given status codes in order, repeating
// the last one once exhausted.
func newCaptureServer(t *testing.T, statuses ...int) (*httptest.Server, *capture) {
	t.Helper()
	cap := &capture{}
	var n int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cap.add(r, body)
		mu.Lock()
		status := statuses[min(n, len(statuses)-1)]
		n++
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, cap
}

func fastBackoff() backoff.Config {
	return backoff.Config{
		Retry:               true,
		InitialInterval:     time.Millisecond,
		Multiplier:          1.5,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		RandomizationFactor: 0,
	}
}

func newEmitter(t *testing.T, st *memory.Store, opts ...emitter.Option) *emitter.Emitter {
	t.Helper()
	opts = append([]emitter.Option{
		emitter.WithStore(st),
		emitter.WithBackoff(fastBackoff()),
		emitter.WithWorkers(2),
	}, opts...)
	e, err := emitter.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Shutdown(ctx)
	})
	return e
}

func createWebhook(t *testing.T, e *emitter.Emitter, tenantID, url string, eventTypes ...string) *webhook.Webhook {
	t.Helper()
	wh, err := e.Webhooks().Create(context.Background(), tenantID, "test", webhook.Input{
		URL:        url,
		Enabled:    true,
		EventTypes: eventTypes,
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	return wh
}

func loginEvent() event.UserEvent {
	return event.UserEvent{
		ID:       "9f1b2a3c",
		Time:     time.Now().UnixMilli(),
		Type:     "LOGIN",
		TenantID: "acme",
		UserID:   "u-1",
		Details:  map[string]string{"username": "alice"},
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDeliverySignedAndRecorded(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	st := memory.New()
	e := newEmitter(t, st)
	wh := createWebhook(t, e, "acme", srv.URL, "access.LOGIN")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	if cap.count() != 0 {
		t.Fatal("delivered before commit")
	}
	tx.Commit()

	waitFor(t, 2*time.Second, func() bool { return cap.count() == 1 })

	req := cap.at(0)
	var got event.Event
	if err := json.Unmarshal(req.body, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.Type != "access.LOGIN" {
		t.Errorf("type = %q, want access.LOGIN", got.Type)
	}
	if got.UID == "" {
		t.Error("payload missing uid")
	}
	if req.header.Get("X-Event-Type") != "access.LOGIN" {
		t.Errorf("X-Event-Type = %q", req.header.Get("X-Event-Type"))
	}
	sig := req.header.Get("X-Signature")
	if err := signature.Verify(req.body, wh.Secret, wh.Algorithm, sig); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}

	// The send record is keyed by the uid in the payload.
	waitFor(t, 2*time.Second, func() bool {
		recs, err := st.ListSendsByWebhook(context.Background(), wh.ID, delivery.SendListOpts{Limit: 10})
		if err != nil || len(recs) != 1 {
			return false
		}
		return recs[0].ID.String() == got.UID && recs[0].Status == http.StatusOK && recs[0].Retries == 0
	})
}

func TestRetryUntilSuccess(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusInternalServerError, http.StatusAccepted)
	st := memory.New()
	e := newEmitter(t, st)
	wh := createWebhook(t, e, "acme", srv.URL, "*")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	waitFor(t, 2*time.Second, func() bool { return cap.count() == 2 })

	// Both attempts carry the same uid and the record absorbs both.
	if cap.at(0).header.Get("X-Event-Id") != cap.at(1).header.Get("X-Event-Id") {
		t.Error("uid changed across attempts")
	}
	waitFor(t, 2*time.Second, func() bool {
		recs, err := e.ListSendsByWebhook(context.Background(), "acme", wh.ID, delivery.SendListOpts{Limit: 10})
		if err != nil || len(recs) != 1 {
			return false
		}
		return recs[0].Status == http.StatusAccepted && recs[0].Retries == 1
	})
}

func TestRollbackDeliversNothing(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	e := newEmitter(t, memory.New())
	createWebhook(t, e, "acme", srv.URL, "*")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Rollback()

	time.Sleep(50 * time.Millisecond)
	if cap.count() != 0 {
		t.Fatalf("got %d deliveries after rollback", cap.count())
	}
}

func TestAdminEventDelivered(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	st := memory.New()
	e := newEmitter(t, st)
	wh := createWebhook(t, e, "acme", srv.URL, "admin.*")

	tx := deferred.NewQueue(nil)
	e.OnAdminEvent(context.Background(), tx, event.AdminEvent{
		ID:            "aa10b2c3",
		Time:          time.Now().UnixMilli(),
		TenantID:      "acme",
		ResourceType:  "USER",
		OperationType: "CREATE",
		ResourcePath:  "users/2f47a1b0-9c3d-4e8f-8a21-6b5c0d9e1f23",
		AuthUserID:    "u-admin",
	})
	tx.Commit()

	waitFor(t, 2*time.Second, func() bool { return cap.count() == 1 })

	req := cap.at(0)
	var got event.Event
	if err := json.Unmarshal(req.body, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.Type != "admin.USER-CREATE" {
		t.Errorf("type = %q, want admin.USER-CREATE", got.Type)
	}
	if got.Details["userId"] != "2f47a1b0-9c3d-4e8f-8a21-6b5c0d9e1f23" {
		t.Errorf("details = %v, want userId from resource path", got.Details)
	}
	sig := req.header.Get("X-Signature")
	if err := signature.Verify(req.body, wh.Secret, wh.Algorithm, sig); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestDisabledWebhookSkipped(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	e := newEmitter(t, memory.New())

	if _, err := e.Webhooks().Create(context.Background(), "acme", "test", webhook.Input{
		URL:        srv.URL,
		Enabled:    false,
		EventTypes: []string{"*"},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	time.Sleep(50 * time.Millisecond)
	if cap.count() != 0 {
		t.Fatalf("got %d deliveries to a disabled webhook", cap.count())
	}
}

func TestPublishRejectsReservedType(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	e := newEmitter(t, memory.New())
	createWebhook(t, e, "acme", srv.URL, "*")

	err := e.Publish(context.Background(), nil, &event.Event{
		Type:     "admin.FAKE",
		TenantID: "acme",
	})
	if !errors.Is(err, emitter.ErrReservedEventType) {
		t.Fatalf("err = %v, want ErrReservedEventType", err)
	}
	time.Sleep(50 * time.Millisecond)
	if cap.count() != 0 {
		t.Fatal("reserved event was delivered")
	}
}

func TestPublishValidatesRegisteredPayload(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusOK)
	e := newEmitter(t, memory.New())
	createWebhook(t, e, "acme", srv.URL, "*")

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"orderId": {"type": "string"}},
		"required": ["orderId"]
	}`)
	if _, err := e.Catalog().RegisterType(context.Background(), catalog.Definition{
		Name:   "order.created",
		Schema: schema,
	}); err != nil {
		t.Fatalf("register type: %v", err)
	}

	err := e.Publish(context.Background(), nil, &event.Event{
		Type:     "order.created",
		TenantID: "acme",
		Details:  map[string]string{"sku": "A1"},
	})
	if !errors.Is(err, emitter.ErrPayloadValidationFailed) {
		t.Fatalf("err = %v, want ErrPayloadValidationFailed", err)
	}

	// A conforming payload publishes.
	if err := e.Publish(context.Background(), nil, &event.Event{
		Type:     "order.created",
		TenantID: "acme",
		Details:  map[string]string{"orderId": "o-7"},
	}); err != nil {
		t.Fatalf("valid publish: %v", err)
	}
}

func TestEmptyEventTypesNeverMatches(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	e := newEmitter(t, memory.New())
	createWebhook(t, e, "acme", srv.URL)

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	time.Sleep(50 * time.Millisecond)
	if cap.count() != 0 {
		t.Fatal("webhook with no subscribed types received a send")
	}
}

func TestCatchAllReceivesEverything(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	e := newEmitter(t, memory.New(), emitter.WithCatchAll(emitter.CatchAll{
		URL:    srv.URL,
		Secret: "sys-secret",
	}))

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	waitFor(t, 2*time.Second, func() bool { return cap.count() == 1 })

	sig := cap.at(0).header.Get("X-Signature")
	if err := signature.Verify(cap.at(0).body, "sys-secret", signature.Default, sig); err != nil {
		t.Errorf("catch-all signature does not verify: %v", err)
	}
}

func TestResendReusesUID(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	st := memory.New()
	e := newEmitter(t, st)
	wh := createWebhook(t, e, "acme", srv.URL, "*")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	waitFor(t, 2*time.Second, func() bool { return cap.count() == 1 })

	var recs []*delivery.SendRecord
	waitFor(t, 2*time.Second, func() bool {
		var err error
		recs, err = e.ListSendsByWebhook(context.Background(), "acme", wh.ID, delivery.SendListOpts{Limit: 10})
		return err == nil && len(recs) == 1
	})

	if err := e.Resend(context.Background(), "acme", wh.ID, recs[0].ID); err != nil {
		t.Fatalf("Resend: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return cap.count() == 2 })

	if cap.at(0).header.Get("X-Event-Id") != cap.at(1).header.Get("X-Event-Id") {
		t.Error("resend changed the uid")
	}
	waitFor(t, 2*time.Second, func() bool {
		recs, err := e.ListSendsByWebhook(context.Background(), "acme", wh.ID, delivery.SendListOpts{Limit: 10})
		return err == nil && len(recs) == 1 && recs[0].Retries == 1
	})
}

func TestResendWrongWebhook(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusOK)
	st := memory.New()
	e := newEmitter(t, st)
	wh := createWebhook(t, e, "acme", srv.URL, "*")
	other := createWebhook(t, e, "acme", srv.URL, "admin.*")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()
	waitFor(t, 2*time.Second, func() bool { return cap.count() == 1 })

	var recs []*delivery.SendRecord
	waitFor(t, 2*time.Second, func() bool {
		var err error
		recs, err = e.ListSendsByWebhook(context.Background(), "acme", wh.ID, delivery.SendListOpts{Limit: 10})
		return err == nil && len(recs) == 1
	})

	err := e.Resend(context.Background(), "acme", other.ID, recs[0].ID)
	if !errors.Is(err, emitter.ErrSendNotFound) {
		t.Fatalf("err = %v, want ErrSendNotFound", err)
	}
}

func TestExhaustedSendLandsInDLQ(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusInternalServerError)
	st := memory.New()
	e := newEmitter(t, st, emitter.WithBackoff(backoff.Config{
		Retry:               true,
		InitialInterval:     time.Millisecond,
		Multiplier:          1.5,
		MaxInterval:         2 * time.Millisecond,
		MaxElapsedTime:      20 * time.Millisecond,
		RandomizationFactor: 0,
	}))
	createWebhook(t, e, "acme", srv.URL, "*")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	waitFor(t, 3*time.Second, func() bool {
		n, err := e.DLQ().Count(context.Background())
		return err == nil && n == 1
	})
}

func TestReplayDLQ(t *testing.T) {
	srv, cap := newCaptureServer(t, http.StatusInternalServerError)
	st := memory.New()
	e := newEmitter(t, st, emitter.WithBackoff(backoff.Config{Retry: false}))
	createWebhook(t, e, "acme", srv.URL, "*")

	tx := deferred.NewQueue(nil)
	e.OnUserEvent(context.Background(), tx, loginEvent())
	tx.Commit()

	waitFor(t, 2*time.Second, func() bool {
		n, err := e.DLQ().Count(context.Background())
		return err == nil && n == 1
	})

	entries, err := e.DLQ().List(context.Background(), dlq.ListOpts{TenantID: "acme", Limit: 10})
	if err != nil || len(entries) != 1 {
		t.Fatalf("list dlq: %v (%d entries)", err, len(entries))
	}

	before := cap.count()
	if err := e.ReplayDLQ(context.Background(), entries[0].ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return cap.count() > before })

	got, err := e.DLQ().Get(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("get dlq entry: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Error("entry not marked replayed")
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := emitter.New(); !errors.Is(err, emitter.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestEventStoredIdempotently(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusOK)
	st := memory.New()
	e := newEmitter(t, st)
	createWebhook(t, e, "acme", srv.URL, "*")

	raw := loginEvent()
	for i := 0; i < 2; i++ {
		tx := deferred.NewQueue(nil)
		e.OnUserEvent(context.Background(), tx, raw)
		tx.Commit()
	}

	waitFor(t, 2*time.Second, func() bool {
		events, err := e.ListEvents(context.Background(), "acme", event.ListOpts{Limit: 10})
		return err == nil && len(events) == 1
	})
}
