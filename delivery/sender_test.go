package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hooklab/emitter/backoff"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/signature"
)

func newTestTask(url string) *delivery.Task {
	return &delivery.Task{
		UID:       id.NewSendID(),
		WebhookID: id.NewWebhookID(),
		TenantID:  "tenant-1",
		EventType: "access.LOGIN",
		Kind:      event.KindUser,
		Payload:   []byte(`{"type":"access.LOGIN","realmId":"tenant-1"}`),
		URL:       url,
		Secret:    "whsec_test_secret",
		Algorithm: signature.AlgHMACSHA256,
		Policy:    backoff.NoRetry(),
	}
}

func TestHTTPSenderHappyPath(t *testing.T) {
	var receivedHeaders http.Header
	var receivedBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Error(err)
		}
		receivedBody = string(body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{Timeout: 5 * time.Second})
	task := newTestTask(srv.URL)

	result := sender.Send(context.Background(), task)

	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if result.Response != `{"ok":true}` {
		t.Fatalf("unexpected response: %s", result.Response)
	}
	if receivedBody != string(task.Payload) {
		t.Fatalf("body must be the exact task payload, got %s", receivedBody)
	}

	if ct := receivedHeaders.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type: %q", ct)
	}
	if ua := receivedHeaders.Get("User-Agent"); ua != "Emitter/1.0" {
		t.Fatalf("user agent: %q", ua)
	}
	if evtID := receivedHeaders.Get("X-Event-Id"); evtID != task.UID.String() {
		t.Fatalf("event id header: %q", evtID)
	}
	if et := receivedHeaders.Get("X-Event-Type"); et != "access.LOGIN" {
		t.Fatalf("event type header: %q", et)
	}
}

func TestHTTPSenderSignature(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{})
	task := newTestTask(srv.URL)
	sender.Send(context.Background(), task)

	want, err := signature.Sign(task.Payload, task.Secret, task.Algorithm)
	if err != nil {
		t.Fatal(err)
	}
	if sig != want {
		t.Fatalf("signature mismatch: got %q want %q", sig, want)
	}
	if err := signature.Verify(task.Payload, task.Secret, task.Algorithm, sig); err != nil {
		t.Fatalf("signature should verify against the received body: %v", err)
	}
}

func TestHTTPSenderNoSecretSkipsSignature(t *testing.T) {
	var hasSig bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasSig = r.Header["X-Signature"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{})
	task := newTestTask(srv.URL)
	task.Secret = ""
	result := sender.Send(context.Background(), task)

	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
	if hasSig {
		t.Fatal("unsigned task must not carry a signature header")
	}
}

func TestHTTPSenderCustomSignatureHeader(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Hooklab-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{SignatureHeader: "X-Hooklab-Signature"})
	sender.Send(context.Background(), newTestTask(srv.URL))

	if sig == "" {
		t.Fatal("signature should be sent on the configured header")
	}
}

func TestHTTPSenderBadAlgorithmIsTerminal(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{})
	task := newTestTask(srv.URL)
	task.Algorithm = "HMAC-MD5"
	result := sender.Send(context.Background(), task)

	if !result.Terminal {
		t.Fatalf("bad signing config must be terminal, got %+v", result)
	}
	if result.Retryable() {
		t.Fatal("terminal result must not be retryable")
	}
	if called {
		t.Fatal("nothing must be sent when signing fails")
	}
}

func TestHTTPSenderTornBodyOn2xxIsSuccess(t *testing.T) {
	// Declare more bytes than the handler writes so the client's body
	// read fails after the 200 status line arrives.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "64")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	s := delivery.NewHTTPSender(delivery.SenderConfig{Timeout: time.Second})
	result := s.Send(context.Background(), newTestTask(srv.URL))

	if !result.Success() {
		t.Fatalf("result = %+v, want success on 2xx despite body read error", result)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", result.StatusCode)
	}
}

func TestHTTPSenderServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{})
	result := sender.Send(context.Background(), newTestTask(srv.URL))

	if result.Success() {
		t.Fatal("500 is not success")
	}
	if !result.Retryable() {
		t.Fatalf("500 must be retryable, got %+v", result)
	}
	if result.StatusCode != 500 {
		t.Fatalf("status: %d", result.StatusCode)
	}
}

func TestHTTPSenderConnectionFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	sender := delivery.NewHTTPSender(delivery.SenderConfig{Timeout: time.Second})
	result := sender.Send(context.Background(), newTestTask(srv.URL))

	if result.Error == "" {
		t.Fatal("expected a transport error")
	}
	if result.StatusCode != 0 {
		t.Fatalf("no response means status 0, got %d", result.StatusCode)
	}
	if !result.Retryable() {
		t.Fatal("transport failures must be retryable")
	}
}

func TestHTTPSenderResponseBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	sender := delivery.NewHTTPSender(delivery.SenderConfig{})
	result := sender.Send(context.Background(), newTestTask(srv.URL))

	if len(result.Response) != 1024 {
		t.Fatalf("response should be capped at 1KB, got %d", len(result.Response))
	}
}
