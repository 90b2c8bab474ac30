package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hooklab/emitter/signature"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// SenderConfig configures the HTTP sender.
type SenderConfig struct {
	// Timeout bounds each delivery attempt end to end.
	Timeout time.Duration

	// UserAgent is sent on every request.
	UserAgent string

	// SignatureHeader carries the hex HMAC of the payload.
	SignatureHeader string
}

const (
	defaultTimeout         = 30 * time.Second
	defaultUserAgent       = "Emitter/1.0"
	defaultSignatureHeader = "X-Signature"
)

// HTTPSender delivers payloads over HTTP POST with HMAC signing.
type HTTPSender struct {
	client *http.Client
	config SenderConfig
}

// NewHTTPSender creates a sender. Zero-value config fields fall back to
// defaults.
func NewHTTPSender(cfg SenderConfig) *HTTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = defaultSignatureHeader
	}
	return &HTTPSender{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Send posts the task's payload to its URL. Transport failures are
// retryable; an unusable signing configuration is terminal, and nothing is
// sent unsigned in that case.
func (s *HTTPSender) Send(ctx context.Context, task *Task) Result {
	var signed string
	if task.Secret != "" {
		var err error
		signed, err = signature.Sign(task.Payload, task.Secret, task.Algorithm)
		if err != nil {
			return Result{
				Error:    fmt.Sprintf("sign payload: %v", err),
				Terminal: true,
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.URL, bytes.NewReader(task.Payload))
	if err != nil {
		return Result{
			Error:    fmt.Sprintf("create request: %v", err),
			Terminal: true,
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("X-Event-Id", task.UID.String())
	req.Header.Set("X-Event-Type", task.EventType)
	if signed != "" {
		req.Header.Set(s.config.SignatureHeader, signed)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: latency,
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		// The status code alone decides the outcome. A torn body on a
		// 2xx response is still a success; the body is ignored anyway.
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return Result{
				StatusCode: resp.StatusCode,
				LatencyMs:  latency,
			}
		}
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  latency,
		}
	}

	result := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}
	if !result.Success() {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}
