package emitter

import (
	"os"
	"time"

	"github.com/hooklab/emitter/backoff"
)

// CatchAll configures the system-wide catch-all target. When set, every
// fanned-out event is also delivered there, regardless of per-webhook
// subscriptions.
type CatchAll struct {
	// URL is the catch-all destination. Empty disables the catch-all.
	URL string

	// Secret signs catch-all payloads. Empty sends unsigned.
	Secret string

	// Algorithm is the signing algorithm name. Empty uses the default.
	Algorithm string
}

// Enabled reports whether a catch-all target is configured.
func (c CatchAll) Enabled() bool { return c.URL != "" }

// CatchAllFromEnv reads the catch-all target from the conventional
// environment variables WEBHOOK_URI, WEBHOOK_SECRET and WEBHOOK_ALGORITHM.
func CatchAllFromEnv() CatchAll {
	return CatchAll{
		URL:       os.Getenv("WEBHOOK_URI"),
		Secret:    os.Getenv("WEBHOOK_SECRET"),
		Algorithm: os.Getenv("WEBHOOK_ALGORITHM"),
	}
}

// Config holds the configuration for an Emitter instance.
type Config struct {
	// Workers caps concurrent send attempts. Defaults to the CPU count.
	Workers int

	// RequestTimeout is the HTTP timeout per send attempt.
	RequestTimeout time.Duration

	// SignatureHeader carries the payload HMAC on delivery requests.
	SignatureHeader string

	// UserAgent is sent on every delivery request.
	UserAgent string

	// Backoff shapes the retry schedule for failed sends.
	Backoff backoff.Config

	// CatchAll is the optional system-wide delivery target.
	CatchAll CatchAll

	// StoreEvents persists platform-native events for correlation and
	// resend. Custom events are delivered without bookkeeping either way.
	StoreEvents bool

	// IncludeRepresentation carries the full resource representation on
	// admin events.
	IncludeRepresentation bool

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// 0 disables expiry.
	CacheTTL time.Duration

	// ShutdownTimeout bounds the wait for in-flight sends on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  30 * time.Second,
		Backoff:         backoff.DefaultConfig(),
		StoreEvents:     true,
		CacheTTL:        30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
