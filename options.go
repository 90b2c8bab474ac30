package emitter

import (
	"log/slog"
	"time"

	"github.com/hooklab/emitter/backoff"
	"github.com/hooklab/emitter/deferred"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/observability"
	"github.com/hooklab/emitter/store"
)

// Option configures an Emitter instance.
type Option func(*Emitter) error

// WithStore sets the persistence backend for the Emitter instance.
func WithStore(s store.Store) Option {
	return func(e *Emitter) error {
		e.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Emitter instance.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) error {
		e.logger = logger
		return nil
	}
}

// WithWorkers caps concurrent send attempts.
func WithWorkers(n int) Option {
	return func(e *Emitter) error {
		e.config.Workers = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per send attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Emitter) error {
		e.config.RequestTimeout = d
		return nil
	}
}

// WithBackoff shapes the retry schedule for failed sends.
func WithBackoff(cfg backoff.Config) Option {
	return func(e *Emitter) error {
		e.config.Backoff = cfg
		return nil
	}
}

// WithCatchAll sets the system-wide catch-all delivery target.
func WithCatchAll(ca CatchAll) Option {
	return func(e *Emitter) error {
		e.config.CatchAll = ca
		return nil
	}
}

// WithSignatureHeader sets the request header carrying the payload HMAC.
func WithSignatureHeader(name string) Option {
	return func(e *Emitter) error {
		e.config.SignatureHeader = name
		return nil
	}
}

// WithStoreEvents toggles persisting platform-native events.
func WithStoreEvents(enabled bool) Option {
	return func(e *Emitter) error {
		e.config.StoreEvents = enabled
		return nil
	}
}

// WithIncludeRepresentation carries the full resource representation on
// admin events.
func WithIncludeRepresentation(enabled bool) Option {
	return func(e *Emitter) error {
		e.config.IncludeRepresentation = enabled
		return nil
	}
}

// WithShutdownTimeout bounds the wait for in-flight sends on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Emitter) error {
		e.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Emitter) error {
		e.config.CacheTTL = d
		return nil
	}
}

// WithSender replaces the HTTP sender, e.g. with a streaming transport.
func WithSender(s delivery.Sender) Option {
	return func(e *Emitter) error {
		e.sender = s
		return nil
	}
}

// WithDeferrer sets the default deferrer used when event intake is called
// without an explicit unit of work. Defaults to running side effects
// immediately.
func WithDeferrer(d deferred.Deferrer) Option {
	return func(e *Emitter) error {
		e.deferrer = d
		return nil
	}
}

// WithDirectoryLookup resolves usernames and tenant names during event
// normalization.
func WithDirectoryLookup(lookup event.DirectoryLookup) Option {
	return func(e *Emitter) error {
		e.lookup = lookup
		return nil
	}
}

// WithMetrics records emitter metrics to the given instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Emitter) error {
		e.metrics = m
		return nil
	}
}

// WithTracer traces send attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Emitter) error {
		e.tracer = t
		return nil
	}
}
