// Package api provides the admin HTTP API for webhook and event type
// management. Routes are tenant-scoped; mount the handler under whatever
// prefix the host application's admin surface uses.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	emitter "github.com/hooklab/emitter"
)

// actorKey carries the authenticated identity through the request context.
// Authentication itself is the host application's concern.
type actorKey struct{}

// Actor is the authenticated identity behind a request. The host's auth
// middleware stamps it onto the context; the API records it as the creator
// of webhooks and as the authDetails of published events.
type Actor struct {
	UserID    string
	Username  string
	ClientID  string
	SessionID string
}

// Name returns the actor's username, falling back to the user ID.
func (a Actor) Name() string {
	if a.Username != "" {
		return a.Username
	}
	return a.UserID
}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor, or the zero Actor if none was set.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

// Handler is the root HTTP handler for the admin API.
type Handler struct {
	emitter *emitter.Emitter
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates the admin API handler around an Emitter.
func NewHandler(e *emitter.Emitter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		emitter: e,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Webhooks
	h.mux.HandleFunc("POST /tenants/{tenant}/webhooks", h.createWebhook)
	h.mux.HandleFunc("GET /tenants/{tenant}/webhooks", h.listWebhooks)
	h.mux.HandleFunc("GET /tenants/{tenant}/webhooks/count", h.countWebhooks)
	h.mux.HandleFunc("GET /tenants/{tenant}/webhooks/{id}", h.getWebhook)
	h.mux.HandleFunc("PUT /tenants/{tenant}/webhooks/{id}", h.updateWebhook)
	h.mux.HandleFunc("DELETE /tenants/{tenant}/webhooks/{id}", h.deleteWebhook)
	h.mux.HandleFunc("POST /tenants/{tenant}/webhooks/{id}/secret", h.rotateSecret)

	// Send history and manual resend
	h.mux.HandleFunc("GET /tenants/{tenant}/webhooks/{id}/sends", h.listSends)
	h.mux.HandleFunc("GET /tenants/{tenant}/webhooks/{id}/sends/{sid}", h.getSend)
	h.mux.HandleFunc("POST /tenants/{tenant}/webhooks/{id}/sends/{sid}/resend", h.resend)

	// Custom event publishing and stored event history
	h.mux.HandleFunc("POST /tenants/{tenant}/events", h.publishEvent)
	h.mux.HandleFunc("GET /tenants/{tenant}/events", h.listEvents)
	h.mux.HandleFunc("GET /tenants/{tenant}/events/{id}", h.getEvent)
	h.mux.HandleFunc("GET /tenants/{tenant}/events/{id}/sends", h.listEventSends)

	// Event type catalog
	h.mux.HandleFunc("POST /event-types", h.registerEventType)
	h.mux.HandleFunc("GET /event-types", h.listEventTypes)
	h.mux.HandleFunc("GET /event-types/{name}", h.getEventType)
	h.mux.HandleFunc("DELETE /event-types/{name}", h.deleteEventType)

	// Dead letter queue
	h.mux.HandleFunc("GET /dlq", h.listDLQ)
	h.mux.HandleFunc("POST /dlq/{id}/replay", h.replayDLQ)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
