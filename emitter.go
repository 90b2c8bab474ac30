// Package emitter is a webhook event delivery engine for identity
// platforms. It normalizes platform events, defers fan-out until the
// triggering unit of work commits, filters per-webhook interest, and
// delivers signed payloads at least once with exponential backoff.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/deferred"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
	"github.com/hooklab/emitter/observability"
	"github.com/hooklab/emitter/ratelimit"
	"github.com/hooklab/emitter/signature"
	"github.com/hooklab/emitter/store"
	"github.com/hooklab/emitter/webhook"
)

// Emitter is the root event delivery engine.
type Emitter struct {
	config   Config
	store    store.Store
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	sender   delivery.Sender
	deferrer deferred.Deferrer
	lookup   event.DirectoryLookup

	webhookSvc *webhook.Service
	catalogSvc *catalog.Catalog
	dlqSvc     *dlq.Service
	matcher    *webhook.Matcher
	normalizer *event.Normalizer
	scheduler  *delivery.Scheduler
	limiter    *ratelimit.Limiter
}

// New creates an Emitter with the given options. A store is required.
func New(opts ...Option) (*Emitter, error) {
	e := &Emitter{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	if e.deferrer == nil {
		e.deferrer = deferred.Immediate(e.logger)
	}
	if e.sender == nil {
		e.sender = delivery.NewHTTPSender(delivery.SenderConfig{
			Timeout:         e.config.RequestTimeout,
			UserAgent:       e.config.UserAgent,
			SignatureHeader: e.config.SignatureHeader,
		})
	}
	e.wireServices()
	return e, nil
}

// wireServices initializes the internal services after options have been
// applied.
func (e *Emitter) wireServices() {
	e.matcher = webhook.NewMatcher()
	e.normalizer = event.NewNormalizer(e.lookup, e.logger)
	e.webhookSvc = webhook.NewService(e.store, e.logger)
	e.catalogSvc = catalog.NewCatalog(e.store, catalog.Config{
		CacheTTL: e.config.CacheTTL,
	}, e.logger)
	e.dlqSvc = dlq.NewService(e.store, e.logger)
	e.limiter = ratelimit.New()
	e.scheduler = delivery.NewScheduler(e.sender, delivery.SchedulerConfig{
		Workers:   e.config.Workers,
		Limiter:   e.limiter,
		Metrics:   e.metrics,
		Tracer:    e.tracer,
		AfterSend: e.recordSend,
		GiveUp:    e.moveToDLQ,
	}, e.logger)
}

// Shutdown stops the delivery scheduler, waiting for in-flight sends up to
// the configured shutdown timeout.
func (e *Emitter) Shutdown(ctx context.Context) error {
	if e.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ShutdownTimeout)
		defer cancel()
	}
	return e.scheduler.Shutdown(ctx)
}

// ──────────────────────────────────────────────────
// Event intake
// ──────────────────────────────────────────────────

// OnUserEvent normalizes an end-user action event and enlists its fan-out
// in the unit of work. The fan-out runs only if the unit commits; a nil tx
// falls back to the configured default deferrer.
func (e *Emitter) OnUserEvent(ctx context.Context, tx deferred.Deferrer, raw event.UserEvent) {
	evt := e.normalizer.FromUserEvent(ctx, raw)
	e.enlist(ctx, tx, evt)
}

// OnAdminEvent normalizes an administrative action event and enlists its
// fan-out in the unit of work.
func (e *Emitter) OnAdminEvent(ctx context.Context, tx deferred.Deferrer, raw event.AdminEvent) {
	evt := e.normalizer.FromAdminEvent(ctx, raw, e.config.IncludeRepresentation)
	e.enlist(ctx, tx, evt)
}

// Publish accepts an application-submitted custom event. Reserved type
// prefixes are rejected, a missing type is a validation error, and when the
// type is registered in the catalog its payload is validated against the
// schema. Delivery is asynchronous and starts only after the unit of work
// commits.
func (e *Emitter) Publish(ctx context.Context, tx deferred.Deferrer, evt *event.Event) error {
	if err := event.ValidateCustom(evt); err != nil {
		return err
	}
	if evt.Time == 0 {
		evt.Time = time.Now().UnixMilli()
	}

	if err := e.catalogSvc.ValidatePayload(ctx, evt.Type, detailsDoc(evt.Details)); err != nil {
		if errors.Is(err, catalog.ErrDeprecated) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPayloadValidationFailed, err)
	}

	e.enlist(ctx, tx, evt)
	return nil
}

// enlist defers the fan-out of one normalized event until the unit of work
// commits. The captured context outlives the request that produced it.
func (e *Emitter) enlist(ctx context.Context, tx deferred.Deferrer, evt *event.Event) {
	if tx == nil {
		tx = e.deferrer
	}
	ctx = context.WithoutCancel(ctx)
	tx.Enlist(func() {
		e.fanOut(ctx, evt)
	})
}

// detailsDoc converts an event's details to the decoded-JSON shape the
// schema validator expects.
func detailsDoc(details map[string]string) map[string]any {
	doc := make(map[string]any, len(details))
	for k, v := range details {
		doc[k] = v
	}
	return doc
}

// ──────────────────────────────────────────────────
// Fan-out
// ──────────────────────────────────────────────────

// fanOut runs after commit: it assigns the occurrence uid, persists the
// stored event for platform-native kinds, and schedules one delivery task
// per interested webhook plus the catch-all. Failures here are logged, not
// returned; the triggering unit of work has already committed.
func (e *Emitter) fanOut(ctx context.Context, evt *event.Event) {
	uid := id.NewSendID()
	if evt.UID == "" {
		evt.UID = uid.String()
	} else if parsed, err := id.ParseSendID(evt.UID); err == nil {
		uid = parsed
	}

	// Marshal once: every webhook's signature covers these exact bytes.
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal event failed", "uid", uid, "type", evt.Type, "error", err)
		return
	}

	kind := evt.Kind()
	if e.metrics != nil {
		e.metrics.RecordEvent(string(kind))
	}

	var evtID id.ID
	if kind.PlatformNative() && e.config.StoreEvents {
		stored, storeErr := e.store.StoreEvent(ctx, &event.StoredEvent{
			Entity:        entity.New(),
			ID:            id.NewEventID(),
			TenantID:      evt.TenantID,
			Kind:          kind,
			SourceEventID: evt.ID,
			EventType:     evt.Type,
			Payload:       payload,
		})
		if storeErr != nil {
			// Delivery still proceeds; bookkeeping is best effort.
			e.logger.ErrorContext(ctx, "persist event failed", "uid", uid, "type", evt.Type, "error", storeErr)
		} else {
			evtID = stored.ID
		}
	}

	enabled := true
	webhooks, err := e.store.ListWebhooks(ctx, evt.TenantID, webhook.ListOpts{Enabled: &enabled})
	if err != nil {
		e.logger.ErrorContext(ctx, "list webhooks failed", "uid", uid, "tenant_id", evt.TenantID, "error", err)
		webhooks = nil
	}

	scheduled := 0
	for _, wh := range webhooks {
		if wh.URL == "" || !e.matcher.InterestedIn(wh, evt.Type) {
			continue
		}
		e.scheduler.Schedule(&delivery.Task{
			UID:       uid,
			WebhookID: wh.ID,
			EventID:   evtID,
			TenantID:  evt.TenantID,
			EventType: evt.Type,
			Kind:      kind,
			Payload:   payload,
			URL:       wh.URL,
			Secret:    wh.Secret,
			Algorithm: wh.Algorithm,
			RateLimit: wh.RateLimit,
			Policy:    e.config.Backoff.New(),
		}, 0)
		scheduled++
	}

	if e.config.CatchAll.Enabled() {
		alg := e.config.CatchAll.Algorithm
		if alg == "" {
			alg = signature.Default
		}
		e.scheduler.Schedule(&delivery.Task{
			UID:       uid,
			TenantID:  evt.TenantID,
			EventType: evt.Type,
			Kind:      kind,
			Payload:   payload,
			URL:       e.config.CatchAll.URL,
			Secret:    e.config.CatchAll.Secret,
			Algorithm: alg,
			Policy:    e.config.Backoff.New(),
		}, 0)
		scheduled++
	}

	e.logger.DebugContext(ctx, "event fanned out",
		"uid", uid, "type", evt.Type, "tenant_id", evt.TenantID, "sends", scheduled)
}

// recordSend is the scheduler's after-send hook. It upserts the durable
// send record keyed by the occurrence uid. Catch-all sends and custom
// events carry no bookkeeping.
func (e *Emitter) recordSend(ctx context.Context, task *delivery.Task, result delivery.Result) {
	if task.WebhookID.IsNil() || !task.Kind.PlatformNative() {
		return
	}

	if _, err := e.store.RecordAttempt(ctx, &delivery.SendRecord{
		Entity:    entity.New(),
		ID:        task.UID,
		WebhookID: task.WebhookID,
		EventID:   task.EventID,
		TenantID:  task.TenantID,
		EventType: task.EventType,
		Status:    result.StatusCode,
		LastError: result.Error,
		SentAt:    time.Now().UTC(),
	}); err != nil {
		e.logger.ErrorContext(ctx, "record send attempt failed",
			"uid", task.UID, "webhook_id", task.WebhookID, "error", err)
	}
}

// moveToDLQ is the scheduler's give-up hook.
func (e *Emitter) moveToDLQ(ctx context.Context, task *delivery.Task, result delivery.Result) {
	if _, err := e.dlqSvc.PushFailed(ctx, task, result); err != nil {
		e.logger.ErrorContext(ctx, "push to dead letter queue failed",
			"uid", task.UID, "webhook_id", task.WebhookID, "error", err)
		return
	}
	if e.metrics != nil {
		e.metrics.DLQSize.Inc()
	}
}

// ──────────────────────────────────────────────────
// Resend and replay
// ──────────────────────────────────────────────────

// Resend schedules one new delivery of an already-sent occurrence to its
// originating webhook. Interest is not re-evaluated: an operator's explicit
// resend bypasses filtering. The new task reuses the original uid, so the
// existing send record absorbs the extra attempt.
func (e *Emitter) Resend(ctx context.Context, tenantID string, whID, sendID id.ID) error {
	wh, err := e.webhookSvc.Get(ctx, tenantID, whID)
	if err != nil {
		return err
	}

	rec, err := e.store.GetSend(ctx, sendID)
	if err != nil {
		return err
	}
	if rec.WebhookID != whID {
		return ErrSendNotFound
	}

	se, err := e.store.GetEvent(ctx, rec.EventID)
	if err != nil {
		return err
	}

	e.scheduler.Schedule(&delivery.Task{
		UID:       rec.ID,
		WebhookID: wh.ID,
		EventID:   se.ID,
		TenantID:  rec.TenantID,
		EventType: rec.EventType,
		Kind:      se.Kind,
		Payload:   se.Payload,
		URL:       wh.URL,
		Secret:    wh.Secret,
		Algorithm: wh.Algorithm,
		RateLimit: wh.RateLimit,
		Policy:    e.config.Backoff.New(),
	}, 0)

	e.logger.InfoContext(ctx, "resend scheduled",
		"uid", rec.ID, "webhook_id", wh.ID, "event_type", rec.EventType)
	return nil
}

// ReplayDLQ schedules a fresh delivery of a dead-lettered send. The target
// webhook's current URL and secret are used; a replay against a deleted
// webhook fails.
func (e *Emitter) ReplayDLQ(ctx context.Context, dlqID id.ID) error {
	entry, err := e.dlqSvc.Get(ctx, dlqID)
	if err != nil {
		return err
	}

	task := &delivery.Task{
		UID:       entry.UID,
		WebhookID: entry.WebhookID,
		EventID:   entry.EventID,
		TenantID:  entry.TenantID,
		EventType: entry.EventType,
		Kind:      event.KindOfType(entry.EventType),
		Payload:   entry.Payload,
		Policy:    e.config.Backoff.New(),
	}

	if entry.WebhookID.IsNil() {
		if !e.config.CatchAll.Enabled() {
			return fmt.Errorf("emitter: replay %s: catch-all target no longer configured", dlqID)
		}
		task.URL = e.config.CatchAll.URL
		task.Secret = e.config.CatchAll.Secret
		task.Algorithm = e.config.CatchAll.Algorithm
		if task.Algorithm == "" {
			task.Algorithm = signature.Default
		}
	} else {
		wh, whErr := e.store.GetWebhook(ctx, entry.WebhookID)
		if whErr != nil {
			return whErr
		}
		task.URL = wh.URL
		task.Secret = wh.Secret
		task.Algorithm = wh.Algorithm
		task.RateLimit = wh.RateLimit
	}

	e.scheduler.Schedule(task, 0)

	if err := e.dlqSvc.MarkReplayed(ctx, dlqID); err != nil {
		e.logger.WarnContext(ctx, "mark dlq entry replayed failed", "dlq_id", dlqID, "error", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subsystem access
// ──────────────────────────────────────────────────

// Webhooks returns the webhook management service.
func (e *Emitter) Webhooks() *webhook.Service {
	return e.webhookSvc
}

// Catalog returns the custom event type catalog.
func (e *Emitter) Catalog() *catalog.Catalog {
	return e.catalogSvc
}

// DLQ returns the dead letter queue service.
func (e *Emitter) DLQ() *dlq.Service {
	return e.dlqSvc
}

// GetEvent returns a stored event by ID.
func (e *Emitter) GetEvent(ctx context.Context, evtID id.ID) (*event.StoredEvent, error) {
	return e.store.GetEvent(ctx, evtID)
}

// ListEvents returns a tenant's stored events, newest first.
func (e *Emitter) ListEvents(ctx context.Context, tenantID string, opts event.ListOpts) ([]*event.StoredEvent, error) {
	return e.store.ListEventsByTenant(ctx, tenantID, opts)
}

// GetSend returns a send record by uid.
func (e *Emitter) GetSend(ctx context.Context, sendID id.ID) (*delivery.SendRecord, error) {
	return e.store.GetSend(ctx, sendID)
}

// ListSendsByWebhook returns a webhook's send history, newest first.
func (e *Emitter) ListSendsByWebhook(ctx context.Context, tenantID string, whID id.ID, opts delivery.SendListOpts) ([]*delivery.SendRecord, error) {
	if _, err := e.webhookSvc.Get(ctx, tenantID, whID); err != nil {
		return nil, err
	}
	return e.store.ListSendsByWebhook(ctx, whID, opts)
}

// ListSendsByEvent returns all send records for a stored event.
func (e *Emitter) ListSendsByEvent(ctx context.Context, evtID id.ID) ([]*delivery.SendRecord, error) {
	return e.store.ListSendsByEvent(ctx, evtID)
}
