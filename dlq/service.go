package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// Service manages the dead letter queue.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// PushFailed creates a DLQ entry from an abandoned send task.
func (svc *Service) PushFailed(ctx context.Context, task *delivery.Task, result delivery.Result) (*Entry, error) {
	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		UID:            task.UID,
		WebhookID:      task.WebhookID,
		EventID:        task.EventID,
		TenantID:       task.TenantID,
		EventType:      task.EventType,
		URL:            task.URL,
		Payload:        task.Payload,
		Error:          result.Error,
		Attempts:       task.Attempt,
		LastStatusCode: result.StatusCode,
		FailedAt:       time.Now().UTC(),
	}

	if err := svc.store.Push(ctx, entry); err != nil {
		return nil, err
	}

	svc.logger.WarnContext(ctx, "send moved to dead letter queue",
		"dlq_id", entry.ID, "uid", entry.UID, "webhook_id", entry.WebhookID,
		"event_type", entry.EventType, "attempts", entry.Attempts)
	return entry, nil
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// MarkReplayed stamps an entry as replayed.
func (svc *Service) MarkReplayed(ctx context.Context, dlqID id.ID) error {
	return svc.store.MarkReplayed(ctx, dlqID)
}

// Purge removes entries that failed before the threshold.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.Purge(ctx, before)
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
