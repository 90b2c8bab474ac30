// Package postgres implements the emitter store on PostgreSQL via the
// Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	emitterstore "github.com/hooklab/emitter/store"
	"github.com/hooklab/emitter/webhook"
)

// compile-time interface check
var _ emitterstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove
// orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("emitter/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("emitter/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", whID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, webhook.ErrNotFound
		}
		return nil, err
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// DeleteWebhook removes a webhook and its send history.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	if _, err := s.pg.NewDelete((*sendModel)(nil)).
		Where("webhook_id = $1", whID.String()).
		Exec(ctx); err != nil {
		return err
	}

	res, err := s.pg.NewDelete((*webhookModel)(nil)).
		Where("id = $1", whID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, tenantID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)

	if opts.Enabled != nil {
		q = q.Where("enabled = $2", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = wh
	}
	return result, nil
}

func (s *Store) CountWebhooks(ctx context.Context, tenantID string) (int, error) {
	count, err := s.pg.NewSelect((*webhookModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Count(ctx)
	return int(count), err
}

func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*webhookModel)(nil)).
		Set("enabled = $1", enabled).
		Set("updated_at = $2", now).
		Where("id = $3", whID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// ==================== Event Store ====================

// StoreEvent persists a stored event. Events sharing a non-empty natural
// key (tenant, kind, source event id) are stored once; the surviving
// record is returned either way.
func (s *Store) StoreEvent(ctx context.Context, se *event.StoredEvent) (*event.StoredEvent, error) {
	m := toEventModel(se)

	if se.SourceEventID == "" {
		if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
			return nil, err
		}
		return se, nil
	}

	res, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id, kind, source_event_id) WHERE source_event_id != '' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return s.GetEventByKey(ctx, se.TenantID, se.Kind, se.SourceEventID)
	}
	return se, nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.StoredEvent, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) GetEventByKey(ctx context.Context, tenantID string, kind event.Kind, sourceEventID string) (*event.StoredEvent, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Where("kind = $2", string(kind)).
		Where("source_event_id = $3", sourceEventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEventsByTenant(ctx context.Context, tenantID string, opts event.ListOpts) ([]*event.StoredEvent, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.StoredEvent, len(models))
	for i := range models {
		se, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = se
	}
	return result, nil
}

// ==================== Delivery Store ====================

// RecordAttempt upserts the send record keyed by the occurrence uid. The
// first call creates the record with zero retries; each later call
// increments the retry count and overwrites the outcome.
func (s *Store) RecordAttempt(ctx context.Context, rec *delivery.SendRecord) (*delivery.SendRecord, error) {
	m := toSendModel(rec)
	_, err := s.pg.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("retries = emitter_sends.retries + 1").
		Set("last_error = EXCLUDED.last_error").
		Set("sent_at = EXCLUDED.sent_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetSend(ctx, rec.ID)
}

func (s *Store) GetSend(ctx context.Context, sendID id.ID) (*delivery.SendRecord, error) {
	m := new(sendModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", sendID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, delivery.ErrSendNotFound
		}
		return nil, err
	}
	return fromSendModel(m)
}

func (s *Store) ListSendsByWebhook(ctx context.Context, whID id.ID, opts delivery.SendListOpts) ([]*delivery.SendRecord, error) {
	var models []sendModel
	q := s.pg.NewSelect(&models).Where("webhook_id = $1", whID.String())

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("sent_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.SendRecord, len(models))
	for i := range models {
		rec, err := fromSendModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = rec
	}
	return result, nil
}

func (s *Store) ListSendsByEvent(ctx context.Context, evtID id.ID) ([]*delivery.SendRecord, error) {
	var models []sendModel
	if err := s.pg.NewSelect(&models).
		Where("event_id = $1", evtID.String()).
		OrderExpr("sent_at DESC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.SendRecord, len(models))
	for i := range models {
		rec, err := fromSendModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = rec
	}
	return result, nil
}

// ==================== Catalog Store ====================

// RegisterType upserts an event type by name. Re-registration replaces the
// definition, keeps the original ID, and lifts any deprecation.
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m := toEventTypeModel(et)
	_, err := s.pg.NewInsert(m).
		OnConflict("(name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("group_name = EXCLUDED.group_name").
		Set("schema = EXCLUDED.schema").
		Set("version = EXCLUDED.version").
		Set("example = EXCLUDED.example").
		Set("is_deprecated = false").
		Set("deprecated_at = NULL").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.pg.NewSelect(m).
		Where("name = $1", name).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) GetTypeByID(ctx context.Context, etID id.ID) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", etID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	var models []eventTypeModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Group != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("group_name = $%d", argIdx), opts.Group)
	}
	if !opts.IncludeDeprecated {
		q = q.Where("is_deprecated = false")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.EventType, len(models))
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = et
	}
	return result, nil
}

// DeleteType deprecates an event type. The row survives so history stays
// attributable.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*eventTypeModel)(nil)).
		Set("is_deprecated = true").
		Set("deprecated_at = $1", now).
		Set("updated_at = $2", now).
		Where("name = $3", name).
		Where("is_deprecated = false").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ==================== DLQ Store ====================

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.TenantID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("tenant_id = $%d", argIdx), opts.TenantID)
	}
	if opts.WebhookID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("webhook_id = $%d", argIdx), opts.WebhookID.String())
	}
	if !opts.From.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at >= $%d", argIdx), opts.From)
	}
	if !opts.To.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at <= $%d", argIdx), opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("failed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", dlqID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, err
	}
	return fromDLQEntryModel(m)
}

func (s *Store) MarkReplayed(ctx context.Context, dlqID id.ID) error {
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*dlqEntryModel)(nil)).
		Set("replayed_at = $1", now).
		Set("updated_at = $2", now).
		Where("id = $3", dlqID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dlq.ErrNotFound
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*dlqEntryModel)(nil)).
		Where("failed_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.pg.NewSelect((*dlqEntryModel)(nil)).
		Count(ctx)
	return count, err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
