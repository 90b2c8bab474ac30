// Package store defines the composite Store interface for all emitter
// persistence.
//
// Each subsystem defines its own store interface; the aggregate Store
// composes them all, so a single backend implementation serves every
// subsystem.
package store

import (
	"context"

	"github.com/hooklab/emitter/catalog"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	webhook.Store
	event.Store
	delivery.Store
	catalog.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
