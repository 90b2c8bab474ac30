package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/internal/entity"
)

// Catalog is the cached registry of custom event types. Lookups sit on the
// publish path, so reads are served from memory and refreshed from the
// store when the TTL lapses.
type Catalog struct {
	store     Store
	validator *Validator
	cache     map[string]*EventType
	cacheTTL  time.Duration
	lastLoad  time.Time
	mu        sync.RWMutex
	logger    *slog.Logger
}

// Config configures the catalog service.
type Config struct {
	CacheTTL time.Duration
}

// NewCatalog creates a catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:     store,
		validator: NewValidator(),
		cache:     make(map[string]*EventType),
		cacheTTL:  cfg.CacheTTL,
		logger:    logger,
	}
}

// RegisterType registers or updates a custom event type definition. Names
// under the platform's reserved prefixes are rejected.
func (c *Catalog) RegisterType(ctx context.Context, def Definition) (*EventType, error) {
	if def.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}
	if err := event.ValidateCustom(&event.Event{Type: def.Name}); err != nil {
		return nil, err
	}
	if len(def.Schema) > 0 {
		// Fail registration early instead of failing every later publish.
		if _, err := c.validator.compile(def.Schema); err != nil {
			return nil, &ValidationError{Field: "schema", Message: err.Error()}
		}
	}

	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
	}

	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[def.Name] = et
	c.mu.Unlock()

	return et, nil
}

// GetType returns an event type by name, using the cache when fresh.
func (c *Catalog) GetType(ctx context.Context, name string) (*EventType, error) {
	c.mu.RLock()
	if et, ok := c.cache[name]; ok && !c.cacheExpired() {
		c.mu.RUnlock()
		return et, nil
	}
	c.mu.RUnlock()

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[name] = et
	c.mu.Unlock()

	return et, nil
}

// ListTypes returns registered event types.
func (c *Catalog) ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// DeleteType deprecates an event type and removes it from the cache.
func (c *Catalog) DeleteType(ctx context.Context, name string) error {
	if err := c.store.DeleteType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	return nil
}

// ValidatePayload checks a published payload against the registered schema
// for its type. Types without a catalog entry pass: registration is opt-in.
// A deprecated type rejects publishes.
func (c *Catalog) ValidatePayload(ctx context.Context, eventType string, payload any) error {
	et, err := c.GetType(ctx, eventType)
	if err != nil {
		// Unregistered types are accepted as-is.
		return nil
	}
	if et.IsDeprecated {
		return ErrDeprecated
	}
	if len(et.Definition.Schema) == 0 {
		return nil
	}
	return c.validator.Validate(et.Definition.Schema, payload)
}

// InvalidateCache clears the cache, forcing fresh reads from the store.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]*EventType)
	c.lastLoad = time.Time{}
	c.mu.Unlock()
}

// WarmCache preloads the cache from the store.
func (c *Catalog) WarmCache(ctx context.Context) error {
	types, err := c.store.ListTypes(ctx, ListOpts{IncludeDeprecated: false})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*EventType, len(types))
	for _, et := range types {
		c.cache[et.Definition.Name] = et
	}
	c.lastLoad = time.Now()
	return nil
}

// cacheExpired reports whether the TTL has elapsed. Callers hold at least
// the read lock.
func (c *Catalog) cacheExpired() bool {
	if c.cacheTTL == 0 {
		return false
	}
	return time.Since(c.lastLoad) > c.cacheTTL
}

// ValidationError indicates an invalid event type definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("catalog validation: ")
	b.WriteString(e.Field)
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}
