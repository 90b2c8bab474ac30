package event

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

// Reserved type prefixes. Custom events may not use them; doing so would
// let an application spoof platform event types.
var reservedPrefixes = []string{"access.", "admin.", "system."}

// ErrReservedType is returned when a custom event's type begins with a
// reserved prefix. Surfaces to API callers as a 409.
var ErrReservedType = errors.New("event: reserved event type prefix")

// ValidationError indicates a custom event with an invalid shape. Surfaces
// to API callers as a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "event validation: " + e.Field + ": " + e.Message
}

// ValidateCustom checks an application-submitted event before anything is
// scheduled for it.
func ValidateCustom(evt *Event) error {
	if evt == nil || evt.Type == "" {
		return &ValidationError{Field: "type", Message: "required"}
	}

	lower := strings.ToLower(evt.Type)
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ErrReservedType
		}
	}
	return nil
}

// UserEventType derives the canonical type for an end-user event.
func UserEventType(rawType string) string {
	return "access." + rawType
}

// AdminEventType derives the canonical type for an admin event:
// "admin.<RESOURCE>-<OPERATION>", with the dash only when both parts are
// present. External consumers pattern-match on this exact shape.
func AdminEventType(resourceType, operationType string) string {
	var b strings.Builder
	b.WriteString("admin.")
	b.WriteString(resourceType)
	if resourceType != "" && operationType != "" {
		b.WriteString("-")
	}
	b.WriteString(operationType)
	return b.String()
}

// DirectoryLookup resolves best-effort human-readable attributes from the
// platform's directory. Implementations may fail freely; the normalizer
// treats every error as "leave the field unset".
type DirectoryLookup interface {
	// UsernameByID resolves a user's display name within a tenant.
	UsernameByID(ctx context.Context, tenantID, userID string) (string, error)

	// TenantName resolves a tenant's human-readable name.
	TenantName(ctx context.Context, tenantID string) (string, error)
}

// NopLookup is a DirectoryLookup that resolves nothing.
type NopLookup struct{}

func (NopLookup) UsernameByID(context.Context, string, string) (string, error) { return "", nil }
func (NopLookup) TenantName(context.Context, string) (string, error)           { return "", nil }

// userResourcePattern extracts the user id from admin resource paths like
// "users/4f1c…".
var userResourcePattern = regexp.MustCompile(
	`^users/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)

// Normalizer converts raw platform events into canonical Events.
type Normalizer struct {
	lookup DirectoryLookup
	logger *slog.Logger
}

// NewNormalizer creates a normalizer. A nil lookup disables attribute
// resolution.
func NewNormalizer(lookup DirectoryLookup, logger *slog.Logger) *Normalizer {
	if lookup == nil {
		lookup = NopLookup{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{lookup: lookup, logger: logger}
}

// FromUserEvent builds the canonical record for an end-user action event.
// Directory lookups are best effort and never fail the conversion.
func (n *Normalizer) FromUserEvent(ctx context.Context, raw UserEvent) *Event {
	evt := &Event{
		ID:         raw.ID,
		Time:       raw.Time,
		Type:       UserEventType(raw.Type),
		TenantID:   raw.TenantID,
		TenantName: raw.TenantName,
		Error:      raw.Error,
		Details:    copyDetails(raw.Details),
		AuthDetails: &AuthDetails{
			TenantID:  raw.TenantID,
			ClientID:  raw.ClientID,
			UserID:    raw.UserID,
			SessionID: raw.SessionID,
			IPAddress: raw.IPAddress,
		},
	}

	if raw.UserID != "" {
		if username, err := n.lookup.UsernameByID(ctx, raw.TenantID, raw.UserID); err == nil && username != "" {
			evt.AuthDetails.Username = username
		} else if err != nil {
			n.logger.DebugContext(ctx, "username lookup failed", "user_id", raw.UserID, "error", err)
		}
	}

	n.resolveTenantName(ctx, evt)
	return evt
}

// FromAdminEvent builds the canonical record for an administrative action
// event. When the resource path points at a user, the user's id and (best
// effort) username are added to the details map.
func (n *Normalizer) FromAdminEvent(ctx context.Context, raw AdminEvent, includeRepresentation bool) *Event {
	evt := &Event{
		ID:            raw.ID,
		Time:          raw.Time,
		Type:          AdminEventType(raw.ResourceType, raw.OperationType),
		TenantID:      raw.TenantID,
		TenantName:    raw.TenantName,
		OperationType: raw.OperationType,
		ResourceType:  raw.ResourceType,
		ResourcePath:  raw.ResourcePath,
		Error:         raw.Error,
		Details:       copyDetails(raw.Details),
		AuthDetails: &AuthDetails{
			TenantID:  raw.AuthTenantID,
			ClientID:  raw.AuthClientID,
			UserID:    raw.AuthUserID,
			IPAddress: raw.AuthIPAddress,
		},
	}

	if includeRepresentation {
		evt.Representation = raw.Representation
	}

	if raw.AuthUserID != "" {
		if username, err := n.lookup.UsernameByID(ctx, raw.AuthTenantID, raw.AuthUserID); err == nil && username != "" {
			evt.AuthDetails.Username = username
		} else if err != nil {
			n.logger.DebugContext(ctx, "agent username lookup failed", "user_id", raw.AuthUserID, "error", err)
		}
	}

	if m := userResourcePattern.FindStringSubmatch(raw.ResourcePath); m != nil {
		userID := m[1]
		if evt.Details == nil {
			evt.Details = make(map[string]string)
		}
		evt.Details["userId"] = userID
		if username, err := n.lookup.UsernameByID(ctx, raw.TenantID, userID); err == nil && username != "" {
			evt.Details["username"] = username
		}
	}

	n.resolveTenantName(ctx, evt)
	return evt
}

func (n *Normalizer) resolveTenantName(ctx context.Context, evt *Event) {
	if evt.TenantName != "" || evt.TenantID == "" {
		return
	}
	name, err := n.lookup.TenantName(ctx, evt.TenantID)
	if err != nil {
		n.logger.DebugContext(ctx, "tenant name lookup failed", "tenant_id", evt.TenantID, "error", err)
		return
	}
	evt.TenantName = name
}

func copyDetails(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}
