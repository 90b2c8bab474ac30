// Package event defines the canonical event record delivered to webhooks
// and the normalizer that produces it from the platform's raw shapes.
package event

import "strings"

// Kind classifies where an event originated.
type Kind string

const (
	// KindUser marks end-user action events (logins, profile updates).
	KindUser Kind = "USER"

	// KindAdmin marks administrative action events (console operations).
	KindAdmin Kind = "ADMIN"

	// KindSystem marks platform-internal events.
	KindSystem Kind = "SYSTEM"

	// KindUnknown marks application-submitted custom events and anything
	// else the taxonomy does not recognize.
	KindUnknown Kind = "UNKNOWN"
)

// PlatformNative reports whether events of this kind are produced by the
// platform itself. Only native events get stored-event and send-record
// bookkeeping; custom events are delivered fire-and-forget.
func (k Kind) PlatformNative() bool {
	return k == KindUser || k == KindAdmin
}

// KindOfType derives the Kind from a canonical dotted event type string.
// "access.*" maps to USER; "admin.*", "system.*" and "user.*" map to their
// respective kinds; everything else is UNKNOWN.
func KindOfType(eventType string) Kind {
	if eventType == "" {
		return KindUnknown
	}

	upper := strings.ToUpper(eventType)
	switch {
	case strings.HasPrefix(upper, "USER."), strings.HasPrefix(upper, "ACCESS."):
		return KindUser
	case strings.HasPrefix(upper, "ADMIN."):
		return KindAdmin
	case strings.HasPrefix(upper, "SYSTEM."):
		return KindSystem
	default:
		return KindUnknown
	}
}

// ParseKind parses a kind name ("user", "ADMIN") into a Kind.
func ParseKind(s string) Kind {
	switch strings.ToUpper(s) {
	case "USER":
		return KindUser
	case "ADMIN":
		return KindAdmin
	case "SYSTEM":
		return KindSystem
	default:
		return KindUnknown
	}
}

// AuthDetails carries the acting identity attached to an event.
type AuthDetails struct {
	// TenantID is the tenant the actor authenticated against.
	TenantID string `json:"realmId,omitempty"`

	// ClientID is the OAuth client the actor used.
	ClientID string `json:"clientId,omitempty"`

	// UserID is the actor's user id.
	UserID string `json:"userId,omitempty"`

	// Username is the actor's resolved display name (best effort).
	Username string `json:"username,omitempty"`

	// IPAddress is the actor's remote address.
	IPAddress string `json:"ipAddress,omitempty"`

	// SessionID is the actor's session, when one exists.
	SessionID string `json:"sessionId,omitempty"`
}

// Event is the canonical, delivery-ready representation of one occurrence.
// The JSON field names are the wire contract; receivers pattern-match on
// them and on the dotted Type taxonomy.
type Event struct {
	// UID is the delivery idempotency key. It is assigned exactly once,
	// before the first delivery attempt, and every retry of the same
	// occurrence reuses it.
	UID string `json:"uid,omitempty"`

	// ID is the platform's own id for the source event, when it has one.
	ID string `json:"id,omitempty"`

	// Time is the occurrence time in milliseconds since the epoch.
	Time int64 `json:"time,omitempty"`

	// Type is the canonical dotted type, e.g. "access.LOGIN" or
	// "admin.USER-CREATE". Never empty on a schedulable event.
	Type string `json:"type"`

	// TenantID identifies the owning tenant.
	TenantID string `json:"realmId,omitempty"`

	// TenantName is the tenant's human-readable name (best effort).
	TenantName string `json:"realmName,omitempty"`

	// AuthDetails describes the acting identity.
	AuthDetails *AuthDetails `json:"authDetails,omitempty"`

	// Details is a free-form key to string mapping of event attributes.
	Details map[string]string `json:"details,omitempty"`

	// OperationType and ResourceType/ResourcePath are set on admin events.
	OperationType string `json:"operationType,omitempty"`
	ResourceType  string `json:"resourceType,omitempty"`
	ResourcePath  string `json:"resourcePath,omitempty"`

	// Representation is the admin operation's resource body, included only
	// when the caller asked for it.
	Representation string `json:"representation,omitempty"`

	// Error carries the failure reason for error-type events.
	Error string `json:"error,omitempty"`
}

// Kind returns the taxonomy kind derived from the event's type.
func (e *Event) Kind() Kind {
	return KindOfType(e.Type)
}
