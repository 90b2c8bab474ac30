package event

// UserEvent is the raw end-user action event as emitted by the identity
// platform's event stream.
type UserEvent struct {
	ID         string
	Time       int64
	Type       string
	TenantID   string
	TenantName string
	ClientID   string
	UserID     string
	SessionID  string
	IPAddress  string
	Details    map[string]string
	Error      string
}

// AdminEvent is the raw administrative action event as emitted by the
// identity platform's admin event stream. Auth* fields describe the acting
// administrator, which may belong to a different tenant than the resource
// being operated on.
type AdminEvent struct {
	ID             string
	Time           int64
	TenantID       string
	TenantName     string
	ResourceType   string
	OperationType  string
	ResourcePath   string
	Representation string
	Error          string
	Details        map[string]string

	AuthTenantID  string
	AuthClientID  string
	AuthUserID    string
	AuthIPAddress string
}
