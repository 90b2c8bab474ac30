package redis

// Key prefixes for primary entity storage.
const (
	prefixWebhook   = "emitter:wh:"
	prefixEvent     = "emitter:evt:"
	prefixSend      = "emitter:send:"
	prefixEventType = "emitter:evtype:"
	prefixDLQ       = "emitter:dlq:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventKey      = "emitter:u:evt:key:"     // + tenant:kind:sourceEventID
	uniqueEventTypeName = "emitter:u:evtype:name:" // + name
)

// Key prefixes for sorted set indexes.
const (
	zWebhookTenant = "emitter:z:wh:tenant:"  // + tenant ID
	zEventTenant   = "emitter:z:evt:tenant:" // + tenant ID
	zSendWebhook   = "emitter:z:send:wh:"    // + webhook ID
	zSendEvent     = "emitter:z:send:evt:"   // + event ID
	zEventTypeAll  = "emitter:z:evtype:all"
	zDLQAll        = "emitter:z:dlq:all"
	zDLQTenant     = "emitter:z:dlq:tenant:" // + tenant ID
	zDLQWebhook    = "emitter:z:dlq:wh:"     // + webhook ID
)

// Key prefixes for set indexes.
const (
	sWebhookEnabled = "emitter:s:wh:tenant:" // + tenantID + ":enabled"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// enabledSetKey returns the set key for a tenant's enabled webhooks.
func enabledSetKey(tenantID string) string {
	return sWebhookEnabled + tenantID + ":enabled"
}

// eventNaturalKey returns the unique index key for a stored event's
// natural key.
func eventNaturalKey(tenantID, kind, sourceEventID string) string {
	return uniqueEventKey + tenantID + ":" + kind + ":" + sourceEventID
}
