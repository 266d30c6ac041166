package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of security events the monitor understands
type EventType string

const (
	EventFailedLogin         EventType = "failed_login"
	EventSuccessfulLogin     EventType = "successful_login"
	EventAccountLocked       EventType = "account_locked"
	EventBruteForceDetected  EventType = "brute_force_detected"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventUnusualActivity     EventType = "unusual_activity"
	EventInjectionAttempt    EventType = "injection_attempt"
	EventMaliciousUpload     EventType = "malicious_upload"
	EventPrivilegeEscalation EventType = "privilege_escalation"
	EventUnauthorizedAccess  EventType = "unauthorized_access"
	EventTokenRevoked        EventType = "token_revoked"
	EventSuspiciousAddress   EventType = "suspicious_address"
	EventCertificateExpiring EventType = "certificate_expiring"
	EventTimeAnomaly         EventType = "time_anomaly"
	EventGeographicAnomaly   EventType = "geographic_anomaly"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventFailedLogin, EventSuccessfulLogin, EventAccountLocked,
		EventBruteForceDetected, EventRateLimitExceeded, EventUnusualActivity,
		EventInjectionAttempt, EventMaliciousUpload, EventPrivilegeEscalation,
		EventUnauthorizedAccess, EventTokenRevoked, EventSuspiciousAddress,
		EventCertificateExpiring, EventTimeAnomaly, EventGeographicAnomaly:
		return true
	}
	return false
}

// Severity of an event or alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severity returns the fixed classification for t
func (t EventType) Severity() Severity {
	switch t {
	case EventBruteForceDetected, EventInjectionAttempt, EventMaliciousUpload, EventPrivilegeEscalation:
		return SeverityCritical
	case EventFailedLogin, EventRateLimitExceeded, EventUnauthorizedAccess, EventCertificateExpiring:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Well-known metadata keys
const (
	MetaAddress     = "address"
	MetaPrincipal   = "principal"
	MetaUsername    = "username"
	MetaUsernames   = "usernames"
	MetaUniqueUsers = "unique_usernames"
	MetaUserAgent   = "user_agent"
	MetaEndpoint    = "endpoint"
	MetaCount       = "count"
	MetaWindow      = "window"
	MetaHour        = "hour"
	MetaTriggeredBy = "triggered_by"
	MetaReasons     = "reasons"

	MetaIdentifier     = "identifier"
	MetaIdentifierType = "identifier_type"
)

// EventMetadata holds free-form context for security events
type EventMetadata map[string]interface{}

func (m EventMetadata) str(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (m EventMetadata) Address() string   { return m.str(MetaAddress) }
func (m EventMetadata) Principal() string { return m.str(MetaPrincipal) }
func (m EventMetadata) Username() string  { return m.str(MetaUsername) }
func (m EventMetadata) Endpoint() string  { return m.str(MetaEndpoint) }

// Clone returns a shallow copy so callers can keep mutating their map
func (m EventMetadata) Clone() EventMetadata {
	out := make(EventMetadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Scan implements sql.Scanner for JSONB
func (m *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(EventMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = EventMetadata(out)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(m))
}

// SecurityEvent is an ephemeral, typed security signal
type SecurityEvent struct {
	ID        uuid.UUID     `json:"id"`
	Type      EventType     `json:"type"`
	Severity  Severity      `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
	TenantID  string        `json:"tenant_id,omitempty"`
	Metadata  EventMetadata `json:"metadata"`
}

// Alert is a deduplicated notification derived from one or more events
type Alert struct {
	ID           uuid.UUID     `json:"id"`
	Type         EventType     `json:"type"`
	Severity     Severity      `json:"severity"`
	Timestamp    time.Time     `json:"timestamp"`
	TenantID     string        `json:"tenant_id,omitempty"`
	Description  string        `json:"description"`
	DedupKey     string        `json:"dedup_key"`
	Metadata     EventMetadata `json:"metadata"`
	ChannelsSent []string      `json:"channels_sent"`
}

// MonitorMetrics is a point-in-time snapshot of the event engine counters
type MonitorMetrics struct {
	EventsTotal       int64               `json:"events_total"`
	EventsByType      map[EventType]int64 `json:"events_by_type"`
	EventsBySeverity  map[Severity]int64  `json:"events_by_severity"`
	AlertsSent        int64               `json:"alerts_sent"`
	AlertsBySeverity  map[Severity]int64  `json:"alerts_by_severity"`
	AlertsSuppressed  int64               `json:"alerts_suppressed"`
	ChannelFailures   int64               `json:"channel_failures"`
	SinkFailures      int64               `json:"sink_failures"`
	ActiveCounters    int                 `json:"active_counters"`
	ActiveCooldowns   int                 `json:"active_cooldowns"`
	LastAlertAt       *time.Time          `json:"last_alert_at,omitempty"`
	CollectingSinceAt time.Time           `json:"collecting_since"`
}

// MonitorHealth reports whether the event engine can deliver alerts
type MonitorHealth struct {
	Status              string   `json:"status"`
	Channels            []string `json:"channels"`
	AuditSinkConfigured bool     `json:"audit_sink_configured"`
	ActiveCounters      int      `json:"active_counters"`
	Issues              []string `json:"issues,omitempty"`
}
