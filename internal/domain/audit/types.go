// Package audit contains domain types for security audit logging.
package audit

import (
	"time"
)

// Severity classifies how urgent an audit event is.
type Severity string

const (
	// SeverityDebug is for routine per-request trace events.
	SeverityDebug Severity = "debug"
	// SeverityInfo is for normal lifecycle events (session created, key revoked).
	SeverityInfo Severity = "info"
	// SeverityElevated is for requests that scored suspiciously but were allowed.
	SeverityElevated Severity = "elevated"
	// SeverityHigh is for security-relevant anomalies (session IP change).
	SeverityHigh Severity = "high"
	// SeverityCritical is for blocked threats and authentication abuse.
	SeverityCritical Severity = "critical"
)

// EventKind constants categorize audit events.
const (
	// KindRequest is the per-request trace event emitted after forwarding.
	KindRequest = "request"
	// KindThreatBlocked is emitted when a request is rejected for its threat score.
	KindThreatBlocked = "threat_blocked"
	// KindThreatElevated is emitted when a request scores high but is allowed.
	KindThreatElevated = "threat_elevated"
	// KindAuthFailure is emitted when authentication fails.
	KindAuthFailure = "auth_failure"
	// KindRateLimited is emitted when a request exceeds a rate limit.
	KindRateLimited = "rate_limited"
	// KindSessionCreated is emitted when a new session is minted.
	KindSessionCreated = "session_created"
	// KindSessionSuspicious is emitted when a session is flagged (e.g. IP change).
	KindSessionSuspicious = "session_suspicious"
	// KindSessionTerminated is emitted when a session is terminated.
	KindSessionTerminated = "session_terminated"
	// KindKeyRevoked is emitted when an API key is revoked.
	KindKeyRevoked = "key_revoked"
)

// Event is a single auditable security event.
// Events never carry raw credentials or signing secrets.
type Event struct {
	// ID is a unique event identifier (UUID).
	ID string `json:"id"`
	// Timestamp is when the event occurred (UTC).
	Timestamp time.Time `json:"timestamp"`
	// Severity classifies the event urgency.
	Severity Severity `json:"severity"`
	// Kind categorizes the event.
	Kind string `json:"kind"`
	// RequestID correlates the event with a request.
	RequestID string `json:"request_id,omitempty"`
	// ClientIP is the resolved client address.
	ClientIP string `json:"client_ip,omitempty"`
	// Method is the HTTP method of the originating request.
	Method string `json:"method,omitempty"`
	// Path is the request path.
	Path string `json:"path,omitempty"`
	// Status is the final HTTP status code, when known.
	Status int `json:"status,omitempty"`
	// ThreatScore is the final threat score for the request.
	ThreatScore float64 `json:"threat_score,omitempty"`
	// ThreatFlags lists the threat flags accumulated for the request.
	ThreatFlags []string `json:"threat_flags,omitempty"`
	// AuthMethod is the authentication method that handled the request.
	AuthMethod string `json:"auth_method,omitempty"`
	// UserID is the resolved user or key identity.
	UserID string `json:"user_id,omitempty"`
	// SessionID is the session involved, if any.
	SessionID string `json:"session_id,omitempty"`
	// Reason is a short human-readable explanation.
	Reason string `json:"reason,omitempty"`
}
