// Package session manages authenticated user sessions across requests.
package session

import (
	"time"
)

// Default lifecycle parameters.
const (
	// DefaultTimeout is the maximum session age before termination.
	DefaultTimeout = 24 * time.Hour
	// DefaultIdleTimeout is the maximum inactivity before termination.
	DefaultIdleTimeout = 2 * time.Hour
	// DefaultMaxPerUser caps concurrently active sessions per user.
	DefaultMaxPerUser = 5
	// DefaultHistoryPerUser caps terminated sessions kept per user.
	DefaultHistoryPerUser = 10
	// maxEventsPerSession bounds the security event list on one session.
	maxEventsPerSession = 20
)

// Termination reasons.
const (
	ReasonTimeout     = "session_timeout"
	ReasonIdleTimeout = "idle_timeout"
	ReasonEvicted     = "evicted_oldest"
	ReasonAdminAction = "admin_action"
	ReasonBlocked     = "blocked"
)

// SecurityEvent records a security-relevant observation on a session.
type SecurityEvent struct {
	// Timestamp is when the event was observed (UTC).
	Timestamp time.Time `json:"timestamp"`
	// Kind categorizes the event (e.g. "ip_change").
	Kind string `json:"kind"`
	// Detail is a short description of what changed.
	Detail string `json:"detail,omitempty"`
}

// Session tracks one authenticated user's context across requests.
type Session struct {
	// ID is a cryptographically random identifier, 32 bytes hex-encoded.
	ID string
	// UserID is the user this session belongs to.
	UserID string
	// ClientIP is the address the session was created from.
	ClientIP string
	// UserAgent is the agent the session was created with.
	UserAgent string
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// LastActivity is the last time the session was validated (UTC).
	LastActivity time.Time
	// ActivityCount is the number of validated requests on this session.
	ActivityCount int64
	// Suspicious marks a session with anomalous behavior (e.g. IP change).
	// A suspicious session remains valid; it is flagged, not terminated.
	Suspicious bool
	// Events is the bounded list of security events on this session.
	Events []SecurityEvent
	// TerminatedAt is when the session was terminated (zero while active).
	TerminatedAt time.Time
	// TerminateReason explains the termination, once terminated.
	TerminateReason string
}

// IsExpired reports whether the session exceeded its maximum age.
func (s *Session) IsExpired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.CreatedAt) > timeout
}

// IsIdle reports whether the session exceeded its inactivity limit.
func (s *Session) IsIdle(idleTimeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > idleTimeout
}

// Terminated reports whether the session has been terminated.
func (s *Session) Terminated() bool {
	return !s.TerminatedAt.IsZero()
}

// AddEvent appends a security event, dropping the oldest entry when the
// bounded list is full.
func (s *Session) AddEvent(kind, detail string, now time.Time) {
	s.Events = append(s.Events, SecurityEvent{
		Timestamp: now,
		Kind:      kind,
		Detail:    detail,
	})
	if len(s.Events) > maxEventsPerSession {
		s.Events = s.Events[len(s.Events)-maxEventsPerSession:]
	}
}

// Touch updates activity bookkeeping for a validated request.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
	s.ActivityCount++
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Events = make([]SecurityEvent, len(s.Events))
	copy(clone.Events, s.Events)
	return &clone
}
