package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events.
// Interface owned by the domain per hexagonal architecture.
//
// Record must be best-effort and non-blocking from the caller's perspective:
// a failure to persist an event must never fail or delay the request that
// produced it. Implementations: slog (default), file (JSON lines), sqlite.
type Sink interface {
	// Record accepts an event for persistence. Never returns an error;
	// implementations log and count failures internally.
	Record(ctx context.Context, event Event)

	// Flush forces pending events to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// NewEvent creates an Event with a fresh ID and UTC timestamp.
func NewEvent(severity Severity, kind string) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Kind:      kind,
	}
}

// SlogSink writes audit events through a structured logger.
// It is the default sink when no persistent audit output is configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a Sink backed by the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record logs the event at a level matching its severity.
func (s *SlogSink) Record(ctx context.Context, event Event) {
	level := slog.LevelDebug
	switch event.Severity {
	case SeverityInfo:
		level = slog.LevelInfo
	case SeverityElevated, SeverityHigh:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	s.logger.Log(ctx, level, "audit event",
		"event_id", event.ID,
		"kind", event.Kind,
		"severity", string(event.Severity),
		"request_id", event.RequestID,
		"client_ip", event.ClientIP,
		"method", event.Method,
		"path", event.Path,
		"status", event.Status,
		"threat_score", event.ThreatScore,
		"auth_method", event.AuthMethod,
		"user_id", event.UserID,
		"session_id", event.SessionID,
		"reason", event.Reason,
	)
}

// Flush is a no-op for the slog sink.
func (s *SlogSink) Flush(ctx context.Context) error { return nil }

// Close is a no-op for the slog sink.
func (s *SlogSink) Close() error { return nil }

// Compile-time interface verification.
var _ Sink = (*SlogSink)(nil)
