package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
)

// Config holds session lifecycle configuration.
type Config struct {
	// Timeout is the maximum session age. Default: 24 hours.
	Timeout time.Duration
	// IdleTimeout is the maximum inactivity. Default: 2 hours.
	IdleTimeout time.Duration
	// MaxPerUser caps concurrently active sessions per user. Default: 5.
	MaxPerUser int
	// HistoryPerUser caps terminated sessions kept per user. Default: 10.
	HistoryPerUser int
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxPerUser <= 0 {
		c.MaxPerUser = DefaultMaxPerUser
	}
	if c.HistoryPerUser <= 0 {
		c.HistoryPerUser = DefaultHistoryPerUser
	}
	return c
}

// Manager owns the session lifecycle: creation with per-user eviction,
// validation with timeout and anomaly checks, termination, blocking, and
// the periodic expiry sweep.
//
// Manager is shared by every request goroutine. A single mutex serializes
// all read-modify-write sequences (evict-then-insert, touch, mark-suspicious)
// so they are atomic with respect to other requests for the same session.
type Manager struct {
	mu      sync.Mutex
	store   Store
	blocked map[string]struct{} // permanent block-set, never cleaned
	cfg     Config
	logger  *slog.Logger
	sink    audit.Sink
	// now is replaceable in tests.
	now func() time.Time
}

// NewManager creates a Manager with the given store and config.
func NewManager(store Store, cfg Config, logger *slog.Logger, sink audit.Sink) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	return &Manager{
		store:   store,
		blocked: make(map[string]struct{}),
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sink:    sink,
		now:     time.Now,
	}
}

// Create mints a new session for a user. When the user is at the per-user
// cap, the session with the earliest CreatedAt is evicted first; the
// eviction and insert are atomic under the manager lock.
func (m *Manager) Create(ctx context.Context, userID, clientIP, userAgent string) (string, error) {
	id, err := GenerateID()
	if err != nil {
		return "", err
	}
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	for len(existing) >= m.cfg.MaxPerUser {
		oldest := existing[0]
		for _, s := range existing[1:] {
			if s.CreatedAt.Before(oldest.CreatedAt) {
				oldest = s
			}
		}
		if err := m.terminateLocked(ctx, oldest, ReasonEvicted, now); err != nil {
			return "", err
		}
		remaining := existing[:0]
		for _, s := range existing {
			if s.ID != oldest.ID {
				remaining = append(remaining, s)
			}
		}
		existing = remaining
	}

	sess := &Session{
		ID:           id,
		UserID:       userID,
		ClientIP:     clientIP,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	event := audit.NewEvent(audit.SeverityInfo, audit.KindSessionCreated)
	event.UserID = userID
	event.SessionID = id
	event.ClientIP = clientIP
	m.sink.Record(ctx, event)

	return id, nil
}

// Validate checks a session for a request and updates its activity.
//
// Failure order: block-set, existence, age timeout, idle timeout. An IP
// mismatch is not fatal: it marks the session suspicious, records an
// ip_change event, and still returns the session.
func (m *Manager) Validate(ctx context.Context, id, clientIP, userAgent string) (*Session, error) {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, blocked := m.blocked[id]; blocked {
		return nil, ErrSessionBlocked
	}

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	if sess.IsExpired(m.cfg.Timeout, now) {
		if err := m.terminateLocked(ctx, sess, ReasonTimeout, now); err != nil {
			m.logger.Warn("failed to terminate expired session", "session_id", id, "error", err)
		}
		return nil, ErrSessionExpired
	}
	if sess.IsIdle(m.cfg.IdleTimeout, now) {
		if err := m.terminateLocked(ctx, sess, ReasonIdleTimeout, now); err != nil {
			m.logger.Warn("failed to terminate idle session", "session_id", id, "error", err)
		}
		return nil, ErrSessionExpired
	}

	if clientIP != sess.ClientIP {
		sess.Suspicious = true
		sess.AddEvent("ip_change", fmt.Sprintf("%s -> %s", sess.ClientIP, clientIP), now)
		sess.ClientIP = clientIP

		event := audit.NewEvent(audit.SeverityHigh, audit.KindSessionSuspicious)
		event.UserID = sess.UserID
		event.SessionID = sess.ID
		event.ClientIP = clientIP
		event.Reason = "client IP changed mid-session"
		m.sink.Record(ctx, event)
	}

	sess.Touch(now)
	if err := m.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess.Clone(), nil
}

// Terminate ends a session with the given reason and archives it.
func (m *Manager) Terminate(ctx context.Context, id, reason string) error {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return ErrSessionNotFound
	}
	return m.terminateLocked(ctx, sess, reason, now)
}

// Block terminates a session and adds its ID to the permanent block-set.
// A blocked ID always fails validation, even if somehow still present in
// the active store.
func (m *Manager) Block(ctx context.Context, id, reason string) error {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocked[id] = struct{}{}

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		// Unknown session: the block-set entry alone is enough.
		return nil
	}
	return m.terminateLocked(ctx, sess, ReasonBlocked+": "+reason, now)
}

// CleanupExpired sweeps the active set, terminating every session that
// fails either timeout check. Returns the number of sessions terminated.
// Errors are accumulated per-session but never stop the sweep.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, err := m.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	cleaned := 0
	var lastErr error
	for _, sess := range sessions {
		reason := ""
		switch {
		case sess.IsExpired(m.cfg.Timeout, now):
			reason = ReasonTimeout
		case sess.IsIdle(m.cfg.IdleTimeout, now):
			reason = ReasonIdleTimeout
		default:
			continue
		}
		if err := m.terminateLocked(ctx, sess, reason, now); err != nil {
			m.logger.Warn("cleanup failed to terminate session", "session_id", sess.ID, "error", err)
			lastErr = err
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		m.logger.Debug("cleaned expired sessions", "count", cleaned)
	}
	return cleaned, lastErr
}

// History returns the terminated-session history for a user.
func (m *Manager) History(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.History(ctx, userID)
}

// ActiveCount returns the number of active sessions.
func (m *Manager) ActiveCount(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, err := m.store.ListAll(ctx)
	if err != nil {
		return 0
	}
	return len(sessions)
}

// terminateLocked marks the session terminated, removes it from the active
// set, and archives it. Must be called with the manager lock held.
func (m *Manager) terminateLocked(ctx context.Context, sess *Session, reason string, now time.Time) error {
	sess.TerminatedAt = now
	sess.TerminateReason = reason

	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := m.store.Archive(ctx, sess); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}

	event := audit.NewEvent(audit.SeverityInfo, audit.KindSessionTerminated)
	event.UserID = sess.UserID
	event.SessionID = sess.ID
	event.Reason = reason
	m.sink.Record(ctx, event)

	return nil
}

// GenerateID creates a cryptographically random session ID.
// Returns 64 hex characters (32 bytes, 256 bits of entropy).
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
