package session

import (
	"context"
	"errors"
)

// Sentinel errors for session operations.
var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session failed a timeout check.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionBlocked is returned when a session ID is in the block-set.
	ErrSessionBlocked = errors.New("session blocked")
)

// Store provides session persistence.
// This interface is defined in the domain to avoid circular imports.
// The Manager serializes mutations, so implementations only need to be
// safe for concurrent reads alongside its lock discipline.
// Implementations: in-memory (default); a persistent store can be swapped
// in without touching the lifecycle logic.
type Store interface {
	// Put stores a new session.
	Put(ctx context.Context, sess *Session) error

	// Get retrieves an active session by ID.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Get(ctx context.Context, id string) (*Session, error)

	// Update saves changes to an existing active session.
	Update(ctx context.Context, sess *Session) error

	// Delete removes a session from the active set.
	Delete(ctx context.Context, id string) error

	// ListByUser returns all active sessions for a user.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// ListAll returns every active session (for cleanup sweeps).
	ListAll(ctx context.Context) ([]*Session, error)

	// Archive moves a terminated session into the per-user history list,
	// evicting the oldest history entry beyond the cap. History entries are
	// never physically deleted during the process lifetime.
	Archive(ctx context.Context, sess *Session) error

	// History returns the terminated-session history for a user.
	History(ctx context.Context, userID string) ([]*Session, error)
}
