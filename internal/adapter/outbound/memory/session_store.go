// Package memory provides in-memory implementations of the domain stores.
package memory

import (
	"context"
	"sync"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
)

// SessionStore implements session.Store with in-memory maps.
// Thread-safe for concurrent access. Sessions are stored as copies so
// callers can never mutate store state through a returned pointer.
type SessionStore struct {
	mu      sync.RWMutex
	active  map[string]*session.Session
	byUser  map[string]map[string]struct{}
	history map[string][]*session.Session
	// historyPerUser caps the archived sessions kept per user.
	historyPerUser int
}

// NewSessionStore creates an in-memory session store.
// historyPerUser <= 0 uses the session package default.
func NewSessionStore(historyPerUser int) *SessionStore {
	if historyPerUser <= 0 {
		historyPerUser = session.DefaultHistoryPerUser
	}
	return &SessionStore{
		active:         make(map[string]*session.Session),
		byUser:         make(map[string]map[string]struct{}),
		history:        make(map[string][]*session.Session),
		historyPerUser: historyPerUser,
	}
}

// Put stores a new session.
func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[sess.ID] = sess.Clone()
	ids, ok := s.byUser[sess.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[sess.UserID] = ids
	}
	ids[sess.ID] = struct{}{}
	return nil
}

// Get retrieves a session by ID.
// Returns session.ErrSessionNotFound if the session doesn't exist.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.active[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Update saves changes to an existing session.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[sess.ID]; !ok {
		return session.ErrSessionNotFound
	}
	s.active[sess.ID] = sess.Clone()
	return nil
}

// Delete removes a session from the active set.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[id]
	if !ok {
		return nil
	}
	delete(s.active, id)
	if ids, ok := s.byUser[sess.UserID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
	return nil
}

// ListByUser returns the active sessions belonging to a user.
func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]*session.Session, 0, len(ids))
	for id := range ids {
		if sess, ok := s.active[id]; ok {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

// ListAll returns every active session.
func (s *SessionStore) ListAll(ctx context.Context) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session.Session, 0, len(s.active))
	for _, sess := range s.active {
		out = append(out, sess.Clone())
	}
	return out, nil
}

// Archive moves a terminated session into the user's bounded history.
// When the history is full the oldest archived entry is dropped.
func (s *SessionStore) Archive(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.history[sess.UserID], sess.Clone())
	if len(entries) > s.historyPerUser {
		entries = entries[len(entries)-s.historyPerUser:]
	}
	s.history[sess.UserID] = entries
	return nil
}

// History returns a user's archived sessions, oldest first.
func (s *SessionStore) History(ctx context.Context, userID string) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[userID]
	out := make([]*session.Session, 0, len(entries))
	for _, sess := range entries {
		out = append(out, sess.Clone())
	}
	return out, nil
}

// Size returns the number of active sessions.
// Useful for testing cleanup behavior.
func (s *SessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
