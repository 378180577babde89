package memory

import (
	"context"
	"sync"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
)

// KeyStore implements auth.Store with in-memory maps.
// Thread-safe for concurrent access. Records are stored as copies.
type KeyStore struct {
	mu     sync.RWMutex
	byID   map[string]*auth.Record
	byHash map[string]string // hash -> record ID
}

// NewKeyStore creates an in-memory API key store, optionally seeded
// with initial records.
func NewKeyStore(seed ...*auth.Record) *KeyStore {
	s := &KeyStore{
		byID:   make(map[string]*auth.Record),
		byHash: make(map[string]string),
	}
	for _, rec := range seed {
		s.byID[rec.ID] = rec.Clone()
		s.byHash[rec.Hash] = rec.ID
	}
	return s
}

// GetByHash retrieves a key record by its stored hash.
func (s *KeyStore) GetByHash(ctx context.Context, hash string) (*auth.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return s.byID[id].Clone(), nil
}

// GetByID retrieves a key record by ID.
func (s *KeyStore) GetByID(ctx context.Context, id string) (*auth.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return rec.Clone(), nil
}

// List returns all stored key records.
func (s *KeyStore) List(ctx context.Context) ([]*auth.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*auth.Record, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Put inserts or replaces a key record.
func (s *KeyStore) Put(ctx context.Context, rec *auth.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[rec.ID]; ok && old.Hash != rec.Hash {
		delete(s.byHash, old.Hash)
	}
	s.byID[rec.ID] = rec.Clone()
	s.byHash[rec.Hash] = rec.ID
	return nil
}

// Update replaces an existing key record.
func (s *KeyStore) Update(ctx context.Context, rec *auth.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[rec.ID]
	if !ok {
		return auth.ErrKeyNotFound
	}
	if old.Hash != rec.Hash {
		delete(s.byHash, old.Hash)
	}
	s.byID[rec.ID] = rec.Clone()
	s.byHash[rec.Hash] = rec.ID
	return nil
}

// Delete removes a key record by ID.
func (s *KeyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[id]; ok {
		delete(s.byHash, rec.Hash)
		delete(s.byID, id)
	}
	return nil
}

// Size returns the number of stored records.
func (s *KeyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Compile-time interface verification.
var _ auth.Store = (*KeyStore)(nil)
