package auth

import (
	"context"
	"errors"
)

// Sentinel errors for key validation.
var (
	// ErrKeyNotFound is returned when no key matches the presented value.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrKeyRevoked is returned when the key has been revoked.
	ErrKeyRevoked = errors.New("api key revoked")
	// ErrKeyInactive is returned when the key is disabled.
	ErrKeyInactive = errors.New("api key inactive")
	// ErrKeyExpired is returned when the key has passed its expiry.
	ErrKeyExpired = errors.New("api key expired")
	// ErrIPNotAllowed is returned when the client IP is outside the key's allowlist.
	ErrIPNotAllowed = errors.New("client ip not allowed")
	// ErrPermissionDenied is returned when the key lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited is returned when the key has exhausted its hourly budget.
	ErrRateLimited = errors.New("api key rate limit exceeded")
)

// Store provides storage for API key records.
// This interface is defined in the domain to avoid circular imports.
// Implementations: in-memory (dev), SQL-backed (prod).
type Store interface {
	// GetByHash retrieves a key record by its hash.
	// Returns ErrKeyNotFound if no record matches.
	GetByHash(ctx context.Context, hash string) (*Record, error)

	// GetByID retrieves a key record by its ID.
	// Returns ErrKeyNotFound if no record matches.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List returns all stored key records for iteration-based verification.
	List(ctx context.Context) ([]*Record, error)

	// Put inserts or replaces a key record.
	Put(ctx context.Context, rec *Record) error

	// Update replaces an existing key record.
	// Returns ErrKeyNotFound if no record matches.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a key record by ID.
	Delete(ctx context.Context, id string) error
}
