package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
)

// Service validates API keys and enforces per-key rate limits.
// Validation, usage recording, and revocation are serialized under a
// single mutex so the read-modify-write on usage history is atomic.
type Service struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	sink   audit.Sink
	// now is replaceable in tests.
	now func() time.Time
}

// NewService creates a Service with the given store.
func NewService(store Store, logger *slog.Logger, sink audit.Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	return &Service{
		store:  store,
		logger: logger,
		sink:   sink,
		now:    time.Now,
	}
}

// Validate checks a presented raw key against the store and returns the
// matching record. Checks run in a fixed order: revocation, active flag,
// expiry, IP allowlist, then permission. The first failing check wins.
func (s *Service) Validate(ctx context.Context, rawKey, clientIP, permission string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.resolve(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if rec.Revoked() {
		return nil, ErrKeyRevoked
	}
	if !rec.Active {
		return nil, ErrKeyInactive
	}
	if rec.IsExpired(now) {
		return nil, ErrKeyExpired
	}
	if !rec.AllowsIP(clientIP) {
		return nil, ErrIPNotAllowed
	}
	if permission != "" && !rec.HasPermission(permission) {
		return nil, ErrPermissionDenied
	}

	return rec.Clone(), nil
}

// ConsumeRateLimit checks the key's sliding-window budget and records one
// use. Returns ErrRateLimited when the window already holds RateLimit
// uses; a key with RateLimit zero is unlimited but still tracked.
func (s *Service) ConsumeRateLimit(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	if rec.RateLimit > 0 && rec.UsageInWindow(now) >= rec.RateLimit {
		event := audit.NewEvent(audit.SeverityElevated, audit.KindRateLimited)
		event.UserID = rec.UserID
		event.Reason = fmt.Sprintf("key %s exceeded %d requests/hour", rec.ID, rec.RateLimit)
		s.sink.Record(ctx, event)
		return ErrRateLimited
	}

	rec.recordUse(now)
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("record key usage: %w", err)
	}
	return nil
}

// Revoke marks a key revoked and inactive. Revoking an already revoked
// key is a no-op; the original revocation timestamp is kept.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	if rec.Revoked() {
		return nil
	}
	now := s.now().UTC()
	rec.RevokedAt = &now
	rec.Active = false
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	event := audit.NewEvent(audit.SeverityInfo, audit.KindKeyRevoked)
	event.UserID = rec.UserID
	event.Reason = fmt.Sprintf("key %s revoked", rec.ID)
	s.sink.Record(ctx, event)
	return nil
}

// resolve finds the record matching a raw key. SHA-256 hashes get a
// direct lookup; Argon2id hashes require iterating the stored records.
func (s *Service) resolve(ctx context.Context, rawKey string) (*Record, error) {
	rec, err := s.store.GetByHash(ctx, HashKey(rawKey))
	if err == nil {
		return rec, nil
	}

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	for _, candidate := range all {
		match, verifyErr := VerifyKey(rawKey, candidate.Hash)
		if verifyErr != nil {
			continue
		}
		if match {
			return candidate, nil
		}
	}
	return nil, ErrKeyNotFound
}

// HashKey returns the SHA-256 hex hash of the raw key. Used as the fast
// lookup path for YAML-seeded keys.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// VerifyKey verifies a raw key against a stored hash. Supports Argon2id
// (PHC format), "sha256:"-prefixed hex, and bare SHA-256 hex.
// Returns ErrUnknownHashType for unrecognized formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(storedHash, "$argon2id$"):
		return safeArgon2idCompare(rawKey, storedHash)

	case strings.HasPrefix(storedHash, "sha256:"), len(storedHash) == 64 && isHexString(storedHash):
		expected := strings.TrimPrefix(storedHash, "sha256:")
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil

	default:
		return false, ErrUnknownHashType
	}
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The argon2 library panics on malformed hashes with invalid
// parameters (t=0, p=0); those become errors here.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
