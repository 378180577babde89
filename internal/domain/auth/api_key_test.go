package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockKeyStore struct {
	byID   map[string]*Record
	byHash map[string]*Record
}

func newMockKeyStore(records ...*Record) *mockKeyStore {
	s := &mockKeyStore{
		byID:   make(map[string]*Record),
		byHash: make(map[string]*Record),
	}
	for _, rec := range records {
		s.byID[rec.ID] = rec
		s.byHash[rec.Hash] = rec
	}
	return s
}

func (s *mockKeyStore) GetByHash(ctx context.Context, hash string) (*Record, error) {
	rec, ok := s.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return rec.Clone(), nil
}

func (s *mockKeyStore) GetByID(ctx context.Context, id string) (*Record, error) {
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return rec.Clone(), nil
}

func (s *mockKeyStore) List(ctx context.Context) ([]*Record, error) {
	out := make([]*Record, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *mockKeyStore) Put(ctx context.Context, rec *Record) error {
	s.byID[rec.ID] = rec.Clone()
	s.byHash[rec.Hash] = s.byID[rec.ID]
	return nil
}

func (s *mockKeyStore) Update(ctx context.Context, rec *Record) error {
	if _, ok := s.byID[rec.ID]; !ok {
		return ErrKeyNotFound
	}
	return s.Put(ctx, rec)
}

func (s *mockKeyStore) Delete(ctx context.Context, id string) error {
	if rec, ok := s.byID[id]; ok {
		delete(s.byHash, rec.Hash)
		delete(s.byID, id)
	}
	return nil
}

func testRecord(rawKey string) *Record {
	return &Record{
		ID:          "key-1",
		Name:        "test key",
		UserID:      "user-1",
		Hash:        HashKey(rawKey),
		Permissions: []string{"search", "ask"},
		RateLimit:   100,
		Active:      true,
		CreatedAt:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestServiceValidate(t *testing.T) {
	expired := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	revoked := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		mutate     func(*Record)
		rawKey     string
		clientIP   string
		permission string
		wantErr    error
	}{
		{
			name:       "valid key",
			mutate:     func(r *Record) {},
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    nil,
		},
		{
			name:       "unknown key",
			mutate:     func(r *Record) {},
			rawKey:     "wrong-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    ErrKeyNotFound,
		},
		{
			name:       "revoked key",
			mutate:     func(r *Record) { r.RevokedAt = &revoked },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    ErrKeyRevoked,
		},
		{
			name:       "inactive key",
			mutate:     func(r *Record) { r.Active = false },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    ErrKeyInactive,
		},
		{
			name:       "expired key",
			mutate:     func(r *Record) { r.ExpiresAt = &expired },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    ErrKeyExpired,
		},
		{
			name:       "revocation checked before expiry",
			mutate:     func(r *Record) { r.RevokedAt = &revoked; r.ExpiresAt = &expired },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    ErrKeyRevoked,
		},
		{
			name:       "ip outside allowlist",
			mutate:     func(r *Record) { r.AllowedIPs = []string{"192.0.2.1"} },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    ErrIPNotAllowed,
		},
		{
			name:       "ip inside allowlist",
			mutate:     func(r *Record) { r.AllowedIPs = []string{"192.0.2.1", "10.0.0.1"} },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "search",
			wantErr:    nil,
		},
		{
			name:       "missing permission",
			mutate:     func(r *Record) {},
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "admin",
			wantErr:    ErrPermissionDenied,
		},
		{
			name:       "wildcard permission",
			mutate:     func(r *Record) { r.Permissions = []string{PermissionAll} },
			rawKey:     "secret-key",
			clientIP:   "10.0.0.1",
			permission: "admin",
			wantErr:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord("secret-key")
			tt.mutate(rec)
			svc := NewService(newMockKeyStore(rec), nil, nil)
			svc.now = func() time.Time {
				return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
			}

			got, err := svc.Validate(context.Background(), tt.rawKey, tt.clientIP, tt.permission)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.ID != rec.ID {
				t.Errorf("Validate() record ID = %q, want %q", got.ID, rec.ID)
			}
		})
	}
}

func TestServiceValidate_Argon2idFallback(t *testing.T) {
	hash, err := HashKeyArgon2id("argon-key")
	if err != nil {
		t.Fatalf("HashKeyArgon2id() error = %v", err)
	}
	rec := testRecord("unused")
	rec.Hash = hash
	svc := NewService(newMockKeyStore(rec), nil, nil)

	got, err := svc.Validate(context.Background(), "argon-key", "10.0.0.1", "search")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Validate() record ID = %q, want %q", got.ID, rec.ID)
	}
}

func TestServiceConsumeRateLimit(t *testing.T) {
	rec := testRecord("secret-key")
	rec.RateLimit = 3
	store := newMockKeyStore(rec)
	svc := NewService(store, nil, nil)
	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	// Requests at limit-1 succeed; the one at the limit is rejected.
	for i := 0; i < 3; i++ {
		if err := svc.ConsumeRateLimit(ctx, "key-1"); err != nil {
			t.Fatalf("ConsumeRateLimit() #%d error = %v", i+1, err)
		}
		clock = clock.Add(time.Second)
	}
	if err := svc.ConsumeRateLimit(ctx, "key-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("ConsumeRateLimit() error = %v, want ErrRateLimited", err)
	}

	// After the oldest use slides out of the window, one request fits again.
	clock = clock.Add(rateLimitWindow)
	if err := svc.ConsumeRateLimit(ctx, "key-1"); err != nil {
		t.Fatalf("ConsumeRateLimit() after window error = %v", err)
	}
}

func TestServiceConsumeRateLimit_Unlimited(t *testing.T) {
	rec := testRecord("secret-key")
	rec.RateLimit = 0
	svc := NewService(newMockKeyStore(rec), nil, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := svc.ConsumeRateLimit(ctx, "key-1"); err != nil {
			t.Fatalf("ConsumeRateLimit() #%d error = %v", i+1, err)
		}
	}
}

func TestRecordUsageCap(t *testing.T) {
	rec := testRecord("secret-key")
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxUsageEntries+200; i++ {
		rec.recordUse(now.Add(time.Duration(i) * time.Millisecond))
	}
	if len(rec.Usage) != maxUsageEntries {
		t.Errorf("usage len = %d, want %d", len(rec.Usage), maxUsageEntries)
	}
	// The newest entries survive the cap.
	last := rec.Usage[len(rec.Usage)-1]
	want := now.Add(time.Duration(maxUsageEntries+199) * time.Millisecond)
	if !last.Equal(want) {
		t.Errorf("newest usage = %v, want %v", last, want)
	}
}

func TestServiceRevoke(t *testing.T) {
	rec := testRecord("secret-key")
	store := newMockKeyStore(rec)
	svc := NewService(store, nil, nil)
	first := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	clock := first
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	if err := svc.Revoke(ctx, "key-1"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := svc.Validate(ctx, "secret-key", "10.0.0.1", "search"); !errors.Is(err, ErrKeyRevoked) {
		t.Fatalf("Validate() after revoke error = %v, want ErrKeyRevoked", err)
	}

	// Revoking again keeps the original timestamp.
	clock = clock.Add(time.Hour)
	if err := svc.Revoke(ctx, "key-1"); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	stored, _ := store.GetByID(ctx, "key-1")
	if !stored.RevokedAt.Equal(first) {
		t.Errorf("RevokedAt = %v, want %v", stored.RevokedAt, first)
	}

	if err := svc.Revoke(ctx, "no-such-key"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Revoke() unknown error = %v, want ErrKeyNotFound", err)
	}
}

func TestVerifyKey(t *testing.T) {
	tests := []struct {
		name       string
		rawKey     string
		storedHash string
		wantMatch  bool
		wantErr    bool
	}{
		{"bare sha256 match", "secret", HashKey("secret"), true, false},
		{"bare sha256 mismatch", "wrong", HashKey("secret"), false, false},
		{"prefixed sha256 match", "secret", "sha256:" + HashKey("secret"), true, false},
		{"unknown format", "secret", "not-a-hash", false, true},
		{"malformed argon2id", "secret", "$argon2id$v=19$m=0,t=0,p=0$AAAA$AAAA", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := VerifyKey(tt.rawKey, tt.storedHash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if match != tt.wantMatch {
				t.Errorf("VerifyKey() match = %v, want %v", match, tt.wantMatch)
			}
		})
	}
}
