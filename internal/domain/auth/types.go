// Package auth contains the domain types and logic for API key authentication.
package auth

import (
	"time"
)

const (
	// PermissionAll grants access to every endpoint.
	PermissionAll = "*"

	// rateLimitWindow is the sliding window for per-key rate limiting.
	rateLimitWindow = time.Hour

	// maxUsageEntries bounds the per-key usage history.
	maxUsageEntries = 1000
)

// Record is a stored API key with its authorization metadata.
type Record struct {
	// ID is the unique identifier for this key.
	ID string
	// Name is a human-readable label for this key.
	Name string
	// UserID maps this key to its owning user.
	UserID string
	// Hash is the hashed key value (SHA-256 hex or Argon2id PHC format).
	Hash string
	// Permissions lists the endpoints this key may call.
	// A single "*" entry grants all permissions.
	Permissions []string
	// RateLimit is the maximum requests per hour. Zero means unlimited.
	RateLimit int
	// AllowedIPs restricts the key to specific client IPs.
	// Empty means any IP is accepted.
	AllowedIPs []string
	// CreatedAt is when the key was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the key expires (nil = never expires).
	ExpiresAt *time.Time
	// Active indicates whether the key may be used.
	Active bool
	// RevokedAt is when the key was revoked (nil = not revoked).
	RevokedAt *time.Time
	// Usage holds the timestamps of recent uses, newest last.
	Usage []time.Time
}

// Revoked returns true if the key has been revoked.
func (r *Record) Revoked() bool {
	return r.RevokedAt != nil
}

// IsExpired returns true if the key has expired at the given instant.
// A key with nil ExpiresAt never expires.
func (r *Record) IsExpired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return now.After(*r.ExpiresAt)
}

// AllowsIP returns true if the client IP is permitted for this key.
func (r *Record) AllowsIP(clientIP string) bool {
	if len(r.AllowedIPs) == 0 {
		return true
	}
	for _, ip := range r.AllowedIPs {
		if ip == clientIP {
			return true
		}
	}
	return false
}

// HasPermission returns true if the key grants the named permission.
func (r *Record) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == PermissionAll || p == permission {
			return true
		}
	}
	return false
}

// UsageInWindow counts uses within the sliding window ending at now.
func (r *Record) UsageInWindow(now time.Time) int {
	cutoff := now.Add(-rateLimitWindow)
	count := 0
	for _, t := range r.Usage {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// recordUse appends a usage timestamp, trimming entries outside the
// window and capping the history at maxUsageEntries.
func (r *Record) recordUse(now time.Time) {
	cutoff := now.Add(-rateLimitWindow)
	kept := r.Usage[:0]
	for _, t := range r.Usage {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.Usage = append(kept, now)
	if len(r.Usage) > maxUsageEntries {
		r.Usage = r.Usage[len(r.Usage)-maxUsageEntries:]
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	cp.AllowedIPs = append([]string(nil), r.AllowedIPs...)
	cp.Usage = append([]time.Time(nil), r.Usage...)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
