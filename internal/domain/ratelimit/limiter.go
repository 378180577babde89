package ratelimit

import "context"

// Limiter is the interface for rate limiting operations.
//
// Implementations should use GCRA (Generic Cell Rate Algorithm) for
// smooth rate limiting without burst issues at window boundaries.
//
// The interface is storage-agnostic, allowing implementations backed
// by in-memory stores or external backends.
type Limiter interface {
	// Allow checks if a request identified by key is allowed under the
	// given config and atomically records it.
	//
	// The key should be a structured identifier created by FormatKey.
	// If the request is not allowed, RetryAfter in the result indicates
	// when the next request will be.
	Allow(ctx context.Context, key string, config Config) (Result, error)
}
