package gateway

import (
	"errors"
	"net/http"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/signing"
)

// Rejection categories. Every error leaving Process wraps exactly one
// of these so the transport can map it to a status code without
// inspecting internals.
var (
	// ErrThreatBlocked is returned when the threat score crosses the block threshold.
	ErrThreatBlocked = errors.New("request blocked by threat detection")
	// ErrAuthenticationFailure is returned when credentials are missing or invalid.
	ErrAuthenticationFailure = errors.New("authentication failure")
	// ErrRateLimitExceeded is returned when a rate limit budget is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrSignatureInvalid is returned when request signature verification fails.
	ErrSignatureInvalid = errors.New("invalid request signature")
	// ErrInternal is returned for unclassified processing failures.
	ErrInternal = errors.New("internal error")
)

// Classify maps lower-level domain errors onto the rejection taxonomy.
// Unrecognized errors become ErrInternal.
func Classify(err error) error {
	switch {
	case errors.Is(err, ErrThreatBlocked),
		errors.Is(err, ErrAuthenticationFailure),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrSignatureInvalid):
		return err

	case errors.Is(err, auth.ErrRateLimited):
		return ErrRateLimitExceeded

	case errors.Is(err, auth.ErrKeyNotFound),
		errors.Is(err, auth.ErrKeyRevoked),
		errors.Is(err, auth.ErrKeyInactive),
		errors.Is(err, auth.ErrKeyExpired),
		errors.Is(err, auth.ErrIPNotAllowed),
		errors.Is(err, auth.ErrPermissionDenied):
		return ErrAuthenticationFailure

	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionBlocked):
		return ErrAuthenticationFailure

	case errors.Is(err, signing.ErrUnknownSigningKey),
		errors.Is(err, signing.ErrBadTimestamp),
		errors.Is(err, signing.ErrTimestampSkew),
		errors.Is(err, signing.ErrSignatureMismatch):
		return ErrSignatureInvalid

	default:
		return ErrInternal
	}
}

// SafeMessage returns a client-safe message for a classified error.
// Internal detail is logged server-side, never exposed to clients.
func SafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrThreatBlocked):
		return "Request blocked"
	case errors.Is(err, ErrAuthenticationFailure):
		return "Authentication failed"
	case errors.Is(err, ErrRateLimitExceeded):
		return "Rate limit exceeded"
	case errors.Is(err, ErrSignatureInvalid):
		return "Invalid signature"
	default:
		return "Internal error"
	}
}

// ErrorCode returns the machine-readable rejection category for a
// classified error. These names are the wire contract of the rejection
// body's "error" field.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrThreatBlocked):
		return "ThreatBlocked"
	case errors.Is(err, ErrAuthenticationFailure):
		return "AuthenticationFailure"
	case errors.Is(err, ErrRateLimitExceeded):
		return "RateLimitExceeded"
	case errors.Is(err, ErrSignatureInvalid):
		return "SignatureInvalid"
	default:
		return "Internal"
	}
}

// HTTPStatus maps a classified error to its response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrThreatBlocked):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthenticationFailure):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
