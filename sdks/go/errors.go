package assistantgateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrThreatBlocked is returned when the gateway's threat scorer blocks
	// the request.
	ErrThreatBlocked = errors.New("request blocked by threat scoring")

	// ErrAuthFailed is returned when the presented credential is missing,
	// unknown, revoked, or expired.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited is returned when the credential's rate limit is
	// exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSignatureInvalid is returned when request signature verification
	// fails.
	ErrSignatureInvalid = errors.New("request signature invalid")
)

// RejectionError is returned when the gateway rejects a request. It carries
// the rejection code, the sanitized message, and the request ID to quote
// when reporting the incident.
type RejectionError struct {
	// StatusCode is the HTTP status the gateway answered with.
	StatusCode int

	// Code is the machine-readable rejection code, e.g. "ThreatBlocked".
	Code string

	// Message is the sanitized human-readable description.
	Message string

	// RequestID identifies the rejected request in the gateway audit log.
	RequestID string
}

// Error returns a human-readable description of the rejection.
func (e *RejectionError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gateway rejected request %s [%s]: %s", e.RequestID, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway rejected request [%s]: %s", e.Code, e.Message)
}

// Is reports whether this rejection matches one of the sentinel errors,
// keyed on the rejection code.
func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrThreatBlocked:
		return e.Code == CodeThreatBlocked
	case ErrAuthFailed:
		return e.Code == CodeAuthFailure
	case ErrRateLimited:
		return e.Code == CodeRateLimitExceeded
	case ErrSignatureInvalid:
		return e.Code == CodeSignatureInvalid
	}
	return false
}

// APIError is returned for non-2xx responses whose body is not a gateway
// rejection, e.g. errors from the service behind the gateway.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the raw response body.
	Body string
}

// Error returns the status and a body excerpt.
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, body)
}
