// Package security contains the per-request security context and the
// threat detection logic of the gateway.
package security

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// AuthMethod identifies how a request authenticated.
type AuthMethod string

const (
	// AuthMethodNone means no recognized credential header was present.
	AuthMethodNone AuthMethod = "none"
	// AuthMethodAPIKey is authentication via the X-Api-Key header.
	AuthMethodAPIKey AuthMethod = "api_key"
	// AuthMethodBearer is authentication via an Authorization bearer token.
	AuthMethodBearer AuthMethod = "bearer"
	// AuthMethodSession is authentication via the X-Session-Id header.
	AuthMethodSession AuthMethod = "session"
	// AuthMethodSignature is authentication via HMAC request signing.
	AuthMethodSignature AuthMethod = "signature"
)

// fingerprintUALen is how many leading User-Agent characters feed the
// behavioral fingerprint. Longer agents are truncated so trivial UA noise
// (version suffixes) does not split a client across profiles.
const fingerprintUALen = 50

// Context carries the security state of a single request through the gateway.
// It is created once per request by the HTTP adapter and owned exclusively by
// the request's goroutine; it is never shared across requests.
type Context struct {
	// RequestID is the correlation ID for this request (UUID).
	RequestID string
	// Timestamp is when the context was created (UTC).
	Timestamp time.Time
	// ClientIP is the resolved client address (X-Forwarded-For / X-Real-IP / peer).
	ClientIP string
	// UserAgent is the request's User-Agent header.
	UserAgent string
	// Path is the URL path.
	Path string
	// Method is the HTTP method.
	Method string
	// Headers is a snapshot of the request headers (first value per name).
	Headers map[string]string
	// AuthMethod is the method that handled (or attempted) authentication.
	AuthMethod AuthMethod
	// UserID is the resolved user, identity, or API key ID after authentication.
	UserID string
	// KeyID is the API key record involved, when AuthMethod is api_key.
	KeyID string
	// TenantID is the resolved tenant, when the identity carries one.
	TenantID string
	// SessionID is the session involved, if any.
	SessionID string
	// ThreatScore is the accumulated threat score.
	ThreatScore float64

	// threatFlags is the deduplicated set of threat flags.
	threatFlags map[string]struct{}
	// ValidationErrors collects non-fatal validation failures for auditing.
	ValidationErrors []string
}

// NewContext creates a Context for a request.
func NewContext(requestID, method, path, clientIP, userAgent string, headers map[string]string) *Context {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Context{
		RequestID:   requestID,
		Timestamp:   time.Now().UTC(),
		ClientIP:    clientIP,
		UserAgent:   userAgent,
		Path:        path,
		Method:      method,
		Headers:     headers,
		AuthMethod:  AuthMethodNone,
		threatFlags: make(map[string]struct{}),
	}
}

// AddFlag records a threat flag. Duplicate flags are ignored.
func (c *Context) AddFlag(flag string) {
	c.threatFlags[flag] = struct{}{}
}

// HasFlag reports whether a threat flag has been recorded.
func (c *Context) HasFlag(flag string) bool {
	_, ok := c.threatFlags[flag]
	return ok
}

// Flags returns the recorded threat flags in sorted order.
func (c *Context) Flags() []string {
	flags := make([]string, 0, len(c.threatFlags))
	for f := range c.threatFlags {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

// AddValidationError records a non-fatal validation failure.
func (c *Context) AddValidationError(msg string) {
	c.ValidationErrors = append(c.ValidationErrors, msg)
}

// Fingerprint returns the behavioral tracking key for this request's client:
// a hash over the client IP and the first 50 characters of the User-Agent.
func (c *Context) Fingerprint() uint64 {
	ua := c.UserAgent
	if len(ua) > fingerprintUALen {
		ua = ua[:fingerprintUALen]
	}
	h := xxhash.New()
	_, _ = h.WriteString(c.ClientIP)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(ua)
	return h.Sum64()
}
