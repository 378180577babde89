package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/security"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/signing"
)

// Credential header names consumed by the gateway.
const (
	HeaderAPIKey        = "X-Api-Key"
	HeaderAuthorization = "Authorization"
	HeaderSessionID     = "X-Session-Id"
	HeaderSignature     = "X-Signature"
	HeaderTimestamp     = "X-Timestamp"
	HeaderKeyID         = "X-Key-Id"
)

// defaultSigningKeyID is used when a signed request omits X-Key-Id.
const defaultSigningKeyID = "default"

// Authenticator validates one credential type and annotates the security
// context with the resolved identity. Implementations are registered per
// AuthMethod in the gateway's compile-time map.
type Authenticator interface {
	// Authenticate validates the credentials carried by the context's
	// headers. On success it sets AuthMethod, UserID, and any
	// method-specific fields on the context.
	Authenticate(ctx context.Context, sc *security.Context, body []byte) error
}

// authPriority fixes the credential evaluation order. The first method
// whose header is present handles the request; there is no fall-through
// to lower-priority methods when it fails.
var authPriority = []struct {
	header string
	method security.AuthMethod
}{
	{HeaderAPIKey, security.AuthMethodAPIKey},
	{HeaderAuthorization, security.AuthMethodBearer},
	{HeaderSessionID, security.AuthMethodSession},
	{HeaderSignature, security.AuthMethodSignature},
}

// TokenVerifier checks a bearer token and resolves its subject.
// The default implementation is a length check standing in for real
// JWT verification; swap in a proper verifier via the gateway config.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (userID string, err error)
}

// LengthTokenVerifier accepts any token longer than MinLength characters.
// Placeholder pending a real JWT library.
type LengthTokenVerifier struct {
	MinLength int
}

// VerifyToken implements TokenVerifier.
func (v *LengthTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	min := v.MinLength
	if min <= 0 {
		min = 10
	}
	if len(token) <= min {
		return "", ErrAuthenticationFailure
	}
	return "bearer-subject", nil
}

// apiKeyAuthenticator validates X-Api-Key against the key service.
type apiKeyAuthenticator struct {
	keys *auth.Service
}

func (a *apiKeyAuthenticator) Authenticate(ctx context.Context, sc *security.Context, body []byte) error {
	rawKey := sc.Headers[HeaderAPIKey]
	rec, err := a.keys.Validate(ctx, rawKey, sc.ClientIP, PermissionForPath(sc.Path))
	if err != nil {
		return err
	}
	sc.AuthMethod = security.AuthMethodAPIKey
	sc.UserID = rec.UserID
	sc.KeyID = rec.ID
	return nil
}

// bearerAuthenticator validates Authorization bearer tokens.
type bearerAuthenticator struct {
	verifier TokenVerifier
}

func (a *bearerAuthenticator) Authenticate(ctx context.Context, sc *security.Context, body []byte) error {
	value := sc.Headers[HeaderAuthorization]
	token, ok := strings.CutPrefix(value, "Bearer ")
	if !ok || token == "" {
		return ErrAuthenticationFailure
	}
	userID, err := a.verifier.VerifyToken(ctx, token)
	if err != nil {
		return err
	}
	sc.AuthMethod = security.AuthMethodBearer
	sc.UserID = userID
	return nil
}

// sessionAuthenticator validates X-Session-Id against the session manager.
type sessionAuthenticator struct {
	sessions *session.Manager
}

func (a *sessionAuthenticator) Authenticate(ctx context.Context, sc *security.Context, body []byte) error {
	sess, err := a.sessions.Validate(ctx, sc.Headers[HeaderSessionID], sc.ClientIP, sc.UserAgent)
	if err != nil {
		return err
	}
	sc.AuthMethod = security.AuthMethodSession
	sc.UserID = sess.UserID
	sc.SessionID = sess.ID
	return nil
}

// signatureAuthenticator verifies HMAC-signed requests.
type signatureAuthenticator struct {
	signer *signing.Signer
}

func (a *signatureAuthenticator) Authenticate(ctx context.Context, sc *security.Context, body []byte) error {
	keyID := sc.Headers[HeaderKeyID]
	if keyID == "" {
		keyID = defaultSigningKeyID
	}
	err := a.signer.Verify(keyID, sc.Method, sc.Path, body,
		sc.Headers[HeaderTimestamp], sc.Headers[HeaderSignature])
	if err != nil {
		return err
	}
	sc.AuthMethod = security.AuthMethodSignature
	sc.UserID = "hmac:" + keyID
	return nil
}

// PermissionForPath derives the permission name an API key must hold to
// call a path: the first segment after "/api/". Paths outside /api/
// require no specific permission.
func PermissionForPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Compile-time interface verification.
var (
	_ Authenticator = (*apiKeyAuthenticator)(nil)
	_ Authenticator = (*bearerAuthenticator)(nil)
	_ Authenticator = (*sessionAuthenticator)(nil)
	_ Authenticator = (*signatureAuthenticator)(nil)
	_ TokenVerifier = (*LengthTokenVerifier)(nil)
)

// errNoCredentials distinguishes "no recognized header" from a failed
// method inside the gateway. It wraps ErrAuthenticationFailure so the
// classifier maps it to a 401, not an internal error.
var errNoCredentials = fmt.Errorf("%w: no credentials presented", ErrAuthenticationFailure)
