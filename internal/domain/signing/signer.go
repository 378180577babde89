// Package signing implements HMAC request signing and verification.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// MaxClockSkew bounds how far a signed timestamp may drift from the
// verifier's clock, in either direction.
const MaxClockSkew = 300 * time.Second

// Sentinel errors for signature verification.
var (
	// ErrUnknownSigningKey is returned when the key ID has no registered secret.
	ErrUnknownSigningKey = errors.New("unknown signing key")
	// ErrBadTimestamp is returned when the timestamp is not unix seconds.
	ErrBadTimestamp = errors.New("malformed signature timestamp")
	// ErrTimestampSkew is returned when the timestamp is outside the skew window.
	ErrTimestampSkew = errors.New("signature timestamp outside allowed skew")
	// ErrSignatureMismatch is returned when the signature does not verify.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Signer signs and verifies requests with per-key-ID HMAC-SHA256 secrets.
// The canonical string is method, path, body, and unix-seconds timestamp
// joined with newlines. Secrets never leave the signer.
type Signer struct {
	secrets map[string][]byte
	skew    time.Duration
	// now is replaceable in tests.
	now func() time.Time
}

// NewSigner creates a Signer from a key-ID to secret map.
// The map is copied; later mutation of the argument has no effect.
func NewSigner(secrets map[string]string) *Signer {
	copied := make(map[string][]byte, len(secrets))
	for id, secret := range secrets {
		copied[id] = []byte(secret)
	}
	return &Signer{
		secrets: copied,
		skew:    MaxClockSkew,
		now:     time.Now,
	}
}

// NewSignerWithSkew creates a Signer with a custom freshness window.
// Non-positive skew falls back to MaxClockSkew.
func NewSignerWithSkew(secrets map[string]string, skew time.Duration) *Signer {
	s := NewSigner(secrets)
	if skew > 0 {
		s.skew = skew
	}
	return s
}

// Sign computes the hex HMAC-SHA256 signature for a request.
// Returns ErrUnknownSigningKey if the key ID has no secret.
func (s *Signer) Sign(keyID, method, path string, body []byte, timestamp int64) (string, error) {
	secret, ok := s.secrets[keyID]
	if !ok {
		return "", ErrUnknownSigningKey
	}
	return computeSignature(secret, method, path, body, timestamp), nil
}

// Verify checks a presented signature. Verification fails closed: an
// unknown key, a malformed or stale timestamp, and a mismatched digest
// each return a distinct sentinel error. The digest comparison is
// constant-time.
func (s *Signer) Verify(keyID, method, path string, body []byte, timestamp, signature string) error {
	secret, ok := s.secrets[keyID]
	if !ok {
		return ErrUnknownSigningKey
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	drift := s.now().UTC().Sub(time.Unix(ts, 0))
	if drift > s.skew || drift < -s.skew {
		return ErrTimestampSkew
	}

	expected := computeSignature(secret, method, path, body, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// KnownKey reports whether a secret is registered for the key ID.
func (s *Signer) KnownKey(keyID string) bool {
	_, ok := s.secrets[keyID]
	return ok
}

func computeSignature(secret []byte, method, path string, body []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(method))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(path))
	mac.Write([]byte{'\n'})
	mac.Write(body)
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
