package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/outbound/memory"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/gateway"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/security"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/signing"
)

// transportFixture drives the full middleware chain end to end through
// httptest, with in-memory stores behind the gateway.
type transportFixture struct {
	handler  http.Handler
	sessions *session.Manager
	signer   *signing.Signer
}

func newTransportFixture(t *testing.T) *transportFixture {
	t.Helper()

	keyStore := memory.NewKeyStore(
		&auth.Record{
			ID:          "key-good",
			UserID:      "user-1",
			Hash:        auth.HashKey("good-key"),
			Permissions: []string{auth.PermissionAll},
			RateLimit:   1000,
			Active:      true,
		},
		&auth.Record{
			ID:     "key-revoked",
			UserID: "user-2",
			Hash:   auth.HashKey("revoked-key"),
			Active: false,
		},
	)
	keys := auth.NewService(keyStore, discardLogger(), nil)
	sessionStore := memory.NewSessionStore(0)
	sessions := session.NewManager(sessionStore, session.Config{}, discardLogger(), nil)
	signer := signing.NewSigner(map[string]string{"default": "signing-secret"})
	detector := security.NewDetector(security.NewTracker(security.TrackerConfig{}))

	gw := gateway.New(detector, sessions, keys, signer, nil, nil, gateway.Config{
		BypassPaths:     []string{"/health"},
		PublicEndpoints: []string{"/status"},
	}, discardLogger(), nil)

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	})

	tr := NewTransport(gw,
		WithLogger(discardLogger()),
		WithHandler(app),
		WithHealthChecker(NewHealthChecker(sessionStore, nil, nil, "test")),
	)
	return &transportFixture{handler: tr.Handler(), sessions: sessions, signer: signer}
}

func (f *transportFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("User-Agent", "test-agent/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeRejection(t *testing.T, rec *httptest.ResponseRecorder) RejectionResponse {
	t.Helper()
	var body RejectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("rejection body does not decode: %v", err)
	}
	return body
}

func assertSecurityHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	for name, want := range securityHeaders {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
}

func TestTransportAPIKeyFlow(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.do(http.MethodPost, "/api/ask", `{"question":"hi"}`,
		map[string]string{"X-Api-Key": "good-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	assertSecurityHeaders(t, rec)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on success response")
	}
}

func TestTransportRevokedKeyRejected(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.do(http.MethodPost, "/api/ask", "",
		map[string]string{"X-Api-Key": "revoked-key"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	assertSecurityHeaders(t, rec)

	body := decodeRejection(t, rec)
	if body.Error != "AuthenticationFailure" {
		t.Errorf("error code = %q, want AuthenticationFailure", body.Error)
	}
	if body.Message != "Authentication failed" {
		t.Errorf("message = %q, leaked internal detail?", body.Message)
	}
	if body.RequestID == "" {
		t.Error("rejection body missing request_id")
	}
}

func TestTransportMissingCredentials(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.do(http.MethodPost, "/api/ask", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeRejection(t, rec)
	if body.Error != "AuthenticationFailure" {
		t.Errorf("error code = %q, want AuthenticationFailure", body.Error)
	}
}

func TestTransportThreatBlocked(t *testing.T) {
	f := newTransportFixture(t)

	payload := `'; DROP TABLE users; <script>alert(1)</script> ; cat /etc/passwd`
	rec := f.do(http.MethodPost, "/api/ask", payload,
		map[string]string{"X-Api-Key": "good-key"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	assertSecurityHeaders(t, rec)

	body := decodeRejection(t, rec)
	if body.Error != "ThreatBlocked" {
		t.Errorf("error code = %q, want ThreatBlocked", body.Error)
	}
	if body.Message != "Request blocked" {
		t.Errorf("message = %q, want the sanitized text", body.Message)
	}
}

func TestTransportBypassPath(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}
	// Bypass still carries the full security header set.
	assertSecurityHeaders(t, rec)
}

func TestTransportPublicEndpoint(t *testing.T) {
	f := newTransportFixture(t)

	// No credentials at all: public endpoints answer anonymously.
	rec := f.do(http.MethodGet, "/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status status = %d, want 200", rec.Code)
	}

	// Bad credentials on a public endpoint do not reject either.
	rec = f.do(http.MethodGet, "/status", "",
		map[string]string{"X-Api-Key": "no-such-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status with bad key status = %d, want 200", rec.Code)
	}
}

func TestTransportSessionFlow(t *testing.T) {
	f := newTransportFixture(t)

	sessID, err := f.sessions.Create(context.Background(), "user-1", "10.0.0.1", "test-agent/1.0")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := f.do(http.MethodPost, "/api/ask", "",
		map[string]string{"X-Session-Id": sessID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPost, "/api/ask", "",
		map[string]string{"X-Session-Id": "unknown-session"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown session status = %d, want 401", rec.Code)
	}
}

func TestTransportSignatureFlow(t *testing.T) {
	f := newTransportFixture(t)

	body := `{"question":"signed"}`
	fresh := time.Now().Unix()
	sig, err := f.signer.Sign("default", http.MethodPost, "/api/ask", []byte(body), fresh)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	rec := f.do(http.MethodPost, "/api/ask", body, map[string]string{
		"X-Signature": sig,
		"X-Timestamp": strconv.FormatInt(fresh, 10),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh signature status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	stale := time.Now().Add(-10 * time.Minute).Unix()
	sig, err = f.signer.Sign("default", http.MethodPost, "/api/ask", []byte(body), stale)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	rec = f.do(http.MethodPost, "/api/ask", body, map[string]string{
		"X-Signature": sig,
		"X-Timestamp": strconv.FormatInt(stale, 10),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale signature status = %d, want 401", rec.Code)
	}
	if got := decodeRejection(t, rec).Error; got != "SignatureInvalid" {
		t.Errorf("error code = %q, want SignatureInvalid", got)
	}
}

func TestTransportBodyReachesHandler(t *testing.T) {
	keyStore := memory.NewKeyStore(&auth.Record{
		ID:          "key-good",
		UserID:      "user-1",
		Hash:        auth.HashKey("good-key"),
		Permissions: []string{auth.PermissionAll},
		Active:      true,
	})
	keys := auth.NewService(keyStore, discardLogger(), nil)
	sessions := session.NewManager(memory.NewSessionStore(0), session.Config{}, discardLogger(), nil)
	signer := signing.NewSigner(nil)
	detector := security.NewDetector(security.NewTracker(security.TrackerConfig{}))
	gw := gateway.New(detector, sessions, keys, signer, nil, nil, gateway.Config{}, discardLogger(), nil)

	var received string
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("handler body read error = %v", err)
		}
		received = string(data)
		w.WriteHeader(http.StatusOK)
	})

	tr := NewTransport(gw, WithLogger(discardLogger()), WithHandler(app))
	handler := tr.Handler()

	payload := `{"question":"round trip"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(payload))
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("X-Api-Key", "good-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if received != payload {
		t.Errorf("handler saw body %q, want %q", received, payload)
	}
}
