// Package integration provides end-to-end tests that drive the full
// gateway pipeline through the HTTP transport with real components
// behind it: in-memory stores, the threat detector, the HMAC signer,
// and real audit sinks.
package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	httptransport "github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/inbound/http"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/outbound/memory"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/gateway"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/ratelimit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/security"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/signing"
)

// testLogger returns a logger that writes to stderr at error level (quiet tests).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stackOptions configures the assembled gateway stack. The zero value
// gives unlimited key usage, no IP limiter, no custom rules, and a
// nil audit sink.
type stackOptions struct {
	sink      audit.Sink
	keyRate   int
	ipRate    *ratelimit.Config
	rules     []security.Rule
	freshness time.Duration
}

// gatewayStack is a fully wired gateway behind its HTTP transport,
// assembled the same way the start command does it.
type gatewayStack struct {
	handler      http.Handler
	sessions     *session.Manager
	sessionStore *memory.SessionStore
	signer       *signing.Signer
	limiter      *memory.RateLimiter
}

// buildStack wires real components end to end: key store, session
// manager, signer, detector, rate limiter, gateway, and transport.
func buildStack(t testing.TB, opts stackOptions) *gatewayStack {
	t.Helper()
	logger := testLogger()

	keyStore := memory.NewKeyStore(
		&auth.Record{
			ID:          "integ-key",
			Name:        "integration",
			UserID:      "integ-user",
			Hash:        auth.HashKey("integ-key-secret"),
			Permissions: []string{auth.PermissionAll},
			RateLimit:   opts.keyRate,
			Active:      true,
		},
	)
	keys := auth.NewService(keyStore, logger, opts.sink)

	sessionStore := memory.NewSessionStore(0)
	sessions := session.NewManager(sessionStore, session.Config{
		Timeout:     time.Hour,
		IdleTimeout: 30 * time.Minute,
		MaxPerUser:  5,
	}, logger, opts.sink)

	freshness := opts.freshness
	if freshness == 0 {
		freshness = signing.MaxClockSkew
	}
	signer := signing.NewSignerWithSkew(map[string]string{
		"default": "integration-signing-secret",
	}, freshness)

	detector := security.NewDetector(security.NewTracker(security.TrackerConfig{}))
	if len(opts.rules) > 0 {
		ruleSet, err := security.CompileRules(opts.rules, logger)
		if err != nil {
			t.Fatalf("CompileRules: %v", err)
		}
		detector.SetRules(ruleSet)
	}

	cfg := gateway.Config{
		BypassPaths:     []string{"/health"},
		PublicEndpoints: []string{"/status"},
	}
	limiter := memory.NewRateLimiter()
	t.Cleanup(limiter.Stop)
	if opts.ipRate != nil {
		cfg.IPRateEnabled = true
		cfg.IPRate = *opts.ipRate
	}

	gw := gateway.New(detector, sessions, keys, signer, nil, limiter, cfg, logger, opts.sink)

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	})

	tr := httptransport.NewTransport(gw,
		httptransport.WithLogger(logger),
		httptransport.WithHandler(app),
		httptransport.WithHealthChecker(httptransport.NewHealthChecker(sessionStore, limiter, nil, "integration")),
	)

	return &gatewayStack{
		handler:      tr.Handler(),
		sessions:     sessions,
		sessionStore: sessionStore,
		signer:       signer,
		limiter:      limiter,
	}
}

// do sends one request through the full middleware chain.
func (s *gatewayStack) do(method, path, body, clientIP string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = clientIP + ":51000"
	req.Header.Set("User-Agent", "integration-test/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(rec *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(rec.Body).Decode(v)
}

// decodeRejection decodes the JSON error body of a rejected request.
func decodeRejection(t *testing.T, rec *httptest.ResponseRecorder) httptransport.RejectionResponse {
	t.Helper()
	var body httptransport.RejectionResponse
	if err := decodeJSON(rec, &body); err != nil {
		t.Fatalf("rejection body does not decode: %v; body: %s", err, rec.Body.String())
	}
	return body
}
