package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/gateway"
)

// Transport is the inbound adapter that fronts the protected application
// with the security pipeline. Every request except /metrics passes through
// the gateway middleware chain before reaching the application handler.
type Transport struct {
	gateway       *gateway.Gateway
	server        *http.Server
	addr          string
	certFile      string
	keyFile       string
	handler       http.Handler
	healthChecker *HealthChecker
	logger        *slog.Logger
	metrics       *Metrics
	metricsRoute  http.Handler
	polledDrops   uint64
	devMode       bool
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithHandler sets the protected application handler reached by requests
// that clear the security pipeline.
func WithHandler(h http.Handler) Option {
	return func(t *Transport) {
		t.handler = h
	}
}

// WithHealthChecker sets the health checker for the /health and /status
// endpoints.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// WithDevMode enables developer diagnostics in rejection bodies.
// Never enable in production.
func WithDevMode(enabled bool) Option {
	return func(t *Transport) {
		t.devMode = enabled
	}
}

// NewTransport creates an HTTP transport adapter fronting the given gateway.
func NewTransport(gw *gateway.Gateway, opts ...Option) *Transport {
	t := &Transport{
		gateway: gw,
		addr:    "127.0.0.1:8080",
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.handler == nil {
		t.handler = http.NotFoundHandler()
	}

	return t
}

// Metrics returns the transport's metric set. Nil until Start is called.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// Handler builds the full middleware chain and route table. Exposed
// separately from Start so tests can drive it with httptest.
func (t *Transport) Handler() http.Handler {
	if t.metrics == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		t.metrics = NewMetrics(reg)
		t.metricsRoute = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry: reg,
		})
	}
	return t.buildHandler()
}

// buildHandler assembles the route table and middleware chain.
// Middleware order (outermost first):
// 1. MetricsMiddleware - record duration and status (outermost to capture full duration)
// 2. RequestID - extract/generate request ID and enrich logger
// 3. RealIP - extract client IP from X-Forwarded-For
// 4. GatewayMiddleware - threat scoring, authentication, rate limiting
// 5. Application handler
func (t *Transport) buildHandler() http.Handler {
	inner := http.NewServeMux()
	if t.healthChecker != nil {
		inner.Handle("/health", t.healthChecker.Handler())
		inner.Handle("/status", t.healthChecker.StatusHandler())
	} else {
		inner.Handle("/health", healthHandler())
	}
	// Favicon handler to prevent browser 500 errors
	inner.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	inner.Handle("/", t.handler)

	protected := GatewayMiddleware(t.gateway, t.metrics, t.devMode)(inner)
	protected = RealIPMiddleware(protected)
	protected = RequestIDMiddleware(t.logger)(protected)
	protected = MetricsMiddleware(t.metrics)(protected)

	// /metrics stays outside the security pipeline: it is scraped by
	// infrastructure, not clients.
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.metricsRoute)
	mux.Handle("/", protected)
	return mux
}

// NotConfiguredHandler answers requests that cleared the security
// pipeline when no application handler is wired. Used by the standalone
// binary until an upstream is configured.
func NotConfiguredHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = w.Write([]byte(`{"error":"not_configured","message":"No application handler configured"}`))
	})
}

// healthHandler is the fallback when no HealthChecker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or an error occurs.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.healthChecker != nil {
		go t.pollGauges(ctx)
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// pollGauges periodically refreshes the store-backed gauges from the
// health checker's components.
func (t *Transport) pollGauges(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if t.healthChecker.sessionStore != nil {
			t.metrics.ActiveSessions.Set(float64(t.healthChecker.sessionStore.Size()))
		}
		if t.healthChecker.rateLimiter != nil {
			t.metrics.RateLimitKeys.Set(float64(t.healthChecker.rateLimiter.Size()))
		}
		if t.healthChecker.auditDrops != nil {
			// Counter semantics: add only the delta since the last poll.
			drops := t.healthChecker.auditDrops.Dropped()
			if delta := drops - t.polledDrops; delta > 0 {
				t.metrics.AuditDropsTotal.Add(float64(delta))
			}
			t.polledDrops = drops
		}
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
