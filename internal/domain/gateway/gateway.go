// Package gateway orchestrates threat scoring, authentication, and rate
// limiting for every inbound request.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/ratelimit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/security"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/signing"
)

// Default score thresholds.
const (
	// DefaultBlockScore is the threat score at which a request is rejected.
	DefaultBlockScore = 20.0
	// DefaultElevatedScore is the threat score at which a request is
	// audit-logged as elevated but still allowed through.
	DefaultElevatedScore = 10.0
)

// Config holds the gateway's decision parameters.
type Config struct {
	// BlockScore rejects requests scoring at or above it. Default 20.
	BlockScore float64
	// ElevatedScore audit-logs requests scoring at or above it. Default 10.
	ElevatedScore float64
	// BypassPaths are liveness paths that skip scoring and authentication
	// entirely on GET. Low latency, low variance.
	BypassPaths []string
	// PublicEndpoints are paths exempt from the authentication requirement.
	// Threat scoring still applies.
	PublicEndpoints []string
	// IPRateEnabled turns on the per-IP limiter for all non-bypass traffic.
	IPRateEnabled bool
	// IPRate configures the per-IP limiter.
	IPRate ratelimit.Config
}

func (c Config) withDefaults() Config {
	if c.BlockScore <= 0 {
		c.BlockScore = DefaultBlockScore
	}
	if c.ElevatedScore <= 0 {
		c.ElevatedScore = DefaultElevatedScore
	}
	return c
}

// Gateway runs the per-request security pipeline: bypass check, per-IP
// rate limit, threat scoring, authentication, per-key rate limit.
type Gateway struct {
	detector *security.Detector
	keys     *auth.Service
	auths    map[security.AuthMethod]Authenticator
	limiter  ratelimit.Limiter
	cfg      Config
	bypass   map[string]struct{}
	public   map[string]struct{}
	logger   *slog.Logger
	sink     audit.Sink
}

// New wires a Gateway from its collaborating services. The authenticator
// registry is a fixed map keyed by AuthMethod; limiter may be nil when
// per-IP limiting is disabled.
func New(
	detector *security.Detector,
	sessions *session.Manager,
	keys *auth.Service,
	signer *signing.Signer,
	verifier TokenVerifier,
	limiter ratelimit.Limiter,
	cfg Config,
	logger *slog.Logger,
	sink audit.Sink,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	if verifier == nil {
		verifier = &LengthTokenVerifier{}
	}
	g := &Gateway{
		detector: detector,
		keys:     keys,
		auths: map[security.AuthMethod]Authenticator{
			security.AuthMethodAPIKey:    &apiKeyAuthenticator{keys: keys},
			security.AuthMethodBearer:    &bearerAuthenticator{verifier: verifier},
			security.AuthMethodSession:   &sessionAuthenticator{sessions: sessions},
			security.AuthMethodSignature: &signatureAuthenticator{signer: signer},
		},
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		bypass:  make(map[string]struct{}),
		public:  make(map[string]struct{}),
		logger:  logger,
		sink:    sink,
	}
	for _, p := range cfg.BypassPaths {
		g.bypass[p] = struct{}{}
	}
	for _, p := range cfg.PublicEndpoints {
		g.public[p] = struct{}{}
	}
	return g
}

// Process runs the security pipeline for one request. A nil return means
// the request may proceed; any error is already classified for the
// transport's status mapping. The context is annotated in place.
func (g *Gateway) Process(ctx context.Context, sc *security.Context, body []byte) error {
	if g.IsBypass(sc.Method, sc.Path) {
		return nil
	}

	if g.cfg.IPRateEnabled && g.limiter != nil {
		key := ratelimit.FormatKey(ratelimit.KeyTypeIP, sc.ClientIP)
		result, err := g.limiter.Allow(ctx, key, g.cfg.IPRate)
		if err != nil {
			g.logger.Error("ip rate limiter failed", "error", err, "request_id", sc.RequestID)
		} else if !result.Allowed {
			g.audit(ctx, sc, audit.SeverityElevated, audit.KindRateLimited,
				fmt.Sprintf("ip %s rate limited, retry after %s", sc.ClientIP, result.RetryAfter))
			return ErrRateLimitExceeded
		}
	}

	score := g.detector.Score(sc, body)
	if score >= g.cfg.BlockScore {
		g.audit(ctx, sc, audit.SeverityCritical, audit.KindThreatBlocked,
			fmt.Sprintf("threat score %.1f at or above block threshold %.1f", score, g.cfg.BlockScore))
		return ErrThreatBlocked
	}
	if score >= g.cfg.ElevatedScore {
		g.audit(ctx, sc, audit.SeverityElevated, audit.KindThreatElevated,
			fmt.Sprintf("threat score %.1f at or above elevated threshold %.1f", score, g.cfg.ElevatedScore))
	}

	if err := g.authenticate(ctx, sc, body); err != nil {
		if g.isPublic(sc.Path) {
			// Public endpoints never reject for authentication reasons.
			sc.AuthMethod = security.AuthMethodNone
			sc.UserID = ""
			g.logger.Debug("credentials rejected on public endpoint, continuing anonymous",
				"request_id", sc.RequestID, "path", sc.Path, "error", err)
		} else {
			g.audit(ctx, sc, audit.SeverityHigh, audit.KindAuthFailure, err.Error())
			return Classify(err)
		}
	}

	if sc.AuthMethod == security.AuthMethodAPIKey {
		if err := g.keys.ConsumeRateLimit(ctx, sc.KeyID); err != nil {
			return Classify(err)
		}
	}

	return nil
}

// Finalize records the outcome of a completed request: behavioral error
// tracking for 4xx/5xx responses and the per-request trace event.
func (g *Gateway) Finalize(ctx context.Context, sc *security.Context, status int) {
	if status >= 400 {
		g.detector.RecordError(sc)
	}
	event := audit.NewEvent(audit.SeverityDebug, audit.KindRequest)
	event.RequestID = sc.RequestID
	event.ClientIP = sc.ClientIP
	event.Method = sc.Method
	event.Path = sc.Path
	event.Status = status
	event.ThreatScore = sc.ThreatScore
	event.ThreatFlags = sc.Flags()
	event.AuthMethod = string(sc.AuthMethod)
	event.UserID = sc.UserID
	event.SessionID = sc.SessionID
	g.sink.Record(ctx, event)
}

// authenticate dispatches to the highest-priority authenticator whose
// header is present. A failed method does not fall through to the next.
func (g *Gateway) authenticate(ctx context.Context, sc *security.Context, body []byte) error {
	for _, entry := range authPriority {
		if sc.Headers[entry.header] == "" {
			continue
		}
		if err := g.auths[entry.method].Authenticate(ctx, sc, body); err != nil {
			g.logger.Debug("authentication failed",
				"request_id", sc.RequestID,
				"method", string(entry.method),
				"error", err)
			return err
		}
		return nil
	}
	return errNoCredentials
}

// IsBypass reports whether a request skips the pipeline entirely.
// Only GET requests to configured liveness paths qualify.
func (g *Gateway) IsBypass(method, path string) bool {
	if method != "GET" {
		return false
	}
	_, ok := g.bypass[path]
	return ok
}

func (g *Gateway) isPublic(path string) bool {
	_, ok := g.public[path]
	return ok
}

func (g *Gateway) audit(ctx context.Context, sc *security.Context, severity audit.Severity, kind string, reason string) {
	event := audit.NewEvent(severity, kind)
	event.RequestID = sc.RequestID
	event.ClientIP = sc.ClientIP
	event.Method = sc.Method
	event.Path = sc.Path
	event.ThreatScore = sc.ThreatScore
	event.ThreatFlags = sc.Flags()
	event.AuthMethod = string(sc.AuthMethod)
	event.UserID = sc.UserID
	event.SessionID = sc.SessionID
	event.Reason = reason
	g.sink.Record(ctx, event)
}
