package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/inbound/http"
	auditfile "github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/outbound/audit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/outbound/memory"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/outbound/sqlite"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/config"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/auth"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/gateway"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/ratelimit"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/security"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/session"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/signing"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/telemetry"
)

// cleanupBackoff is the retry delay after a failed session sweep.
const cleanupBackoff = time.Minute

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the assistant gateway server.

The gateway fronts the protected assistant API: every request passes
through threat scoring, authentication, and rate limiting before it is
forwarded. Rejections are audited and answered with a JSON error body.

Examples:
  # Start with config file settings
  assistant-gateway start

  # Start with a specific config file
  assistant-gateway --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, error detail in rejections)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first).
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.Server.DevMode = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.Server.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("assistant-gateway stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Server.DevMode {
		logger.Warn("development mode enabled, rejection bodies include error detail")
	}

	// Tracing.
	shutdownTracer, err := telemetry.InitTracer("assistant-gateway", logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	// Audit sink.
	sink, err := createAuditSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit sink: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sink.Flush(flushCtx)
		_ = sink.Close()
	}()

	// Stores.
	keyStore := memory.NewKeyStore()
	if err := seedKeysFromConfig(ctx, cfg, keyStore); err != nil {
		return fmt.Errorf("failed to seed API keys: %w", err)
	}
	logger.Debug("seeded API keys from config", "keys", len(cfg.Auth.APIKeys))

	sessionStore := memory.NewSessionStore(0)

	var limiter *memory.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = memory.NewRateLimiterWithConfig(
			config.Duration(cfg.RateLimit.CleanupInterval, 5*time.Minute),
			config.Duration(cfg.RateLimit.MaxTTL, time.Hour),
		)
	} else {
		limiter = memory.NewRateLimiter()
	}
	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	// Services.
	keys := auth.NewService(keyStore, logger, sink)

	sessions := session.NewManager(sessionStore, session.Config{
		Timeout:     config.Duration(cfg.Security.SessionTimeout, 24*time.Hour),
		IdleTimeout: config.Duration(cfg.Security.IdleTimeout, 2*time.Hour),
		MaxPerUser:  cfg.Security.MaxSessionsPerUser,
	}, logger, sink)

	signingSecrets := make(map[string]string, len(cfg.Auth.SigningKeys))
	for _, key := range cfg.Auth.SigningKeys {
		signingSecrets[key.ID] = key.Secret
	}
	signer := signing.NewSignerWithSkew(signingSecrets,
		config.Duration(cfg.Security.SignatureFreshness, signing.MaxClockSkew))

	tracker := security.NewTracker(security.TrackerConfig{
		RequestFrequencyThreshold: cfg.Security.RequestFrequencyThreshold,
		NewEndpointsThreshold:     cfg.Security.NewEndpointsThreshold,
	})
	detector := security.NewDetector(tracker)

	if len(cfg.Security.CustomRules) > 0 {
		rules := make([]security.Rule, 0, len(cfg.Security.CustomRules))
		for _, rc := range cfg.Security.CustomRules {
			rules = append(rules, security.Rule{
				Name:       rc.Name,
				Expression: rc.Expression,
				Score:      rc.Score,
			})
		}
		ruleSet, err := security.CompileRules(rules, logger)
		if err != nil {
			return fmt.Errorf("failed to compile custom rules: %w", err)
		}
		detector.SetRules(ruleSet)
		logger.Info("custom rules compiled", "rules", ruleSet.Len())
	}

	gw := gateway.New(detector, sessions, keys, signer, nil, limiter, gateway.Config{
		BlockScore:      cfg.Security.ThreatBlockScore,
		BypassPaths:     cfg.Security.BypassPaths,
		PublicEndpoints: cfg.Security.PublicEndpoints,
		IPRateEnabled:   cfg.RateLimit.Enabled,
		IPRate: ratelimit.Config{
			Rate:   cfg.RateLimit.IPRate,
			Burst:  cfg.RateLimit.IPBurst,
			Period: config.Duration(cfg.RateLimit.IPPeriod, time.Minute),
		},
	}, logger, sink)

	// Background session sweep: fixed interval, shorter retry after a
	// failed sweep, never fatal.
	go cleanupLoop(ctx, sessions, config.Duration(cfg.Security.CleanupInterval, 5*time.Minute), logger)

	// HTTP transport.
	drops, _ := sink.(httptransport.DropCounter)
	healthChecker := httptransport.NewHealthChecker(sessionStore, limiter, drops, Version)

	transport := httptransport.NewTransport(gw,
		httptransport.WithAddr(cfg.Server.HTTPAddr),
		httptransport.WithLogger(logger),
		httptransport.WithHealthChecker(healthChecker),
		httptransport.WithDevMode(cfg.Server.DevMode),
		httptransport.WithHandler(httptransport.NotConfiguredHandler()),
	)

	logger.Info("assistant-gateway starting",
		"addr", cfg.Server.HTTPAddr,
		"rate_limit", cfg.RateLimit.Enabled,
		"audit", cfg.Audit.Output,
		"dev_mode", cfg.Server.DevMode,
	)

	return transport.Start(ctx)
}

// cleanupLoop sweeps expired sessions until ctx is cancelled. A failed
// sweep shortens the next interval instead of aborting.
func cleanupLoop(ctx context.Context, sessions *session.Manager, interval time.Duration, logger *slog.Logger) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := interval
		cleaned, err := sessions.CleanupExpired(ctx)
		if err != nil {
			logger.Error("session cleanup failed", "error", err)
			next = cleanupBackoff
		} else if cleaned > 0 {
			logger.Debug("session cleanup complete", "cleaned", cleaned)
		}
		timer.Reset(next)
	}
}

// createAuditSink builds the audit sink selected by audit.output.
func createAuditSink(cfg *config.Config, logger *slog.Logger) (audit.Sink, error) {
	output := cfg.Audit.Output
	switch {
	case output == "slog":
		return audit.NewSlogSink(logger), nil

	case strings.HasPrefix(output, "file://"):
		dir := strings.TrimPrefix(output, "file://")
		return auditfile.NewFileSink(auditfile.FileConfig{
			Dir:           dir,
			RetentionDays: cfg.Audit.RetentionDays,
			QueueSize:     cfg.Audit.QueueSize,
		}, logger)

	case strings.HasPrefix(output, "sqlite://"):
		path := strings.TrimPrefix(output, "sqlite://")
		return sqlite.NewAuditSink(path, cfg.Audit.QueueSize, logger)

	default:
		return nil, fmt.Errorf("invalid audit output: %s (must be 'slog', 'file://dir', or 'sqlite://path')", output)
	}
}

// seedKeysFromConfig loads the configured API key records into the store.
func seedKeysFromConfig(ctx context.Context, cfg *config.Config, store auth.Store) error {
	for i, kc := range cfg.Auth.APIKeys {
		rec := &auth.Record{
			ID:          kc.ID,
			Name:        kc.Name,
			UserID:      kc.UserID,
			Hash:        normalizeKeyHash(kc.KeyHash),
			Permissions: kc.Permissions,
			RateLimit:   kc.RateLimit,
			AllowedIPs:  kc.AllowedIPs,
			CreatedAt:   time.Now().UTC(),
			Active:      true,
		}
		if kc.ExpiresAt != "" {
			expires, err := time.Parse(time.RFC3339, kc.ExpiresAt)
			if err != nil {
				return fmt.Errorf("api_keys[%d]: invalid expires_at: %w", i, err)
			}
			rec.ExpiresAt = &expires
		}
		if err := store.Put(ctx, rec); err != nil {
			return fmt.Errorf("api_keys[%d]: %w", i, err)
		}
	}
	return nil
}

// normalizeKeyHash strips the sha256: prefix so SHA-256 hashes take the
// direct lookup path. Argon2id PHC strings are stored as-is.
func normalizeKeyHash(hash string) string {
	return strings.TrimPrefix(hash, "sha256:")
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
