// Package config provides the configuration schema for the assistant
// gateway. Configuration is file-based (YAML) with environment variable
// overrides; there is no dynamic reconfiguration.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the assistant gateway.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Security configures sessions, threat detection, and request signing.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// RateLimit configures the per-IP rate limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Audit configures where audit events are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Auth configures seeded API keys and signing secrets.
	// Optional: when empty, only session and bearer authentication work.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`
}

// ServerConfig configures the HTTP server.
// TLS is handled via a reverse proxy, not here.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., ":8080", "127.0.0.1:8080").
	// Defaults to ":8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables development features: verbose logging and error
	// detail in rejection bodies. Never enable in production.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// SecurityConfig configures the security pipeline.
type SecurityConfig struct {
	// SessionTimeout is the maximum session age (e.g., "24h").
	// Defaults to "24h" if not specified.
	SessionTimeout string `yaml:"session_timeout" mapstructure:"session_timeout" validate:"omitempty,duration"`

	// IdleTimeout is the maximum session inactivity (e.g., "2h").
	// Defaults to "2h" if not specified.
	IdleTimeout string `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"omitempty,duration"`

	// MaxSessionsPerUser caps concurrently active sessions per user.
	// Creating one more evicts the oldest. Defaults to 5.
	MaxSessionsPerUser int `yaml:"max_sessions_per_user" mapstructure:"max_sessions_per_user" validate:"omitempty,min=1"`

	// RequestFrequencyThreshold is the requests/minute level at which a
	// client's behavior is flagged. Defaults to 100.
	RequestFrequencyThreshold int `yaml:"request_frequency_threshold" mapstructure:"request_frequency_threshold" validate:"omitempty,min=1"`

	// NewEndpointsThreshold is the distinct-endpoints/hour level at which
	// endpoint scanning is flagged. Defaults to 10.
	NewEndpointsThreshold int `yaml:"new_endpoints_threshold" mapstructure:"new_endpoints_threshold" validate:"omitempty,min=1"`

	// ThreatBlockScore rejects requests scoring at or above it.
	// Defaults to 20.
	ThreatBlockScore float64 `yaml:"threat_block_score" mapstructure:"threat_block_score" validate:"omitempty,gt=0"`

	// SignatureFreshness is the maximum clock drift accepted on signed
	// requests, in either direction (e.g., "300s"). Defaults to "300s".
	SignatureFreshness string `yaml:"signature_freshness" mapstructure:"signature_freshness" validate:"omitempty,duration"`

	// BypassPaths are liveness paths that skip the pipeline on GET.
	// Defaults to ["/health"].
	BypassPaths []string `yaml:"bypass_paths" mapstructure:"bypass_paths"`

	// PublicEndpoints are paths exempt from the authentication requirement.
	// Threat scoring still applies. Defaults to ["/health", "/status"].
	PublicEndpoints []string `yaml:"public_endpoints" mapstructure:"public_endpoints"`

	// CleanupInterval is how often expired sessions are swept (e.g., "300s").
	// Defaults to "300s".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// CustomRules are operator-defined CEL scoring rules, evaluated on
	// every request in addition to the built-in pattern categories.
	CustomRules []RuleConfig `yaml:"custom_rules" mapstructure:"custom_rules" validate:"omitempty,dive"`
}

// RuleConfig defines a single custom threat scoring rule.
type RuleConfig struct {
	// Name identifies the rule in threat flags and logs.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Expression is a CEL expression over path, method, client_ip,
	// user_agent (strings) and headers (map of string to string).
	Expression string `yaml:"expression" mapstructure:"expression" validate:"required"`

	// Score is added to the threat score when the expression matches.
	Score float64 `yaml:"score" mapstructure:"score" validate:"required,gt=0"`
}

// RateLimitConfig configures the per-IP rate limiter.
type RateLimitConfig struct {
	// Enabled turns per-IP rate limiting on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// IPRate is the sustained requests per period per IP address.
	// Defaults to 100 if rate limiting is enabled.
	IPRate int `yaml:"ip_rate" mapstructure:"ip_rate" validate:"omitempty,min=1"`

	// IPBurst is the burst capacity above the sustained rate.
	// Defaults to 20.
	IPBurst int `yaml:"ip_burst" mapstructure:"ip_burst" validate:"omitempty,min=1"`

	// IPPeriod is the window the sustained rate is measured over (e.g., "1m").
	// Defaults to "1m".
	IPPeriod string `yaml:"ip_period" mapstructure:"ip_period" validate:"omitempty,duration"`

	// CleanupInterval is how often stale limiter entries are removed (e.g., "5m").
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is the maximum age of a limiter entry before removal (e.g., "1h").
	// Defaults to "1h".
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// AuditConfig configures audit event output.
type AuditConfig struct {
	// Output specifies where audit events are written.
	// Valid values: "slog", "file://<absolute-dir>", or
	// "sqlite://<absolute-path>". Defaults to "slog".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// QueueSize is the buffer size for asynchronous sinks. Events beyond
	// it are dropped, never blocking the request path.
	// Defaults to 1024 if not specified or 0.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size" validate:"omitempty,min=1"`

	// RetentionDays is the number of days file-based audit logs are kept.
	// Only used with "file://" output. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
}

// AuthConfig configures seeded credentials.
type AuthConfig struct {
	// APIKeys defines the API key records loaded at startup.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`

	// SigningKeys defines the HMAC signing secrets by key ID.
	SigningKeys []SigningKeyConfig `yaml:"signing_keys" mapstructure:"signing_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines a seeded API key record. Only the hash is stored;
// the raw key never appears in configuration.
type APIKeyConfig struct {
	// ID is the unique identifier for this key record.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Name is the human-readable name for this key.
	Name string `yaml:"name" mapstructure:"name"`

	// UserID is the identity this key authenticates as.
	UserID string `yaml:"user_id" mapstructure:"user_id" validate:"required"`

	// KeyHash is the hash of the API key: "sha256:<hex>" or an argon2id
	// PHC string ("$argon2id$..."). Generate with the hash-key command.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`

	// Permissions lists the permissions granted to this key.
	// "*" grants everything.
	Permissions []string `yaml:"permissions" mapstructure:"permissions"`

	// RateLimit is the maximum requests per hour for this key.
	// 0 means unlimited.
	RateLimit int `yaml:"rate_limit" mapstructure:"rate_limit" validate:"omitempty,min=0"`

	// AllowedIPs restricts the key to these client addresses.
	// Empty means any address.
	AllowedIPs []string `yaml:"allowed_ips" mapstructure:"allowed_ips" validate:"omitempty,dive,ip"`

	// ExpiresAt is an optional RFC 3339 expiry timestamp.
	ExpiresAt string `yaml:"expires_at" mapstructure:"expires_at" validate:"omitempty,rfc3339"`
}

// SigningKeyConfig defines an HMAC signing secret. Secrets are compared,
// never logged.
type SigningKeyConfig struct {
	// ID is the key identifier clients send in X-Key-Id.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Secret is the shared HMAC secret.
	Secret string `yaml:"secret" mapstructure:"secret" validate:"required,min=16"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Security.SessionTimeout == "" {
		c.Security.SessionTimeout = "24h"
	}
	if c.Security.IdleTimeout == "" {
		c.Security.IdleTimeout = "2h"
	}
	if c.Security.MaxSessionsPerUser == 0 {
		c.Security.MaxSessionsPerUser = 5
	}
	if c.Security.RequestFrequencyThreshold == 0 {
		c.Security.RequestFrequencyThreshold = 100
	}
	if c.Security.NewEndpointsThreshold == 0 {
		c.Security.NewEndpointsThreshold = 10
	}
	if c.Security.ThreatBlockScore == 0 {
		c.Security.ThreatBlockScore = 20.0
	}
	if c.Security.SignatureFreshness == "" {
		c.Security.SignatureFreshness = "300s"
	}
	if c.Security.BypassPaths == nil {
		c.Security.BypassPaths = []string{"/health"}
	}
	if c.Security.PublicEndpoints == nil {
		c.Security.PublicEndpoints = []string{"/health", "/status"}
	}
	if c.Security.CleanupInterval == "" {
		c.Security.CleanupInterval = "300s"
	}

	// Rate limiting is on unless the config turns it off.
	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.IPRate == 0 {
		c.RateLimit.IPRate = 100
	}
	if c.RateLimit.IPBurst == 0 {
		c.RateLimit.IPBurst = 20
	}
	if c.RateLimit.IPPeriod == "" {
		c.RateLimit.IPPeriod = "1m"
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "slog"
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1024
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
}

// Duration parses a duration config field that already passed validation.
// The fallback covers fields left empty by a caller that skipped defaults.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
