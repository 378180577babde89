package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// assistant-gateway.yaml/.yml. The search requires an explicit YAML
// extension so the binary itself (same base name, no extension) is never
// matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("assistant-gateway")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ASSISTANT_GATEWAY_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("ASSISTANT_GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an assistant-gateway
// config file with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".assistant-gateway"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "assistant-gateway"))
		}
	} else {
		paths = append(paths, "/etc/assistant-gateway")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// assistant-gateway.yaml or .yml. Returns the full path of the first
// match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "assistant-gateway"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds scalar config keys for environment variable
// support. Example: ASSISTANT_GATEWAY_SERVER_HTTP_ADDR overrides
// server.http_addr. Array-valued keys (custom_rules, api_keys,
// signing_keys, public_endpoints) must come from the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.dev_mode")

	_ = viper.BindEnv("security.session_timeout")
	_ = viper.BindEnv("security.idle_timeout")
	_ = viper.BindEnv("security.max_sessions_per_user")
	_ = viper.BindEnv("security.request_frequency_threshold")
	_ = viper.BindEnv("security.new_endpoints_threshold")
	_ = viper.BindEnv("security.threat_block_score")
	_ = viper.BindEnv("security.signature_freshness")
	_ = viper.BindEnv("security.cleanup_interval")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.ip_rate")
	_ = viper.BindEnv("rate_limit.ip_burst")
	_ = viper.BindEnv("rate_limit.ip_period")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.queue_size")
	_ = viper.BindEnv("audit.retention_days")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT validate. Use this when CLI flags may override fields before
// validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
