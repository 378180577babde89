package config

import (
	"strings"
	"testing"
)

func TestValidateAuditOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		output string
		valid  bool
	}{
		{"slog", true},
		{"file:///var/log/gateway", true},
		{"sqlite:///var/lib/gateway/audit.db", true},
		{"file://relative", false},
		{"sqlite://", false},
		{"stdout", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			cfg.Audit.Output = tt.output

			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("output %q rejected: %v", tt.output, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("output %q accepted, want rejection", tt.output)
			}
		})
	}
}

func TestValidateKeyHash(t *testing.T) {
	t.Parallel()

	sha := "sha256:" + strings.Repeat("a", 64)
	tests := []struct {
		name  string
		hash  string
		valid bool
	}{
		{"sha256", sha, true},
		{"argon2id", "$argon2id$v=19$m=48128,t=1,p=1$c2FsdA$aGFzaA", true},
		{"sha256 wrong length", "sha256:abc", false},
		{"bare hex", strings.Repeat("a", 64), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			cfg.Auth.APIKeys = []APIKeyConfig{{ID: "k1", UserID: "u1", KeyHash: tt.hash}}

			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("hash %q rejected: %v", tt.hash, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("hash %q accepted, want rejection", tt.hash)
			}
		})
	}
}

func TestValidateAllowedIPs(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	cfg.Auth.APIKeys = []APIKeyConfig{{
		ID:         "k1",
		UserID:     "u1",
		KeyHash:    "sha256:" + strings.Repeat("a", 64),
		AllowedIPs: []string{"10.0.0.1", "not-an-ip"},
	}}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "IP") {
		t.Errorf("Validate() = %v, want IP validation error", err)
	}
}

func TestValidateExpiresAt(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	cfg.Auth.APIKeys = []APIKeyConfig{{
		ID:        "k1",
		UserID:    "u1",
		KeyHash:   "sha256:" + strings.Repeat("a", 64),
		ExpiresAt: "2027-01-02T15:04:05Z",
	}}

	if err := cfg.Validate(); err != nil {
		t.Errorf("RFC 3339 expiry rejected: %v", err)
	}

	cfg.Auth.APIKeys[0].ExpiresAt = "tomorrow"
	if err := cfg.Validate(); err == nil {
		t.Error("bad expiry accepted, want rejection")
	}
}
