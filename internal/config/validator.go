package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers gateway-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("rfc3339", validateRFC3339); err != nil {
		return fmt.Errorf("failed to register rfc3339 validator: %w", err)
	}
	return nil
}

// validateAuditOutput validates the audit output field.
// Valid values: "slog", "file://<absolute-dir>", "sqlite://<absolute-path>"
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "slog" {
		return true
	}

	for _, scheme := range []string{"file://", "sqlite://"} {
		if strings.HasPrefix(output, scheme) {
			path := strings.TrimPrefix(output, scheme)
			return path != "" && filepath.IsAbs(path)
		}
	}

	return false
}

// validateKeyHash accepts "sha256:<64 hex>" or an argon2id PHC string.
func validateKeyHash(fl validator.FieldLevel) bool {
	hash := fl.Field().String()

	if strings.HasPrefix(hash, "sha256:") {
		return len(strings.TrimPrefix(hash, "sha256:")) == 64
	}
	return strings.HasPrefix(hash, "$argon2id$")
}

// validateDuration accepts any positive time.ParseDuration string.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateRFC3339 accepts an RFC 3339 timestamp.
func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339, fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateUniqueKeyIDs(); err != nil {
		return err
	}

	return nil
}

// validateUniqueKeyIDs ensures API key and signing key IDs are unique.
func (c *Config) validateUniqueKeyIDs() error {
	seen := make(map[string]struct{}, len(c.Auth.APIKeys))
	for i, key := range c.Auth.APIKeys {
		if _, dup := seen[key.ID]; dup {
			return fmt.Errorf("api_keys[%d]: duplicate id: %s", i, key.ID)
		}
		seen[key.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(c.Auth.SigningKeys))
	for i, key := range c.Auth.SigningKeys {
		if _, dup := seen[key.ID]; dup {
			return fmt.Errorf("signing_keys[%d]: duplicate id: %s", i, key.ID)
		}
		seen[key.ID] = struct{}{}
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "ip":
		return fmt.Sprintf("%s must be a valid IP address", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration (e.g., \"5m\")", field)
	case "rfc3339":
		return fmt.Sprintf("%s must be an RFC 3339 timestamp", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'slog', 'file://<absolute-dir>', or 'sqlite://<absolute-path>'", field)
	case "key_hash":
		return fmt.Sprintf("%s must be 'sha256:<hex>' or an argon2id hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
