// config_validation.go - Configuration validation for the spool daemon.
//
// Validates the assembled configuration at startup to fail fast with clear
// error messages rather than runtime failures.
package server

import (
	"fmt"
	"mime"
	"net"
	"strconv"
	"strings"
)

// ConfigValidationError represents a configuration validation error.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ConfigValidator collects validation errors.
type ConfigValidator struct {
	errors []ConfigValidationError
}

// NewConfigValidator creates a new configuration validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		errors: make([]ConfigValidationError, 0),
	}
}

// AddError adds a validation error.
func (v *ConfigValidator) AddError(field, message string) {
	v.errors = append(v.errors, ConfigValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors.
func (v *ConfigValidator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *ConfigValidator) Errors() []ConfigValidationError {
	return v.errors
}

// ErrorString returns a formatted string of all errors.
func (v *ConfigValidator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidateRequired validates that a required value is set.
func (v *ConfigValidator) ValidateRequired(key, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(key, "required value not set")
	}
}

// ValidateAddr validates a "host:port" listen address.
func (v *ConfigValidator) ValidateAddr(key, value string) {
	if value == "" {
		return
	}

	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("must be host:port: %v", err))
		return
	}
	if port == "" {
		v.AddError(key, "missing port")
		return
	}
	v.ValidatePort(key, port)
}

// ValidatePort validates that a value is a valid port number.
func (v *ConfigValidator) ValidatePort(key, value string) {
	if value == "" {
		return
	}

	// Handle ":port" format
	portStr := strings.TrimPrefix(value, ":")

	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}

	// 0 asks the kernel for a free port.
	if port < 0 || port > 65535 {
		v.AddError(key, "port must be between 0 and 65535")
	}
}

// ValidateMinLength validates minimum string length.
func (v *ConfigValidator) ValidateMinLength(key, value string, minLen int) {
	if value == "" {
		return
	}

	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}

// ValidateEnum validates that a value is one of allowed options.
func (v *ConfigValidator) ValidateEnum(key, value string, allowed []string) {
	if value == "" {
		return
	}

	for _, opt := range allowed {
		if strings.EqualFold(value, opt) {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidatePositiveInt validates that a value is a positive integer.
func (v *ConfigValidator) ValidatePositiveInt(key string, value int64) {
	if value <= 0 {
		v.AddError(key, "must be a positive integer")
	}
}

// ValidateNonNegativeInt validates that a value is zero or more.
func (v *ConfigValidator) ValidateNonNegativeInt(key string, value int64) {
	if value < 0 {
		v.AddError(key, "must not be negative")
	}
}

// ValidateBcryptHash validates that a value looks like a bcrypt hash.
func (v *ConfigValidator) ValidateBcryptHash(key, value string) {
	if value == "" {
		return
	}

	if !strings.HasPrefix(value, "$2a$") &&
		!strings.HasPrefix(value, "$2b$") &&
		!strings.HasPrefix(value, "$2y$") {
		v.AddError(key, "must be a valid bcrypt hash (starts with $2a$, $2b$, or $2y$)")
	}

	// Bcrypt hashes are 60 characters
	if len(value) != 60 {
		v.AddError(key, "bcrypt hash must be exactly 60 characters")
	}
}

// ValidateExtension validates a file name extension such as ".json".
func (v *ConfigValidator) ValidateExtension(key, value string) {
	if value == "" {
		return
	}
	if !strings.HasPrefix(value, ".") || len(value) < 2 {
		v.AddError(key, "must start with a dot, e.g. .json")
		return
	}
	if strings.ContainsAny(value, "/\\\x00") || strings.Contains(value, "..") {
		v.AddError(key, "must not contain path separators or ..")
	}
}

// ValidateMediaType validates a Content-Type value.
func (v *ConfigValidator) ValidateMediaType(key, value string) {
	if value == "" {
		return
	}
	if _, _, err := mime.ParseMediaType(value); err != nil {
		v.AddError(key, fmt.Sprintf("invalid media type: %v", err))
	}
}

// ValidateConfig checks cfg as a whole and returns one aggregated error.
func ValidateConfig(cfg Config) error {
	v := NewConfigValidator()

	v.ValidateRequired("addr", cfg.Addr)
	v.ValidateAddr("addr", cfg.Addr)

	v.ValidateRequired("spool-dir", cfg.Spool.Dir)
	v.ValidateExtension("extension", cfg.Spool.Extension)
	v.ValidateMediaType("content-type", cfg.Spool.ContentType)

	v.ValidatePositiveInt("max-body-bytes", cfg.MaxBodyBytes)
	v.ValidateNonNegativeInt("rate-limit", int64(cfg.RateLimit))

	policy := string(cfg.Auth.Policy)
	v.ValidateEnum("auth-policy", policy, []string{string(AuthPolicyOff), string(AuthPolicyBasic)})
	if cfg.Auth.policy() == AuthPolicyBasic {
		v.ValidateRequired("auth-user", cfg.Auth.User)
		v.ValidateRequired("auth-pass", cfg.Auth.Pass)
		if strings.HasPrefix(cfg.Auth.Pass, "$2") {
			v.ValidateBcryptHash("auth-pass", cfg.Auth.Pass)
		}
		if strings.Contains(cfg.Auth.User, ":") {
			v.AddError("auth-user", "must not contain ':'")
		}
	}
	if strings.ContainsAny(cfg.Auth.Realm, "\"\r\n") {
		v.AddError("auth-realm", "must not contain quotes or line breaks")
	}
	v.ValidateNonNegativeInt("lockout-attempts", int64(cfg.Auth.LockoutAttempts))

	v.ValidateEnum("log-level", cfg.Log.Level, []string{"debug", "info", "warn", "error"})
	v.ValidateEnum("log-format", cfg.Log.Format, []string{LogFormatText, LogFormatJSON})

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}
	return nil
}

// WarnOnRiskyConfig logs warnings for settings that work but are rarely
// what an operator wants in production.
func WarnOnRiskyConfig(cfg Config) {
	warnings := make([]string, 0)

	if cfg.Auth.policy() == AuthPolicyOff {
		warnings = append(warnings, "auth-policy is off - anyone who can reach /mails/ can read the spool")
	}
	if cfg.Auth.policy() == AuthPolicyBasic && cfg.Auth.Pass != "" && !isBcryptHash(cfg.Auth.Pass) {
		warnings = append(warnings, "auth-pass is plain text - consider a bcrypt hash")
	}
	if host, _, err := net.SplitHostPort(cfg.Addr); err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		warnings = append(warnings, "listening on all interfaces")
	}
	if !strings.EqualFold(cfg.Log.Format, LogFormatJSON) {
		warnings = append(warnings, "log-format is text - consider 'json' for production")
	}

	if len(warnings) > 0 {
		Warn("configuration warnings", map[string]any{
			"count":    len(warnings),
			"warnings": warnings,
		})
	}
}
