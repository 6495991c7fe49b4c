package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	Field   string
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var validTriState = map[string]bool{"": true, "yes": true, "no": true}
var validIPResolve = map[string]bool{"whatever": true, "ipv4": true, "ipv6": true}
var validLogLevel = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormat = map[string]bool{"text": true, "json": true}

// Validate validates the entire configuration, returning a ValidationError
// collecting every field that failed.
func Validate(cfg *Config) error {
	var errs []FieldError

	if cfg.Target.Root == "" {
		errs = append(errs, FieldError{"target.root", "must not be empty"})
	}

	if !validTriState[strings.ToLower(cfg.Signature.GPGCheck)] {
		errs = append(errs, FieldError{"signature.gpg_check", "must be \"yes\", \"no\", or empty"})
	}
	if !validTriState[strings.ToLower(cfg.Signature.RepoGPGCheck)] {
		errs = append(errs, FieldError{"signature.repo_gpg_check", "must be \"yes\", \"no\", or empty"})
	}
	if !validTriState[strings.ToLower(cfg.Signature.PkgGPGCheck)] {
		errs = append(errs, FieldError{"signature.pkg_gpg_check", "must be \"yes\", \"no\", or empty"})
	}

	if cfg.Media.Timeout < 0 {
		errs = append(errs, FieldError{"media.timeout", "must not be negative"})
	}
	if cfg.Media.MaxRetries < 0 {
		errs = append(errs, FieldError{"media.max_retries", "must not be negative"})
	}
	if !validIPResolve[strings.ToLower(cfg.Media.IPResolve)] {
		errs = append(errs, FieldError{"media.ip_resolve", "must be \"whatever\", \"ipv4\", or \"ipv6\""})
	}

	if !validLogLevel[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{"logging.level", "must be one of debug, info, warn, error"})
	}
	if !validLogFormat[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{"logging.format", "must be \"text\" or \"json\""})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
