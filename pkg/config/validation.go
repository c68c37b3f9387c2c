package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Reactor.Port == 0 || cfg.Reactor.Port < -1 {
		return fmt.Errorf("reactor.port: must be between 1 and 65535, or -1 for an ephemeral port")
	}

	if cfg.Reactor.AcceptBurst > 0 && cfg.Reactor.AcceptRate == 0 {
		return fmt.Errorf("reactor.accept_burst: requires accept_rate to be set")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Reactor.Port &&
		sameBindAddress(cfg.Server.Metrics.Address, cfg.Reactor.Address) {
		return fmt.Errorf("server.metrics.port: %d conflicts with reactor.port", cfg.Server.Metrics.Port)
	}

	if cfg.Store.Type == "s3" {
		if bucket, _ := cfg.Store.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("store.s3.bucket: required when store.type is s3")
		}
	}

	return nil
}

// sameBindAddress reports whether two listen addresses can collide on the
// same port. Wildcard addresses collide with everything.
func sameBindAddress(a, b string) bool {
	wildcard := func(s string) bool {
		if s == "" {
			return true
		}
		ip := net.ParseIP(s)
		return ip != nil && ip.IsUnspecified()
	}
	return wildcard(a) || wildcard(b) || a == b
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
