package config

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tag constraints plus a few cross-field rules
// that `validate` tags can't express cleanly.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation: %w", err)
	}

	if cfg.Ingest.AuditURL == "" {
		return fmt.Errorf("ingest.audit_url must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Ingest.AuditURL); err != nil {
		return fmt.Errorf("ingest.audit_url is not a valid URL: %w", err)
	}
	if cfg.Markov.Alpha <= 0 {
		return fmt.Errorf("markov.alpha must be > 0, got %v", cfg.Markov.Alpha)
	}
	if cfg.Database.DSN != "" {
		if _, err := url.Parse(cfg.Database.DSN); err != nil {
			return fmt.Errorf("database.dsn is not a valid URL: %w", err)
		}
	}
	return nil
}
