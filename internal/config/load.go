// Package config loads and validates the pubsync.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a pubsync.yaml configuration file, then fills
// defaults. Callers that allow the file to be absent should check with
// os.IsNotExist on the wrapped error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness before defaults are
// applied. Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d, only version 1 is supported", cfg.Version))
	}

	if cfg.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts cannot be negative")
	}
	if cfg.Retry.Delay != "" {
		if d, err := time.ParseDuration(cfg.Retry.Delay); err != nil {
			errs = append(errs, fmt.Sprintf("retry.delay %q is not a valid duration", cfg.Retry.Delay))
		} else if d < 0 {
			errs = append(errs, "retry.delay cannot be negative")
		}
	}

	// The identity must be complete or absent; a name without an email
	// produces commits that some hosts reject.
	if (cfg.Author.Name == "") != (cfg.Author.Email == "") {
		errs = append(errs, "author requires both 'name' and 'email'")
	}

	return errs
}
