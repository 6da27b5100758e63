package config

import (
	"fmt"
	"strings"

	"github.com/kubilitics/aicli/internal/ai"
	"github.com/kubilitics/aicli/internal/logging"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate reports every problem found. An unknown roles.default_role is
// allowed: it simply grants nothing.
func (c *Config) Validate() []error {
	var errs []error
	if !ai.Supported(c.AI.Provider) {
		errs = append(errs, &ValidationError{
			Field:   "ai.provider",
			Message: fmt.Sprintf("unsupported provider %q (supported: %s)", c.AI.Provider, strings.Join(ai.Providers(), ", ")),
		})
	}
	if c.AI.Timeout < 0 {
		errs = append(errs, &ValidationError{Field: "ai.timeout", Message: "must not be negative"})
	}
	if c.Exec.Timeout < 0 {
		errs = append(errs, &ValidationError{Field: "exec.timeout", Message: "must not be negative"})
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, &ValidationError{Field: "user", Message: "must not be empty"})
	}
	for role, perms := range c.Roles.Permissions {
		if strings.TrimSpace(role) == "" {
			errs = append(errs, &ValidationError{Field: "roles.permissions", Message: "role name must not be empty"})
		}
		for _, p := range perms {
			if strings.TrimSpace(p) == "" {
				errs = append(errs, &ValidationError{Field: "roles.permissions." + role, Message: "permission token must not be empty"})
			}
		}
	}
	return errs
}

// ValidationErr joins Validate's findings into one error, or nil.
func (c *Config) ValidationErr() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
