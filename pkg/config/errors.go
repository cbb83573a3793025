package config

import "fmt"

// ConfigError reports a problem with a single configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func errRequired(field string) error {
	return &ConfigError{Field: field, Reason: "is required"}
}

func errInvalid(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}
