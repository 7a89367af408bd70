// validation.go - fail-fast checks on configuration values.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldError describes one invalid configuration value.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigError is returned when required configuration is missing or
// malformed. It is meant for the operator and never reaches clients.
type ConfigError struct {
	Errors []FieldError
}

// Missing builds a ConfigError for a single absent setting.
func Missing(field string) *ConfigError {
	return &ConfigError{Errors: []FieldError{{Field: field, Message: "required value not set"}}}
}

// Invalid builds a ConfigError for a single malformed setting.
func Invalid(field, message string) *ConfigError {
	return &ConfigError{Errors: []FieldError{{Field: field, Message: message}}}
}

func (e *ConfigError) Error() string {
	if len(e.Errors) == 1 {
		return "config: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "config: %d errors:", len(e.Errors))
	for i, fe := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, fe.Error())
	}
	return sb.String()
}

// Has reports whether field is among the offending fields.
func (e *ConfigError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// validator collects problems instead of stopping at the first one.
// Fields are reported by their environment variable name.
type validator struct {
	errors []FieldError
}

func newValidator() *validator {
	return &validator{}
}

func (v *validator) add(key, message string) {
	v.errors = append(v.errors, FieldError{Field: EnvName(key), Message: message})
}

func (v *validator) err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ConfigError{Errors: v.errors}
}

func (v *validator) required(key, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		v.add(key, "required value not set")
	}
	return value
}

func (v *validator) duration(key, raw string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		v.add(key, "must be a duration such as 30s or 5m")
		return 0
	}
	if d <= 0 {
		v.add(key, "must be positive")
	}
	return d
}

func (v *validator) parseInt(key, raw string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		v.add(key, "must be a valid integer")
		return 0, false
	}
	return n, true
}

func (v *validator) positiveInt(key, raw string) int64 {
	n, ok := v.parseInt(key, raw)
	if ok && n <= 0 {
		v.add(key, "must be a positive integer")
	}
	return n
}

func (v *validator) nonNegativeInt(key, raw string) int64 {
	n, ok := v.parseInt(key, raw)
	if ok && n < 0 {
		v.add(key, "must not be negative")
	}
	return n
}

func (v *validator) enum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.add(key, fmt.Sprintf("must be one of: %s (got: %q)", strings.Join(allowed, ", "), value))
}

// pair requires either both values or neither.
func (v *validator) pair(keyA, a, keyB, b string) {
	switch {
	case a != "" && b == "":
		v.add(keyB, fmt.Sprintf("required when %s is set", EnvName(keyA)))
	case a == "" && b != "":
		v.add(keyA, fmt.Sprintf("required when %s is set", EnvName(keyB)))
	}
}
