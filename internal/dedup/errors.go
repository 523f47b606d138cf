package dedup

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContent is returned when text normalizes to nothing and cannot be signed.
	ErrNoContent = errors.New("no content")
	// ErrUnavailable is returned by the semantic tier when an embedding is missing.
	ErrUnavailable = errors.New("embedding unavailable")
	// ErrInvalidConfig matches every *ConfigError via errors.Is.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigError describes a rejected configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsNoContent reports whether err marks an unsignable document.
func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}

// IsUnavailable reports whether err marks a missing embedding.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
