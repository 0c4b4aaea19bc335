package config

import (
	"errors"
	"fmt"
)

// Load and validation failures wrap one of these.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// FieldError names the setting that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidConfig }

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
