package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrStorage               = errors.New("document storage failed")
	ErrTransactionPINNotSet  = errors.New("transaction pin not set")
	ErrInvalidTransactionPIN = errors.New("invalid transaction pin")
	ErrTransactionPINLocked  = errors.New("transaction pin temporarily locked")
	ErrRateLimited           = errors.New("rate limit exceeded")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
