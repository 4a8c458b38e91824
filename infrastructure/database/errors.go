// Package database provides shared repository error types and row-level
// validation helpers used by every tenant-scoped Postgres repository.
package database

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error sentinels returned by repository implementations.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
)

// NotFoundError wraps ErrNotFound with the entity and key that were looked up.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err is or wraps ErrAlreadyExists.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// ValidateID rejects empty or over-long identifiers before they reach a query.
func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: %s too long", ErrInvalidInput, field)
	}
	return nil
}

// SanitizeString strips control characters (except tab/newline/CR) and trims
// surrounding whitespace before a value is persisted.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
