package services

import (
	"errors"
	"strings"
)

var (
	// ErrForbidden is returned when the caller is authenticated but lacks
	// the role an operation requires.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials is returned for any failed login, whether the
	// email is unknown or the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStorageDisabled is returned by cover operations when no object
	// storage backend is configured.
	ErrStorageDisabled = errors.New("object storage is not configured")

	// ErrNoCover is returned when a book has no uploaded cover.
	ErrNoCover = errors.New("book has no cover")
)

// ValidationError reports malformed input. Messages are safe to show to
// clients.
type ValidationError struct {
	Messages []string
}

func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// IsValidationError reports whether err is or wraps a *ValidationError and
// returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
