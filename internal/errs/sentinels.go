// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an authenticated caller lacks the required grant.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument indicates the request failed validation before any write.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrPersistence indicates the underlying store failed; the cause is wrapped alongside.
	ErrPersistence = errors.New("persistence error")
)

// Invalid wraps ErrInvalidArgument with a human readable reason.
func Invalid(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return "validation: " + e.msg }
func (e *invalidError) Unwrap() error { return ErrInvalidArgument }
