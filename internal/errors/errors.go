// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to user-facing messages by the CLI layer.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates a resource or entry with the same identity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDoesNotExist indicates the requested resource or entry does not exist.
	ErrDoesNotExist = errors.New("does not exist")

	// ErrConflict indicates a conditional write lost against a concurrent update
	// (the optimistic-lock digest no longer matched the stored entry).
	ErrConflict = errors.New("conflict")

	// ErrIntegrity indicates tampered or inconsistent data: an encryption context
	// or key-identity mismatch on decrypt, or a backend returning rows that do not
	// satisfy the requested predicate. Never retried automatically.
	ErrIntegrity = errors.New("data integrity violation")

	// ErrUnexpectedState indicates an external resource failed to reach an expected
	// lifecycle state within the polling budget.
	ErrUnexpectedState = errors.New("unexpected resource state")

	// ErrPartialFailure indicates a multi-resource operation aborted partway and
	// manual cleanup may be required.
	ErrPartialFailure = errors.New("partial failure, manual cleanup may be required")

	// ErrTimeout indicates a bounded wait was exceeded. Sub-tasks may still be
	// running when this error is observed.
	ErrTimeout = errors.New("timed out")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
