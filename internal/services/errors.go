package services

import "errors"

// ErrNotFound covers both resources that do not exist and resources owned by
// someone else. Callers must not be able to tell the two apart.
var ErrNotFound = errors.New("resource not found")

// ErrConflict signals a uniqueness violation, e.g. duplicate student email
var ErrConflict = errors.New("resource already exists")

// InvalidRequestError maps an upstream or validation failure to a response
// the caller can act on. The upstream message is preserved, not hidden
// behind a generic string.
type InvalidRequestError struct {
	Message string
	Err     error
}

func (e *InvalidRequestError) Error() string { return e.Message }

func (e *InvalidRequestError) Unwrap() error { return e.Err }

// NewInvalidRequest wraps err as a caller-facing invalid request
func NewInvalidRequest(message string, err error) *InvalidRequestError {
	return &InvalidRequestError{Message: message, Err: err}
}
