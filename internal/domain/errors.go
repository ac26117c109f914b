package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrNoResponse means the classifier did not answer within the allowed wait.
	ErrNoResponse = errors.New("classifier did not respond")
	// ErrUpstream means a collaborator answered with an error.
	ErrUpstream = errors.New("upstream rejected the request")

	ErrMailNotConfigured = errors.New("email service is not configured")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
