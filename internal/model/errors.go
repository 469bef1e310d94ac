package model

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a dispatch job id is unknown.
	ErrJobNotFound = errors.New("dispatch job not found")

	// ErrProviderNotFound is returned when a provider id is unknown.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrServiceNotFound is returned when a service id is not in the catalog.
	ErrServiceNotFound = errors.New("service not found")
)

// ValidationError reports malformed input: a bad coordinate, an unknown
// service, a negative distance, an out-of-range rating.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PolicyUnavailableError is returned when a collaborator (catalog,
// provider directory, commission policy) cannot be reached. The caller
// decides whether to retry; no default is substituted.
type PolicyUnavailableError struct {
	Policy string
	Err    error
}

func (e *PolicyUnavailableError) Error() string {
	return fmt.Sprintf("policy %q unavailable: %v", e.Policy, e.Err)
}

func (e *PolicyUnavailableError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPolicyUnavailable reports whether err is (or wraps) a PolicyUnavailableError.
func IsPolicyUnavailable(err error) bool {
	var pe *PolicyUnavailableError
	return errors.As(err, &pe)
}
