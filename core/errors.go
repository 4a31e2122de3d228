package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// NotEligibleError means a business precondition is unmet (lessons
// incomplete, test not passed). Reason names the specific unmet condition
// for the caller; the request is not retryable until the student acts.
type NotEligibleError struct {
	Reason string
}

func NewNotEligibleError(reason string) error {
	return &NotEligibleError{Reason: reason}
}

func (err NotEligibleError) Error() string { return err.Reason }

func IsNotEligible(err error) bool {
	_, ok := errors.Cause(err).(*NotEligibleError)
	return ok
}

// ErrInvalidOTP covers both a wrong code and an expired one; the caller
// may retry by requesting a fresh code.
var ErrInvalidOTP = errors.New("invalid or expired code")

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
