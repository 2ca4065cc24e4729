package errors

import (
	stderrors "errors"
	"fmt"
)

// ValidationError represents an error when validation fails
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError represents a missing ledger entry, config client or blocked record
type NotFoundError struct {
	What     string
	Username string
}

// Error returns the error message
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.What)
}

// DuplicateEmailError is returned when an account email is already present in the proxy config
type DuplicateEmailError struct {
	Email string
}

// Error returns the error message
func (e *DuplicateEmailError) Error() string {
	return "duplicate email"
}

// MissingInboundError is returned when the proxy config has no listener for a protocol
type MissingInboundError struct {
	Protocol string
}

// Error returns the error message
func (e *MissingInboundError) Error() string {
	return fmt.Sprintf("no matching inbound found for %s", e.Protocol)
}

// ParseError is returned when a previously issued secret cannot be recovered
type ParseError struct {
	Source  string
	Message string
}

// Error returns the error message
func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse secret from %s: %s", e.Source, e.Message)
}

// InvalidRecordError represents a persisted record that exists but is unusable
type InvalidRecordError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record %s: %s", e.Path, e.Message)
}

// OSFailureError represents a failure of the service manager or journal
type OSFailureError struct {
	Operation string
	Err       error
}

// Error returns the error message
func (e *OSFailureError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *OSFailureError) Unwrap() error {
	return e.Err
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Section string
	Message string
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return stderrors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return stderrors.As(err, &target)
}

// IsParse reports whether err is or wraps a ParseError.
func IsParse(err error) bool {
	var target *ParseError
	return stderrors.As(err, &target)
}

// IsDuplicateEmail reports whether err is or wraps a DuplicateEmailError.
func IsDuplicateEmail(err error) bool {
	var target *DuplicateEmailError
	return stderrors.As(err, &target)
}

// Username extracts the account key carried by err, if any.
func Username(err error) string {
	var nf *NotFoundError
	if stderrors.As(err, &nf) {
		return nf.Username
	}
	var dup *DuplicateEmailError
	if stderrors.As(err, &dup) {
		return dup.Email
	}
	return ""
}
