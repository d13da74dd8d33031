// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("hourly request budget exhausted")
	ErrInvalidTransition = errors.New("invalid alert status transition")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrEmailDisabled     = errors.New("email notifications are disabled")
	ErrInputValidation   = errors.New("input validation failed")
	ErrAlertLimit        = errors.New("alert limit reached")
)

// NetworkError represents a connect or timeout failure talking to an upstream.
type NetworkError struct {
	Source string
	Symbol string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error [%s] %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new NetworkError.
func NewNetworkError(source, symbol string, err error) *NetworkError {
	return &NetworkError{Source: source, Symbol: symbol, Err: err}
}

// UpstreamError represents an explicit error payload, a bad HTTP status or an
// incomplete schema returned by an upstream.
type UpstreamError struct {
	Source  string
	Symbol  string
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error [%s] %s: %s - %s", e.Source, e.Symbol, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream error [%s] %s: %s", e.Source, e.Symbol, e.Message)
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(source, symbol, code, message string) *UpstreamError {
	return &UpstreamError{Source: source, Symbol: symbol, Code: code, Message: message}
}

// ParseError represents a text reply that did not match the expected layout.
type ParseError struct {
	Source string
	Symbol string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error [%s] %s: %s: %v", e.Source, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error [%s] %s: %s", e.Source, e.Symbol, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(source, symbol, reason string, err error) *ParseError {
	return &ParseError{Source: source, Symbol: symbol, Reason: reason, Err: err}
}

// PersistenceError represents a failed storage operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s]: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// NotificationError represents a failed dispatch on one channel.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification error [%s]: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new NotificationError.
func NewNotificationError(channel string, err error) *NotificationError {
	return &NotificationError{Channel: channel, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsRetryable reports whether err is a transient fetch failure that the
// retry controller should attempt again.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	var upErr *UpstreamError
	var parseErr *ParseError
	return errors.As(err, &netErr) || errors.As(err, &upErr) || errors.As(err, &parseErr)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
