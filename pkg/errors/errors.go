package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies supervisor failures so callers can decide between
// aborting startup and proceeding.
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeLaunch        ErrorType = "launch"
	ErrorTypeHealthCheck   ErrorType = "health_check"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeInternal      ErrorType = "internal"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewConfigurationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConfiguration, message, cause)
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewLaunchError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeLaunch, message, cause)
}

func NewHealthCheckError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeHealthCheck, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeConfiguration
}

func IsValidationError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeValidation
}

func IsLaunchError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeLaunch
}

func IsHealthCheckError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeHealthCheck
}

func IsIOError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeIO
}

func IsInternalError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeInternal
}
