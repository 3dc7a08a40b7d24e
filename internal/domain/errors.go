// Package domain provides the session-layer types and error taxonomy shared by
// the credential, issuer, gateway and session packages.
package domain

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of domain error
type ErrorType string

const (
	// InvalidCredentialsError represents a login rejected by the issuer
	InvalidCredentialsError ErrorType = "INVALID_CREDENTIALS"
	// SessionExpiredError represents an access credential that could not be renewed
	SessionExpiredError ErrorType = "SESSION_EXPIRED"
	// TransientNetworkError represents a network-level failure (DNS, refused, timeout)
	TransientNetworkError ErrorType = "TRANSIENT_NETWORK_FAILURE"
	// StorageUnavailableError represents an inaccessible durable medium.
	// Stores log it and report "absent"; it is never returned to callers.
	StorageUnavailableError ErrorType = "STORAGE_UNAVAILABLE"
	// InternalError represents malformed responses and other unexpected failures
	InternalError ErrorType = "INTERNAL_ERROR"
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewInvalidCredentialsError creates a new invalid credentials error
func NewInvalidCredentialsError(status int) *DomainError {
	return &DomainError{
		Type:    InvalidCredentialsError,
		Code:    "INVALID_CREDENTIALS",
		Message: "Invalid credentials",
		Status:  status,
	}
}

// NewSessionExpiredError creates a new session expired error
func NewSessionExpiredError(code, message string, status int) *DomainError {
	return &DomainError{
		Type:    SessionExpiredError,
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// NewTransientNetworkError creates a new network failure error
func NewTransientNetworkError(code, message string, cause error) *DomainError {
	return &DomainError{
		Type:    TransientNetworkError,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewStorageUnavailableError creates a new storage error
func NewStorageUnavailableError(code, message string, cause error) *DomainError {
	return &DomainError{
		Type:    StorageUnavailableError,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *DomainError {
	return &DomainError{
		Type:    InternalError,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsType reports whether err wraps a DomainError of type t.
func IsType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsInvalidCredentials reports whether err is a rejected login.
func IsInvalidCredentials(err error) bool {
	return IsType(err, InvalidCredentialsError)
}

// IsSessionExpired reports whether err is an unrecoverable credential failure.
func IsSessionExpired(err error) bool {
	return IsType(err, SessionExpiredError)
}

// IsTransientNetwork reports whether err is a network-level failure.
func IsTransientNetwork(err error) bool {
	return IsType(err, TransientNetworkError)
}
