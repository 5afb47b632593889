package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Agent/role registration errors (catalog, lifecycle bookkeeping)
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentNotReady      = errors.New("agent not ready")
	ErrAgentAlreadyExists = errors.New("agent already exists")

	// Capability-related errors
	ErrCapabilityNotFound   = errors.New("capability not found")
	ErrCapabilityNotEnabled = errors.New("capability not enabled")

	// Discovery-related errors
	ErrServiceNotFound      = errors.New("service not found")
	ErrDiscoveryUnavailable = errors.New("discovery service unavailable")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// State errors
	ErrAlreadyStarted    = errors.New("already started")
	ErrNotInitialized    = errors.New("not initialized")
	ErrAlreadyRegistered = errors.New("already registered")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")

	// Resilience errors
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// ErrorKind classifies every error a provider adapter, router, manager
// or collaboration coordinator can surface to a caller. A TaskResult or
// CollaborationResult that failed always carries one of these, never a
// bare error string, so downstream retry/fallback logic can switch on
// it instead of parsing messages.
type ErrorKind string

const (
	ErrKindAPIKeyMissing    ErrorKind = "api_key_missing"
	ErrKindAPIKeyInvalid    ErrorKind = "api_key_invalid"
	ErrKindRateLimited      ErrorKind = "rate_limited"
	ErrKindHTTPError        ErrorKind = "http_error"
	ErrKindTimeout          ErrorKind = "timeout"
	ErrKindEmptyResponse    ErrorKind = "empty_response"
	ErrKindValidationError  ErrorKind = "validation_error"
	ErrKindModelUnavailable ErrorKind = "model_unavailable"
	ErrKindNoModelAvailable ErrorKind = "no_model_available"
	ErrKindBudgetExceeded   ErrorKind = "budget_exceeded"
	ErrKindSystemOverload   ErrorKind = "system_overload"
	ErrKindCancelled        ErrorKind = "cancelled"
	ErrKindInternalError    ErrorKind = "internal_error"
)

// retryableKinds holds every ErrorKind whose calling task may be retried
// against the fallback chain. Everything absent from this set is
// terminal: api_key_missing, validation_error, no_model_available,
// budget_exceeded and cancelled all stop the retry loop immediately.
var retryableKinds = map[ErrorKind]bool{
	ErrKindRateLimited:      true,
	ErrKindHTTPError:        true,
	ErrKindTimeout:          true,
	ErrKindEmptyResponse:    true,
	ErrKindModelUnavailable: true,
	ErrKindSystemOverload:   true,
}

// KindError pairs an ErrorKind with the underlying error it was
// classified from, so callers get both the taxonomy value and the
// original message/stack via Unwrap.
type KindError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *KindError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// NewKindError wraps err under the given ErrorKind.
func NewKindError(kind ErrorKind, message string, err error) *KindError {
	return &KindError{Kind: kind, Message: message, Err: err}
}

// ClassifyError extracts the ErrorKind from err, defaulting to
// internal_error for anything that was never tagged. Used at every
// component boundary that returns a TaskResult or CollaborationResult.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return ErrKindTimeout
	case errors.Is(err, ErrContextCanceled):
		return ErrKindCancelled
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, ErrMissingConfiguration):
		return ErrKindValidationError
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrRequestFailed):
		return ErrKindHTTPError
	default:
		return ErrKindInternalError
	}
}

// IsRetryableKind reports whether a task that failed with this
// ErrorKind may be retried against the fallback chain, per spec's
// retry policy (exponential backoff 1s/2s/4s, 3 attempts max).
func IsRetryableKind(kind ErrorKind) bool {
	return retryableKinds[kind]
}

// FrameworkError provides structured error information with context
// It implements the error interface and supports error wrapping
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "discovery.Register")
	Kind    string // Error kind (e.g., "agent", "discovery", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient network or availability issues.
// A KindError defers to IsRetryableKind; anything else falls back to the
// legacy sentinel check.
func IsRetryable(err error) bool {
	var ke *KindError
	if errors.As(err, &ke) {
		return IsRetryableKind(ke.Kind)
	}
	return errors.Is(err, ErrDiscoveryUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrServiceNotFound)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrCapabilityNotFound) ||
		errors.Is(err, ErrServiceNotFound)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsStateError checks if an error is related to invalid state transitions
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrAgentNotReady)
}