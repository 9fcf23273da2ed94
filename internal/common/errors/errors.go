// Package errors provides standardized error handling for the dispatch engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeResolutionFailed       ErrorCode = "RESOLUTION_FAILED"
	ErrCodePreferenceLookupFailed ErrorCode = "PREFERENCE_LOOKUP_FAILED"
	ErrCodeDeliveryTransient      ErrorCode = "DELIVERY_TRANSIENT"
	ErrCodeDeliveryPermanent      ErrorCode = "DELIVERY_PERMANENT"
	ErrCodeMalformedEvent         ErrorCode = "MALFORMED_EVENT"
	ErrCodeStoreFailed            ErrorCode = "STORE_FAILED"
	ErrCodeChannelUnavailable     ErrorCode = "CHANNEL_UNAVAILABLE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewResolutionFailedError creates a non-retryable resolution error.
// Resolution errors are recovered locally; other recipients are unaffected.
func NewResolutionFailedError(entityType, entityID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResolutionFailed,
		Message:   "Recipient resolution failed",
		Details:   fmt.Sprintf("entityType: %s, entityId: %s", entityType, entityID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreferenceLookupFailedError creates a non-retryable preference error.
// Callers treat it as "no restriction" and default-allow.
func NewPreferenceLookupFailedError(recipientID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePreferenceLookupFailed,
		Message:   "Recipient preference lookup failed",
		Details:   fmt.Sprintf("recipientId: %s, error: %s", recipientID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransientDeliveryError creates a retryable delivery error
// (channel timeout, throttling, 5xx).
func NewTransientDeliveryError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryTransient,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermanentDeliveryError creates a non-retryable delivery error
// (invalid address or number). The retry loop short-circuits to terminal
// FAILED without exhausting the retry budget.
func NewPermanentDeliveryError(channel, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryPermanent,
		Message:   "Notification rejected by channel",
		Details:   fmt.Sprintf("channel: %s, reason: %s", channel, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedEventError creates a non-retryable ingestion error. The event
// is rejected before any record is created.
func NewMalformedEventError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedEvent,
		Message:   "Event payload validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreError creates a retryable notification store error.
func NewStoreError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFailed,
		Message:   "Notification store operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnavailableError creates a retryable error for a channel with no
// registered sender.
func NewChannelUnavailableError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelUnavailable,
		Message:   "No sender registered for channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// AsStandard extracts a StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsPermanentDelivery reports whether the error is a permanent delivery
// failure that must not be retried.
func IsPermanentDelivery(err error) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code == ErrCodeDeliveryPermanent
	}
	return false
}

// IsRetryable reports whether the error is worth retrying. Errors outside
// the standard taxonomy are treated as transient.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Retryable
	}
	return true
}
