package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrTransferNotFound = errors.New("transfer not found")
	ErrSessionClosed    = errors.New("session manager is closed")
	ErrInvalidURL       = errors.New("invalid download url")
	ErrUnavailable      = errors.New("download manager unavailable")

	// Start input errors
	ErrNilReply   = errors.New("network reply cannot be nil")
	ErrNilRequest = errors.New("network request cannot be nil")

	// Transfer state errors
	ErrAlreadyRunning         = errors.New("transfer is already running")
	ErrNotRunning             = errors.New("transfer is not running")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Page host errors
	ErrHostClosed  = errors.New("page host is closed")
	ErrNilCallback = errors.New("callback cannot be nil")
)

// Reasons reported by UnhandledEventError
const (
	ReasonUnknownKind      = "unknown_kind"
	ReasonTransferNotFound = "transfer_not_found"
)

// UnhandledEventError describes a lifecycle event the adapter could not act on.
// The event is dropped; the error only exists for logging and metrics.
type UnhandledEventError struct {
	Event  LifecycleEvent
	Reason string
	Err    error
}

// Error returns the error message
func (e *UnhandledEventError) Error() string {
	msg := fmt.Sprintf("unhandled %s event for transfer %d", e.Event.Kind, e.Event.TransferID)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *UnhandledEventError) Unwrap() error {
	return e.Err
}

// NewUnhandledEventError creates a new unhandled event error
func NewUnhandledEventError(ev LifecycleEvent, reason string, err error) *UnhandledEventError {
	return &UnhandledEventError{Event: ev, Reason: reason, Err: err}
}

// IsUnhandled returns true if err is or wraps an UnhandledEventError
func IsUnhandled(err error) bool {
	var ue *UnhandledEventError
	return errors.As(err, &ue)
}

// TransferError is a transfer failure classified into the network error vocabulary.
type TransferError struct {
	Code NetworkError
	Err  error
}

// Error returns the error message
func (e *TransferError) Error() string {
	if e.Err != nil {
		return e.Code.String() + ": " + e.Err.Error()
	}
	return e.Code.String()
}

// Unwrap returns the underlying error
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new transfer error
func NewTransferError(code NetworkError, err error) *TransferError {
	return &TransferError{Code: code, Err: err}
}

// ErrorCode extracts the network error code carried by err.
// Errors that carry no code classify as UnknownNetworkError; nil is NoError.
func ErrorCode(err error) NetworkError {
	if err == nil {
		return NoError
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Code
	}
	return UnknownNetworkError
}
