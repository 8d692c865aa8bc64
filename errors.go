// Package bcp implements the Block Communication Protocol: a reliable
// datagram transport layered over an unreliable, MTU-limited packet
// medium such as BLE GATT.
package bcp

import (
	"errors"
	"fmt"
)

// Error represents a structured BCP error with session context.
type Error struct {
	Op    string    // Operation that failed ("Create", "Open", "Send", "Input")
	Tag   string    // Session tag/name, empty if not applicable
	FSN   int       // FSN involved, -1 if not applicable
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Tag != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.Tag))
	}
	if e.FSN >= 0 {
		parts = append(parts, fmt.Sprintf("fsn=%d", e.FSN))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("bcp: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("bcp: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, matching on error category.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories, following the
// taxonomy of configuration/resource/protocol/timeout/overflow/adapter
// failures.
type ErrorCode string

const (
	ErrCodeConfig            ErrorCode = "configuration error"
	ErrCodeResourceExhausted ErrorCode = "resource exhausted"
	ErrCodeProtocol          ErrorCode = "peer protocol error"
	ErrCodeTimeout           ErrorCode = "handshake timeout"
	ErrCodeOverflow          ErrorCode = "application buffer overflow"
	ErrCodeAdapter           ErrorCode = "adapter failure"
	ErrCodeState             ErrorCode = "invalid session state"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, FSN: -1, Code: code, Msg: msg}
}

// NewSessionError creates a session-scoped structured error.
func NewSessionError(op, tag string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Tag: tag, FSN: -1, Code: code, Msg: msg}
}

// WrapError wraps an existing error with BCP context, preserving the
// category of an inner *Error or defaulting to ErrCodeAdapter.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if be, ok := inner.(*Error); ok {
		return &Error{Op: op, Tag: be.Tag, FSN: be.FSN, Code: be.Code, Msg: be.Msg, Inner: be.Inner}
	}
	return &Error{Op: op, FSN: -1, Code: ErrCodeAdapter, Msg: inner.Error(), Inner: inner}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var bcpErr *Error
	if errors.As(err, &bcpErr) {
		return bcpErr.Code == code
	}
	return false
}

var (
	// ErrBadConfig is returned by Create when mfs/mtu/mal violate the
	// configuration invariants.
	ErrBadConfig = NewError("Create", ErrCodeConfig, "invalid session configuration")
	// ErrNotOpen is returned by Send when the session has not completed
	// its handshake yet.
	ErrNotOpen = NewError("Send", ErrCodeState, "session is not in DONE state")
	// ErrAlreadyOpen is returned by Open when the session is not in STOP.
	ErrAlreadyOpen = NewError("Open", ErrCodeState, "session is not in STOP state")
	// ErrMessageTooLarge is returned by Send when len(bytes) > mal.
	ErrMessageTooLarge = NewError("Send", ErrCodeConfig, "message exceeds configured MAL")
	// ErrPoolExhausted is returned when a fixed-block pool has no free
	// blocks left.
	ErrPoolExhausted = NewError("Send", ErrCodeResourceExhausted, "memory pool exhausted")
	// ErrQueueFull is returned when an event could not be enqueued
	// within its timeout.
	ErrQueueFull = NewError("Send", ErrCodeResourceExhausted, "event queue full")
	// ErrSessionStopped is returned by Input/Send once the session has
	// been torn down.
	ErrSessionStopped = NewError("Input", ErrCodeState, "session is stopped")
)