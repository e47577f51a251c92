// Package core wires the memory subsystem into the Engine a companion
// application talks to.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoHistory indicates that an operation needs a prior chat turn and
	// none exists.
	ErrNoHistory = errors.New("no chat history")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrLLMOperation indicates that a model call failed.
	ErrLLMOperation = errors.New("llm operation failed")

	// ErrSessionStale indicates that the session token was invalidated
	// while an operation was in flight.
	ErrSessionStale = errors.New("session no longer live")
)

// MemoryError wraps errors with operation context.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Chat",
//	    Err: ErrLLMOperation,
//	}
//	// Error() returns: "mnemo: Chat: llm operation failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "mnemo: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("mnemo: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	return NewMemoryError("Chat", err)
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Err: err}
}
