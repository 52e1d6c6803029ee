// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSessionNotFound indicates a session was not found by the given identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotResumable indicates the session exists but may not re-enter
	// the advance loop.
	ErrSessionNotResumable = errors.New("session not resumable")

	// ErrCheckpointExists indicates a write-once checkpoint snapshot was saved twice.
	ErrCheckpointExists = errors.New("checkpoint already exists")

	// ErrSchemaVersionTooNew indicates a stored record carries a schema version
	// this build does not understand. Loaders reject such records instead of
	// silently truncating them.
	ErrSchemaVersionTooNew = errors.New("session record schema version too new")
)

// StoreError wraps session storage errors with additional context.
type StoreError struct {
	Op        string // Operation being performed (e.g., "SaveSession", "SessionByID")
	SessionID string // Session ID if applicable
	Err       error  // Underlying error
	Message   string // Additional context message
}

func (e *StoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for session %s: %s (%v)", e.Op, e.SessionID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for store errors.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, sessionID string, err error) *StoreError {
	return &StoreError{
		Op:        op,
		SessionID: sessionID,
		Err:       err,
	}
}

// IsSessionNotFound checks if an error indicates a session was not found.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsSessionNotResumable checks if an error indicates a session cannot be resumed.
func IsSessionNotResumable(err error) bool {
	return errors.Is(err, ErrSessionNotResumable)
}

// IsCheckpointExists checks if an error indicates a duplicate checkpoint write.
func IsCheckpointExists(err error) bool {
	return errors.Is(err, ErrCheckpointExists)
}

// IsSchemaVersionTooNew checks if an error indicates an unreadably new record.
func IsSchemaVersionTooNew(err error) bool {
	return errors.Is(err, ErrSchemaVersionTooNew)
}
