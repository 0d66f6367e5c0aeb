package utils

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ValidationError rejects bad input before it reaches the persistence
// layer (empty admin reason, seat count over capacity, malformed ids).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError marks a transition that lost to an earlier one (ride
// already tracked, booking already terminal). Non-fatal: callers refresh
// from the authoritative source.
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// PermissionError blocks an action before any persistence call is made.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

func NewPermissionError(message string) *PermissionError {
	return &PermissionError{Message: message}
}

// TransientError wraps failures that are logged and retried on the next
// scheduled attempt, never surfaced per-occurrence.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// RetryableError surfaces after a bounded number of retries has been
// exhausted; no partial state is assumed committed.
type RetryableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// PassengersRemainingError rejects ride completion while bookings are
// still outstanding.
type PassengersRemainingError struct {
	RideID     primitive.ObjectID
	BookingIDs []primitive.ObjectID
}

func (e *PassengersRemainingError) Error() string {
	ids := make([]string, len(e.BookingIDs))
	for i, id := range e.BookingIDs {
		ids[i] = id.Hex()
	}
	return fmt.Sprintf("ride %s has passengers remaining: %s", e.RideID.Hex(), strings.Join(ids, ", "))
}

var (
	ErrNotFound      = errors.New("resource not found")
	ErrRideNotActive = errors.New("ride is not in progress")
)

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
