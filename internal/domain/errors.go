package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")
)

// Specific failures wrap the base sentinels so the HTTP layer can map them to
// statuses with errors.Is while callers still distinguish the exact cause.
var (
	// ErrOutOfWindow rejects schedule slots outside the allowed booking window.
	ErrOutOfWindow = fmt.Errorf("%w: slot outside scheduling window", ErrInvalidInput)

	// ErrInvalidTimezone rejects unknown IANA zone names.
	ErrInvalidTimezone = fmt.Errorf("%w: unknown timezone", ErrInvalidInput)

	// ErrInvalidTime rejects local times that do not exist or are ambiguous
	// under the zone's DST rules.
	ErrInvalidTime = fmt.Errorf("%w: nonexistent or ambiguous local time", ErrInvalidInput)

	// ErrInvalidState rejects transitions out of a terminal lifecycle state,
	// e.g. cancelling a schedule record that was already dispatched.
	ErrInvalidState = fmt.Errorf("%w: invalid lifecycle state", ErrConflict)

	// ErrNoPendingTest is returned when a completion request finds an empty queue.
	ErrNoPendingTest = fmt.Errorf("%w: no pending test", ErrConflict)
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
