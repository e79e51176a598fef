package crm

import "errors"

// Sentinel errors shared across the engine. Domain packages wrap these with
// additional context; handlers map them onto HTTP status codes.
var (
	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEstimateNotFound is returned when a referenced estimate doesn't exist.
	ErrEstimateNotFound = errors.New("estimate not found")

	// ErrSnoozeNotFound is returned when a referenced snooze doesn't exist.
	ErrSnoozeNotFound = errors.New("snooze not found")

	// ErrGroupNotFound is returned when a referenced duplicate group doesn't exist.
	ErrGroupNotFound = errors.New("duplicate group not found")

	// ErrInvalidSegment is returned when a segment code is not one of A/B/C/D.
	ErrInvalidSegment = errors.New("invalid revenue segment")
)

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEstimateNotFound) ||
		errors.Is(err, ErrSnoozeNotFound) ||
		errors.Is(err, ErrGroupNotFound)
}
