package progress

import "errors"

var (
	// ErrNotFound is returned for unknown users, runs or records.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a step is advanced out of sequence.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyCompleted is returned when a completed ritual is completed again.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrInvalidConfiguration is returned for out-of-range settings or payloads.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrLimitExceeded signals the free monthly quota was passed. It is informational.
	ErrLimitExceeded = errors.New("monthly limit exceeded")
)

// errUnchanged aborts an Update* callback without persisting anything.
var errUnchanged = errors.New("unchanged")
