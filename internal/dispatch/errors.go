package dispatch

import "errors"

// Sentinel errors for handler registration.
var (
	// ErrInvalidPriority is returned when registering with a negative priority.
	ErrInvalidPriority = errors.New("dispatch: priority must be non-negative")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("dispatch: handler cannot be nil")

	// ErrNotRegistered is returned when unregistering an unknown registration.
	ErrNotRegistered = errors.New("dispatch: registration not found")
)
