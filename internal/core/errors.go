package core

import "errors"

// Sentinel errors for the runtime.
var (
	// ErrGetTimeout is returned by Get when its deadline or try budget is
	// exhausted before a matching event arrives.
	ErrGetTimeout = errors.New("core: timed out waiting for event")

	// ErrAdapterNotFound is returned when looking up an unknown adapter.
	ErrAdapterNotFound = errors.New("core: adapter not found")
)
