package broadcast

import "errors"

// Sentinel errors for the broadcast condition.
var (
	// ErrClosed is returned to waiters when the condition is closed.
	ErrClosed = errors.New("broadcast: condition closed")

	// ErrQuit is returned from WaitFor when the judge gave up waiting.
	ErrQuit = errors.New("broadcast: waiter quit")
)
