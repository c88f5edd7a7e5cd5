package lua

import "errors"

var (
	// ErrStateClosed is returned when using a closed Lua state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNotATable is returned when a script does not return a table.
	ErrNotATable = errors.New("script did not return a table")
)
