package plugin

import "errors"

var (
	// ErrNotLoaded is returned when unloading a script that is not loaded.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrNoHandle is returned when a script table has no handle function.
	ErrNoHandle = errors.New("plugin table has no handle function")
)
