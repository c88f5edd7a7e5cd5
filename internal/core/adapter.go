package core

import "context"

// Adapter is an external event source/sink. Implementations live outside
// the core; the runtime only drives their lifecycle and receives the events
// they deliver via HandleEvent.
//
// Each event object must be delivered exactly once.
type Adapter interface {
	// Name identifies the adapter in logs and lookups.
	Name() string

	// Startup prepares the adapter's resources. It is called once, before Run.
	Startup(ctx context.Context) error

	// Run produces events until the context is cancelled. A non-nil return
	// before cancellation is treated as a crash and the runtime restarts
	// the adapter with backoff.
	Run(ctx context.Context) error

	// Shutdown releases the adapter's resources during runtime teardown.
	Shutdown(ctx context.Context) error
}

// RegisterAdapter adds an adapter to the runtime. Adapters registered after
// Run has started are not picked up.
func (c *Core) RegisterAdapter(a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters = append(c.adapters, a)
}

// Adapters returns the registered adapters.
func (c *Core) Adapters() []Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Adapter, len(c.adapters))
	copy(out, c.adapters)
	return out
}

// AdapterByName returns the registered adapter with the given name.
func (c *Core) AdapterByName(name string) (Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range c.adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, ErrAdapterNotFound
}
