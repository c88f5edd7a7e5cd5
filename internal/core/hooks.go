package core

import (
	"context"
	"sync"

	"github.com/larkbot/lark/internal/dispatch"
)

// RunHook is invoked at runtime start and exit.
type RunHook func(ctx context.Context, c *Core) error

// AdapterHook is invoked around adapter lifecycle transitions.
type AdapterHook func(ctx context.Context, a Adapter) error

// HookHandle removes a previously registered hook.
type HookHandle struct {
	remove func() bool
}

// Remove unregisters the hook. It reports whether the hook was still
// registered.
func (h *HookHandle) Remove() bool {
	return h.remove()
}

// hookList is an ordered, concurrency-safe list of hooks.
type hookList[T any] struct {
	mu      sync.Mutex
	entries []*hookEntry[T]
}

type hookEntry[T any] struct {
	fn T
}

func (l *hookList[T]) add(fn T) *HookHandle {
	entry := &hookEntry[T]{fn: fn}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	return &HookHandle{remove: func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, e := range l.entries {
			if e == entry {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				return true
			}
		}
		return false
	}}
}

// snapshot copies the hook functions in registration order.
func (l *hookList[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}
	fns := make([]T, len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

// OnRun registers a hook invoked when Run starts, before adapters start.
func (c *Core) OnRun(fn RunHook) *HookHandle {
	return c.runHooks.add(fn)
}

// OnExit registers a hook invoked after adapters have shut down, as the
// last step of Run.
func (c *Core) OnExit(fn RunHook) *HookHandle {
	return c.exitHooks.add(fn)
}

// OnAdapterStartup registers a hook invoked before each adapter's Startup.
func (c *Core) OnAdapterStartup(fn AdapterHook) *HookHandle {
	return c.adapterStartupHooks.add(fn)
}

// OnAdapterRun registers a hook invoked before each adapter's Run.
func (c *Core) OnAdapterRun(fn AdapterHook) *HookHandle {
	return c.adapterRunHooks.add(fn)
}

// OnAdapterShutdown registers a hook invoked before each adapter's Shutdown.
func (c *Core) OnAdapterShutdown(fn AdapterHook) *HookHandle {
	return c.adapterShutdownHooks.add(fn)
}

// OnEventPre registers an event preprocessor on the dispatcher.
func (c *Core) OnEventPre(fn dispatch.HookFunc) *dispatch.HookRegistration {
	return c.dispatcher.RegisterPreHook(fn)
}

// OnEventPost registers an event postprocessor on the dispatcher.
func (c *Core) OnEventPost(fn dispatch.HookFunc) *dispatch.HookRegistration {
	return c.dispatcher.RegisterPostHook(fn)
}

// runLifecycleHooks invokes runtime hooks in order, logging faults.
func (c *Core) runLifecycleHooks(ctx context.Context, hooks []RunHook, stage string) {
	for _, fn := range hooks {
		if err := fn(ctx, c); err != nil {
			c.log.Error("lifecycle hook failed", "stage", stage, "error", err)
		}
	}
}

// runAdapterHooks invokes adapter hooks in order, logging faults.
func (c *Core) runAdapterHooks(ctx context.Context, hooks []AdapterHook, a Adapter, stage string) {
	for _, fn := range hooks {
		if err := fn(ctx, a); err != nil {
			c.log.Error("adapter hook failed", "stage", stage, "adapter", a.Name(), "error", err)
		}
	}
}
