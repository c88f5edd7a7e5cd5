package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/larkbot/lark/internal/event"
)

// HookFunc is an event pre/postprocessor. A returned error is logged and
// does not abort the event.
type HookFunc func(ctx context.Context, e event.Event) error

// HookRegistration is the removal handle returned by hook registration.
type HookRegistration struct {
	fn HookFunc
}

// Dispatcher walks the priority table for each event, applying the
// skip/stop/block semantics described in the package documentation.
type Dispatcher struct {
	registry *Registry
	log      *slog.Logger

	mu        sync.RWMutex
	preHooks  []*HookRegistration
	postHooks []*HookRegistration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for handler faults and dispatch tracing.
func WithLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// New creates a dispatcher over the given priority table.
func New(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the priority table this dispatcher iterates.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// RegisterPreHook adds an event preprocessor, run before the first tier.
// Hooks run in registration order, each awaited to completion.
func (d *Dispatcher) RegisterPreHook(fn HookFunc) *HookRegistration {
	reg := &HookRegistration{fn: fn}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preHooks = append(d.preHooks, reg)
	return reg
}

// UnregisterPreHook removes a preprocessor. It reports whether the
// registration was found.
func (d *Dispatcher) UnregisterPreHook(reg *HookRegistration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found bool
	d.preHooks, found = removeHook(d.preHooks, reg)
	return found
}

// RegisterPostHook adds an event postprocessor, run after the chain
// completes or terminates early.
func (d *Dispatcher) RegisterPostHook(fn HookFunc) *HookRegistration {
	reg := &HookRegistration{fn: fn}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postHooks = append(d.postHooks, reg)
	return reg
}

// UnregisterPostHook removes a postprocessor. It reports whether the
// registration was found.
func (d *Dispatcher) UnregisterPostHook(reg *HookRegistration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found bool
	d.postHooks, found = removeHook(d.postHooks, reg)
	return found
}

// Dispatch runs the handler chain for one event. It never returns an error:
// every failure inside the chain is logged and contained.
//
// If the event was claimed by a waiter before dispatch began, the chain is
// skipped entirely.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.Event) {
	if e.Claimed() {
		d.log.Debug("event already claimed, skipping chain", "event", e.String())
		return
	}

	d.runHooks(ctx, e, d.snapshotHooks(true), "preprocessor")

	for _, tier := range d.registry.Snapshot() {
		stop := false
		for _, reg := range tier {
			if d.runHandler(ctx, reg, e) {
				stop = true
				break
			}
		}
		if stop {
			break
		}
	}

	d.runHooks(ctx, e, d.snapshotHooks(false), "postprocessor")

	d.log.Debug("event finished", "event", e.String())
}

// runHandler invokes one registration against the event. It reports whether
// the dispatch must stop after this handler.
func (d *Dispatcher) runHandler(ctx context.Context, reg *Registration, e event.Event) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			stop = false
			d.log.Error("handler panic",
				"handler", reg.Name(),
				"event", e.String(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	matched, err := reg.handler.Matches(ctx, e)
	if err != nil {
		switch {
		case errors.Is(err, Skip):
			return false
		case errors.Is(err, Stop):
			return true
		default:
			d.log.Error("handler rule failed",
				"handler", reg.Name(),
				"event", e.String(),
				"error", err)
			return false
		}
	}
	if !matched {
		return false
	}

	d.log.Info("event will be handled", "handler", reg.Name(), "event", e.String())

	switch err := reg.handler.Handle(ctx, e); {
	case err == nil:
		return reg.block
	case errors.Is(err, Skip):
		// The handler aborted itself; the block flag does not apply.
		return false
	case errors.Is(err, Stop):
		return true
	default:
		d.log.Error("handler failed",
			"handler", reg.Name(),
			"event", e.String(),
			"error", err)
		return false
	}
}

// runHooks runs a hook list in registration order, isolating each fault.
func (d *Dispatcher) runHooks(ctx context.Context, e event.Event, hooks []*HookRegistration, kind string) {
	for _, h := range hooks {
		d.runHook(ctx, e, h, kind)
	}
}

func (d *Dispatcher) runHook(ctx context.Context, e event.Event, h *HookRegistration, kind string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event hook panic",
				"hook", kind,
				"event", e.String(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if err := h.fn(ctx, e); err != nil {
		d.log.Error("event hook failed", "hook", kind, "event", e.String(), "error", err)
	}
}

// snapshotHooks copies the hook list so removal during a dispatch cannot
// corrupt iteration.
func (d *Dispatcher) snapshotHooks(pre bool) []*HookRegistration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	src := d.postHooks
	if pre {
		src = d.preHooks
	}
	if len(src) == 0 {
		return nil
	}
	hooks := make([]*HookRegistration, len(src))
	copy(hooks, src)
	return hooks
}

func removeHook(hooks []*HookRegistration, reg *HookRegistration) ([]*HookRegistration, bool) {
	for i, h := range hooks {
		if h == reg {
			return append(hooks[:i], hooks[i+1:]...), true
		}
	}
	return hooks, false
}
