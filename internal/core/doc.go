// Package core is the Lark runtime: the delivery coordinator, the waiter
// subsystem and the lifecycle management that tie adapters to the handler
// chain.
//
// A Core is an explicit runtime context: it owns the broadcast condition
// waiters block on, the handler priority table and its dispatcher, the pool
// of in-flight event chains, and the one-way shutdown flag. Nothing in the
// runtime is ambient package state; construct a Core, pass it around, shut
// it down.
//
// # Delivery
//
// Adapters push events in with HandleEvent. A get-eligible event is first
// offered synchronously to blocked Get callers; if one of them claims it,
// the handler chain never runs for that event. Otherwise the chain is
// scheduled on the worker pool and the adapter's goroutine moves on
// immediately. Events delivered with WithoutGet bypass waiters entirely but
// are still guaranteed to reach the chain.
//
// # Waiting
//
// Get blocks until an event matching a predicate arrives, bounded by an
// optional timeout and try budget:
//
//	e, err := c.Get(ctx,
//	    core.WithMatch(func(e event.Event) bool { return e.Kind() == "message" }),
//	    core.WithTimeout(30*time.Second))
//
// A nil error with a nil event means the runtime shut down while waiting;
// that is a graceful drain, not a failure.
//
// # Lifecycle
//
// Run starts every registered adapter (with supervised restarts) and blocks
// until Shutdown is called or the context is cancelled, then drains in-flight
// chains, releases blocked Get callers and tears the adapters down. Hook
// points exist for runtime start/exit, adapter startup/run/shutdown and
// event pre/postprocessing; each registration returns a handle for removal.
package core
