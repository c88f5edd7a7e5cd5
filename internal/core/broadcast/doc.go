// Package broadcast provides the condition primitive the runtime uses to
// hand incoming events to blocked waiters.
//
// A Cond differs from sync.Cond in two ways: Broadcast carries a value, and
// every concurrently parked waiter observes that same value (broadcast, not
// queue semantics). A broadcast with zero waiters is a no-op; the primitive
// never buffers values.
//
// Waiters come in two forms. Wait parks until the next broadcast and returns
// its value. WaitFor parks with a judge function that is evaluated inline
// during Broadcast, under the condition lock and in waiter arrival order, so
// the broadcaster knows synchronously whether any waiter accepted the value.
// That inline decision is what lets the delivery coordinator claim an event
// for a waiter before the handler chain is ever scheduled.
package broadcast
