// Package event defines the events that flow through the Lark runtime.
//
// An Event is an opaque unit of incoming data produced by an adapter. It is
// immutable except for its claimed flag, a one-time transition that grants a
// single consumer exclusive handling rights for waiter-style consumption.
// The runtime's delivery coordinator offers each get-eligible event to
// blocked waiters first; whichever waiter claims it wins, and the handler
// chain never runs for a claimed event.
//
// Most adapters deal in JSON frames, so the package provides Generic, an
// event carrying a raw JSON payload with path-based field access:
//
//	e := event.NewGeneric("onebot", "message", raw)
//	if e.Field("message_type").String() == "group" { ... }
//
// Custom adapters can define their own event types by embedding Base, which
// supplies the claim bookkeeping and default formatting:
//
//	type PollEvent struct {
//	    *event.Base
//	    Question string
//	}
package event
