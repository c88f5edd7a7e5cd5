package event

import (
	"fmt"
	"sync/atomic"
)

// Event is a unit of incoming data produced by an adapter and consumed by
// handlers and/or waiters.
//
// Events are immutable once created, except for the claimed flag which
// transitions from false to true exactly once.
type Event interface {
	// AdapterName identifies the adapter that produced the event.
	AdapterName() string

	// Kind is the adapter-specific event type (e.g. "message", "notice").
	Kind() string

	// String returns a human-readable representation for logging.
	String() string

	// Claim marks the event as exclusively consumed. It returns true for
	// exactly one caller; all later calls return false.
	Claim() bool

	// Claimed reports whether the event has been claimed.
	Claimed() bool
}

// Base provides the claim bookkeeping and default formatting shared by all
// event types. Embed a *Base in concrete event types.
type Base struct {
	adapter string
	kind    string
	claimed atomic.Bool
}

// NewBase creates the shared event state for the given adapter and kind.
func NewBase(adapter, kind string) *Base {
	return &Base{adapter: adapter, kind: kind}
}

// AdapterName implements Event.AdapterName.
func (b *Base) AdapterName() string {
	return b.adapter
}

// Kind implements Event.Kind.
func (b *Base) Kind() string {
	return b.kind
}

// String implements Event.String.
func (b *Base) String() string {
	return fmt.Sprintf("<%s event from %s>", b.kind, b.adapter)
}

// Claim implements Event.Claim. It is safe for concurrent use; the first
// caller wins.
func (b *Base) Claim() bool {
	return b.claimed.CompareAndSwap(false, true)
}

// Claimed implements Event.Claimed.
func (b *Base) Claimed() bool {
	return b.claimed.Load()
}
