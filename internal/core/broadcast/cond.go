package broadcast

import (
	"context"
	"sync"
)

// Verdict is a judge's decision about a broadcast value.
type Verdict int

const (
	// VerdictPass leaves the value for other waiters and keeps waiting.
	VerdictPass Verdict = iota

	// VerdictTake accepts the value and stops waiting.
	VerdictTake

	// VerdictQuit stops waiting without accepting the value.
	VerdictQuit
)

// String returns a human-readable verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictTake:
		return "take"
	case VerdictQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// result is what wakes a parked waiter.
type result[T any] struct {
	val T
	err error
}

// waiter is one parked call. The channel is buffered so a broadcaster never
// blocks delivering a wakeup.
type waiter[T any] struct {
	judge func(T) Verdict // nil for plain Wait callers
	ch    chan result[T]
}

// Cond is a broadcast condition carrying values of type T.
// The zero value is not usable; create one with New.
type Cond[T any] struct {
	mu      sync.Mutex
	closed  bool
	waiters []*waiter[T]
}

// New creates a broadcast condition.
func New[T any]() *Cond[T] {
	return &Cond[T]{}
}

// Wait parks the calling goroutine until the next Broadcast and returns the
// broadcast value. It returns ctx.Err() if the context is cancelled first,
// or ErrClosed if the condition is closed.
//
// Any number of goroutines may wait concurrently; one Broadcast wakes them
// all with the same value.
func (c *Cond[T]) Wait(ctx context.Context) (T, error) {
	return c.wait(ctx, nil)
}

// WaitFor parks the calling goroutine until a broadcast value is accepted by
// judge. The judge runs inside Broadcast, under the condition lock and in
// waiter arrival order; it must be fast and must not call back into the
// condition. VerdictTake wakes the waiter with the value, VerdictQuit wakes
// it with ErrQuit, VerdictPass keeps it parked for the next broadcast.
func (c *Cond[T]) WaitFor(ctx context.Context, judge func(T) Verdict) (T, error) {
	return c.wait(ctx, judge)
}

func (c *Cond[T]) wait(ctx context.Context, judge func(T) Verdict) (T, error) {
	var zero T

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	w := &waiter[T]{judge: judge, ch: make(chan result[T], 1)}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case r := <-w.ch:
		return r.val, r.err
	case <-ctx.Done():
		c.remove(w)
		// A broadcast may have delivered between the context firing and
		// removal; prefer the delivered value over cancellation.
		select {
		case r := <-w.ch:
			return r.val, r.err
		default:
			return zero, ctx.Err()
		}
	}
}

// Broadcast wakes all plain waiters with v and runs every judge against v in
// arrival order. It reports whether any judge accepted the value. With zero
// waiters it is a no-op returning false.
//
// Judges run under the condition lock, and so does wakeup delivery: each
// waiter channel is buffered and receives at most one result, so the sends
// cannot block, and a waiter cancelled concurrently is guaranteed to find
// its result once remove acquires the lock. A take reported to the caller
// therefore always reaches the taking waiter.
func (c *Cond[T]) Broadcast(v T) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	taken := false
	var wake []*waiter[T]
	var quit []*waiter[T]
	keep := c.waiters[:0]
	for _, w := range c.waiters {
		if w.judge == nil {
			wake = append(wake, w)
			continue
		}
		switch w.judge(v) {
		case VerdictTake:
			wake = append(wake, w)
			taken = true
		case VerdictQuit:
			quit = append(quit, w)
		default:
			keep = append(keep, w)
		}
	}
	// Drop released slots so they can be collected.
	for i := len(keep); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = keep

	for _, w := range wake {
		w.ch <- result[T]{val: v}
	}
	for _, w := range quit {
		w.ch <- result[T]{err: ErrQuit}
	}
	c.mu.Unlock()
	return taken
}

// Close wakes every parked waiter with ErrClosed and rejects future waits.
// It is idempotent.
func (c *Cond[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, w := range c.waiters {
		w.ch <- result[T]{err: ErrClosed}
	}
	c.waiters = nil
	c.mu.Unlock()
}

// Waiting returns the number of currently parked waiters.
func (c *Cond[T]) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// remove unparks w without waking it. It is a no-op if a broadcast already
// released the waiter.
func (c *Cond[T]) remove(w *waiter[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, other := range c.waiters {
		if other == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
