package core

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/larkbot/lark/internal/core/broadcast"
	"github.com/larkbot/lark/internal/event"
)

// getConfig controls one Get call.
type getConfig struct {
	match    func(event.Event) bool
	maxTries int
	timeout  time.Duration
}

// GetOption configures a Get call.
type GetOption func(*getConfig)

// WithMatch sets the predicate a candidate event must satisfy. A nil
// predicate (the default) matches the next eligible event.
func WithMatch(fn func(event.Event) bool) GetOption {
	return func(cfg *getConfig) {
		cfg.match = fn
	}
}

// WithMaxTries bounds how many candidate events the call may examine before
// giving up. Zero or negative (the default) means unbounded.
func WithMaxTries(n int) GetOption {
	return func(cfg *getConfig) {
		cfg.maxTries = n
	}
}

// WithTimeout bounds how long the call may wait, measured from call start.
// Zero or negative (the default) means no deadline.
func WithTimeout(d time.Duration) GetOption {
	return func(cfg *getConfig) {
		cfg.timeout = d
	}
}

// Get blocks until an adapter delivers a get-eligible event satisfying the
// predicate, then claims and returns it. Each delivered event is claimed by
// at most one Get call; ties go to the waiter that arrived first.
//
// Get fails with ErrGetTimeout when the deadline or try budget runs out
// first. If the runtime shuts down while waiting, Get returns (nil, nil):
// shutdown is a graceful drain and takes priority over timeout as an
// outcome.
func (c *Core) Get(ctx context.Context, opts ...GetOption) (event.Event, error) {
	var cfg getConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	match := cfg.match
	if match == nil {
		match = func(event.Event) bool { return true }
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	// The judge runs under the broadcast condition's lock, in waiter
	// arrival order: predicate check and claim are one atomic section, so
	// two waiters can never claim the same event. It also runs on the
	// delivering adapter's goroutine, so a panicking predicate must be
	// contained here; it counts as a non-match.
	tries := 0
	judge := func(e event.Event) broadcast.Verdict {
		if !e.Claimed() && c.safeMatch(match, e) && e.Claim() {
			return broadcast.VerdictTake
		}
		tries++
		if cfg.maxTries > 0 && tries > cfg.maxTries {
			return broadcast.VerdictQuit
		}
		return broadcast.VerdictPass
	}

	e, err := c.cond.WaitFor(ctx, judge)
	return c.getResult(e, err)
}

// safeMatch evaluates a Get predicate with panic containment.
func (c *Core) safeMatch(match func(event.Event) bool, e event.Event) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			c.log.Error("get predicate panic",
				"event", e.String(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	return match(e)
}

// getResult maps a broadcast outcome onto the Get contract.
func (c *Core) getResult(e event.Event, err error) (event.Event, error) {
	switch {
	case err == nil:
		return e, nil
	case errors.Is(err, broadcast.ErrClosed):
		// Runtime shut down while waiting: graceful drain, not an error.
		return nil, nil
	case errors.Is(err, broadcast.ErrQuit), errors.Is(err, context.DeadlineExceeded):
		if c.ShuttingDown() {
			return nil, nil
		}
		return nil, ErrGetTimeout
	default:
		return nil, err
	}
}
