package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creachadair/taskgroup"
	"golang.org/x/sync/errgroup"

	"github.com/larkbot/lark/internal/core/broadcast"
	"github.com/larkbot/lark/internal/dispatch"
	"github.com/larkbot/lark/internal/event"
)

// Core is the runtime context shared by every component: delivery
// coordinator, waiter subsystem, handler table and adapter lifecycle.
type Core struct {
	log        *slog.Logger
	cond       *broadcast.Cond[event.Event]
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher

	// In-flight handler chains. sem bounds their concurrency when set.
	tasks taskgroup.Group
	sem   chan struct{}

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	done         chan struct{}

	shutdownTimeout time.Duration

	mu       sync.Mutex
	adapters []Adapter

	runHooks             hookList[RunHook]
	exitHooks            hookList[RunHook]
	adapterStartupHooks  hookList[AdapterHook]
	adapterRunHooks      hookList[AdapterHook]
	adapterShutdownHooks hookList[AdapterHook]
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the runtime logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Core) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMaxConcurrentEvents bounds how many event chains may run at once.
// Zero or negative means unbounded.
func WithMaxConcurrentEvents(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithShutdownTimeout bounds how long teardown waits for each adapter's
// Shutdown. The default is 10 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// New creates a runtime context.
func New(opts ...Option) *Core {
	c := &Core{
		log:             slog.Default(),
		cond:            broadcast.New[event.Event](),
		registry:        dispatch.NewRegistry(),
		done:            make(chan struct{}),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dispatcher = dispatch.New(c.registry, dispatch.WithLogger(c.log))
	return c
}

// Registry returns the handler priority table. Loader/hot-reload
// collaborators use it directly for the unregister-old/register-new pair.
func (c *Core) Registry() *dispatch.Registry {
	return c.registry
}

// Dispatcher returns the handler chain dispatcher.
func (c *Core) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// RegisterHandler admits a handler into the priority table.
func (c *Core) RegisterHandler(h dispatch.Handler, opts ...dispatch.RegisterOption) (*dispatch.Registration, error) {
	return c.registry.Register(h, opts...)
}

// UnregisterHandler removes a handler registration.
func (c *Core) UnregisterHandler(reg *dispatch.Registration) error {
	return c.registry.Unregister(reg)
}

// handleConfig controls one delivery.
type handleConfig struct {
	get bool
	log bool
}

// HandleOption configures a single HandleEvent call.
type HandleOption func(*handleConfig)

// WithoutGet makes the event invisible to Get callers; it still reaches the
// handler chain. Use it for synthetic or internal events.
func WithoutGet() HandleOption {
	return func(cfg *handleConfig) {
		cfg.get = false
	}
}

// WithoutLog suppresses the receipt log line for this event.
func WithoutLog() HandleOption {
	return func(cfg *handleConfig) {
		cfg.log = false
	}
}

// HandleEvent is the delivery entry point called by adapters.
//
// Get-eligible events are offered to blocked Get callers first, under the
// broadcast condition's lock; if a waiter claims the event the handler chain
// never runs for it. Otherwise the chain is scheduled on the worker pool and
// HandleEvent returns without blocking on it.
func (c *Core) HandleEvent(ctx context.Context, e event.Event, opts ...HandleOption) {
	cfg := handleConfig{get: true, log: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if c.ShuttingDown() {
		c.log.Debug("runtime shutting down, dropping event", "event", e.String())
		return
	}

	if cfg.log {
		c.log.Info("adapter received event", "adapter", e.AdapterName(), "event", e.String())
	}

	if cfg.get {
		// Claim-then-dispatch: the waiter decision is synchronous, so a
		// claimed event is never handed to the chain at all.
		if c.cond.Broadcast(e) {
			return
		}
	}
	c.schedule(ctx, e)
}

// schedule runs the handler chain for e on the worker pool. The chain is
// detached from the delivering adapter's cancellation so in-flight events
// drain fully during shutdown.
func (c *Core) schedule(ctx context.Context, e event.Event) {
	ctx = context.WithoutCancel(ctx)
	c.tasks.Go(func() error {
		if c.sem != nil {
			c.sem <- struct{}{}
			defer func() { <-c.sem }()
		}
		c.dispatcher.Dispatch(ctx, e)
		return nil
	})
}

// Shutdown sets the one-way shutdown flag: the run loop stops accepting new
// adapter work and every blocked Get call returns. It is idempotent.
func (c *Core) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.shuttingDown.Store(true)
		close(c.done)
		c.cond.Close()
	})
}

// ShuttingDown reports whether Shutdown has been called.
func (c *Core) ShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Done is closed when Shutdown is called.
func (c *Core) Done() <-chan struct{} {
	return c.done
}

// Run starts every registered adapter and blocks until Shutdown is called
// or ctx is cancelled. It then drains in-flight event chains and tears the
// adapters down in order.
func (c *Core) Run(ctx context.Context) error {
	c.log.Info("running lark")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	c.runLifecycleHooks(runCtx, c.runHooks.snapshot(), "run")

	adapters := c.Adapters()
	for _, a := range adapters {
		c.runAdapterHooks(runCtx, c.adapterStartupHooks.snapshot(), a, "startup")
		if err := a.Startup(runCtx); err != nil {
			c.log.Error("adapter startup failed", "adapter", a.Name(), "error", err)
		}
	}

	g, gctx := errgroup.WithContext(runCtx)
	for _, a := range adapters {
		a := a
		c.runAdapterHooks(runCtx, c.adapterRunHooks.snapshot(), a, "run")
		g.Go(func() error {
			c.superviseAdapter(gctx, a)
			return nil
		})
	}

	select {
	case <-runCtx.Done():
	case <-c.done:
	}
	c.Shutdown()
	cancel()

	_ = g.Wait()

	// Let in-flight handler chains finish before adapters go away.
	_ = c.tasks.Wait()

	teardownCtx, teardownCancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer teardownCancel()
	for _, a := range adapters {
		c.runAdapterHooks(teardownCtx, c.adapterShutdownHooks.snapshot(), a, "shutdown")
		if err := a.Shutdown(teardownCtx); err != nil {
			c.log.Error("adapter shutdown failed", "adapter", a.Name(), "error", err)
		}
	}

	c.runLifecycleHooks(teardownCtx, c.exitHooks.snapshot(), "exit")
	c.log.Info("lark stopped")
	return ctx.Err()
}

// superviseAdapter keeps an adapter running, restarting it with exponential
// backoff after crashes, until the context is cancelled.
func (c *Core) superviseAdapter(ctx context.Context, a Adapter) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until shutdown

	err := backoff.Retry(func() error {
		err := a.Run(ctx)
		if err != nil && ctx.Err() == nil {
			c.log.Error("adapter crashed, restarting", "adapter", a.Name(), "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil && ctx.Err() == nil {
		c.log.Error("adapter gave up", "adapter", a.Name(), "error", err)
	}
}
