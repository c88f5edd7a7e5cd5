// Package webhook implements an adapter that receives events as HTTP POST
// requests from services that push instead of holding a connection open.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/larkbot/lark/internal/core"
	"github.com/larkbot/lark/internal/event"
)

// Name is the adapter name used in logs and event attribution.
const Name = "webhook"

// maxBodySize bounds accepted event payloads.
const maxBodySize = 1 << 20 // 1 MiB

// Deliverer receives decoded events. The runtime core implements it.
type Deliverer interface {
	HandleEvent(ctx context.Context, e event.Event, opts ...core.HandleOption)
}

// Adapter serves an HTTP endpoint that converts POSTed JSON into events.
type Adapter struct {
	listen  string
	path    string
	token   string
	deliver Deliverer
	log     *slog.Logger

	ln  net.Listener
	srv *http.Server
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithToken requires a matching bearer token on every request.
func WithToken(token string) Option {
	return func(a *Adapter) {
		a.token = token
	}
}

// WithPath sets the event endpoint path. The default is /event.
func WithPath(path string) Option {
	return func(a *Adapter) {
		if path != "" {
			a.path = path
		}
	}
}

// WithLogger sets the adapter logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates a webhook adapter listening on addr and delivering events to d.
func New(addr string, d Deliverer, opts ...Option) *Adapter {
	a := &Adapter{
		listen:  addr,
		path:    "/event",
		deliver: d,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements core.Adapter.
func (a *Adapter) Name() string { return Name }

// Startup implements core.Adapter. It binds the listen address so address
// conflicts surface before the runtime starts.
func (a *Adapter) Startup(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.listen, err)
	}
	a.ln = ln

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Group(func(r chi.Router) {
		if a.token != "" {
			r.Use(a.bearerAuth)
		}
		r.Post(a.path, a.handleEvent)
	})

	a.srv = &http.Server{Handler: r}
	return nil
}

// Addr returns the bound listen address. Valid after Startup.
func (a *Adapter) Addr() string {
	if a.ln == nil {
		return a.listen
	}
	return a.ln.Addr().String()
}

// Run implements core.Adapter.
func (a *Adapter) Run(ctx context.Context) error {
	if a.srv == nil {
		return fmt.Errorf("webhook adapter: Run before Startup")
	}
	a.log.Info("webhook listening", "addr", a.Addr(), "path", a.path)

	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.Serve(a.ln) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	}
}

// Shutdown implements core.Adapter.
func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}

// bearerAuth rejects requests without the configured token.
func (a *Adapter) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleEvent converts one POSTed payload into an event.
func (a *Adapter) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodySize {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if !gjson.ValidBytes(body) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	kind := gjson.GetBytes(body, "type").String()
	if kind == "" {
		kind = "unknown"
	}
	a.deliver.HandleEvent(r.Context(), event.NewGeneric(Name, kind, body))
	w.WriteHeader(http.StatusNoContent)
}
