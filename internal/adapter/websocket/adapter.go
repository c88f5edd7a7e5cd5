// Package websocket implements an adapter that receives events over an
// outbound websocket connection to a protocol gateway.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/larkbot/lark/internal/core"
	"github.com/larkbot/lark/internal/event"
)

// Name is the adapter name used in logs and event attribution.
const Name = "websocket"

// Deliverer receives decoded events. The runtime core implements it.
type Deliverer interface {
	HandleEvent(ctx context.Context, e event.Event, opts ...core.HandleOption)
}

// Adapter maintains one websocket connection and turns incoming frames
// into events. Connection loss surfaces as a Run error; the runtime
// supervisor restarts the adapter with backoff.
type Adapter struct {
	url         string
	token       string
	pingTimeout time.Duration
	deliver     Deliverer
	log         *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithToken sets the bearer token sent on dial.
func WithToken(token string) Option {
	return func(a *Adapter) {
		a.token = token
	}
}

// WithPingTimeout sets the keepalive ping interval. Zero disables pings.
func WithPingTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.pingTimeout = d
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

// New creates a websocket adapter delivering events to d.
func New(url string, d Deliverer, opts ...Option) *Adapter {
	a := &Adapter{
		url:     url,
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

// Startup implements core.Adapter.
func (a *Adapter) Startup(ctx context.Context) error {
	if a.url == "" {
		return fmt.Errorf("websocket adapter: empty url")
	}
	return nil
}

// Run implements core.Adapter. It dials the gateway and reads frames until
// the connection drops or the context is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if a.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + a.token}}
	}

	conn, _, err := websocket.Dial(ctx, a.url, opts)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", a.url, err)
	}
	a.setConn(conn)
	defer a.setConn(nil)
	a.log.Info("websocket connected", "url", a.url)

	if a.pingTimeout > 0 {
		pingCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.keepalive(pingCtx, conn)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "shutting down")
				return ctx.Err()
			}
			return fmt.Errorf("reading frame: %w", err)
		}
		a.deliver.HandleEvent(ctx, event.NewGeneric(Name, detectKind(data), data))
	}
}

// keepalive pings the gateway periodically so half-open connections fail
// fast instead of hanging the read loop.
func (a *Adapter) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.pingTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, a.pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				a.log.Warn("websocket ping failed", "error", err)
				conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

// Shutdown implements core.Adapter.
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	return nil
}

// Send writes an action frame to the gateway. The frame carries the action
// name plus the given parameters.
func (a *Adapter) Send(ctx context.Context, action string, params map[string]any) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket adapter: not connected")
	}

	payload, err := sjson.SetBytes([]byte(`{}`), "action", action)
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}
	for key, val := range params {
		payload, err = sjson.SetBytes(payload, "params."+key, val)
		if err != nil {
			return fmt.Errorf("encoding param %s: %w", key, err)
		}
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (a *Adapter) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

// detectKind extracts the event kind from a frame, trying the common field
// names used by chat gateways.
func detectKind(data []byte) string {
	for _, path := range []string{"type", "post_type", "event"} {
		if v := gjson.GetBytes(data, path); v.Exists() {
			return v.String()
		}
	}
	return "unknown"
}
