package webhook

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/larkbot/lark/internal/core"
	"github.com/larkbot/lark/internal/event"
)

type fakeDeliverer struct {
	events chan event.Event
}

func (d *fakeDeliverer) HandleEvent(ctx context.Context, e event.Event, opts ...core.HandleOption) {
	d.events <- e
}

func startAdapter(t *testing.T, opts ...Option) (*Adapter, *fakeDeliverer) {
	t.Helper()

	d := &fakeDeliverer{events: make(chan event.Event, 16)}
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	a := New("127.0.0.1:0", d, opts...)

	if err := a.Startup(context.Background()); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		a.Shutdown(sctx)
		cancel()
		<-done
	})
	return a, d
}

func post(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("posting: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestPostDeliversEvent(t *testing.T) {
	a, d := startAdapter(t)

	resp := post(t, "http://"+a.Addr()+"/event", `{"type":"message","text":"hi"}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	select {
	case e := <-d.events:
		if e.AdapterName() != Name || e.Kind() != "message" {
			t.Errorf("delivered event = %s/%s, want webhook/message", e.AdapterName(), e.Kind())
		}
		g, ok := e.(*event.Generic)
		if !ok {
			t.Fatalf("event type = %T, want *event.Generic", e)
		}
		if got := g.Field("text").String(); got != "hi" {
			t.Errorf("payload text = %q, want %q", got, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPostMissingTypeField(t *testing.T) {
	a, d := startAdapter(t)

	post(t, "http://"+a.Addr()+"/event", `{"text":"hi"}`, nil)
	select {
	case e := <-d.events:
		if e.Kind() != "unknown" {
			t.Errorf("kind = %q, want unknown", e.Kind())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPostInvalidJSON(t *testing.T) {
	a, d := startAdapter(t)

	resp := post(t, "http://"+a.Addr()+"/event", `{not json`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	select {
	case <-d.events:
		t.Error("invalid payload was delivered")
	default:
	}
}

func TestPostOversizedBody(t *testing.T) {
	a, _ := startAdapter(t)

	body := `{"type":"big","pad":"` + strings.Repeat("x", maxBodySize) + `"}`
	resp := post(t, "http://"+a.Addr()+"/event", body, nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	a, d := startAdapter(t, WithToken("secret"))
	url := "http://" + a.Addr() + "/event"

	resp := post(t, url, `{"type":"message"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp = post(t, url, `{"type":"message"}`, http.Header{
		"Authorization": []string{"Bearer wrong"},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong-token status = %d, want 401", resp.StatusCode)
	}
	select {
	case <-d.events:
		t.Fatal("unauthenticated request was delivered")
	default:
	}

	resp = post(t, url, `{"type":"message"}`, http.Header{
		"Authorization": []string{"Bearer secret"},
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("authenticated status = %d, want 204", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := startAdapter(t, WithToken("secret"))

	// Health must not require auth.
	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("health status = %d, want 204", resp.StatusCode)
	}
}

func TestShutdownStopsServer(t *testing.T) {
	d := &fakeDeliverer{events: make(chan event.Event, 1)}
	a := New("127.0.0.1:0", d, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := a.Startup(context.Background()); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after Shutdown error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}
