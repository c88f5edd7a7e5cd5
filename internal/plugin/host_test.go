package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/larkbot/lark/internal/dispatch"
	"github.com/larkbot/lark/internal/event"
)

// testRegistrar adapts a bare registry to the Registrar interface.
type testRegistrar struct {
	reg *dispatch.Registry
}

func (r testRegistrar) RegisterHandler(h dispatch.Handler, opts ...dispatch.RegisterOption) (*dispatch.Registration, error) {
	return r.reg.Register(h, opts...)
}

func (r testRegistrar) UnregisterHandler(reg *dispatch.Registration) error {
	return r.reg.Unregister(reg)
}

// probe is a Go handler used to observe whether the chain continued past
// the plugin under test.
type probe struct {
	mu    sync.Mutex
	kinds []string
}

func (p *probe) Matches(ctx context.Context, e event.Event) (bool, error) { return true, nil }

func (p *probe) Handle(ctx context.Context, e event.Event) error {
	p.mu.Lock()
	p.kinds = append(p.kinds, e.Kind())
	p.mu.Unlock()
	return nil
}

func (p *probe) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.kinds))
	copy(out, p.kinds)
	return out
}

type fixture struct {
	host       *Host
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	probe      *probe
	dir        string
}

// newFixture builds a host over a live dispatcher, with a probe handler at
// priority 100 behind every plugin under test.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := dispatch.NewRegistry()
	f := &fixture{
		host:       NewHost(testRegistrar{registry}, WithLogger(log)),
		registry:   registry,
		dispatcher: dispatch.New(registry, dispatch.WithLogger(log)),
		probe:      &probe{},
		dir:        t.TempDir(),
	}
	t.Cleanup(f.host.Close)

	if _, err := registry.Register(f.probe, dispatch.WithPriority(100), dispatch.WithName("probe")); err != nil {
		t.Fatalf("registering probe: %v", err)
	}
	return f
}

func (f *fixture) writePlugin(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing plugin: %v", err)
	}
	return path
}

func (f *fixture) dispatch(kind string) {
	f.dispatcher.Dispatch(context.Background(), event.NewBase("test", kind))
}

func TestLoadRegistersHandler(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "echo.lua", `
return {
	priority = 1,
	handle = function(e) lark.log("info", "handled " .. e.kind) end,
}`)

	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	plugins := f.host.Plugins()
	if len(plugins) != 1 || plugins[0].Name() != "echo" {
		t.Fatalf("Plugins() = %v, want one plugin named echo", plugins)
	}
	if f.registry.Count() != 2 { // plugin + probe
		t.Errorf("registry count = %d, want 2", f.registry.Count())
	}

	f.dispatch("message")
	if got := f.probe.seen(); len(got) != 1 {
		t.Errorf("probe saw %v, want the event to continue past the plugin", got)
	}
}

func TestRuleFilters(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "pingonly.lua", `
return {
	rule = function(e) return e.kind == "ping" end,
	handle = function(e) lark.stop() end,
}`)
	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// The plugin stops matching events; non-matching ones reach the probe.
	f.dispatch("ping")
	f.dispatch("message")

	got := f.probe.seen()
	if len(got) != 1 || got[0] != "message" {
		t.Errorf("probe saw %v, want only the non-matching event", got)
	}
}

func TestSkipYieldsToNextHandler(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "skipper.lua", `
return {
	block = true,
	handle = function(e) lark.skip() end,
}`)
	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// skip() must both let the event continue and suppress the block flag.
	f.dispatch("message")
	if got := f.probe.seen(); len(got) != 1 {
		t.Errorf("probe saw %v, want the skipped event to continue", got)
	}
}

func TestBlockStopsChain(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "blocker.lua", `
return {
	block = true,
	handle = function(e) end,
}`)
	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	f.dispatch("message")
	if got := f.probe.seen(); len(got) != 0 {
		t.Errorf("probe saw %v, want the block to end the chain", got)
	}
}

func TestScriptFaultDoesNotStopChain(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "broken.lua", `
return {
	handle = function(e) error("boom") end,
}`)
	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	f.dispatch("message")
	if got := f.probe.seen(); len(got) != 1 {
		t.Errorf("probe saw %v, want the faulting plugin isolated", got)
	}
}

func TestLoadRejectsBadScripts(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"no handle", `return { priority = 1 }`, ErrNoHandle},
		{"not a table", `return 42`, nil},
		{"syntax error", `return {`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := f.writePlugin(t, "bad.lua", tt.content)
			err := f.host.Load(path)
			if err == nil {
				t.Fatal("Load() succeeded on bad script")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if f.registry.Count() != 1 { // probe only
		t.Errorf("registry count = %d after failed loads, want 1", f.registry.Count())
	}
}

func TestReloadReplacesRegistration(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "mut.lua", `
return {
	block = true,
	handle = function(e) end,
}`)
	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// New version skips instead of blocking.
	f.writePlugin(t, "mut.lua", `
return {
	handle = function(e) lark.skip() end,
}`)
	if err := f.host.Reload(path); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if f.registry.Count() != 2 { // replaced, not duplicated
		t.Errorf("registry count = %d after reload, want 2", f.registry.Count())
	}

	f.dispatch("message")
	if got := f.probe.seen(); len(got) != 1 {
		t.Errorf("probe saw %v, want the reloaded behavior", got)
	}
}

func TestUnload(t *testing.T) {
	f := newFixture(t)
	path := f.writePlugin(t, "gone.lua", `
return {
	block = true,
	handle = function(e) end,
}`)
	if err := f.host.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := f.host.Unload(path); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if err := f.host.Unload(path); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("second Unload() error = %v, want ErrNotLoaded", err)
	}

	f.dispatch("message")
	if got := f.probe.seen(); len(got) != 1 {
		t.Errorf("probe saw %v, want events to flow after unload", got)
	}
}

func TestLoadDirSkipsBrokenScripts(t *testing.T) {
	f := newFixture(t)
	f.writePlugin(t, "a.lua", `return { handle = function(e) end }`)
	f.writePlugin(t, "b.lua", `return {`)
	f.writePlugin(t, "notes.txt", `not a plugin`)

	if err := f.host.LoadDir(f.dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if got := len(f.host.Plugins()); got != 1 {
		t.Errorf("loaded %d plugins, want 1", got)
	}
}

func TestLoadDirMissing(t *testing.T) {
	f := newFixture(t)
	if err := f.host.LoadDir(filepath.Join(f.dir, "absent")); err != nil {
		t.Errorf("LoadDir() on missing dir error = %v, want nil", err)
	}
}
