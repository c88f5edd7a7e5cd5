// Package plugin loads Lua scripts and registers them as event handlers.
//
// A plugin is a single .lua file that returns a table:
//
//	return {
//	    name = "echo",            -- optional, defaults to the file name
//	    priority = 10,            -- optional, defaults to 0
//	    block = false,            -- optional
//	    rule = function(e) ... end,   -- optional predicate, defaults to match-all
//	    handle = function(e) ... end, -- required
//	}
//
// Inside rule and handle the script may call lark.skip() to yield to the
// next handler or lark.stop() to end propagation for the event.
package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/larkbot/lark/internal/dispatch"
	luavm "github.com/larkbot/lark/internal/plugin/lua"
)

// Registrar is the slice of the runtime the host needs: handler admission
// and removal.
type Registrar interface {
	RegisterHandler(h dispatch.Handler, opts ...dispatch.RegisterOption) (*dispatch.Registration, error)
	UnregisterHandler(reg *dispatch.Registration) error
}

// Plugin is one loaded script.
type Plugin struct {
	path  string
	name  string
	state *luavm.State
	reg   *dispatch.Registration
}

// Name returns the plugin's registered name.
func (p *Plugin) Name() string { return p.name }

// Path returns the script path the plugin was loaded from.
func (p *Plugin) Path() string { return p.path }

// Host owns the loaded plugins. Each plugin gets its own interpreter, so a
// misbehaving script cannot corrupt its neighbours.
type Host struct {
	registrar Registrar
	log       *slog.Logger

	mu      sync.Mutex
	plugins map[string]*Plugin // keyed by absolute script path
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the host logger. The default is slog.Default().
func WithLogger(log *slog.Logger) HostOption {
	return func(h *Host) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHost creates a plugin host registering handlers through r.
func NewHost(r Registrar, opts ...HostOption) *Host {
	h := &Host{
		registrar: r,
		log:       slog.Default(),
		plugins:   make(map[string]*Plugin),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LoadDir loads every .lua file in dir, in lexical order. Individual script
// failures are logged and skipped; a missing directory is not an error.
func (h *Host) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		h.log.Warn("plugin directory does not exist", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading plugin dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := h.Load(path); err != nil {
			h.log.Error("failed to load plugin", "path", path, "error", err)
		}
	}
	return nil
}

// Load loads one script and registers its handler. Loading a path that is
// already loaded replaces the previous registration.
func (h *Host) Load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	state := luavm.NewState()
	h.installAPI(state)

	table, err := state.LoadScript(abs)
	if err != nil {
		state.Close()
		return fmt.Errorf("loading %s: %w", abs, err)
	}

	spec, err := readSpec(table)
	if err != nil {
		state.Close()
		return fmt.Errorf("loading %s: %w", abs, err)
	}
	if spec.name == "" {
		base := filepath.Base(abs)
		spec.name = base[:len(base)-len(filepath.Ext(base))]
	}

	handler := &luaHandler{state: state, rule: spec.rule, run: spec.handle}
	regOpts := []dispatch.RegisterOption{
		dispatch.WithPriority(spec.priority),
		dispatch.WithName(spec.name),
	}
	if spec.block {
		regOpts = append(regOpts, dispatch.WithBlock())
	}
	reg, err := h.registrar.RegisterHandler(handler, regOpts...)
	if err != nil {
		state.Close()
		return fmt.Errorf("registering %s: %w", abs, err)
	}

	h.mu.Lock()
	old := h.plugins[abs]
	h.plugins[abs] = &Plugin{path: abs, name: spec.name, state: state, reg: reg}
	h.mu.Unlock()

	if old != nil {
		h.retire(old)
	}
	h.log.Info("plugin loaded", "name", spec.name, "path", abs, "priority", spec.priority)
	return nil
}

// Unload removes a script's handler and releases its interpreter.
func (h *Host) Unload(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	h.mu.Lock()
	p, ok := h.plugins[abs]
	delete(h.plugins, abs)
	h.mu.Unlock()

	if !ok {
		return ErrNotLoaded
	}
	h.retire(p)
	h.log.Info("plugin unloaded", "name", p.name, "path", abs)
	return nil
}

// Reload replaces a loaded script with a fresh interpreter. It is the
// hot-reload entry point: the watcher calls it on file changes.
func (h *Host) Reload(path string) error {
	return h.Load(path)
}

// Plugins returns the loaded plugins sorted by path.
func (h *Host) Plugins() []*Plugin {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Plugin, 0, len(h.plugins))
	for _, p := range h.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Close unloads every plugin.
func (h *Host) Close() {
	h.mu.Lock()
	plugins := h.plugins
	h.plugins = make(map[string]*Plugin)
	h.mu.Unlock()

	for _, p := range plugins {
		h.retire(p)
	}
}

func (h *Host) retire(p *Plugin) {
	if err := h.registrar.UnregisterHandler(p.reg); err != nil {
		h.log.Warn("unregistering plugin handler", "name", p.name, "error", err)
	}
	p.state.Close()
}

// installAPI exposes the lark module to a plugin interpreter.
func (h *Host) installAPI(state *luavm.State) {
	state.RegisterModule("lark", map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			level := L.CheckString(1)
			msg := L.CheckString(2)
			switch level {
			case "debug":
				h.log.Debug(msg)
			case "warn":
				h.log.Warn(msg)
			case "error":
				h.log.Error(msg)
			default:
				h.log.Info(msg)
			}
			return 0
		},
		"skip": func(L *lua.LState) int {
			L.RaiseError(skipMarker)
			return 0
		},
		"stop": func(L *lua.LState) int {
			L.RaiseError(stopMarker)
			return 0
		},
	})
}

// pluginSpec is the parsed script table.
type pluginSpec struct {
	name     string
	priority int
	block    bool
	rule     lua.LValue
	handle   lua.LValue
}

func readSpec(table *lua.LTable) (*pluginSpec, error) {
	spec := &pluginSpec{
		rule:   table.RawGetString("rule"),
		handle: table.RawGetString("handle"),
	}

	if spec.handle.Type() != lua.LTFunction {
		return nil, ErrNoHandle
	}
	if spec.rule != lua.LNil && spec.rule.Type() != lua.LTFunction {
		return nil, fmt.Errorf("rule must be a function, got %s", spec.rule.Type())
	}

	if v := table.RawGetString("name"); v.Type() == lua.LTString {
		spec.name = lua.LVAsString(v)
	}
	if v := table.RawGetString("priority"); v.Type() == lua.LTNumber {
		spec.priority = int(lua.LVAsNumber(v))
	}
	spec.block = lua.LVAsBool(table.RawGetString("block"))

	return spec, nil
}
