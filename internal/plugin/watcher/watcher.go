// Package watcher provides hot reload for plugin directories.
//
// The watcher monitors plugin directories and reloads or unloads scripts
// when their files change on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces rapid write bursts from editors that save in
// multiple steps.
const DefaultDebounce = 200 * time.Millisecond

// Reloader receives file change notifications. The plugin host implements it.
type Reloader interface {
	Reload(path string) error
	Unload(path string) error
}

// Watcher monitors plugin directories for script changes.
type Watcher struct {
	reloader Reloader
	log      *slog.Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithDebounce sets the reload debounce duration.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher delivering changes to r.
func New(r Reloader, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}

	w := &Watcher{
		reloader: r,
		log:      slog.Default(),
		fsw:      fsw,
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add starts watching a plugin directory.
func (w *Watcher) Add(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.log.Debug("watching plugin directory", "dir", dir)
	return nil
}

// Run processes file events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("plugin watcher error", "error", err)
		}
	}
}

// handle routes one fs event. Writes and creates are debounced into a
// reload; removes and renames unload immediately.
func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != ".lua" {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelPending(ev.Name)
		if err := w.reloader.Unload(ev.Name); err != nil {
			w.log.Warn("unloading removed plugin", "path", ev.Name, "error", err)
		}
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		w.scheduleReload(ev.Name)
	}
}

func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if err := w.reloader.Reload(path); err != nil {
			w.log.Error("reloading plugin", "path", path, "error", err)
			return
		}
		w.log.Info("plugin reloaded", "path", path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// Close stops watching. Pending debounced reloads are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
