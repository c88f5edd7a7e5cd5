package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeReloader records reload and unload calls.
type fakeReloader struct {
	mu       sync.Mutex
	reloads  []string
	unloads  []string
	notified chan struct{}
}

func newFakeReloader() *fakeReloader {
	return &fakeReloader{notified: make(chan struct{}, 16)}
}

func (r *fakeReloader) Reload(path string) error {
	r.mu.Lock()
	r.reloads = append(r.reloads, filepath.Base(path))
	r.mu.Unlock()
	r.notified <- struct{}{}
	return nil
}

func (r *fakeReloader) Unload(path string) error {
	r.mu.Lock()
	r.unloads = append(r.unloads, filepath.Base(path))
	r.mu.Unlock()
	r.notified <- struct{}{}
	return nil
}

func (r *fakeReloader) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notified:
	case <-time.After(5 * time.Second):
		t.Fatal("no watcher notification")
	}
}

func startWatcher(t *testing.T, dir string, r Reloader) *Watcher {
	t.Helper()

	w, err := New(r,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })

	if err := w.Add(dir); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w
}

func TestWriteTriggersReload(t *testing.T) {
	dir := t.TempDir()
	r := newFakeReloader()
	startWatcher(t, dir, r)

	path := filepath.Join(dir, "echo.lua")
	if err := os.WriteFile(path, []byte(`return {}`), 0o600); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	r.wait(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reloads) == 0 || r.reloads[0] != "echo.lua" {
		t.Errorf("reloads = %v, want echo.lua", r.reloads)
	}
}

func TestRemoveTriggersUnload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.lua")
	if err := os.WriteFile(path, []byte(`return {}`), 0o600); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	r := newFakeReloader()
	startWatcher(t, dir, r)

	if err := os.Remove(path); err != nil {
		t.Fatalf("removing script: %v", err)
	}

	r.wait(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.unloads) == 0 || r.unloads[0] != "echo.lua" {
		t.Errorf("unloads = %v, want echo.lua", r.unloads)
	}
}

func TestNonLuaFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	r := newFakeReloader()
	startWatcher(t, dir, r)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	select {
	case <-r.notified:
		t.Fatal("watcher reacted to a non-lua file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	r := newFakeReloader()
	startWatcher(t, dir, r)

	path := filepath.Join(dir, "echo.lua")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(`return {}`), 0o600); err != nil {
			t.Fatalf("writing script: %v", err)
		}
	}

	r.wait(t)
	// Allow any stragglers to land before counting.
	time.Sleep(100 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reloads) > 2 {
		t.Errorf("got %d reloads for a write burst, want them coalesced", len(r.reloads))
	}
}
