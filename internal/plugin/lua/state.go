// Package lua wraps gopher-lua for plugin execution.
package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State is a sandboxed Lua interpreter owned by one plugin.
//
// gopher-lua's LState is not goroutine-safe; the mutex serializes every
// operation so handler chains running concurrently can share one plugin.
type State struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// NewState creates a Lua state with only the safe standard libraries open.
// io, os, debug and package stay closed: plugins talk to the outside world
// through the host API only.
func NewState() *State {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return &State{L: L}
}

// RegisterModule installs a module table of Go functions as a global.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	mod := s.L.SetFuncs(s.L.NewTable(), funcs)
	s.L.SetGlobal(name, mod)
}

// Do runs fn against the interpreter under the state lock, converting Lua
// panics into errors. All LState access must go through here.
func (s *State) Do(fn func(L *lua.LState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStateClosed
	}
	return s.withRecovery(func() error { return fn(s.L) })
}

// LoadScript runs the file and returns the table it returns.
func (s *State) LoadScript(path string) (*lua.LTable, error) {
	var table *lua.LTable
	err := s.Do(func(L *lua.LState) error {
		top := L.GetTop()
		if err := L.DoFile(path); err != nil {
			return err
		}
		if L.GetTop() <= top {
			return ErrNotATable
		}
		ret := L.Get(-1)
		L.SetTop(top)
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: got %s", ErrNotATable, ret.Type())
		}
		table = t
		return nil
	})
	return table, err
}

// withRecovery converts Lua panics into errors. Caller must hold mu.
func (s *State) withRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Closed reports whether the state has been closed.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the interpreter. It is idempotent.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
