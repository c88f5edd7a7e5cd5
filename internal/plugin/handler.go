package plugin

import (
	"context"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/larkbot/lark/internal/dispatch"
	"github.com/larkbot/lark/internal/event"
	luavm "github.com/larkbot/lark/internal/plugin/lua"
)

// Markers raised by lark.skip() and lark.stop(). Lua prefixes raised errors
// with script position info, so mapping matches on substring.
const (
	skipMarker = "lark:skip"
	stopMarker = "lark:stop"
)

// luaHandler adapts one script's rule/handle pair to the handler interface.
type luaHandler struct {
	state *luavm.State
	rule  lua.LValue // LNil means match-all
	run   lua.LValue
}

// Matches implements dispatch.Handler.
func (p *luaHandler) Matches(ctx context.Context, e event.Event) (bool, error) {
	if p.rule == lua.LNil {
		return true, nil
	}

	var matched bool
	err := p.state.Do(func(L *lua.LState) error {
		top := L.GetTop()
		L.Push(p.rule)
		L.Push(luavm.EventTable(L, e))
		if err := L.PCall(1, 1, nil); err != nil {
			return err
		}
		matched = lua.LVAsBool(L.Get(-1))
		L.SetTop(top)
		return nil
	})
	if err != nil {
		return false, mapControlFlow(err)
	}
	return matched, nil
}

// Handle implements dispatch.Handler.
func (p *luaHandler) Handle(ctx context.Context, e event.Event) error {
	err := p.state.Do(func(L *lua.LState) error {
		L.Push(p.run)
		L.Push(luavm.EventTable(L, e))
		return L.PCall(1, 0, nil)
	})
	return mapControlFlow(err)
}

// mapControlFlow turns lark.skip()/lark.stop() raises into the dispatcher's
// flow signals. Anything else passes through as a fault.
func mapControlFlow(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, skipMarker):
		return dispatch.Skip
	case strings.Contains(msg, stopMarker):
		return dispatch.Stop
	default:
		return err
	}
}
