package lua

import (
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/larkbot/lark/internal/event"
)

// EventTable converts an event into the table handed to plugin functions.
//
// Every event exposes adapter and kind. Payload-carrying events add raw
// (the payload bytes as a string) and field(path), a path lookup into the
// payload JSON.
func EventTable(L *lua.LState, e event.Event) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "adapter", lua.LString(e.AdapterName()))
	L.SetField(t, "kind", lua.LString(e.Kind()))

	if g, ok := e.(*event.Generic); ok {
		raw := g.Raw()
		L.SetField(t, "raw", lua.LString(raw))
		// Accepts both e.field("a.b") and e:field("a.b").
		L.SetField(t, "field", L.NewFunction(func(L *lua.LState) int {
			path := L.CheckString(L.GetTop())
			L.Push(lua.LString(gjson.GetBytes(raw, path).String()))
			return 1
		}))
	}
	return t
}
