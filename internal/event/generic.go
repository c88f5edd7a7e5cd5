package event

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Generic is an event carrying a raw JSON payload, the shape most chat
// protocols deliver. Fields are read lazily by path so adapters do not need
// a schema for every frame they forward.
type Generic struct {
	*Base
	raw []byte
}

// NewGeneric creates a JSON-payload event from an adapter frame.
// The payload is retained, not copied; the caller must not mutate it.
func NewGeneric(adapter, kind string, payload []byte) *Generic {
	return &Generic{
		Base: NewBase(adapter, kind),
		raw:  payload,
	}
}

// Field returns the payload value at the given gjson path.
// The zero Result is returned for missing paths.
func (g *Generic) Field(path string) gjson.Result {
	return gjson.GetBytes(g.raw, path)
}

// Raw returns the underlying JSON payload.
func (g *Generic) Raw() []byte {
	return g.raw
}

// String implements Event.String, including a payload preview.
func (g *Generic) String() string {
	const previewLimit = 120

	preview := string(g.raw)
	if len(preview) > previewLimit {
		preview = preview[:previewLimit] + "..."
	}
	return fmt.Sprintf("<%s event from %s: %s>", g.Kind(), g.AdapterName(), preview)
}
