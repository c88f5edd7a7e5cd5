// Package dispatch runs the prioritized handler chain over incoming events.
//
// Handlers are registered into a priority table: a map from priority (a
// non-negative integer, lower runs first) to the ordered list of handlers
// sharing that priority (a tier). For each event the dispatcher walks tiers
// in ascending priority and, within a tier, handlers in registration order,
// invoking Matches and then Handle on each.
//
// # Control flow
//
// Handlers steer the chain with two sentinel signals and one descriptor
// flag:
//
//   - Skip, returned from Matches or Handle, aborts only the raising
//     handler; the next handler in the same tier still runs.
//   - Stop aborts the rest of the dispatch: no further handlers in the
//     current tier and no further tiers.
//   - A registration with the Block flag that matched and handled without
//     Skip also aborts the rest of the dispatch.
//
// Any other error, and any panic, is a handler fault: it is logged with the
// handler identity and event representation, and the chain continues as if
// that handler had not matched. One misbehaving handler never takes down
// event processing for the others.
//
// Handlers for a single event always run sequentially; concurrency in the
// runtime is across distinct events, never within one event's chain.
//
// # Hooks
//
// Preprocessors run before the first tier and postprocessors after the last,
// each in registration order. Hook faults are logged and do not abort the
// event. Registration returns a handle for later removal.
package dispatch
