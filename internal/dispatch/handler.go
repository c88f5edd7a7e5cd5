package dispatch

import (
	"context"

	"github.com/larkbot/lark/internal/event"
)

// Handler is a registered unit of event-processing logic.
//
// Matches is the handler's rule: it decides whether the handler wants the
// event. Handle is the body, invoked only when Matches returned true. Either
// method may return Skip or Stop to steer the chain; any other error is a
// fault isolated to this handler.
type Handler interface {
	// Matches reports whether this handler wants the event.
	Matches(ctx context.Context, e event.Event) (bool, error)

	// Handle processes a matched event.
	Handle(ctx context.Context, e event.Event) error
}

// FuncHandler adapts a pair of functions to the Handler interface.
// A nil Match matches every event.
type FuncHandler struct {
	Match func(ctx context.Context, e event.Event) (bool, error)
	Run   func(ctx context.Context, e event.Event) error
}

// Matches implements Handler.Matches.
func (f FuncHandler) Matches(ctx context.Context, e event.Event) (bool, error) {
	if f.Match == nil {
		return true, nil
	}
	return f.Match(ctx, e)
}

// Handle implements Handler.Handle.
func (f FuncHandler) Handle(ctx context.Context, e event.Event) error {
	if f.Run == nil {
		return nil
	}
	return f.Run(ctx, e)
}
