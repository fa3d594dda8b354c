package projector

import (
	"context"

	"github.com/plaenen/projector/pkg/domain"
)

// Handler folds one event into the projection's state, returning the new
// state. Handlers may be synchronous or may themselves block on ctx; the
// engine awaits either way.
type Handler func(ctx context.Context, event *domain.Event, state any) (any, error)

// handlerRegistry is the write-once "how to consume" configuration (C3): a
// tagged variant that is either a single catch-all handler or a mapping by
// event name, never both. Reject construction of the ambiguous state at the
// builder, not here.
type handlerRegistry struct {
	whenAny Handler
	named   map[string]Handler
}

// dispatch invokes the matching handler, if any. The second return value
// reports whether a handler ran: when using named handlers and no entry
// matches event.Name, dispatch returns (state, false, nil) unchanged — the
// caller still advances positions for events it has no handler for.
func (r *handlerRegistry) dispatch(ctx context.Context, event *domain.Event, state any) (any, bool, error) {
	if r.whenAny != nil {
		next, err := r.whenAny(ctx, event, state)
		if err != nil {
			return state, true, err
		}
		return next, true, nil
	}
	if h, ok := r.named[event.Name]; ok {
		next, err := h(ctx, event, state)
		if err != nil {
			return state, true, err
		}
		return next, true, nil
	}
	return state, false, nil
}

func (r *handlerRegistry) isSet() bool {
	return r.whenAny != nil || len(r.named) > 0
}
