package projector

import (
	"context"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
)

// ReadModelProjector is the C8 variant: the same engine as Projector, plus
// a store.ReadModel whose Init/Persist/Reset/Delete hooks run at the points
// spec §4.6 calls out (before the first pass, at every checkpoint, and on
// reset/delete).
type ReadModelProjector struct {
	e  *engine
	rm store.ReadModel
}

// Run executes one invocation of the main loop. See Projector.Run.
func (p *ReadModelProjector) Run(ctx context.Context, keepRunning bool) error {
	return p.e.run(ctx, keepRunning)
}

// Stop requests that an in-progress Run return at the next opportunity.
func (p *ReadModelProjector) Stop() {
	p.e.stop()
}

// State returns the projection's current in-memory state.
func (p *ReadModelProjector) State() any {
	return p.e.state
}

// ReadModel returns the underlying read model, for callers that need direct
// query access (e.g. serving reads outside the projection loop).
func (p *ReadModelProjector) ReadModel() store.ReadModel {
	return p.rm
}

// Emit appends event to this projection's own stream, creating it on first
// use.
func (p *ReadModelProjector) Emit(ctx context.Context, event *domain.Event) error {
	return p.e.emit(ctx, event)
}

// LinkTo appends event to the named stream, creating it on first use.
func (p *ReadModelProjector) LinkTo(ctx context.Context, streamName string, event *domain.Event) error {
	return p.e.linkTo(ctx, streamName, event)
}
