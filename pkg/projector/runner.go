package projector

import (
	"context"

	"github.com/plaenen/projector/pkg/domain"
)

// Projector is the plain projection variant (C7): it tracks positions and
// state but owns no external read model. Emitted events land on its own
// stream, named after the projection.
type Projector struct {
	e *engine
}

// Run executes one invocation of the main loop. If keepRunning is true the
// loop continues until the control row's status requests a stop or delete,
// Stop is called, or ctx is done; a reset clears progress and the loop goes
// on from the start. If keepRunning is false it performs a single
// merge-load/dispatch/persist pass and returns. Run always attempts to release its lease before returning.
func (p *Projector) Run(ctx context.Context, keepRunning bool) error {
	return p.e.run(ctx, keepRunning)
}

// Stop requests that an in-progress Run return at the next opportunity. It
// is safe to call from another goroutine.
func (p *Projector) Stop() {
	p.e.stop()
}

// State returns the projection's current in-memory state. Only meaningful
// while or after a Run has executed.
func (p *Projector) State() any {
	return p.e.state
}

// Emit appends event to this projection's own stream, creating it on first
// use.
func (p *Projector) Emit(ctx context.Context, event *domain.Event) error {
	return p.e.emit(ctx, event)
}

// LinkTo appends event to the named stream, creating it on first use.
func (p *Projector) LinkTo(ctx context.Context, streamName string, event *domain.Event) error {
	return p.e.linkTo(ctx, streamName, event)
}
