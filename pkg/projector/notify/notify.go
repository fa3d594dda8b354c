// Package notify provides an optional low-latency wake signal for idle
// projectors. Polling the control row remains the source of truth (see
// spec §4.4/§9); a Waker only shortens how long an idle projector sleeps
// before its next poll.
package notify

import "context"

// Waker publishes and observes wake signals for a named projection.
type Waker interface {
	// Notify asks any idle runner for name to wake up promptly.
	Notify(ctx context.Context, name string) error

	// Wait blocks until either a wake signal for name arrives or ctx is
	// done, whichever comes first. It never returns an error purely from
	// timing out; callers distinguish by checking ctx.Err().
	Wait(ctx context.Context, name string)

	// Close releases the waker's resources.
	Close() error
}

// Noop is a Waker that never wakes early; every idle pass falls through to
// the full poll-interval sleep.
type Noop struct{}

func (Noop) Notify(ctx context.Context, name string) error { return nil }
func (Noop) Wait(ctx context.Context, name string)         { <-ctx.Done() }
func (Noop) Close() error                                  { return nil }

var _ Waker = Noop{}
