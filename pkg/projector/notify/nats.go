package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSWaker publishes a short-lived message on a per-projection subject
// each time Notify is called (the engine calls it when a run releases its
// lease), so an idle runner can wake before its poll tick elapses. Polling still runs on every pass; a missed
// notification is never a correctness problem, only a latency one.
type NATSWaker struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSWaker wraps an existing NATS connection. prefix namespaces the
// subjects this waker uses, e.g. "projector.wake".
func NewNATSWaker(conn *nats.Conn, prefix string) *NATSWaker {
	if prefix == "" {
		prefix = "projector.wake"
	}
	return &NATSWaker{conn: conn, prefix: prefix}
}

func (w *NATSWaker) subject(name string) string {
	return fmt.Sprintf("%s.%s", w.prefix, name)
}

// Notify publishes an empty wake message for name.
func (w *NATSWaker) Notify(ctx context.Context, name string) error {
	if err := w.conn.Publish(w.subject(name), nil); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Wait subscribes for name and blocks until either a message arrives or ctx
// is done.
func (w *NATSWaker) Wait(ctx context.Context, name string) {
	ch := make(chan *nats.Msg, 1)
	sub, err := w.conn.ChanSubscribe(w.subject(name), ch)
	if err != nil {
		// Degrade to plain poll-interval sleep on subscribe failure.
		<-ctx.Done()
		return
	}
	defer sub.Unsubscribe()

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// Close closes the underlying NATS connection.
func (w *NATSWaker) Close() error {
	w.conn.Close()
	return nil
}

var _ Waker = (*NATSWaker)(nil)
