package projector

import (
	"context"
	"fmt"

	"github.com/plaenen/projector/pkg/runner"
)

// Runnable is the subset of Projector/ReadModelProjector a Service drives.
type Runnable interface {
	Run(ctx context.Context, keepRunning bool) error
	Stop()
}

// Service adapts a long-running projector (keepRunning=true) to
// runner.Service, so it can sit alongside other services (an embedded NATS
// server, an HTTP server) under one runner.Runner.
type Service struct {
	name string
	p    Runnable
	done chan error
}

// NewService wraps p under the given service name.
func NewService(name string, p Runnable) *Service {
	return &Service{name: name, p: p}
}

func (s *Service) Name() string { return s.name }

func (s *Service) Start(ctx context.Context) error {
	s.done = make(chan error, 1)
	go func() {
		s.done <- s.p.Run(context.Background(), true)
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.p.Stop()
	select {
	case err := <-s.done:
		if err != nil {
			return fmt.Errorf("projection %s: %w", s.name, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ runner.Service = (*Service)(nil)
