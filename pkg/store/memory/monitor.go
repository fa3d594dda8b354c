package memory

import (
	"sync"

	"github.com/plaenen/projector/pkg/store"
)

// Monitor is an in-memory store.ProjectionMonitor.
type Monitor struct {
	mu     sync.Mutex
	states map[string]*store.OperationalState
}

func NewMonitor() *Monitor {
	return &Monitor{states: make(map[string]*store.OperationalState)}
}

func (m *Monitor) Save(name string, state *store.OperationalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
	return nil
}

func (m *Monitor) Load(name string) (*store.OperationalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[name]
	if !ok {
		return nil, store.ErrProjectionNotFound
	}
	return state, nil
}

func (m *Monitor) UpdateProgress(name string, progress *store.RebuildProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[name]
	if !ok {
		return store.ErrProjectionNotFound
	}
	state.Progress = progress
	return nil
}

var _ store.ProjectionMonitor = (*Monitor)(nil)
