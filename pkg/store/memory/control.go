package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
)

type controlRow struct {
	position    domain.Positions
	state       json.RawMessage
	status      store.Status
	lockedUntil *time.Time
}

// ControlStore is an in-memory store.ControlStore, store.LockStore, and
// store.ProjectionManager. Useful for unit tests of the engine that don't
// want a real database in the loop.
type ControlStore struct {
	mu   sync.Mutex
	rows map[string]*controlRow

	// streamNames, when set, backs FetchAllStreamNames independently of any
	// EventStore, so engine tests can control exactly what a fromAll
	// projection discovers.
	streamNames func(ctx context.Context) ([]string, error)
}

// NewControlStore returns an empty ControlStore. streamNames is usually
// (*memory.EventStore).StreamNames, injected so FetchAllStreamNames agrees
// with whatever event store the same test is using.
func NewControlStore(streamNames func(ctx context.Context) ([]string, error)) *ControlStore {
	return &ControlStore{rows: make(map[string]*controlRow), streamNames: streamNames}
}

func (s *ControlStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[name]
	return ok, nil
}

func (s *ControlStore) Create(ctx context.Context, name string, status store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[name]; ok {
		return nil
	}
	s.rows[name] = &controlRow{position: domain.Positions{}, status: status}
	return nil
}

func (s *ControlStore) Load(ctx context.Context, name string) (domain.Positions, json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return nil, nil, store.ErrProjectionNotFound
	}
	return row.position.Clone(), row.state, nil
}

func (s *ControlStore) Persist(ctx context.Context, name string, lockedUntil time.Time, state json.RawMessage, position domain.Positions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return store.ErrProjectionNotFound
	}
	row.position = position.Clone()
	row.state = state
	until := lockedUntil
	row.lockedUntil = &until
	return nil
}

func (s *ControlStore) UpdateStatus(ctx context.Context, name string, status store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return store.ErrProjectionNotFound
	}
	row.status = status
	return nil
}

func (s *ControlStore) ClearLock(ctx context.Context, name string, status store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return store.ErrProjectionNotFound
	}
	row.lockedUntil = nil
	row.status = status
	return nil
}

func (s *ControlStore) DeleteRow(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[name]; !ok {
		return store.ErrProjectionNotFound
	}
	delete(s.rows, name)
	return nil
}

func (s *ControlStore) AcquireLock(ctx context.Context, name string, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return false, nil
	}
	if row.lockedUntil != nil && row.lockedUntil.After(time.Now()) {
		return false, nil
	}
	u := until
	row.lockedUntil = &u
	return true, nil
}

func (s *ControlStore) RefreshLock(ctx context.Context, name string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return store.ErrProjectionNotFound
	}
	u := until
	row.lockedUntil = &u
	return nil
}

func (s *ControlStore) FetchProjectionStatus(ctx context.Context, name string) (store.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return store.StatusIdle, nil
	}
	return row.status, nil
}

func (s *ControlStore) IdleProjection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return nil
	}
	row.status = store.StatusIdle
	return nil
}

// LockedUntil exposes the row's current lease expiry for tests that assert
// on lock-renewal behavior directly; none of the store interfaces expose it,
// since callers are meant to go through AcquireLock/RefreshLock instead.
func (s *ControlStore) LockedUntil(name string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return nil, store.ErrProjectionNotFound
	}
	if row.lockedUntil == nil {
		return nil, nil
	}
	u := *row.lockedUntil
	return &u, nil
}

func (s *ControlStore) FetchAllStreamNames(ctx context.Context) ([]string, error) {
	if s.streamNames == nil {
		return nil, nil
	}
	return s.streamNames(ctx)
}

var (
	_ store.ControlStore      = (*ControlStore)(nil)
	_ store.LockStore         = (*ControlStore)(nil)
	_ store.ProjectionManager = (*ControlStore)(nil)
)
