package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/plaenen/projector/pkg/domain"
)

// Status is the lifecycle status of a projection's control row, driven by
// the remote-control poller and the engine's own transitions.
type Status string

const (
	StatusIdle                 Status = "idle"
	StatusRunning              Status = "running"
	StatusStopping             Status = "stopping"
	StatusDeleting             Status = "deleting"
	StatusDeletingInclEmitted  Status = "deleting-incl-emitted"
	StatusResetting            Status = "resetting"
)

// ErrProjectionNotFound is returned by ControlStore operations that affect
// exactly one row by name when no row with that name exists.
var ErrProjectionNotFound = errors.New("store: projection not found")

// ErrLockHeld is returned by the lock manager when a control row's lock is
// already held by another runner and has not yet expired.
var ErrLockHeld = errors.New("store: lock held by another runner")

// ControlRow is the persisted state of one projection's control record.
type ControlRow struct {
	Name        string
	Position    domain.Positions
	State       json.RawMessage
	Status      Status
	LockedUntil *time.Time
}

// ControlStore persists the single control row each projection owns: its
// checkpoint (position + state) and its lifecycle status. Every method that
// targets a row by name must affect exactly one row, or return
// ErrProjectionNotFound.
type ControlStore interface {
	// Exists reports whether a control row for name has been created.
	Exists(ctx context.Context, name string) (bool, error)

	// Create inserts a fresh control row in the given status with an empty
	// position map and nil state. It is a no-op if the row already exists.
	Create(ctx context.Context, name string, status Status) error

	// Load returns the row's checkpoint: its position map and opaque state.
	Load(ctx context.Context, name string) (domain.Positions, json.RawMessage, error)

	// Persist writes a new checkpoint and refreshes the lock. Called after
	// each persisted batch of the main loop.
	Persist(ctx context.Context, name string, lockedUntil time.Time, state json.RawMessage, position domain.Positions) error

	// UpdateStatus sets the row's status without touching the checkpoint or
	// the lock.
	UpdateStatus(ctx context.Context, name string, status Status) error

	// ClearLock releases the lock (sets lockedUntil to nil) and sets status
	// in one write. Used when a runner stops holding its lease.
	ClearLock(ctx context.Context, name string, status Status) error

	// DeleteRow removes the control row entirely.
	DeleteRow(ctx context.Context, name string) error
}

// LockStore is the subset of control-row operations the lock manager (C5)
// uses to coordinate exclusive ownership of a projection's run loop across
// processes.
type LockStore interface {
	// AcquireLock attempts to take the lock for name until `until`. It
	// succeeds if no lock is currently held (lockedUntil is nil or in the
	// past). It reports whether the lock was acquired; callers MUST treat a
	// false result as a failure to start rather than silently proceeding.
	AcquireLock(ctx context.Context, name string, until time.Time) (bool, error)

	// RefreshLock unconditionally sets the lock's expiry to `until`. It
	// fails only if no row exists for name; it does not check which runner
	// holds the lock.
	RefreshLock(ctx context.Context, name string, until time.Time) error
}
