package store

import "time"

// OperationalStatus is a purely observational status, distinct from the
// lifecycle Status a ControlStore row carries: it tells an operator whether
// a projection is caught up, mid-rebuild, or has failed, without implying
// any action.
type OperationalStatus string

const (
	OperationalReady       OperationalStatus = "READY"
	OperationalRebuilding  OperationalStatus = "REBUILDING"
	OperationalFailed      OperationalStatus = "FAILED"
)

// RebuildProgress reports how far a rebuild has gotten. TotalEvents is zero
// when the total is unknown ahead of time.
type RebuildProgress struct {
	EventsProcessed int64
	TotalEvents     int64
	StartedAt       time.Time
}

// OperationalState is one projection's monitoring snapshot.
type OperationalState struct {
	ProjectionName string
	Status         OperationalStatus
	Message        string
	UpdatedAt      time.Time
	Progress       *RebuildProgress
}

// ProjectionMonitor persists operational state for observability. Writes
// here never block or fail the main loop: callers should log and continue on
// error rather than abort a run over a monitoring write.
type ProjectionMonitor interface {
	Save(name string, state *OperationalState) error
	Load(name string) (*OperationalState, error)
	UpdateProgress(name string, progress *RebuildProgress) error
}
