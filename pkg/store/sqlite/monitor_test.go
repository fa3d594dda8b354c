package sqlite_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/plaenen/projector/pkg/store"
	"github.com/plaenen/projector/pkg/store/sqlite"
)

func openTestMonitor(t *testing.T) *sqlite.Monitor {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "monitor.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })
	return sqlite.NewMonitor(es.DB())
}

func TestMonitor_SaveLoadUpdateProgress(t *testing.T) {
	m := openTestMonitor(t)

	err := m.Save("p", &store.OperationalState{
		ProjectionName: "p",
		Status:         store.OperationalRebuilding,
		Progress: &store.RebuildProgress{
			EventsProcessed: 10,
			StartedAt:       time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Load("p")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != store.OperationalRebuilding {
		t.Fatalf("expected REBUILDING, got %v", got.Status)
	}
	if got.Progress == nil || got.Progress.EventsProcessed != 10 {
		t.Fatalf("expected progress with 10 events processed, got %+v", got.Progress)
	}

	if err := m.UpdateProgress("p", &store.RebuildProgress{EventsProcessed: 25, StartedAt: time.Now()}); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err = m.Load("p")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Progress.EventsProcessed != 25 {
		t.Fatalf("expected 25 events processed, got %d", got.Progress.EventsProcessed)
	}

	// Save is an upsert: saving again with a new status overwrites, not duplicates.
	if err := m.Save("p", &store.OperationalState{ProjectionName: "p", Status: store.OperationalReady}); err != nil {
		t.Fatalf("save (upsert): %v", err)
	}
	got, err = m.Load("p")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != store.OperationalReady {
		t.Fatalf("expected READY after upsert, got %v", got.Status)
	}
}

func TestMonitor_LoadMissing(t *testing.T) {
	m := openTestMonitor(t)
	_, err := m.Load("missing")
	if !errors.Is(err, store.ErrProjectionNotFound) {
		t.Fatalf("expected ErrProjectionNotFound, got %v", err)
	}
}

func TestMonitor_UpdateProgressMissingRow(t *testing.T) {
	m := openTestMonitor(t)
	err := m.UpdateProgress("missing", &store.RebuildProgress{EventsProcessed: 1})
	if !errors.Is(err, store.ErrProjectionNotFound) {
		t.Fatalf("expected ErrProjectionNotFound, got %v", err)
	}
}
