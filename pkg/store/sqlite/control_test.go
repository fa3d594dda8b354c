package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
	"github.com/plaenen/projector/pkg/store/sqlite"
)

func openTestControlStore(t *testing.T) *sqlite.ControlStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "control.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })
	return sqlite.NewControlStore(es.DB())
}

func TestControlStore_CreateLoadPersist(t *testing.T) {
	ctx := context.Background()
	cs := openTestControlStore(t)

	if err := cs.Create(ctx, "p", store.StatusIdle); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Create is idempotent.
	if err := cs.Create(ctx, "p", store.StatusRunning); err != nil {
		t.Fatalf("create (idempotent): %v", err)
	}

	state, _ := json.Marshal(map[string]int{"n": 7})
	if err := cs.Persist(ctx, "p", time.Now().Add(time.Minute), state, domain.Positions{"s": 4}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	pos, loaded, err := cs.Load(ctx, "p")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pos["s"] != 4 {
		t.Fatalf("expected position s=4, got %v", pos)
	}
	var decoded map[string]int
	if err := json.Unmarshal(loaded, &decoded); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if decoded["n"] != 7 {
		t.Fatalf("expected n=7, got %v", decoded)
	}
}

func TestControlStore_LoadMissingRow(t *testing.T) {
	cs := openTestControlStore(t)
	_, _, err := cs.Load(context.Background(), "missing")
	if !errors.Is(err, store.ErrProjectionNotFound) {
		t.Fatalf("expected ErrProjectionNotFound, got %v", err)
	}
}

func TestControlStore_AcquireLockExpiry(t *testing.T) {
	ctx := context.Background()
	cs := openTestControlStore(t)
	if err := cs.Create(ctx, "locked", store.StatusIdle); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := cs.AcquireLock(ctx, "locked", time.Now().Add(-time.Millisecond))
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = cs.AcquireLock(ctx, "locked", time.Now().Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("expected expired lease to be reacquirable, ok=%v err=%v", ok, err)
	}

	ok, err = cs.AcquireLock(ctx, "locked", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if ok {
		t.Fatalf("expected concurrent AcquireLock to be rejected while lease is live")
	}
}

func TestControlStore_AcquireLockMissingRowFails(t *testing.T) {
	cs := openTestControlStore(t)
	ok, err := cs.AcquireLock(context.Background(), "nope", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if ok {
		t.Fatalf("expected AcquireLock on a nonexistent row to fail rather than silently succeed")
	}
}

func TestControlStore_ClearLockAndDeleteRow(t *testing.T) {
	ctx := context.Background()
	cs := openTestControlStore(t)
	if err := cs.Create(ctx, "p", store.StatusRunning); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cs.AcquireLock(ctx, "p", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if err := cs.ClearLock(ctx, "p", store.StatusIdle); err != nil {
		t.Fatalf("clear lock: %v", err)
	}
	status, err := cs.FetchProjectionStatus(ctx, "p")
	if err != nil || status != store.StatusIdle {
		t.Fatalf("expected idle status, got %v err=%v", status, err)
	}

	if err := cs.DeleteRow(ctx, "p"); err != nil {
		t.Fatalf("delete row: %v", err)
	}
	if err := cs.DeleteRow(ctx, "p"); !errors.Is(err, store.ErrProjectionNotFound) {
		t.Fatalf("expected ErrProjectionNotFound on second delete, got %v", err)
	}
}

func TestControlStore_FetchProjectionStatusDefaultsIdleForMissingRow(t *testing.T) {
	cs := openTestControlStore(t)
	status, err := cs.FetchProjectionStatus(context.Background(), "missing")
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if status != store.StatusIdle {
		t.Fatalf("expected idle for missing row, got %v", status)
	}
}
