package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/plaenen/projector/pkg/store/sqlite"
)

func setupWidgets(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, label TEXT)`)
	return err
}

func dropWidgets(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS widgets`)
	return err
}

func countWidgets(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM widgets`).Scan(&n); err != nil {
		t.Fatalf("count widgets: %v", err)
	}
	return n
}

func TestTxReadModel_InitIsOneTimeAndTrackedSeparatelyFromMigrations(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "rm.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	rm := sqlite.NewTxReadModel(es.DB(), "widgets", setupWidgets, dropWidgets)

	// A fresh read model must report uninitialized even though the event
	// store's own schema_migrations table already exists at this point —
	// the two must not be confused with each other.
	initialized, err := rm.IsInitialized(ctx)
	if err != nil {
		t.Fatalf("is initialized: %v", err)
	}
	if initialized {
		t.Fatalf("expected a fresh read model to report uninitialized")
	}

	if err := rm.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	initialized, err = rm.IsInitialized(ctx)
	if err != nil {
		t.Fatalf("is initialized: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized after Init")
	}
}

func TestTxReadModel_WithTxPersistCommitsBatch(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "rm.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	rm := sqlite.NewTxReadModel(es.DB(), "widgets", setupWidgets, dropWidgets)
	if err := rm.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	txCtx, err := rm.WithTx(ctx)
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	tx, ok := sqlite.TxFromContext(txCtx)
	if !ok {
		t.Fatalf("expected a transaction in context")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO widgets (label) VALUES (?)`, "a"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// A second WithTx call within the same batch must reuse the open tx,
	// not start a second one.
	txCtx2, err := rm.WithTx(ctx)
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	tx2, _ := sqlite.TxFromContext(txCtx2)
	if tx2 != tx {
		t.Fatalf("expected WithTx to reuse the same transaction within a batch")
	}
	if _, err := tx2.ExecContext(ctx, `INSERT INTO widgets (label) VALUES (?)`, "b"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := rm.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if n := countWidgets(t, es.DB()); n != 2 {
		t.Fatalf("expected 2 committed widgets, got %d", n)
	}
}

func TestTxReadModel_ResetRollsBackAndRebuildsSchema(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "rm.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	rm := sqlite.NewTxReadModel(es.DB(), "widgets", setupWidgets, dropWidgets)
	if err := rm.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	txCtx, err := rm.WithTx(ctx)
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	tx, _ := sqlite.TxFromContext(txCtx)
	if _, err := tx.ExecContext(ctx, `INSERT INTO widgets (label) VALUES (?)`, "uncommitted"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := rm.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if n := countWidgets(t, es.DB()); n != 0 {
		t.Fatalf("expected reset to roll back the uncommitted insert and leave an empty table, got %d rows", n)
	}

	initialized, err := rm.IsInitialized(ctx)
	if err != nil {
		t.Fatalf("is initialized: %v", err)
	}
	if !initialized {
		t.Fatalf("expected reset to leave the read model's init marker intact")
	}
}

func TestTxReadModel_DeleteClearsMarker(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "rm.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	rm := sqlite.NewTxReadModel(es.DB(), "widgets", setupWidgets, dropWidgets)
	if err := rm.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := rm.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}

	initialized, err := rm.IsInitialized(ctx)
	if err != nil {
		t.Fatalf("is initialized: %v", err)
	}
	if initialized {
		t.Fatalf("expected Delete to clear the init marker so a later Init reruns setup")
	}
}
