// Package sqlite is a modernc.org/sqlite-backed implementation of the
// projector's storage interfaces: the event log (store.EventStore), the
// projection control row (store.ControlStore/store.LockStore/
// store.ProjectionManager), and the operational status surface
// (store.ProjectionMonitor).
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/plaenen/projector/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens (creating if necessary) a SQLite database at dsn, sets the
// pragmas the engine's concurrency model needs, and runs every pending
// migration. dsn is passed through to modernc.org/sqlite verbatim, so
// ":memory:" and "file:...?mode=memory&cache=shared" both work.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	m := migrate.New(db, "schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return m.Up()
}
