// Package dbtest opens throwaway, fully migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/itemsrv/apiserver/config"
	"github.com/itemsrv/apiserver/internal/db"
)

// Config returns a SQLite database config rooted in a per-test temp dir.
func Config(t testing.TB) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "itemsrv.db"),
	}
}

// Open migrates a fresh SQLite database and returns a handle to it.
// The handle is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	cfg := Config(t)
	if err := db.MigrateUp(cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	conn, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
