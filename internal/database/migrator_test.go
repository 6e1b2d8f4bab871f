package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// The migrator runs against a throwaway SQLite database; the SQL files are
// driver-specific but the migrator logic is shared.
func openTestConnection(t *testing.T) *Connection {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMigrate_AppliesAllOnce(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()
	m := NewMigrator(conn, DriverSQLite)

	applied, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("no migrations applied on fresh database")
	}

	// Tables exist afterwards.
	for _, table := range []string{"usage_records", "page_stats", "geo_records", "migrations"} {
		var name string
		err := conn.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=$1", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migrate: %v", table, err)
		}
	}

	// Second run is a no-op.
	again, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run applied %v, want none", again)
	}
}

func TestMigrationFiles_SortedAndPaired(t *testing.T) {
	t.Parallel()

	for _, driver := range []Driver{DriverPostgres, DriverSQLite} {
		m := &Migrator{driver: driver}
		files, err := m.getMigrationFiles()
		if err != nil {
			t.Fatalf("%s: getMigrationFiles: %v", driver, err)
		}
		if len(files) == 0 {
			t.Errorf("%s: no embedded migrations", driver)
		}
		for i := 1; i < len(files); i++ {
			if files[i-1] >= files[i] {
				t.Errorf("%s: migrations out of order: %s >= %s", driver, files[i-1], files[i])
			}
		}
	}
}
