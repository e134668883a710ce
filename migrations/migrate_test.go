package migrations

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

func TestRunMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() }) //nolint:errcheck // Test cleanup

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	if err := RunMigrations(db, cwd, zerolog.Nop()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	// Both tables of the schema must exist.
	for _, table := range []string{"memory_records", "conversations"} {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}

	// A second run on a current schema is a no-op, not an error.
	if err := RunMigrations(db, cwd, zerolog.Nop()); err != nil {
		t.Errorf("re-run on current schema: %v", err)
	}
}
