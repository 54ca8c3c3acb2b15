package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

var traceTables = []string{"runs", "steps", "events", "rollbacks"}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range traceTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		got, err := s.pragma(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func hasIndex(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='index' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("look up index %s: %v", name, err)
	}
	return n == 1
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	for _, name := range []string{"idx_events_kind", "idx_events_time"} {
		if !hasIndex(t, s.db, name) {
			t.Errorf("%s not found", name)
		}
	}
}

func TestConstraint_TraceRowsNeedARun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO steps (run_id, seq, begin_time, end_time, step_size, solver, rounds, retries)
		VALUES ('ghost', 1, 0, 0.1, 0.1, 'forward-euler', 1, 0)
	`)
	if err == nil {
		t.Error("expected foreign key violation for a step without a run")
	}
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	got, err := s.pragma("user_version")
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprint(schemaVersion); got != want {
		t.Errorf("user_version = %s, want %s", got, want)
	}
}

// rewind drops the indexes the migrations create and sets user_version back,
// then reopens the file without applying schema.sql.
func rewind(t *testing.T, version int) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	for _, stmt := range []string{
		"DROP INDEX idx_events_kind",
		"DROP INDEX idx_events_time",
		fmt.Sprintf("PRAGMA user_version = %d", version),
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	db := rewind(t, 0)

	if err := migrate(db); err != nil {
		t.Fatalf("migrate() failed: %v", err)
	}
	for _, name := range []string{"idx_events_kind", "idx_events_time"} {
		if !hasIndex(t, db, name) {
			t.Errorf("migration did not restore %s", name)
		}
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("get user_version: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("user_version = %d, want %d", version, schemaVersion)
	}
}

func TestMigration_SkipsAppliedVersions(t *testing.T) {
	db := rewind(t, 1)

	if err := migrate(db); err != nil {
		t.Fatalf("migrate() failed: %v", err)
	}
	if hasIndex(t, db, "idx_events_kind") {
		t.Error("migration 1 ran again on a version 1 database")
	}
	if !hasIndex(t, db, "idx_events_time") {
		t.Error("migration 2 did not run")
	}
}
