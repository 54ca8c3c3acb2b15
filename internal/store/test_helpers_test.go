package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun starts a run with a fixed configuration.
func beginTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	cfg := map[string]any{"stop_time": 1.0, "solver": "forward-euler"}
	if err := s.BeginRun(context.Background(), id, "test-model", cfg); err != nil {
		t.Fatalf("BeginRun(%s) failed: %v", id, err)
	}
}
