package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"verdict/internal/testutil"
	"verdict/internal/vote"
)

// openStore opens a fresh store in a temp dir with a fixed clock so
// timestamps are deterministic.
func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := Open(path, WithClock(testutil.FixedClock(fixed)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// initSession initializes a session with sane defaults.
func initSession(t *testing.T, s *Store, id string, steps, k int) {
	t.Helper()
	if err := s.Initialize(context.Background(), id, "test task", steps, k, 0, false); err != nil {
		t.Fatalf("Initialize(%s) failed: %v", id, err)
	}
}

// screened builds an accepted attempt through the real filter.
func screened(t *testing.T, stepID, action, result string) *vote.Attempt {
	t.Helper()
	raw := `{"step_id":"` + stepID + `","action":"` + action + `","result":"` + result + `"}`
	a, flag := vote.Screen([]byte(raw))
	if flag != nil {
		t.Fatalf("Screen() rejected test payload: %s", flag.Reason())
	}
	return a
}
