// Package testutil holds storage fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/mailreply/internal/ratelimit"
	"github.com/nhle/mailreply/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestFileStore creates a JSON history file store in a fresh
// temporary directory.
func NewTestFileStore(t *testing.T) *store.FileStore {
	t.Helper()

	s, err := store.NewFileStore(filepath.Join(t.TempDir(), "request_history.json"))
	if err != nil {
		t.Fatalf("creating file store: %v", err)
	}
	return s
}

// NewTestLimiter returns a limiter over an in-memory SQLite store, and
// the store so tests can inspect the outcome log.
func NewTestLimiter(t *testing.T, limit int, opts ...ratelimit.Option) (*ratelimit.Limiter, *store.SQLiteStore) {
	t.Helper()

	s := NewTestStore(t)
	return ratelimit.New(s, limit, opts...), s
}
