package testsupport

import (
	"context"
	"testing"

	"rematrix/internal/config"
	"rematrix/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewJob creates a job for tests using the provided store.
func NewJob(t testing.TB, st *store.Store, id, markdown string) *store.Job {
	t.Helper()

	job, _, err := st.EnsureJob(context.Background(), id, markdown)
	if err != nil {
		t.Fatalf("store.EnsureJob: %v", err)
	}
	return job
}
