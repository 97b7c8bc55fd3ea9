package testsupport

import (
	"testing"

	"vigil/internal/config"
	"vigil/internal/lease"
	"vigil/internal/pipeline"
)

// MustOpenPipelineStore opens the pipeline store for cfg and closes it when
// the test finishes.
func MustOpenPipelineStore(t testing.TB, cfg *config.Config) *pipeline.Store {
	t.Helper()
	store, err := pipeline.Open(cfg)
	if err != nil {
		t.Fatalf("open pipeline store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close pipeline store: %v", err)
		}
	})
	return store
}

// MustOpenLeaseStore opens the review-task store for cfg and closes it when
// the test finishes.
func MustOpenLeaseStore(t testing.TB, cfg *config.Config) *lease.Store {
	t.Helper()
	store, err := lease.Open(cfg)
	if err != nil {
		t.Fatalf("open lease store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close lease store: %v", err)
		}
	})
	return store
}
