package testsupport

import (
	"context"
	"testing"

	"fpsync/internal/config"
	"fpsync/internal/runlog"
)

// MustOpenRunLog opens the run ledger for cfg and registers cleanup.
func MustOpenRunLog(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := runlog.Open(context.Background(), cfg.RunLogPath())
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
