package daemonctl_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vigil/internal/daemonctl"
	"vigil/internal/lease"
	"vigil/internal/testsupport"
)

func TestWaitForShutdownMissingSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "vigild.sock")
	if err := daemonctl.WaitForShutdown(socket, time.Second); err != nil {
		t.Fatalf("WaitForShutdown on missing socket: %v", err)
	}
}

func TestProcessInfoMissingSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "vigild.sock")
	running, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected not running, got running=%v pid=%d", running, pid)
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "vigild.pid")
	if err := os.WriteFile(pidPath, []byte("garbage\n"), 0o644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	if _, err := daemonctl.ForceKillProcess(pidPath, "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill current process")
	}

	if _, err := daemonctl.ForceKillProcess(filepath.Join(dir, "absent.pid"), "", 0); err == nil {
		t.Fatal("expected error when pid cannot be determined")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.MustEnsureDirectories(t, cfg)

	// Seed one pending task so the offline fallback proves it read the
	// store rather than returning zero values.
	tasks := testsupport.MustOpenLeaseStore(t, cfg)
	if _, err := tasks.Enqueue(context.Background(), "vid-offline", lease.DefaultPriority); err != nil {
		t.Fatalf("enqueue task: %v", err)
	}

	socket := filepath.Join(cfg.Paths.DataDir, "vigild.sock")
	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Running {
		t.Fatal("snapshot reports running daemon without one")
	}
	if snapshot.Tasks.Pending != 1 || snapshot.Tasks.Total != 1 {
		t.Fatalf("task stats = %+v, want one pending", snapshot.Tasks)
	}
	if len(snapshot.Checks) == 0 {
		t.Fatal("offline snapshot carries no preflight checks")
	}
	for _, check := range snapshot.Checks {
		if !check.Passed {
			t.Fatalf("check %s failed: %s", check.Name, check.Detail)
		}
	}
	if !strings.HasSuffix(snapshot.ReviewDBPath, "review.db") {
		t.Fatalf("unexpected review db path: %s", snapshot.ReviewDBPath)
	}
}
