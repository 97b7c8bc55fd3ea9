package main

import (
	"testing"

	"vigil/internal/ipc"
)

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	seedReviewVideo(t, env, "vid-status")

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Stopped")
	requireContains(t, out, "Preflight Checks")
	requireContains(t, out, "Pipeline")
	requireContains(t, out, "Review Queue")
	requireContains(t, out, "Pending")
}

func TestBuildExecutionStatusRows(t *testing.T) {
	if rows := buildExecutionStatusRows(ipc.ExecutionStats{}); rows != nil {
		t.Fatalf("expected no rows for empty stats, got %v", rows)
	}

	rows := buildExecutionStatusRows(ipc.ExecutionStats{Total: 5, Pending: 2, Completed: 3})
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %v", rows)
	}
	if rows[0][0] != "Pending" || rows[0][1] != "2" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if rows[1][0] != "Completed" || rows[1][1] != "3" {
		t.Fatalf("unexpected second row: %v", rows[1])
	}
}

func TestBuildTaskStatusRows(t *testing.T) {
	if rows := buildTaskStatusRows(ipc.TaskStats{}); rows != nil {
		t.Fatalf("expected no rows for empty stats, got %v", rows)
	}

	rows := buildTaskStatusRows(ipc.TaskStats{Total: 4, Pending: 1, InProgress: 3})
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %v", rows)
	}
	if rows[1][0] != "In progress" || rows[1][1] != "3" {
		t.Fatalf("unexpected in-progress row: %v", rows[1])
	}
}
