package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/testsupport"
)

func TestCLIVideoCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	seedReviewVideo(t, env, "vid-alpha")

	out, _, err := runCLI(t, []string{"videos", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("videos list: %v", err)
	}
	requireContains(t, out, "vid-alpha")
	requireContains(t, out, "verification")

	out, _, err = runCLI(t, []string{"videos", "list", "--status", "verification"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("videos list --status: %v", err)
	}
	requireContains(t, out, "vid-alpha")

	if _, _, err := runCLI(t, []string{"videos", "list", "--status", "bogus"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out, _, err = runCLI(t, []string{"videos", "show", "vid-alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("videos show: %v", err)
	}
	requireContains(t, out, "vid-alpha")
	requireContains(t, out, "Execution")
	requireContains(t, out, "completed")

	if _, _, err := runCLI(t, []string{"videos", "show", "vid-missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected missing video to fail")
	}

	out, _, err = runCLI(t, []string{"videos", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("videos list --json: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "[") {
		t.Fatalf("expected JSON array output, got %q", out)
	}
	requireContains(t, out, `"id": "vid-alpha"`)
}

func TestCLIExecutionsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	seedReviewVideo(t, env, "vid-exec")

	out, _, err := runCLI(t, []string{"executions"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("executions: %v", err)
	}
	requireContains(t, out, "vid-exec")
	requireContains(t, out, "completed")
	requireContains(t, out, "100%")

	out, _, err = runCLI(t, []string{"executions", "--status", "running"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("executions --status: %v", err)
	}
	requireContains(t, out, "No executions recorded")

	out, _, err = runCLI(t, []string{"executions", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("executions --json: %v", err)
	}
	requireContains(t, out, `"video_id": "vid-exec"`)
}

func TestCLISubmitAndReprocess(t *testing.T) {
	env := setupCLITestEnv(t)

	samplePath := testsupport.SampleVideo(t, env.cfg.Paths.StagingDir, "upload.mp4", 2048)
	out, _, err := runCLI(t, []string{"submit", samplePath}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Registered video")
	requireContains(t, out, "upload.mp4")
	requireContains(t, out, "Queued execution")

	badPath := filepath.Join(env.cfg.Paths.StagingDir, "notes.txt")
	if err := os.WriteFile(badPath, []byte("text"), 0o644); err != nil {
		t.Fatalf("write text file: %v", err)
	}
	if _, _, err := runCLI(t, []string{"submit", badPath}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unsupported extension to fail")
	} else if !strings.Contains(err.Error(), "unsupported file extension") {
		t.Fatalf("unexpected submit error: %v", err)
	}

	if _, _, err := runCLI(t, []string{"submit", filepath.Join(env.cfg.Paths.StagingDir, "absent.mp4")}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected missing file to fail")
	}

	seedReviewVideo(t, env, "vid-redo")
	out, _, err = runCLI(t, []string{"reprocess", "vid-redo"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	requireContains(t, out, "vid-redo")
}

func TestCLIReportAndTriggers(t *testing.T) {
	env := setupCLITestEnv(t)
	seedReviewVideo(t, env, "vid-report")

	out, _, err := runCLI(t, []string{"report", "vid-report"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "vid-report")
	requireContains(t, out, "yolo_object")
	requireContains(t, out, `flagged object "knife" in frame`)

	out, _, err = runCLI(t, []string{"report", "vid-report", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("report --json: %v", err)
	}
	requireContains(t, out, `"video_id": "vid-report"`)
	requireContains(t, out, `"total_triggers": 1`)

	out, _, err = runCLI(t, []string{"triggers", "list", "vid-report"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("triggers list: %v", err)
	}
	requireContains(t, out, "yolo_object")
	requireContains(t, out, "pending")

	out, _, err = runCLI(t, []string{"triggers", "list", "vid-report", "--pending"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("triggers list --pending: %v", err)
	}
	requireContains(t, out, "yolo_object")
}
