package preflight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/config"
	"vigil/internal/inference"
	"vigil/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()

	result := CheckDirectoryAccess("Data directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass, got detail %q", result.Detail)
	}
	if result.Detail != dir {
		t.Fatalf("detail = %q, want %q", result.Detail, dir)
	}
}

func TestCheckDirectoryAccess_Missing(t *testing.T) {
	result := CheckDirectoryAccess("Data directory", filepath.Join(t.TempDir(), "absent"))
	if result.Passed {
		t.Fatal("expected failure for missing directory")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("detail = %q, want mention of missing path", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result := CheckDirectoryAccess("Data directory", file)
	if result.Passed {
		t.Fatal("expected failure for regular file")
	}
	if !strings.Contains(result.Detail, "not a directory") {
		t.Fatalf("detail = %q, want mention of non-directory", result.Detail)
	}
}

func TestCheckDirectoryAccess_Unconfigured(t *testing.T) {
	result := CheckDirectoryAccess("Data directory", "")
	if result.Passed {
		t.Fatal("expected failure for empty path")
	}
	if result.Detail != "path is not configured" {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckDiskSpace_OK(t *testing.T) {
	result := CheckDiskSpace("Staging disk space", t.TempDir(), 1)
	if !result.Passed {
		t.Fatalf("expected pass, got detail %q", result.Detail)
	}
	if !strings.Contains(result.Detail, "free on") {
		t.Fatalf("detail = %q, want free-space summary", result.Detail)
	}
}

func TestCheckDiskSpace_Insufficient(t *testing.T) {
	result := CheckDiskSpace("Staging disk space", t.TempDir(), math.MaxInt64)
	if result.Passed {
		t.Fatal("expected failure for absurd minimum")
	}
	if !strings.Contains(result.Detail, "need at least") {
		t.Fatalf("detail = %q, want shortfall message", result.Detail)
	}
}

func TestCheckBinary(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	found := CheckBinary(Requirement{Name: "FFmpeg", Command: "ffmpeg", Description: "required for extraction"})
	if !found.Passed {
		t.Fatalf("expected pass, got detail %q", found.Detail)
	}
	if found.Detail != stub {
		t.Fatalf("detail = %q, want resolved path %q", found.Detail, stub)
	}

	missing := CheckBinary(Requirement{Name: "FFprobe", Command: "ffprobe", Description: "required for inspection"})
	if missing.Passed {
		t.Fatal("expected failure for absent binary")
	}
	if !strings.Contains(missing.Detail, "ffprobe not found") || !strings.Contains(missing.Detail, "required for inspection") {
		t.Fatalf("detail = %q", missing.Detail)
	}
}

func TestSystemRequirements_UsesConfiguredCommands(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithValues(func(cfg *config.Config) {
		cfg.Tools.FFmpeg = "/opt/ffmpeg/bin/ffmpeg"
	}))

	reqs := SystemRequirements(cfg)
	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg command = %q", reqs[0].Command)
	}
	if reqs[1].Command != "ffprobe" {
		t.Fatalf("ffprobe command = %q, want default", reqs[1].Command)
	}
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestCheckStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustEnsureDirectories(t, cfg)
	store := testsupport.MustOpenPipelineStore(t, cfg)

	result := CheckStore(context.Background(), "Pipeline store", store)
	if !result.Passed {
		t.Fatalf("expected pass, got detail %q", result.Detail)
	}

	broken := CheckStore(context.Background(), "Pipeline store", healthFunc(func(context.Context) error {
		return errors.New("database is locked")
	}))
	if broken.Passed {
		t.Fatal("expected failure from broken store")
	}
	if broken.Detail != "database is locked" {
		t.Fatalf("detail = %q", broken.Detail)
	}
}

func TestCheckGateway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := CheckGateway(context.Background(), inference.NewClient(server.URL, ""))
	if !result.Passed {
		t.Fatalf("expected pass, got detail %q", result.Detail)
	}
	if !result.Optional {
		t.Fatal("gateway check should be optional")
	}
}

func TestCheckGateway_Down(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream model offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result := CheckGateway(context.Background(), inference.NewClient(server.URL, ""))
	if result.Passed {
		t.Fatal("expected failure from unhealthy gateway")
	}
	if !result.Optional {
		t.Fatal("gateway check should stay optional on failure")
	}
	if result.Detail == "" {
		t.Fatal("expected a detail message")
	}
}

func TestSummarizeGatewayError_Timeout(t *testing.T) {
	wrapped := fmt.Errorf("gateway health: %w", context.DeadlineExceeded)
	if got := summarizeGatewayError(wrapped); got != "timed out (inference gateway unresponsive)" {
		t.Fatalf("summary = %q", got)
	}
	if got := summarizeGatewayError(errors.New("connection refused")); got != "connection refused" {
		t.Fatalf("summary = %q", got)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.MustEnsureDirectories(t, cfg)
	pipelineStore := testsupport.MustOpenPipelineStore(t, cfg)
	reviewStore := testsupport.MustOpenLeaseStore(t, cfg)

	results := RunAll(context.Background(), cfg, Deps{
		PipelineStore: pipelineStore,
		ReviewStore:   reviewStore,
	})
	if len(results) != 9 {
		t.Fatalf("len(results) = %d, want 9", len(results))
	}
	for _, result := range results {
		if !result.Passed {
			t.Errorf("%s failed: %s", result.Name, result.Detail)
		}
	}
	if failed := Failures(results); len(failed) != 0 {
		t.Fatalf("unexpected required failures: %+v", failed)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, Deps{}); results != nil {
		t.Fatalf("results = %+v, want nil", results)
	}
}

func TestFailures_SkipsOptional(t *testing.T) {
	results := []Result{
		{Name: "Data directory", Passed: true},
		{Name: "Inference gateway", Passed: false, Optional: true, Detail: "timed out"},
		{Name: "FFmpeg", Passed: false, Detail: "ffmpeg not found"},
	}

	failed := Failures(results)
	if len(failed) != 1 {
		t.Fatalf("len(failed) = %d, want 1", len(failed))
	}
	if failed[0].Name != "FFmpeg" {
		t.Fatalf("failed[0].Name = %q", failed[0].Name)
	}
}
