package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/inference"
	"vigil/internal/ipc"
	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/notify"
	"vigil/internal/orchestrator"
	"vigil/internal/pipeline"
	"vigil/internal/stages"
	"vigil/internal/storage"
	"vigil/internal/testsupport"
)

type idleGateway struct{}

func (idleGateway) Transcribe(context.Context, string) (*inference.Transcript, error) {
	return &inference.Transcript{}, nil
}

func (idleGateway) AnalyzeFrame(context.Context, string, []string) ([]inference.Detection, error) {
	return nil, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *pipeline.Store
	tasks      *lease.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
	cancel     context.CancelFunc
}

// setupCLITestEnv serves the IPC surface against a daemon whose manager is
// never started, so commands exercise the socket without running stages.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.MustEnsureDirectories(t, cfg)

	logPath := filepath.Join(cfg.Paths.LogDir, "vigil-cli-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	configPath := filepath.Join(cfg.Paths.DataDir, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenPipelineStore(t, cfg)
	tasks := testsupport.MustOpenLeaseStore(t, cfg)
	artifacts, err := storage.NewLocal(cfg.Storage.ArtifactDir)
	if err != nil {
		t.Fatalf("open artifact store: %v", err)
	}
	logger := logging.NewNop()
	runner := stages.NewRunner(cfg, store, idleGateway{}, artifacts, nil, logger)
	manager := orchestrator.NewManager(cfg, store, tasks, runner, notify.NewService(cfg), logger)

	d, err := daemon.New(cfg, daemon.Deps{
		Store:   store,
		Tasks:   tasks,
		Manager: manager,
		LogPath: logPath,
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.DataDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		tasks:      tasks,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nstaging_dir = %q\nlog_dir = %q\n\n[storage]\nartifact_dir = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.StagingDir,
		cfg.Paths.LogDir,
		cfg.Storage.ArtifactDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// seedReviewVideo registers a video in verification with one pending trigger
// and one pending task, bypassing the stage pipeline.
func seedReviewVideo(t *testing.T, env *cliTestEnv, videoID string) {
	t.Helper()
	ctx := context.Background()

	video := &pipeline.Video{
		ID:           videoID,
		OriginalName: videoID + ".mp4",
		SourcePath:   "/tmp/" + videoID + ".mp4",
		Status:       pipeline.VideoVerification,
	}
	if err := env.store.SaveVideo(ctx, video); err != nil {
		t.Fatalf("save video: %v", err)
	}
	exec, err := env.store.GetOrCreateExecution(ctx, video.ID)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	exec.Status = pipeline.ExecutionCompleted
	exec.Progress = 100
	if err := env.store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("update execution: %v", err)
	}
	detections := []pipeline.Detection{{
		TimestampOffset: 42,
		Source:          pipeline.SourceYOLOObject,
		Confidence:      0.88,
		Data:            map[string]any{"label": "knife"},
	}}
	if _, err := env.store.SaveDetections(ctx, video.ID, detections); err != nil {
		t.Fatalf("save detections: %v", err)
	}
	if _, err := env.tasks.Enqueue(ctx, video.ID, lease.DefaultPriority); err != nil {
		t.Fatalf("enqueue task: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
