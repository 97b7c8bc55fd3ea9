// Package daemonrun assembles and runs the vigil daemon process: logger,
// stores, orchestrator, control socket, and signal handling. The CLI's
// hidden daemon command and the vigild binary both enter through Run.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/inference"
	"vigil/internal/ipc"
	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/notify"
	"vigil/internal/orchestrator"
	"vigil/internal/pipeline"
	"vigil/internal/risk"
	"vigil/internal/stages"
	"vigil/internal/storage"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vigil daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vigil-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logToolSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vigil.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "vigil-*.log", Exclude: []string{logPath}},
	)
	pidPath := daemon.PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := pipeline.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open pipeline store failed", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and disk space"))
		return err
	}
	tasks, err := lease.Open(cfg)
	if err != nil {
		store.Close()
		logging.ErrorWithContext(logger, "open review store failed", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and disk space"))
		return err
	}

	local, err := storage.NewLocal(cfg.Storage.ArtifactDir)
	if err != nil {
		store.Close()
		tasks.Close()
		return fmt.Errorf("open artifact store: %w", err)
	}
	artifacts := storage.NewURLCache(local, time.Duration(cfg.Storage.SignedURLTTLSeconds)*time.Second)
	catalog, err := risk.Load(cfg.Report.RiskCatalogPath)
	if err != nil {
		store.Close()
		tasks.Close()
		return fmt.Errorf("load risk catalog: %w", err)
	}

	notifier := notify.NewService(cfg)
	gateway := inference.FromConfig(cfg)
	runner := stages.NewRunner(cfg, store, gateway, artifacts, catalog, logger)
	manager := orchestrator.NewManager(cfg, store, tasks, runner, notifier, logger)

	d, err := daemon.New(cfg, daemon.Deps{
		Store:    store,
		Tasks:    tasks,
		Manager:  manager,
		Notifier: notifier,
		Gateway:  gateway,
		Catalog:  catalog,
		LogPath:  logPath,
	}, logger)
	if err != nil {
		store.Close()
		tasks.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := daemon.SocketPath(cfg)
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	// A failed start keeps the process alive so the control socket can
	// report status and accept a retry once the operator fixes the issue.
	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and store access"),
			logging.String(logging.FieldImpact, "daemon will not process videos until restarted"),
		)
	}

	<-signalCtx.Done()
	logger.Info("vigil daemon shutting down")
	return nil
}

// ensureCurrentLogPointer keeps LogDir/vigil.log pointing at the per-run
// file. Hard link is the fallback for filesystems without symlinks.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vigil.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logToolSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	ffprobe := cfg.FFprobeBinary()
	logger.Info("tool snapshot",
		logging.String(logging.FieldEventType, "tool_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("inference_configured", strings.TrimSpace(cfg.Inference.BaseURL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
