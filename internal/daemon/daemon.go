package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vigil/internal/config"
	"vigil/internal/inference"
	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/notify"
	"vigil/internal/orchestrator"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
	"vigil/internal/risk"
	"vigil/internal/staging"
)

// retentionSweepInterval controls how often the daemon prunes old audit
// actions and log files after the sweep that runs at startup.
const retentionSweepInterval = 24 * time.Hour

// workspaceMaxAge bounds how long a workspace with no live execution may sit
// in the staging directory before the retention sweep reclaims it.
const workspaceMaxAge = 7 * 24 * time.Hour

// SocketPath returns the control socket location for the configured data
// directory. The CLI dials this path to reach a running daemon.
func SocketPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "vigild.sock")
}

// PIDPath returns the daemon PID file location for the configured data
// directory.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "vigild.pid")
}

// LockPath returns the single-instance lock file location for the
// configured data directory.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "vigild.lock")
}

// Deps bundles the collaborators a Daemon coordinates. Store, Tasks, and
// Manager are required. A nil Notifier falls back to the configured ntfy
// service, a nil Catalog falls back to the built-in risk catalog, and a nil
// Gateway skips the inference connectivity preflight check.
type Deps struct {
	Store    *pipeline.Store
	Tasks    *lease.Store
	Manager  *orchestrator.Manager
	Notifier notify.Service
	Gateway  *inference.Client
	Catalog  *risk.Catalog
	LogPath  string
}

// Daemon coordinates the orchestrator, the lease housekeeping loops, and
// the stores behind the control socket operations.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *pipeline.Store
	tasks    *lease.Store
	manager  *orchestrator.Manager
	notifier notify.Service
	gateway  *inference.Client
	catalog  *risk.Catalog
	logPath  string
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New assembles a daemon from its collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Store == nil {
		return nil, errors.New("pipeline store is required")
	}
	if deps.Tasks == nil {
		return nil, errors.New("review store is required")
	}
	if deps.Manager == nil {
		return nil, errors.New("orchestrator manager is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewService(cfg)
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = risk.Default()
	}
	logPath := deps.LogPath
	if logPath == "" {
		logPath = logging.DaemonLogPath(cfg)
	}
	lockPath := LockPath(cfg)
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		tasks:    deps.Tasks,
		manager:  deps.Manager,
		notifier: notifier,
		gateway:  deps.Gateway,
		catalog:  catalog,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the single-instance lock, runs preflight, requeues
// executions interrupted by a previous shutdown, and launches the
// orchestrator and the background loops. ctx bounds the daemon's lifetime;
// cancelling it has the same effect as Stop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon is already running")
	}
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock %s: %w", d.lockPath, err)
	}
	if !locked {
		return fmt.Errorf("another vigil daemon already holds %s", d.lockPath)
	}

	if err := d.runPreflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	recovered, err := d.store.RecoverRunning(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted executions: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("requeued interrupted executions",
			logging.Int("count", recovered),
			logging.String(logging.FieldEventType, "executions_recovered"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start orchestrator: %w", err)
	}
	d.cancel = cancel
	d.startBackground(runCtx)
	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("log", d.logPath),
		logging.String(logging.FieldEventType, "daemon_started"))
	return nil
}

// Stop shuts down the orchestrator and the background loops and releases
// the single-instance lock. It is safe to call on a stopped daemon.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.manager.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("daemon lock release failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes both stores.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.store.Close(), d.tasks.Close())
}

// Running reports whether Start has completed and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the daemon log file the control socket tails.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// runPreflight executes the startup checks, logging each result. Required
// failures abort startup; the optional gateway check only warns because
// analysis stages retry until the gateway recovers.
func (d *Daemon) runPreflight(ctx context.Context) error {
	deps := preflight.Deps{PipelineStore: d.store, ReviewStore: d.tasks}
	if d.gateway != nil {
		deps.Gateway = d.gateway
	}
	results := preflight.RunAll(ctx, d.cfg, deps)
	var failures []string
	for _, result := range results {
		switch {
		case result.Passed:
			d.logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"))
		case result.Optional:
			d.logger.Warn("optional preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldImpact, "analysis stages will retry until the dependency recovers"),
				logging.String(logging.FieldEventType, "preflight_warning"))
		default:
			d.logger.Error("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "fix the reported issue and restart the daemon"),
				logging.String(logging.FieldEventType, "preflight_failed"))
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

// startBackground launches the lease reaper, the SLA monitor, and the
// retention sweeper under ctx.
func (d *Daemon) startBackground(ctx context.Context) {
	reaper := lease.NewReaper(d.tasks, d.logger,
		time.Duration(d.cfg.Lease.ReaperInterval)*time.Second)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		reaper.Run(ctx)
	}()

	monitor := lease.NewSLAMonitor(d.tasks, d.logger,
		time.Duration(d.cfg.SLA.ThresholdSeconds)*time.Second,
		time.Duration(d.cfg.SLA.CheckInterval)*time.Second,
		d.cfg.SLA.MaxListed,
		d.notifySLABreach)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		monitor.Run(ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runRetention(ctx)
	}()
}

func (d *Daemon) notifySLABreach(ctx context.Context, breach lease.SLABreach) {
	oldestID := ""
	oldestAge := time.Duration(0)
	if len(breach.Oldest) > 0 {
		oldest := breach.Oldest[0]
		oldestID = oldest.VideoID
		oldestAge = time.Since(oldest.CreatedAt)
	}
	if err := d.notifier.NotifySLABreach(ctx, breach.Total, oldestID, oldestAge); err != nil {
		d.logger.Warn("SLA breach notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"))
	}
}

// runRetention sweeps immediately and then on a daily cadence.
func (d *Daemon) runRetention(ctx context.Context) {
	d.sweepRetention(ctx)
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepRetention(ctx)
		}
	}
}

// sweepRetention prunes audit actions past the configured retention window,
// removes rotated daemon logs past the log retention window, and reclaims
// staging workspaces whose executions are no longer live.
func (d *Daemon) sweepRetention(ctx context.Context) {
	if days := d.cfg.Lease.AuditRetentionDays; days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		pruned, err := d.tasks.PruneActions(ctx, cutoff)
		switch {
		case err != nil:
			d.logger.Warn("audit retention sweep failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "audit_retention_failed"))
		case pruned > 0:
			d.logger.Info("pruned audit actions",
				logging.Int("count", pruned),
				logging.Int("retention_days", days),
				logging.String(logging.FieldEventType, "audit_pruned"))
		}
	}
	logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "vigil-*.log",
		Exclude: []string{d.logPath},
	})
	d.sweepWorkspaces(ctx)
}

// sweepWorkspaces removes aged staging directories. Pending, running, and
// failed executions keep their workspaces so a resumed run can reuse the
// checkpointed artifacts.
func (d *Daemon) sweepWorkspaces(ctx context.Context) {
	live, err := d.store.ListExecutions(ctx,
		pipeline.ExecutionPending, pipeline.ExecutionRunning, pipeline.ExecutionFailed)
	if err != nil {
		d.logger.Warn("workspace sweep skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_sweep_failed"))
		return
	}
	active := make(map[string]struct{}, len(live))
	for _, exec := range live {
		active[exec.VideoID] = struct{}{}
	}
	result := staging.CleanStale(ctx, d.cfg.Paths.StagingDir, workspaceMaxAge, active, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("reclaimed stale workspaces",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "workspaces_reclaimed"))
	}
}
