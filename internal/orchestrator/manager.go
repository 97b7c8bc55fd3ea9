package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/notify"
	"vigil/internal/pipeline"
	"vigil/internal/stages"
)

// Manager runs the pipeline worker pool. Workers claim pending executions
// from the store one at a time, so several managers (or several workers in
// one) never process the same video together.
type Manager struct {
	cfg      *config.Config
	store    *pipeline.Store
	tasks    *lease.Store
	runner   *stages.Runner
	notifier notify.Service
	logger   *slog.Logger

	workers       int
	pollInterval  time.Duration
	errorInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs the orchestrator around its collaborators.
func NewManager(cfg *config.Config, store *pipeline.Store, tasks *lease.Store, runner *stages.Runner, notifier notify.Service, logger *slog.Logger) *Manager {
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	errorInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorInterval <= 0 {
		errorInterval = 10 * time.Second
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		tasks:         tasks,
		runner:        runner,
		notifier:      notifier,
		logger:        logging.NewComponentLogger(logger, "orchestrator"),
		workers:       workers,
		pollInterval:  poll,
		errorInterval: errorInterval,
	}
}

// Start launches the worker pool. It returns an error when already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, fmt.Sprintf("pipeline-worker-%d", i+1))
	}
	m.logger.Info("orchestrator started", logging.Int("workers", m.workers))
	return nil
}

// Stop cancels the worker pool and waits for in-flight work to hand back.
// Interrupted executions stay running in the store and are recovered on the
// next boot.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("orchestrator stopped")
}

// Running reports whether the worker pool is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent worker-loop error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runWorker(ctx context.Context, worker string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldWorker, worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		exec, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to claim next execution",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
			)
			m.waitOrShutdown(ctx, m.errorInterval)
			continue
		}
		if exec == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processExecution(ctx, worker, exec); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
		}
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
