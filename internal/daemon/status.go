package daemon

import (
	"context"
	"os"

	"vigil/internal/lease"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
)

// Status is a point-in-time snapshot of the daemon and its stores.
type Status struct {
	Running        bool
	PID            int
	LockPath       string
	LogPath        string
	PipelineDBPath string
	ReviewDBPath   string
	LastError      string
	Executions     pipeline.ExecutionSummary
	Tasks          lease.TaskSummary
	Checks         []preflight.Result
}

// Status reports the daemon state, queue summaries from both stores, and a
// fresh run of the preflight checks.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		LockPath:       d.lockPath,
		LogPath:        d.logPath,
		PipelineDBPath: d.store.Path(),
		ReviewDBPath:   d.tasks.Path(),
	}
	if err := d.manager.LastError(); err != nil {
		status.LastError = err.Error()
	}
	if summary, err := d.store.Summary(ctx); err == nil && summary != nil {
		status.Executions = *summary
	}
	if summary, err := d.tasks.Summary(ctx); err == nil && summary != nil {
		status.Tasks = *summary
	}
	deps := preflight.Deps{PipelineStore: d.store, ReviewStore: d.tasks}
	if d.gateway != nil {
		deps.Gateway = d.gateway
	}
	status.Checks = preflight.RunAll(ctx, d.cfg, deps)
	return status
}
