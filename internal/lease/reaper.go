package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vigil/internal/logging"
)

// ReaperActor is the audit actor recorded for automatic lease reclamation.
const ReaperActor = "reaper"

// Reaper returns stale in-progress tasks to the queue so other workers can
// pick them up.
type Reaper struct {
	store    *Store
	logger   *slog.Logger
	interval time.Duration
}

// NewReaper creates a reaper that scans on the given interval.
func NewReaper(store *Store, logger *slog.Logger, interval time.Duration) *Reaper {
	return &Reaper{store: store, logger: logger, interval: interval}
}

// ReapOnce scans in-progress tasks and reclaims every stale lease it finds,
// one guarded update per task. A task whose lease moves between the scan and
// the reclaim is skipped; the holder's heartbeat or resume won that race.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	tasks, err := r.store.ListTasks(ctx, TaskInProgress)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, task := range tasks {
		if !task.Stale(now) {
			continue
		}
		ok, err := r.store.ReclaimStale(ctx, ReaperActor, task)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}
		reclaimed++
		if r.logger != nil {
			r.logger.Info("reclaimed stale task",
				logging.Int64("task_id", task.ID),
				logging.String("video_id", task.VideoID),
				logging.String("previous_assignee", task.Assignee))
		}
	}
	return reclaimed, nil
}

// Run reaps on the configured interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	logger := logging.WithContext(ctx, r.logger)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("stale lease scan failed", logging.Error(err))
			}
		}
	}
}
