package lease

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"vigil/internal/logging"
)

const defaultBreachListing = 5

// SLABreach reports pending tasks that have waited longer than the
// configured threshold.
type SLABreach struct {
	Threshold time.Duration
	Total     int
	Oldest    []*Task
}

// SLAMonitor watches the pending queue and raises an alert when tasks sit
// unclaimed past the threshold.
type SLAMonitor struct {
	store     *Store
	logger    *slog.Logger
	threshold time.Duration
	interval  time.Duration
	maxListed int
	notify    func(context.Context, SLABreach)
}

// NewSLAMonitor creates a monitor. notify may be nil; breaches are always
// logged. maxListed caps how many of the oldest tasks a breach carries.
func NewSLAMonitor(store *Store, logger *slog.Logger, threshold, interval time.Duration, maxListed int, notify func(context.Context, SLABreach)) *SLAMonitor {
	if maxListed <= 0 {
		maxListed = defaultBreachListing
	}
	return &SLAMonitor{
		store:     store,
		logger:    logger,
		threshold: threshold,
		interval:  interval,
		maxListed: maxListed,
		notify:    notify,
	}
}

// CheckOnce scans the pending queue. Returns nil when every pending task is
// younger than the threshold.
func (m *SLAMonitor) CheckOnce(ctx context.Context) (*SLABreach, error) {
	if m.threshold <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().Add(-m.threshold)

	tasks, err := m.store.ListTasks(ctx, TaskPending)
	if err != nil {
		return nil, err
	}

	var overdue []*Task
	for _, task := range tasks {
		if task.CreatedAt.Before(cutoff) {
			overdue = append(overdue, task)
		}
	}
	if len(overdue) == 0 {
		return nil, nil
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].CreatedAt.Before(overdue[j].CreatedAt)
	})

	breach := &SLABreach{Threshold: m.threshold, Total: len(overdue), Oldest: overdue}
	if len(breach.Oldest) > m.maxListed {
		breach.Oldest = breach.Oldest[:m.maxListed]
	}

	if m.logger != nil {
		oldest := breach.Oldest[0]
		m.logger.Warn("verification backlog breached SLA",
			logging.Int("overdue", breach.Total),
			logging.Duration("threshold", m.threshold),
			logging.String("oldest_video_id", oldest.VideoID),
			logging.Duration("oldest_age", time.Since(oldest.CreatedAt)),
			logging.Bool(logging.FieldAlert, true))
	}
	if m.notify != nil {
		m.notify(ctx, *breach)
	}
	return breach, nil
}

// Run checks on the configured interval until the context is cancelled.
func (m *SLAMonitor) Run(ctx context.Context) {
	if m.interval <= 0 || m.threshold <= 0 {
		return
	}
	logger := logging.WithContext(ctx, m.logger)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CheckOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("pending-task SLA check failed", logging.Error(err))
			}
		}
	}
}
