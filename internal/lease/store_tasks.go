package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/internal/services"
	"vigil/internal/sqliteutil"
)

// Enqueue creates the review task for a video, or returns the existing one.
// The video_id UNIQUE constraint guarantees at most one task per video no
// matter how often the pipeline completes. Priority values at or below zero
// fall back to DefaultPriority; lower values dequeue sooner.
func (s *Store) Enqueue(ctx context.Context, videoID string, priority int) (*Task, error) {
	if videoID == "" {
		return nil, errors.New("video id is required")
	}
	if priority <= 0 {
		priority = DefaultPriority
	}
	ctx = sqliteutil.EnsureContext(ctx)
	now := sqliteutil.FormatTime(time.Now().UTC())
	_, err := s.execWithRetry(ctx, `INSERT INTO verification_tasks (video_id, status, priority, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(video_id) DO NOTHING`,
		videoID, string(TaskPending), priority, now, now)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	task, err := s.TaskByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task for video %s missing after insert", videoID)
	}
	return task, nil
}

// TaskByID returns the task with the given ID, or nil when absent.
func (s *Store) TaskByID(ctx context.Context, id int64) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM verification_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// TaskByVideo returns the task for the given video, or nil when absent.
func (s *Store) TaskByVideo(ctx context.Context, videoID string) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM verification_tasks WHERE video_id = ?`, videoID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks in dequeue order, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, statuses ...TaskStatus) ([]*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	query := `SELECT ` + taskColumns + ` FROM verification_tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + sqliteutil.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY priority, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Summary returns task counts per lifecycle state.
func (s *Store) Summary(ctx context.Context) (*TaskSummary, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM verification_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("summarize tasks: %w", err)
	}
	defer rows.Close()

	summary := &TaskSummary{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Total += count
		switch TaskStatus(status) {
		case TaskPending:
			summary.Pending = count
		case TaskInProgress:
			summary.InProgress = count
		case TaskCompleted:
			summary.Completed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}

// Acquire claims the front of the pending queue for worker under a lease of
// the given duration. Selection and assignment happen in one guarded UPDATE,
// so N concurrent acquirers get N distinct tasks or none. Returns nil when
// nothing is pending.
func (s *Store) Acquire(ctx context.Context, worker string, leaseDuration time.Duration) (*Task, error) {
	if strings.TrimSpace(worker) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "acquire task", "worker identity is required", nil)
	}
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()
	expires := now.Add(leaseDuration)

	var id int64
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `UPDATE verification_tasks
            SET status = ?, assignee = ?, lease_holder = ?, lease_expires_at = ?, last_heartbeat = ?, assigned_at = ?, updated_at = ?
            WHERE id = (
                SELECT id FROM verification_tasks WHERE status = ? ORDER BY priority, id LIMIT 1
            ) AND status = ?
            RETURNING id`,
			string(TaskInProgress), worker, worker,
			sqliteutil.FormatTime(expires), sqliteutil.FormatTime(now), sqliteutil.FormatTime(now), sqliteutil.FormatTime(now),
			string(TaskPending), string(TaskPending))
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire task: %w", err)
	}

	if err := s.appendAction(ctx, worker, id, nil, ActionAssigned, map[string]any{
		"lease_expires_at": sqliteutil.FormatTime(expires),
	}); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, id)
}

// Heartbeat extends worker's unexpired lease by the renewal duration. The
// renewal window is deliberately shorter than the initial grant. A stale
// lease cannot be heartbeat back to life; only Resume does that.
func (s *Store) Heartbeat(ctx context.Context, worker string, taskID int64, renewal time.Duration) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()
	expires := now.Add(renewal)

	result, err := s.execWithRetry(ctx, `UPDATE verification_tasks
        SET lease_expires_at = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = ? AND status = ? AND assignee = ? AND julianday(lease_expires_at) > julianday(?)`,
		sqliteutil.FormatTime(expires), sqliteutil.FormatTime(now), sqliteutil.FormatTime(now),
		taskID, string(TaskInProgress), worker, sqliteutil.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("heartbeat task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count heartbeat updates: %w", err)
	}
	if rows == 0 {
		return nil, s.taskConflict(ctx, taskID, worker, "heartbeat", true, now)
	}

	if err := s.appendAction(ctx, worker, taskID, nil, ActionHeartbeat, map[string]any{
		"lease_expires_at": sqliteutil.FormatTime(expires),
	}); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, taskID)
}

// Complete finishes worker's in-progress task, records the decision summary,
// and computes total processing time from the assignment timestamp.
func (s *Store) Complete(ctx context.Context, worker string, taskID int64, summary string) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()

	result, err := s.execWithRetry(ctx, `UPDATE verification_tasks
        SET status = ?, assignee = NULL, lease_holder = NULL, lease_expires_at = NULL, last_heartbeat = NULL,
            completed_at = ?, decision_summary = ?,
            total_processing_seconds = COALESCE((julianday(?) - julianday(assigned_at)) * 86400.0, total_processing_seconds),
            updated_at = ?
        WHERE id = ? AND status = ? AND assignee = ?`,
		string(TaskCompleted), sqliteutil.FormatTime(now), sqliteutil.NullableString(summary),
		sqliteutil.FormatTime(now), sqliteutil.FormatTime(now),
		taskID, string(TaskInProgress), worker)
	if err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count completion updates: %w", err)
	}
	if rows == 0 {
		return nil, s.taskConflict(ctx, taskID, worker, "complete task", false, now)
	}

	details := map[string]any{}
	if strings.TrimSpace(summary) != "" {
		details["summary"] = summary
	}
	if err := s.appendAction(ctx, worker, taskID, nil, ActionCompleted, details); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, taskID)
}

// Release voluntarily returns worker's in-progress task to the queue with
// every lease field cleared.
func (s *Store) Release(ctx context.Context, worker string, taskID int64) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()

	result, err := s.execWithRetry(ctx, `UPDATE verification_tasks
        SET status = ?, assignee = NULL, lease_holder = NULL, lease_expires_at = NULL, last_heartbeat = NULL, assigned_at = NULL, updated_at = ?
        WHERE id = ? AND status = ? AND assignee = ?`,
		string(TaskPending), sqliteutil.FormatTime(now),
		taskID, string(TaskInProgress), worker)
	if err != nil {
		return nil, fmt.Errorf("release task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count release updates: %w", err)
	}
	if rows == 0 {
		return nil, s.taskConflict(ctx, taskID, worker, "release task", false, now)
	}

	if err := s.appendAction(ctx, worker, taskID, nil, ActionReleased, map[string]any{
		"reason": "voluntary release",
	}); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, taskID)
}

// ForceRelease returns any in-progress task to the queue regardless of who
// holds it. Admin path; the audit entry names the previous assignee.
func (s *Store) ForceRelease(ctx context.Context, actor string, taskID int64) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()

	previous, err := s.TaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "force release", fmt.Sprintf("task %d not found", taskID), nil)
	}

	result, err := s.execWithRetry(ctx, `UPDATE verification_tasks
        SET status = ?, assignee = NULL, lease_holder = NULL, lease_expires_at = NULL, last_heartbeat = NULL, assigned_at = NULL, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(TaskPending), sqliteutil.FormatTime(now),
		taskID, string(TaskInProgress))
	if err != nil {
		return nil, fmt.Errorf("force release task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count release updates: %w", err)
	}
	if rows == 0 {
		return nil, s.taskConflict(ctx, taskID, "", "force release", false, now)
	}

	if err := s.appendAction(ctx, actor, taskID, nil, ActionReleased, map[string]any{
		"reason":            "forced release",
		"previous_assignee": previous.Assignee,
	}); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, taskID)
}

// Resume lets the original assignee re-extend their own lease, including an
// expired one the reaper has not yet reclaimed. Whichever of Resume and the
// reaper's reclaim commits first wins; the other fails its row guard.
func (s *Store) Resume(ctx context.Context, worker string, taskID int64, renewal time.Duration) (*Task, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()
	expires := now.Add(renewal)

	previous, err := s.TaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	wasStale := previous != nil && previous.Stale(now)

	result, err := s.execWithRetry(ctx, `UPDATE verification_tasks
        SET lease_expires_at = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = ? AND status = ? AND assignee = ?`,
		sqliteutil.FormatTime(expires), sqliteutil.FormatTime(now), sqliteutil.FormatTime(now),
		taskID, string(TaskInProgress), worker)
	if err != nil {
		return nil, fmt.Errorf("resume task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count resume updates: %w", err)
	}
	if rows == 0 {
		return nil, s.taskConflict(ctx, taskID, worker, "resume task", false, now)
	}

	if err := s.appendAction(ctx, worker, taskID, nil, ActionResumed, map[string]any{
		"lease_expires_at": sqliteutil.FormatTime(expires),
		"was_stale":        wasStale,
	}); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, taskID)
}

// ReclaimStale returns a stale in-progress task to the queue, guarded on the
// exact lease expiry the caller observed. Returns false when the row moved
// first: a heartbeat, resume, completion, or a competing reclaim.
func (s *Store) ReclaimStale(ctx context.Context, actor string, task *Task) (bool, error) {
	if task == nil || task.LeaseExpiresAt == nil {
		return false, errors.New("task with lease expiry is required")
	}
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()

	result, err := s.execWithRetry(ctx, `UPDATE verification_tasks
        SET status = ?, assignee = NULL, lease_holder = NULL, lease_expires_at = NULL, last_heartbeat = NULL, assigned_at = NULL, updated_at = ?
        WHERE id = ? AND status = ? AND lease_expires_at = ?`,
		string(TaskPending), sqliteutil.FormatTime(now),
		task.ID, string(TaskInProgress), sqliteutil.FormatTime(*task.LeaseExpiresAt))
	if err != nil {
		return false, fmt.Errorf("reclaim task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count reclaim updates: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := s.appendAction(ctx, actor, task.ID, nil, ActionReleased, map[string]any{
		"reason":            ReclaimReason,
		"previous_assignee": task.Assignee,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// taskConflict explains a failed guarded update: missing task, wrong status,
// wrong assignee, or an expired lease where the operation required a live
// one.
func (s *Store) taskConflict(ctx context.Context, taskID int64, worker, operation string, requireLive bool, now time.Time) error {
	task, err := s.TaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return services.Wrap(services.ErrNotFound, "", operation, fmt.Sprintf("task %d not found", taskID), nil)
	}
	if task.Status != TaskInProgress {
		return services.Wrap(services.ErrLeaseConflict, "", operation, fmt.Sprintf("task %d is %s, not in progress", taskID, task.Status), nil)
	}
	if worker != "" && task.Assignee != worker {
		return services.Wrap(services.ErrLeaseConflict, "", operation, fmt.Sprintf("task %d is assigned to %s", taskID, task.Assignee), nil)
	}
	if requireLive && task.Stale(now) {
		return services.Wrap(services.ErrLeaseConflict, "", operation, fmt.Sprintf("lease on task %d expired; resume it first", taskID), nil)
	}
	return services.Wrap(services.ErrLeaseConflict, "", operation, fmt.Sprintf("task %d changed concurrently", taskID), nil)
}
