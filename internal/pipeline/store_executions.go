package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vigil/internal/sqliteutil"
)

// GetOrCreateExecution returns the execution row for the video, creating a
// pending one on first submission. The video_id UNIQUE constraint keeps this
// idempotent under concurrent submits.
func (s *Store) GetOrCreateExecution(ctx context.Context, videoID string) (*Execution, error) {
	if videoID == "" {
		return nil, errors.New("video id is required")
	}
	ctx = sqliteutil.EnsureContext(ctx)
	now := sqliteutil.FormatTime(time.Now().UTC())
	_, err := s.execWithRetry(ctx, `INSERT INTO pipeline_executions (video_id, status, progress, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(video_id) DO NOTHING`,
		videoID, string(ExecutionPending), ProgressSubmitted, now, now)
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	exec, err := s.ExecutionByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("execution for video %s missing after insert", videoID)
	}
	return exec, nil
}

// ExecutionByVideo returns the execution for the video, or nil when absent.
func (s *Store) ExecutionByVideo(ctx context.Context, videoID string) (*Execution, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM pipeline_executions WHERE video_id = ?`, videoID)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select execution: %w", err)
	}
	return exec, nil
}

// ExecutionByID returns the execution with the given row ID, or nil when
// absent.
func (s *Store) ExecutionByID(ctx context.Context, id int64) (*Execution, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM pipeline_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select execution: %w", err)
	}
	return exec, nil
}

// ClaimNextPending atomically moves the oldest pending execution to running
// and returns it. It returns nil when nothing is pending. The guarded update
// means two workers polling at once can never claim the same row.
func (s *Store) ClaimNextPending(ctx context.Context) (*Execution, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := sqliteutil.FormatTime(time.Now().UTC())

	var id int64
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `UPDATE pipeline_executions
            SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
            WHERE id = (
                SELECT id FROM pipeline_executions WHERE status = ? ORDER BY id LIMIT 1
            ) AND status = ?
            RETURNING id`,
			string(ExecutionRunning), now, now, string(ExecutionPending), string(ExecutionPending))
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim execution: %w", err)
	}
	return s.ExecutionByID(ctx, id)
}

// RecoverRunning returns every running execution to pending so a restarted
// daemon re-dispatches work that died mid-flight. Checkpoints are preserved;
// resume picks up after last_completed_stage. Returns the number of rows
// recovered.
func (s *Store) RecoverRunning(ctx context.Context) (int, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := sqliteutil.FormatTime(time.Now().UTC())
	result, err := s.execWithRetry(ctx, `UPDATE pipeline_executions SET status = ?, updated_at = ? WHERE status = ?`,
		string(ExecutionPending), now, string(ExecutionRunning))
	if err != nil {
		return 0, fmt.Errorf("recover running executions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count recovered executions: %w", err)
	}
	return int(rows), nil
}

// ReopenFailed requeues a failed execution as pending without touching its
// checkpoint, retry count, or error trace. Returns false when the execution
// is not currently failed.
func (s *Store) ReopenFailed(ctx context.Context, videoID string) (bool, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	now := sqliteutil.FormatTime(time.Now().UTC())
	result, err := s.execWithRetry(ctx, `UPDATE pipeline_executions
        SET status = ?, completed_at = NULL, updated_at = ?
        WHERE video_id = ? AND status = ?`,
		string(ExecutionPending), now, videoID, string(ExecutionFailed))
	if err != nil {
		return false, fmt.Errorf("reopen execution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count reopened executions: %w", err)
	}
	return rows > 0, nil
}

// UpdateExecution persists every mutable column of the execution row and
// refreshes UpdatedAt.
func (s *Store) UpdateExecution(ctx context.Context, exec *Execution) error {
	if exec == nil {
		return errors.New("execution is required")
	}
	ctx = sqliteutil.EnsureContext(ctx)
	exec.UpdatedAt = time.Now().UTC()

	traceValue, err := encodeTrace(exec.ErrorTrace)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx, `UPDATE pipeline_executions
        SET status = ?, current_stage = ?, last_completed_stage = ?, progress = ?, retry_count = ?, error_trace = ?, started_at = ?, completed_at = ?, processing_seconds = ?, api_call_count = ?, cost_estimate = ?, updated_at = ?
        WHERE id = ?`,
		string(exec.Status),
		sqliteutil.NullableString(exec.CurrentStage),
		sqliteutil.NullableString(exec.LastCompletedStage),
		exec.Progress,
		exec.RetryCount,
		traceValue,
		sqliteutil.NullableTime(exec.StartedAt),
		sqliteutil.NullableTime(exec.CompletedAt),
		exec.ProcessingSeconds,
		exec.APICallCount,
		exec.CostEstimate,
		sqliteutil.FormatTime(exec.UpdatedAt),
		exec.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

// ListExecutions returns executions oldest first, optionally filtered by
// status.
func (s *Store) ListExecutions(ctx context.Context, statuses ...ExecutionStatus) ([]*Execution, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	query := `SELECT ` + executionColumns + ` FROM pipeline_executions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + sqliteutil.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}

// Summary returns execution counts per lifecycle state.
func (s *Store) Summary(ctx context.Context) (*ExecutionSummary, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pipeline_executions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("summarize executions: %w", err)
	}
	defer rows.Close()

	summary := &ExecutionSummary{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Total += count
		switch ExecutionStatus(status) {
		case ExecutionPending:
			summary.Pending = count
		case ExecutionRunning:
			summary.Running = count
		case ExecutionCompleted:
			summary.Completed = count
		case ExecutionFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}
