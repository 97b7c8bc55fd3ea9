package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vigil/internal/services"
	"vigil/internal/sqliteutil"
)

// SaveDetections persists detector output as pending triggers in one
// transaction. Triggers are append-only; adjudication happens later through
// MarkTriggerProcessed. Returns the number of rows written.
func (s *Store) SaveDetections(ctx context.Context, videoID string, detections []Detection) (int, error) {
	if videoID == "" {
		return 0, errors.New("video id is required")
	}
	if len(detections) == 0 {
		return 0, nil
	}
	ctx = sqliteutil.EnsureContext(ctx)
	now := sqliteutil.FormatTime(time.Now().UTC())

	var written int
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		written = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin trigger transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, detection := range detections {
			payload, err := encodeData(detection.Data)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO triggers (video_id, timestamp_offset, source, confidence, data, status, created_at)
                VALUES (?, ?, ?, ?, ?, ?, ?)`,
				videoID, detection.TimestampOffset, detection.Source, detection.Confidence, payload, string(TriggerPending), now); err != nil {
				return fmt.Errorf("insert trigger: %w", err)
			}
			written++
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit triggers: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// TriggerByID returns the trigger with the given ID, or nil when absent.
func (s *Store) TriggerByID(ctx context.Context, id int64) (*Trigger, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id = ?`, id)
	trigger, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select trigger: %w", err)
	}
	return trigger, nil
}

// TriggersByVideo returns every trigger recorded for the video ordered by
// timestamp offset.
func (s *Store) TriggersByVideo(ctx context.Context, videoID string) ([]*Trigger, error) {
	return s.triggersByVideo(ctx, videoID, "")
}

// PendingTriggersByVideo returns the still-unadjudicated triggers for the
// video ordered by timestamp offset. Report compilation reads from here, not
// from detector memory, so adjudicated triggers drop out of fresh reports.
func (s *Store) PendingTriggersByVideo(ctx context.Context, videoID string) ([]*Trigger, error) {
	return s.triggersByVideo(ctx, videoID, TriggerPending)
}

// CountTriggers returns how many triggers were ever recorded for the video,
// regardless of adjudication status.
func (s *Store) CountTriggers(ctx context.Context, videoID string) (int, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM triggers WHERE video_id = ?`, videoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count triggers: %w", err)
	}
	return count, nil
}

func (s *Store) triggersByVideo(ctx context.Context, videoID string, status TriggerStatus) ([]*Trigger, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	query := `SELECT ` + triggerColumns + ` FROM triggers WHERE video_id = ?`
	args := []any{videoID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY timestamp_offset, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}

// MarkTriggerProcessed records an adjudication decision on a pending
// trigger. The update is guarded on status so concurrent reviewers cannot
// both win; the loser sees a lease conflict. Returns the updated trigger.
func (s *Store) MarkTriggerProcessed(ctx context.Context, id int64, label, note, actor string) (*Trigger, error) {
	if !ValidDecisionLabel(label) {
		return nil, services.Wrap(services.ErrValidation, "", "process trigger", fmt.Sprintf("unknown decision label %q", label), nil)
	}
	ctx = sqliteutil.EnsureContext(ctx)
	now := time.Now().UTC()

	result, err := s.execWithRetry(ctx, `UPDATE triggers
        SET status = ?, decision_label = ?, decision_note = ?, decided_by = ?, decided_at = ?
        WHERE id = ? AND status = ?`,
		string(TriggerProcessed), label, sqliteutil.NullableString(note), sqliteutil.NullableString(actor), sqliteutil.FormatTime(now), id, string(TriggerPending))
	if err != nil {
		return nil, fmt.Errorf("process trigger: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count processed triggers: %w", err)
	}
	if rows == 0 {
		existing, err := s.TriggerByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, services.Wrap(services.ErrNotFound, "", "process trigger", fmt.Sprintf("trigger %d not found", id), nil)
		}
		return nil, services.Wrap(services.ErrLeaseConflict, "", "process trigger", fmt.Sprintf("trigger %d already processed", id), nil)
	}
	return s.TriggerByID(ctx, id)
}
