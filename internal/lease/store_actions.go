package lease

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/sqliteutil"
)

func (s *Store) appendAction(ctx context.Context, actor string, taskID int64, triggerID *int64, action string, details map[string]any) error {
	encoded, err := encodeDetails(details)
	if err != nil {
		return fmt.Errorf("encode action details: %w", err)
	}
	var trigger any
	if triggerID != nil {
		trigger = *triggerID
	}
	_, err = s.execWithRetry(ctx, `INSERT INTO action_log (actor, task_id, trigger_id, action, details, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		actor, taskID, trigger, action, encoded, sqliteutil.FormatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// ActionsForTask returns the audit trail for one task in insertion order.
func (s *Store) ActionsForTask(ctx context.Context, taskID int64) ([]*ActionEntry, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM action_log WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var entries []*ActionEntry
	for rows.Next() {
		entry, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return entries, nil
}

// RecentActions returns the newest audit entries across all tasks, capped at
// limit.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]*ActionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM action_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var entries []*ActionEntry
	for rows.Next() {
		entry, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return entries, nil
}

// PruneActions deletes audit entries created before the cutoff and returns
// how many went away. Retention enforcement; task rows are never pruned.
func (s *Store) PruneActions(ctx context.Context, cutoff time.Time) (int, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	result, err := s.execWithRetry(ctx, `DELETE FROM action_log WHERE julianday(created_at) < julianday(?)`,
		sqliteutil.FormatTime(cutoff.UTC()))
	if err != nil {
		return 0, fmt.Errorf("prune actions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned actions: %w", err)
	}
	return int(rows), nil
}
