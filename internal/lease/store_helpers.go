package lease

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"vigil/internal/sqliteutil"
)

const taskColumns = `id, video_id, status, priority, assignee, lease_holder, lease_expires_at, last_heartbeat, assigned_at, completed_at, decision_summary, total_processing_seconds, created_at, updated_at`

const actionColumns = `id, actor, task_id, trigger_id, action, details, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task            Task
		status          string
		assignee        sql.NullString
		leaseHolder     sql.NullString
		leaseExpiresAt  sql.NullString
		lastHeartbeat   sql.NullString
		assignedAt      sql.NullString
		completedAt     sql.NullString
		decisionSummary sql.NullString
		createdAt       string
		updatedAt       string
	)
	if err := scanner.Scan(
		&task.ID,
		&task.VideoID,
		&status,
		&task.Priority,
		&assignee,
		&leaseHolder,
		&leaseExpiresAt,
		&lastHeartbeat,
		&assignedAt,
		&completedAt,
		&decisionSummary,
		&task.TotalProcessingSeconds,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = TaskStatus(status)
	task.Assignee = assignee.String
	task.LeaseHolder = leaseHolder.String
	task.DecisionSummary = decisionSummary.String

	var err error
	if task.LeaseExpiresAt, err = sqliteutil.ParseNullableTime(leaseExpiresAt); err != nil {
		return nil, fmt.Errorf("parse lease_expires_at: %w", err)
	}
	if task.LastHeartbeat, err = sqliteutil.ParseNullableTime(lastHeartbeat); err != nil {
		return nil, fmt.Errorf("parse last_heartbeat: %w", err)
	}
	if task.AssignedAt, err = sqliteutil.ParseNullableTime(assignedAt); err != nil {
		return nil, fmt.Errorf("parse assigned_at: %w", err)
	}
	if task.CompletedAt, err = sqliteutil.ParseNullableTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	parsed, err := sqliteutil.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	task.CreatedAt = parsed

	parsed, err = sqliteutil.ParseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	task.UpdatedAt = parsed
	return &task, nil
}

func scanAction(scanner rowScanner) (*ActionEntry, error) {
	var (
		entry     ActionEntry
		triggerID sql.NullInt64
		details   sql.NullString
		createdAt string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Actor,
		&entry.TaskID,
		&triggerID,
		&entry.Action,
		&details,
		&createdAt,
	); err != nil {
		return nil, err
	}
	if triggerID.Valid {
		id := triggerID.Int64
		entry.TriggerID = &id
	}

	decoded, err := decodeDetails(details)
	if err != nil {
		return nil, err
	}
	entry.Details = decoded

	parsed, err := sqliteutil.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	entry.CreatedAt = parsed
	return &entry, nil
}

func encodeDetails(details map[string]any) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode action details: %w", err)
	}
	return string(encoded), nil
}

func decodeDetails(value sql.NullString) (map[string]any, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(value.String), &details); err != nil {
		return nil, fmt.Errorf("decode action details: %w", err)
	}
	return details, nil
}
