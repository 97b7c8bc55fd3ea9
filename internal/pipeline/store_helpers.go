package pipeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"vigil/internal/sqliteutil"
)

const videoColumns = `id, original_name, source_path, size_bytes, duration_seconds, format, status, status_message, uploaded_at, processed_at`

const executionColumns = `id, video_id, status, current_stage, last_completed_stage, progress, retry_count, error_trace, started_at, completed_at, processing_seconds, api_call_count, cost_estimate, created_at, updated_at`

const triggerColumns = `id, video_id, timestamp_offset, source, confidence, data, status, decision_label, decision_note, decided_by, decided_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(scanner rowScanner) (*Video, error) {
	var (
		video         Video
		status        string
		statusMessage sql.NullString
		uploadedAt    string
		processedAt   sql.NullString
	)
	if err := scanner.Scan(
		&video.ID,
		&video.OriginalName,
		&video.SourcePath,
		&video.SizeBytes,
		&video.DurationSeconds,
		&video.Format,
		&status,
		&statusMessage,
		&uploadedAt,
		&processedAt,
	); err != nil {
		return nil, err
	}
	video.Status = VideoStatus(status)
	video.StatusMessage = statusMessage.String

	parsed, err := sqliteutil.ParseTime(uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("parse uploaded_at: %w", err)
	}
	video.UploadedAt = parsed

	video.ProcessedAt, err = sqliteutil.ParseNullableTime(processedAt)
	if err != nil {
		return nil, fmt.Errorf("parse processed_at: %w", err)
	}
	return &video, nil
}

func scanExecution(scanner rowScanner) (*Execution, error) {
	var (
		exec         Execution
		status       string
		currentStage sql.NullString
		lastStage    sql.NullString
		trace        sql.NullString
		startedAt    sql.NullString
		completedAt  sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := scanner.Scan(
		&exec.ID,
		&exec.VideoID,
		&status,
		&currentStage,
		&lastStage,
		&exec.Progress,
		&exec.RetryCount,
		&trace,
		&startedAt,
		&completedAt,
		&exec.ProcessingSeconds,
		&exec.APICallCount,
		&exec.CostEstimate,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	exec.Status = ExecutionStatus(status)
	exec.CurrentStage = currentStage.String
	exec.LastCompletedStage = lastStage.String

	entries, err := decodeTrace(trace)
	if err != nil {
		return nil, err
	}
	exec.ErrorTrace = entries

	exec.StartedAt, err = sqliteutil.ParseNullableTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	exec.CompletedAt, err = sqliteutil.ParseNullableTime(completedAt)
	if err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	parsed, err := sqliteutil.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	exec.CreatedAt = parsed

	parsed, err = sqliteutil.ParseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	exec.UpdatedAt = parsed
	return &exec, nil
}

func scanTrigger(scanner rowScanner) (*Trigger, error) {
	var (
		trigger       Trigger
		status        string
		data          sql.NullString
		decisionLabel sql.NullString
		decisionNote  sql.NullString
		decidedBy     sql.NullString
		decidedAt     sql.NullString
		createdAt     string
	)
	if err := scanner.Scan(
		&trigger.ID,
		&trigger.VideoID,
		&trigger.TimestampOffset,
		&trigger.Source,
		&trigger.Confidence,
		&data,
		&status,
		&decisionLabel,
		&decisionNote,
		&decidedBy,
		&decidedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}
	trigger.Status = TriggerStatus(status)
	trigger.DecisionLabel = decisionLabel.String
	trigger.DecisionNote = decisionNote.String
	trigger.DecidedBy = decidedBy.String

	payload, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	trigger.Data = payload

	trigger.DecidedAt, err = sqliteutil.ParseNullableTime(decidedAt)
	if err != nil {
		return nil, fmt.Errorf("parse decided_at: %w", err)
	}

	parsed, err := sqliteutil.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	trigger.CreatedAt = parsed
	return &trigger, nil
}

func encodeTrace(entries []TraceEntry) (any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode error trace: %w", err)
	}
	return string(encoded), nil
}

func decodeTrace(value sql.NullString) ([]TraceEntry, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	var entries []TraceEntry
	if err := json.Unmarshal([]byte(value.String), &entries); err != nil {
		return nil, fmt.Errorf("decode error trace: %w", err)
	}
	return entries, nil
}

func encodeData(data map[string]any) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode trigger data: %w", err)
	}
	return string(encoded), nil
}

func decodeData(value sql.NullString) (map[string]any, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(value.String), &data); err != nil {
		return nil, fmt.Errorf("decode trigger data: %w", err)
	}
	return data, nil
}
