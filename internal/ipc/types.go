package ipc

import (
	"time"

	"vigil/internal/lease"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
)

// Video is the wire shape of a registered video.
type Video struct {
	ID              string     `json:"id"`
	OriginalName    string     `json:"original_name"`
	SourcePath      string     `json:"source_path"`
	SizeBytes       int64      `json:"size_bytes"`
	DurationSeconds float64    `json:"duration_seconds"`
	Format          string     `json:"format"`
	Status          string     `json:"status"`
	StatusMessage   string     `json:"status_message,omitempty"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// FromVideo converts a store video into its wire shape.
func FromVideo(video *pipeline.Video) *Video {
	if video == nil {
		return nil
	}
	return &Video{
		ID:              video.ID,
		OriginalName:    video.OriginalName,
		SourcePath:      video.SourcePath,
		SizeBytes:       video.SizeBytes,
		DurationSeconds: video.DurationSeconds,
		Format:          video.Format,
		Status:          string(video.Status),
		StatusMessage:   video.StatusMessage,
		UploadedAt:      video.UploadedAt,
		ProcessedAt:     video.ProcessedAt,
	}
}

// Execution is the wire shape of a pipeline execution.
type Execution struct {
	ID                 int64                 `json:"id"`
	VideoID            string                `json:"video_id"`
	Status             string                `json:"status"`
	CurrentStage       string                `json:"current_stage,omitempty"`
	LastCompletedStage string                `json:"last_completed_stage,omitempty"`
	Progress           int                   `json:"progress"`
	RetryCount         int                   `json:"retry_count"`
	ErrorTrace         []pipeline.TraceEntry `json:"error_trace,omitempty"`
	StartedAt          *time.Time            `json:"started_at,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	ProcessingSeconds  float64               `json:"processing_seconds"`
	APICallCount       int                   `json:"api_call_count"`
	CostEstimate       float64               `json:"cost_estimate"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// FromExecution converts a store execution into its wire shape.
func FromExecution(exec *pipeline.Execution) *Execution {
	if exec == nil {
		return nil
	}
	return &Execution{
		ID:                 exec.ID,
		VideoID:            exec.VideoID,
		Status:             string(exec.Status),
		CurrentStage:       exec.CurrentStage,
		LastCompletedStage: exec.LastCompletedStage,
		Progress:           exec.Progress,
		RetryCount:         exec.RetryCount,
		ErrorTrace:         exec.ErrorTrace,
		StartedAt:          exec.StartedAt,
		CompletedAt:        exec.CompletedAt,
		ProcessingSeconds:  exec.ProcessingSeconds,
		APICallCount:       exec.APICallCount,
		CostEstimate:       exec.CostEstimate,
		CreatedAt:          exec.CreatedAt,
		UpdatedAt:          exec.UpdatedAt,
	}
}

// Trigger is the wire shape of a review trigger.
type Trigger struct {
	ID              int64          `json:"id"`
	VideoID         string         `json:"video_id"`
	TimestampOffset float64        `json:"timestamp_offset"`
	Source          string         `json:"source"`
	Confidence      float64        `json:"confidence"`
	Data            map[string]any `json:"data,omitempty"`
	Status          string         `json:"status"`
	DecisionLabel   string         `json:"decision_label,omitempty"`
	DecisionNote    string         `json:"decision_note,omitempty"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// FromTrigger converts a store trigger into its wire shape.
func FromTrigger(trigger *pipeline.Trigger) *Trigger {
	if trigger == nil {
		return nil
	}
	return &Trigger{
		ID:              trigger.ID,
		VideoID:         trigger.VideoID,
		TimestampOffset: trigger.TimestampOffset,
		Source:          trigger.Source,
		Confidence:      trigger.Confidence,
		Data:            trigger.Data,
		Status:          string(trigger.Status),
		DecisionLabel:   trigger.DecisionLabel,
		DecisionNote:    trigger.DecisionNote,
		DecidedBy:       trigger.DecidedBy,
		DecidedAt:       trigger.DecidedAt,
		CreatedAt:       trigger.CreatedAt,
	}
}

// Task is the wire shape of a verification task.
type Task struct {
	ID                     int64      `json:"id"`
	VideoID                string     `json:"video_id"`
	Status                 string     `json:"status"`
	Priority               int        `json:"priority"`
	Assignee               string     `json:"assignee,omitempty"`
	LeaseHolder            string     `json:"lease_holder,omitempty"`
	LeaseExpiresAt         *time.Time `json:"lease_expires_at,omitempty"`
	LastHeartbeat          *time.Time `json:"last_heartbeat,omitempty"`
	AssignedAt             *time.Time `json:"assigned_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	DecisionSummary        string     `json:"decision_summary,omitempty"`
	TotalProcessingSeconds float64    `json:"total_processing_seconds"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// FromTask converts a store task into its wire shape.
func FromTask(task *lease.Task) *Task {
	if task == nil {
		return nil
	}
	return &Task{
		ID:                     task.ID,
		VideoID:                task.VideoID,
		Status:                 string(task.Status),
		Priority:               task.Priority,
		Assignee:               task.Assignee,
		LeaseHolder:            task.LeaseHolder,
		LeaseExpiresAt:         task.LeaseExpiresAt,
		LastHeartbeat:          task.LastHeartbeat,
		AssignedAt:             task.AssignedAt,
		CompletedAt:            task.CompletedAt,
		DecisionSummary:        task.DecisionSummary,
		TotalProcessingSeconds: task.TotalProcessingSeconds,
		CreatedAt:              task.CreatedAt,
		UpdatedAt:              task.UpdatedAt,
	}
}

// TaskAction is the wire shape of an audit log entry.
type TaskAction struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	TaskID    int64          `json:"task_id"`
	TriggerID *int64         `json:"trigger_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FromActionEntry converts an audit entry into its wire shape.
func FromActionEntry(entry *lease.ActionEntry) *TaskAction {
	if entry == nil {
		return nil
	}
	return &TaskAction{
		ID:        entry.ID,
		Actor:     entry.Actor,
		TaskID:    entry.TaskID,
		TriggerID: entry.TriggerID,
		Action:    entry.Action,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
}

// Check is the wire shape of a preflight result.
type Check struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional"`
	Detail   string `json:"detail,omitempty"`
}

// FromCheck converts a preflight result into its wire shape.
func FromCheck(result preflight.Result) Check {
	return Check{
		Name:     result.Name,
		Passed:   result.Passed,
		Optional: result.Optional,
		Detail:   result.Detail,
	}
}

// ExecutionStats aggregates execution counts per lifecycle state.
type ExecutionStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// TaskStats aggregates verification task counts per lifecycle state.
type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and store status.
type StatusResponse struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	LockPath       string         `json:"lock_path"`
	LogPath        string         `json:"log_path"`
	PipelineDBPath string         `json:"pipeline_db_path"`
	ReviewDBPath   string         `json:"review_db_path"`
	LastError      string         `json:"last_error,omitempty"`
	Executions     ExecutionStats `json:"executions"`
	Tasks          TaskStats      `json:"tasks"`
	Checks         []Check        `json:"checks"`
}

// SubmitRequest registers a video file for processing.
type SubmitRequest struct {
	SourcePath   string `json:"source_path"`
	OriginalName string `json:"original_name"`
}

// SubmitResponse carries the registered video and its queued execution.
type SubmitResponse struct {
	Video     Video     `json:"video"`
	Execution Execution `json:"execution"`
}

// ReprocessRequest queues a fresh execution for a known video.
type ReprocessRequest struct {
	VideoID string `json:"video_id"`
}

// ReprocessResponse carries the queued execution.
type ReprocessResponse struct {
	Execution Execution `json:"execution"`
}

// VideoListRequest filters videos by status.
type VideoListRequest struct {
	Statuses []string `json:"statuses"`
}

// VideoListResponse contains registered videos.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// ExecutionShowRequest fetches one video's pipeline state.
type ExecutionShowRequest struct {
	VideoID string `json:"video_id"`
}

// ExecutionShowResponse pairs a video with its execution.
type ExecutionShowResponse struct {
	Video     Video      `json:"video"`
	Execution *Execution `json:"execution,omitempty"`
}

// ExecutionListRequest filters executions by status.
type ExecutionListRequest struct {
	Statuses []string `json:"statuses"`
}

// ExecutionListResponse contains pipeline executions.
type ExecutionListResponse struct {
	Executions []Execution `json:"executions"`
}

// ReportRequest compiles the moderation report for a video.
type ReportRequest struct {
	VideoID string `json:"video_id"`
}

// ReportResponse carries the compiled report.
type ReportResponse struct {
	Report pipeline.Report `json:"report"`
}

// TriggerListRequest fetches a video's review triggers.
type TriggerListRequest struct {
	VideoID     string `json:"video_id"`
	PendingOnly bool   `json:"pending_only"`
}

// TriggerListResponse contains review triggers.
type TriggerListResponse struct {
	Triggers []Trigger `json:"triggers"`
}

// TriggerDecideRequest records an operator decision on a trigger.
type TriggerDecideRequest struct {
	Worker    string `json:"worker"`
	TaskID    int64  `json:"task_id"`
	TriggerID int64  `json:"trigger_id"`
	Label     string `json:"label"`
	Note      string `json:"note"`
}

// TriggerDecideResponse carries the processed trigger.
type TriggerDecideResponse struct {
	Trigger Trigger `json:"trigger"`
}

// TaskListRequest filters verification tasks by status.
type TaskListRequest struct {
	Statuses []string `json:"statuses"`
}

// TaskListResponse contains verification tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskShowRequest fetches one task by id, or by video when ID is zero.
type TaskShowRequest struct {
	ID      int64  `json:"id"`
	VideoID string `json:"video_id"`
}

// TaskShowResponse pairs a task with its audit trail.
type TaskShowResponse struct {
	Task    Task         `json:"task"`
	Actions []TaskAction `json:"actions"`
}

// TaskAuditRequest fetches the newest audit entries across all tasks.
type TaskAuditRequest struct {
	Limit int `json:"limit"`
}

// TaskAuditResponse contains audit entries, newest first.
type TaskAuditResponse struct {
	Actions []TaskAction `json:"actions"`
}

// TaskClaimRequest leases the next pending task to a worker.
type TaskClaimRequest struct {
	Worker string `json:"worker"`
}

// TaskClaimResponse reports whether a task was available.
type TaskClaimResponse struct {
	Claimed bool  `json:"claimed"`
	Task    *Task `json:"task,omitempty"`
}

// TaskHeartbeatRequest extends a live lease.
type TaskHeartbeatRequest struct {
	Worker string `json:"worker"`
	TaskID int64  `json:"task_id"`
}

// TaskHeartbeatResponse carries the renewed task.
type TaskHeartbeatResponse struct {
	Task Task `json:"task"`
}

// TaskCompleteRequest finishes a worker's task.
type TaskCompleteRequest struct {
	Worker  string `json:"worker"`
	TaskID  int64  `json:"task_id"`
	Summary string `json:"summary"`
}

// TaskCompleteResponse carries the completed task.
type TaskCompleteResponse struct {
	Task Task `json:"task"`
}

// TaskReleaseRequest returns a worker's task to the queue.
type TaskReleaseRequest struct {
	Worker string `json:"worker"`
	TaskID int64  `json:"task_id"`
}

// TaskReleaseResponse carries the released task.
type TaskReleaseResponse struct {
	Task Task `json:"task"`
}

// TaskResumeRequest re-establishes an expired lease.
type TaskResumeRequest struct {
	Worker string `json:"worker"`
	TaskID int64  `json:"task_id"`
}

// TaskResumeResponse carries the resumed task.
type TaskResumeResponse struct {
	Task Task `json:"task"`
}

// TaskForceReleaseRequest returns any in-progress task to the queue.
type TaskForceReleaseRequest struct {
	Actor  string `json:"actor"`
	TaskID int64  `json:"task_id"`
}

// TaskForceReleaseResponse carries the released task.
type TaskForceReleaseResponse struct {
	Task Task `json:"task"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
