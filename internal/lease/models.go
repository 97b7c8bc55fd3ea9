package lease

import (
	"strings"
	"time"
)

// TaskStatus represents the lifecycle of a verification task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// ParseTaskStatus converts a string into a known TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case TaskPending, TaskInProgress, TaskCompleted:
		return normalized, true
	}
	return "", false
}

// DefaultPriority is assigned to tasks enqueued without an explicit
// priority. Lower values dequeue sooner.
const DefaultPriority = 100

// Task is one video's review assignment: at most one row per video, claimed
// by at most one worker at a time under a time-bounded lease.
type Task struct {
	ID                     int64
	VideoID                string
	Status                 TaskStatus
	Priority               int
	Assignee               string
	LeaseHolder            string
	LeaseExpiresAt         *time.Time
	LastHeartbeat          *time.Time
	AssignedAt             *time.Time
	CompletedAt            *time.Time
	DecisionSummary        string
	TotalProcessingSeconds float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Locked reports whether the task is in progress under an unexpired lease.
func (t *Task) Locked(now time.Time) bool {
	return t.Status == TaskInProgress && t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now)
}

// Stale reports whether the task is in progress but its lease has expired.
// Stale tasks are reclaimable by the reaper and resumable by their original
// assignee, whichever commits first.
func (t *Task) Stale(now time.Time) bool {
	return t.Status == TaskInProgress && t.LeaseExpiresAt != nil && !t.LeaseExpiresAt.After(now)
}

// Audit action kinds recorded in the action log.
const (
	ActionAssigned         = "assigned_task"
	ActionHeartbeat        = "heartbeat"
	ActionCompleted        = "completed_task"
	ActionReleased         = "released_task"
	ActionProcessedTrigger = "processed_trigger"
	ActionResumed          = "resumed_task"
)

// ReclaimReason tags the audit entry written when the reaper returns a
// stale task to the queue.
const ReclaimReason = "stale lock, auto-reclaimed"

// ActionEntry is one append-only audit record of a worker or reaper action.
type ActionEntry struct {
	ID        int64
	Actor     string
	TaskID    int64
	TriggerID *int64
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}

// TaskSummary describes aggregated task counts per lifecycle state.
type TaskSummary struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
}
