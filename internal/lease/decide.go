package lease

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// TriggerMarker is the slice of the pipeline store that trigger adjudication
// needs.
type TriggerMarker interface {
	TriggerByID(ctx context.Context, id int64) (*pipeline.Trigger, error)
	MarkTriggerProcessed(ctx context.Context, id int64, label, note, actor string) (*pipeline.Trigger, error)
}

// DecideTrigger records a reviewer decision on one trigger. The worker must
// hold a live lease on the task for the trigger's video; decisions against a
// stale lease are rejected until the worker resumes the task. The decision
// lands in the pipeline store and the audit trail in the review store.
func (s *Store) DecideTrigger(ctx context.Context, marker TriggerMarker, worker string, taskID, triggerID int64, label, note string) (*pipeline.Trigger, error) {
	now := time.Now().UTC()

	task, err := s.TaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "decide trigger", fmt.Sprintf("task %d not found", taskID), nil)
	}
	if task.Status != TaskInProgress {
		return nil, services.Wrap(services.ErrLeaseConflict, "", "decide trigger", fmt.Sprintf("task %d is %s, not in progress", taskID, task.Status), nil)
	}
	if task.Assignee != worker {
		return nil, services.Wrap(services.ErrLeaseConflict, "", "decide trigger", fmt.Sprintf("task %d is assigned to %s", taskID, task.Assignee), nil)
	}
	if task.Stale(now) {
		return nil, services.Wrap(services.ErrLeaseConflict, "", "decide trigger", fmt.Sprintf("lease on task %d expired; resume it first", taskID), nil)
	}

	trigger, err := marker.TriggerByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if trigger == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "decide trigger", fmt.Sprintf("trigger %d not found", triggerID), nil)
	}
	if trigger.VideoID != task.VideoID {
		return nil, services.Wrap(services.ErrValidation, "", "decide trigger",
			fmt.Sprintf("trigger %d belongs to video %s, not task video %s", triggerID, trigger.VideoID, task.VideoID), nil)
	}

	updated, err := marker.MarkTriggerProcessed(ctx, triggerID, label, note, worker)
	if err != nil {
		return nil, err
	}

	if err := s.appendAction(ctx, worker, taskID, &triggerID, ActionProcessedTrigger, map[string]any{
		"label": label,
	}); err != nil {
		return nil, err
	}
	return updated, nil
}
