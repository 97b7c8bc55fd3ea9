package daemon

import (
	"context"
	"time"

	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
)

// ClaimTask leases the next pending verification task to worker. It returns
// nil when no task is pending.
func (d *Daemon) ClaimTask(ctx context.Context, worker string) (*lease.Task, error) {
	return d.tasks.Acquire(ctx, worker, d.leaseDuration())
}

// HeartbeatTask extends worker's live lease on a task.
func (d *Daemon) HeartbeatTask(ctx context.Context, worker string, taskID int64) (*lease.Task, error) {
	return d.tasks.Heartbeat(ctx, worker, taskID, d.renewalDuration())
}

// ResumeTask re-establishes worker's expired lease on a task the reaper has
// not yet reclaimed.
func (d *Daemon) ResumeTask(ctx context.Context, worker string, taskID int64) (*lease.Task, error) {
	return d.tasks.Resume(ctx, worker, taskID, d.renewalDuration())
}

// ReleaseTask returns worker's task to the pending queue.
func (d *Daemon) ReleaseTask(ctx context.Context, worker string, taskID int64) (*lease.Task, error) {
	return d.tasks.Release(ctx, worker, taskID)
}

// ForceReleaseTask returns an in-progress task to the pending queue
// regardless of who holds the lease, recording actor in the audit log.
func (d *Daemon) ForceReleaseTask(ctx context.Context, actor string, taskID int64) (*lease.Task, error) {
	return d.tasks.ForceRelease(ctx, actor, taskID)
}

// CompleteTask finishes worker's verification task and moves the reviewed
// video from verification to completed. The task completion commits first;
// if the video update then fails the task stays completed and the mismatch
// is logged for the operator.
func (d *Daemon) CompleteTask(ctx context.Context, worker string, taskID int64, summary string) (*lease.Task, error) {
	task, err := d.tasks.Complete(ctx, worker, taskID, summary)
	if err != nil {
		return nil, err
	}
	d.markVideoReviewed(ctx, task.VideoID)
	return task, nil
}

func (d *Daemon) markVideoReviewed(ctx context.Context, videoID string) {
	video, err := d.store.VideoByID(ctx, videoID)
	if err != nil {
		d.logger.Warn("video lookup after review completion failed",
			logging.String(logging.FieldVideoID, videoID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "review_finalize_failed"))
		return
	}
	if video == nil {
		d.logger.Warn("reviewed video is no longer registered",
			logging.String(logging.FieldVideoID, videoID),
			logging.String(logging.FieldEventType, "review_finalize_failed"))
		return
	}
	if video.Status != pipeline.VideoVerification {
		d.logger.Info("reviewed video left verification before completion",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("status", string(video.Status)),
			logging.String(logging.FieldEventType, "review_finalize_skipped"))
		return
	}
	video.Status = pipeline.VideoCompleted
	video.StatusMessage = "human review completed"
	if err := d.store.UpdateVideo(ctx, video); err != nil {
		d.logger.Warn("video status update after review completion failed",
			logging.String(logging.FieldVideoID, videoID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "review_finalize_failed"))
	}
}

// DecideTrigger records worker's decision on a review trigger under the
// task's live lease.
func (d *Daemon) DecideTrigger(ctx context.Context, worker string, taskID, triggerID int64, label, note string) (*pipeline.Trigger, error) {
	return d.tasks.DecideTrigger(ctx, d.store, worker, taskID, triggerID, label, note)
}

// Tasks returns verification tasks, optionally filtered by status.
func (d *Daemon) Tasks(ctx context.Context, statuses ...lease.TaskStatus) ([]*lease.Task, error) {
	return d.tasks.ListTasks(ctx, statuses...)
}

// Task fetches a verification task, or nil when the id is unknown.
func (d *Daemon) Task(ctx context.Context, taskID int64) (*lease.Task, error) {
	return d.tasks.TaskByID(ctx, taskID)
}

// TaskForVideo fetches the verification task for a video, or nil when the
// video has none.
func (d *Daemon) TaskForVideo(ctx context.Context, videoID string) (*lease.Task, error) {
	return d.tasks.TaskByVideo(ctx, videoID)
}

// TaskActions returns the audit trail for a verification task.
func (d *Daemon) TaskActions(ctx context.Context, taskID int64) ([]*lease.ActionEntry, error) {
	return d.tasks.ActionsForTask(ctx, taskID)
}

// RecentActions returns the newest audit entries across all tasks.
func (d *Daemon) RecentActions(ctx context.Context, limit int) ([]*lease.ActionEntry, error) {
	return d.tasks.RecentActions(ctx, limit)
}

func (d *Daemon) leaseDuration() time.Duration {
	return time.Duration(d.cfg.Lease.DurationSeconds) * time.Second
}

func (d *Daemon) renewalDuration() time.Duration {
	return time.Duration(d.cfg.Lease.RenewalSeconds) * time.Second
}
