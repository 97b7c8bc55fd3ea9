package daemon

import (
	"context"
	"strings"

	"vigil/internal/pipeline"
)

// SubmitFile validates and registers a new video and queues its first
// pipeline execution.
func (d *Daemon) SubmitFile(ctx context.Context, sourcePath, originalName string) (*pipeline.Video, *pipeline.Execution, error) {
	return d.manager.SubmitFile(ctx, sourcePath, originalName)
}

// Reprocess queues a fresh execution for an already-registered video.
func (d *Daemon) Reprocess(ctx context.Context, videoID string) (*pipeline.Execution, error) {
	return d.manager.Submit(ctx, videoID)
}

// Video fetches a registered video, or nil when the id is unknown.
func (d *Daemon) Video(ctx context.Context, videoID string) (*pipeline.Video, error) {
	return d.store.VideoByID(ctx, videoID)
}

// ListVideos returns registered videos, optionally filtered by status.
func (d *Daemon) ListVideos(ctx context.Context, statuses ...pipeline.VideoStatus) ([]*pipeline.Video, error) {
	return d.store.ListVideos(ctx, statuses...)
}

// Execution fetches the pipeline execution for a video, or nil when the
// video has none.
func (d *Daemon) Execution(ctx context.Context, videoID string) (*pipeline.Execution, error) {
	return d.store.ExecutionByVideo(ctx, videoID)
}

// ListExecutions returns pipeline executions, optionally filtered by status.
func (d *Daemon) ListExecutions(ctx context.Context, statuses ...pipeline.ExecutionStatus) ([]*pipeline.Execution, error) {
	return d.store.ListExecutions(ctx, statuses...)
}

// Report compiles the moderation report for a video from its stored
// detections, trigger decisions, and the daemon's risk catalog.
func (d *Daemon) Report(ctx context.Context, videoID string) (*pipeline.Report, error) {
	return d.store.CompileReport(ctx, videoID, d.catalog)
}

// Triggers returns a video's review triggers, pending ones only when
// pendingOnly is set.
func (d *Daemon) Triggers(ctx context.Context, videoID string, pendingOnly bool) ([]*pipeline.Trigger, error) {
	if pendingOnly {
		return d.store.PendingTriggersByVideo(ctx, videoID)
	}
	return d.store.TriggersByVideo(ctx, videoID)
}

// TestNotification sends a test message through the configured notifier.
// It reports whether a message went out and a human-readable explanation.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
