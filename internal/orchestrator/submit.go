package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"vigil/internal/logging"
	"vigil/internal/media"
	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// SubmitFile registers a new video and queues its execution. Only existence
// is checked here; size, duration, and format limits are enforced by the
// worker before the first stage runs.
func (m *Manager) SubmitFile(ctx context.Context, sourcePath, originalName string) (*pipeline.Video, *pipeline.Execution, error) {
	abs, err := filepath.Abs(strings.TrimSpace(sourcePath))
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "", "submit video", "source path could not be resolved", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "", "submit video",
			fmt.Sprintf("source file %s is not readable", abs), err)
	}
	if info.IsDir() {
		return nil, nil, services.Wrap(services.ErrValidation, "", "submit video",
			fmt.Sprintf("source path %s is a directory", abs), nil)
	}

	name := strings.TrimSpace(originalName)
	if name == "" {
		name = filepath.Base(abs)
	}
	video := &pipeline.Video{
		ID:            uuid.NewString(),
		OriginalName:  name,
		SourcePath:    abs,
		SizeBytes:     info.Size(),
		Format:        media.NormalizeFormat(abs),
		Status:        pipeline.VideoUploaded,
		StatusMessage: "queued for processing",
	}
	if err := m.store.SaveVideo(ctx, video); err != nil {
		return nil, nil, err
	}
	exec, err := m.store.GetOrCreateExecution(ctx, video.ID)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.WithContext(services.WithVideoID(ctx, video.ID), m.logger)
	logger.Info("video submitted",
		logging.String(logging.FieldEventType, "video_submitted"),
		logging.String("original_name", video.OriginalName),
		logging.Int64("size_bytes", video.SizeBytes),
		logging.String("format", video.Format),
	)
	return video, exec, nil
}

// Submit queues processing for an already registered video. A failed
// execution is reopened from its checkpoint; pending, running, and completed
// executions are returned unchanged.
func (m *Manager) Submit(ctx context.Context, videoID string) (*pipeline.Execution, error) {
	video, err := m.store.VideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "submit video",
			fmt.Sprintf("video %s is not registered", videoID), nil)
	}

	exec, err := m.store.GetOrCreateExecution(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if exec.Status != pipeline.ExecutionFailed {
		return exec, nil
	}

	reopened, err := m.store.ReopenFailed(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !reopened {
		return exec, nil
	}

	video.Status = pipeline.VideoProcessing
	video.StatusMessage = "queued for retry"
	if err := m.store.UpdateVideo(ctx, video); err != nil {
		return nil, err
	}

	exec, err = m.store.ExecutionByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(services.WithVideoID(ctx, videoID), m.logger)
	logger.Info("failed execution reopened",
		logging.String(logging.FieldEventType, "execution_reopened"),
		logging.String("checkpoint", exec.LastCompletedStage),
		logging.Int("retry_count", exec.RetryCount),
	)
	return exec, nil
}
