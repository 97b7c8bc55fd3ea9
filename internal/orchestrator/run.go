package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vigil/internal/logging"
	"vigil/internal/media"
	"vigil/internal/pipeline"
	"vigil/internal/services"
	"vigil/internal/stages"
)

// stageValidation labels pre-pipeline source validation in traces and status
// messages. It is not a DAG stage and never retries.
const stageValidation = "validation"

// processExecution drives one claimed execution through the DAG. The
// execution is already marked running by the claim; this either finalizes it
// as completed or failed, or leaves it running when shutdown interrupts.
func (m *Manager) processExecution(ctx context.Context, worker string, exec *pipeline.Execution) error {
	runStart := time.Now()
	runCtx := services.WithRequestID(ctx, uuid.NewString())
	runCtx = services.WithVideoID(runCtx, exec.VideoID)
	runCtx = services.WithWorker(runCtx, worker)
	logger := logging.WithContext(runCtx, m.logger)

	state := newExecutionState(m.store, exec)

	video, err := m.store.VideoByID(runCtx, exec.VideoID)
	if err != nil {
		logger.Error("failed to load video for execution", logging.Error(err))
		return err
	}
	if video == nil {
		// Orphaned execution row. Terminal, nothing to notify against.
		_ = state.AttemptFailed(runCtx, stageValidation, "video record missing from registry", false)
		return state.Fail(runCtx, time.Since(runStart))
	}

	video.Status = pipeline.VideoProcessing
	video.StatusMessage = ""
	if err := m.store.UpdateVideo(runCtx, video); err != nil {
		logger.Error("failed to mark video processing", logging.Error(err))
	}

	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("checkpoint", exec.LastCompletedStage),
		logging.Int("progress", exec.Progress),
	)

	limits := media.Limits{
		MaxSizeBytes:       m.cfg.Validation.MaxFileSizeBytes,
		MaxDurationSeconds: m.cfg.Validation.MaxDurationSeconds,
		AllowedFormats:     m.cfg.Validation.AllowedFormats,
	}
	if _, err := media.ValidateSource(runCtx, m.cfg.FFprobeBinary(), video.SourcePath, limits); err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		_ = state.AttemptFailed(runCtx, stageValidation, failureMessage(err), false)
		return m.failExecution(runCtx, logger, state, video, stageValidation, err, runStart)
	}

	ws := stages.NewWorkspace(m.cfg.Paths.StagingDir, video.ID)
	if err := ws.Ensure(); err != nil {
		wrapped := services.Wrap(services.ErrTransient, stageValidation, "prepare workspace", "could not create staging workspace", err)
		_ = state.AttemptFailed(runCtx, stageValidation, failureMessage(wrapped), false)
		return m.failExecution(runCtx, logger, state, video, stageValidation, wrapped, runStart)
	}

	runState := &stages.State{Video: video, Workspace: ws}
	m.runner.Hydrate(runCtx, runState)

	plan := DefaultPlan().Remaining(exec.LastCompletedStage)

	totals := func() (int, float64) { return runState.APICallTotal(), runState.CostTotal() }
	for _, stage := range plan.Prefix {
		if err := m.runStage(runCtx, logger, state, runState, stage, totals); err != nil {
			return m.handleStageError(runCtx, logger, state, video, err, runStart)
		}
	}

	if len(plan.AudioBranch) > 0 || len(plan.VisualBranch) > 0 {
		// The branches run to completion independently. A failure in one
		// does not cancel the other mid-stage; the join below surfaces the
		// first failure once both have stopped.
		var g errgroup.Group
		g.Go(func() error {
			return m.runBranch(runCtx, logger, state, runState, plan.AudioBranch, func() (int, float64) {
				return runState.Audio.APICalls, runState.Audio.Cost
			})
		})
		g.Go(func() error {
			return m.runBranch(runCtx, logger, state, runState, plan.VisualBranch, func() (int, float64) {
				return runState.Visual.APICalls, runState.Visual.Cost
			})
		})
		if err := g.Wait(); err != nil {
			return m.handleStageError(runCtx, logger, state, video, err, runStart)
		}
	}

	for _, stage := range plan.Suffix {
		if err := m.runStage(runCtx, logger, state, runState, stage, totals); err != nil {
			return m.handleStageError(runCtx, logger, state, video, err, runStart)
		}
	}

	return m.finalizeExecution(runCtx, logger, state, video, runState, runStart)
}

func (m *Manager) runBranch(ctx context.Context, logger *slog.Logger, state *executionState, st *stages.State, branch []string, meter meterFunc) error {
	for _, stage := range branch {
		if err := m.runStage(ctx, logger, state, st, stage, meter); err != nil {
			return err
		}
	}
	return nil
}

// handleStageError routes a terminal stage error. Shutdown propagates
// untouched so the worker loop exits; anything else fails the execution.
func (m *Manager) handleStageError(ctx context.Context, logger *slog.Logger, state *executionState, video *pipeline.Video, err error, runStart time.Time) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return context.Canceled
	}
	stage := "unknown"
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	return m.failExecution(ctx, logger, state, video, stage, err, runStart)
}

// failExecution records the terminal failure on the video and the execution,
// then notifies. Stage attempts have already traced themselves; only the
// validation path appends its trace before calling here. The execution row
// flips to failed last, so anything observing the terminal status sees the
// video transition and notification already done.
func (m *Manager) failExecution(ctx context.Context, logger *slog.Logger, state *executionState, video *pipeline.Video, stage string, cause error, runStart time.Time) error {
	message := failureMessage(cause)
	video.Status = pipeline.VideoFailed
	video.StatusMessage = fmt.Sprintf("failed at %s: %s", stage, message)
	if err := m.store.UpdateVideo(ctx, video); err != nil {
		logger.Error("failed to mark video failed", logging.Error(err))
	}

	if err := m.notifier.NotifyPipelineFailed(ctx, video.ID, stage, message); err != nil {
		logger.Warn("pipeline failure notification failed", logging.Error(err))
	}

	if err := state.Fail(ctx, time.Since(runStart)); err != nil {
		logger.Error("failed to persist execution failure", logging.Error(err))
	}

	details := services.Details(cause)
	logger.Error("pipeline failed",
		logging.String(logging.FieldEventType, "pipeline_failure"),
		logging.Alert("pipeline_failed"),
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Duration("duration", time.Since(runStart)),
		logging.Error(cause),
	)
	return nil
}

// finalizeExecution closes out a successful run: the video moves to
// verification, exactly one review task is ensured, and the staging workspace
// is released. The execution row flips to completed last; a crash partway
// through leaves it running, and the rerun after recovery repeats only these
// idempotent steps because every stage is already checkpointed.
func (m *Manager) finalizeExecution(ctx context.Context, logger *slog.Logger, state *executionState, video *pipeline.Video, runState *stages.State, runStart time.Time) error {
	pending := 0
	if runState.Report != nil {
		pending = runState.Report.PendingTriggers
	}
	if triggers, err := m.store.PendingTriggersByVideo(ctx, video.ID); err == nil {
		pending = len(triggers)
	} else {
		logger.Warn("failed to count pending triggers", logging.Error(err))
	}

	now := time.Now().UTC()
	video.Status = pipeline.VideoVerification
	video.StatusMessage = "ready for review"
	video.ProcessedAt = &now
	if err := m.store.UpdateVideo(ctx, video); err != nil {
		logger.Error("failed to mark video ready for review", logging.Error(err))
	}

	if _, err := m.tasks.Enqueue(ctx, video.ID, 0); err != nil {
		logger.Error("failed to enqueue review task",
			logging.Alert("review_task_missing"),
			logging.Error(err),
		)
	}

	if err := m.notifier.NotifyReadyForReview(ctx, video.ID, pending); err != nil {
		logger.Warn("ready-for-review notification failed", logging.Error(err))
	}

	if err := runState.Workspace.Remove(); err != nil {
		logger.Warn("failed to remove staging workspace", logging.Error(err))
	}

	if err := state.Complete(ctx, time.Since(runStart)); err != nil {
		logger.Error("failed to persist execution completion", logging.Error(err))
		return err
	}

	snap := state.Snapshot()
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("api_calls", snap.APICallCount),
		logging.Float64("cost_estimate", snap.CostEstimate),
		logging.Int("pending_triggers", pending),
		logging.Duration("duration", time.Since(runStart)),
	)
	return nil
}
