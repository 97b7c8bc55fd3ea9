package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vigil/internal/pipeline"
	"vigil/internal/services"
	"vigil/internal/testsupport"
)

func TestSaveAndLoadVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	video := &pipeline.Video{
		ID:              "vid-save",
		OriginalName:    "clip.mp4",
		SourcePath:      "/videos/clip.mp4",
		SizeBytes:       2048,
		DurationSeconds: 93.5,
		Format:          "mp4",
	}
	if err := store.SaveVideo(ctx, video); err != nil {
		t.Fatalf("save video: %v", err)
	}
	if video.Status != pipeline.VideoUploaded {
		t.Fatalf("expected default status uploaded, got %s", video.Status)
	}
	if video.UploadedAt.IsZero() {
		t.Fatal("expected uploaded_at to be set")
	}

	loaded, err := store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected video to exist")
	}
	if loaded.OriginalName != video.OriginalName || loaded.SizeBytes != video.SizeBytes {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
	if loaded.DurationSeconds != video.DurationSeconds {
		t.Fatalf("expected duration %.1f, got %.1f", video.DurationSeconds, loaded.DurationSeconds)
	}
	if loaded.ProcessedAt != nil {
		t.Fatalf("expected nil processed_at, got %v", loaded.ProcessedAt)
	}

	processed := time.Now().UTC()
	loaded.Status = pipeline.VideoCompleted
	loaded.StatusMessage = "pipeline finished"
	loaded.ProcessedAt = &processed
	if err := store.UpdateVideo(ctx, loaded); err != nil {
		t.Fatalf("update video: %v", err)
	}

	reloaded, err := store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if reloaded.Status != pipeline.VideoCompleted || reloaded.StatusMessage != "pipeline finished" {
		t.Fatalf("update not persisted: %+v", reloaded)
	}
	if reloaded.ProcessedAt == nil || !reloaded.ProcessedAt.Equal(processed) {
		t.Fatalf("expected processed_at %v, got %v", processed, reloaded.ProcessedAt)
	}

	missing, err := store.VideoByID(ctx, "vid-missing")
	if err != nil {
		t.Fatalf("load missing video: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing video, got %+v", missing)
	}
}

func TestListVideosFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	statuses := map[string]pipeline.VideoStatus{
		"vid-a": pipeline.VideoProcessing,
		"vid-b": pipeline.VideoFailed,
		"vid-c": pipeline.VideoProcessing,
	}
	for id, status := range statuses {
		video := mustSaveVideo(t, store, id)
		video.Status = status
		if err := store.UpdateVideo(ctx, video); err != nil {
			t.Fatalf("update video %s: %v", id, err)
		}
	}

	all, err := store.ListVideos(ctx)
	if err != nil {
		t.Fatalf("list all videos: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 videos, got %d", len(all))
	}

	processing, err := store.ListVideos(ctx, pipeline.VideoProcessing)
	if err != nil {
		t.Fatalf("list processing videos: %v", err)
	}
	if len(processing) != 2 {
		t.Fatalf("expected 2 processing videos, got %d", len(processing))
	}
	for _, video := range processing {
		if video.Status != pipeline.VideoProcessing {
			t.Fatalf("unexpected status %s in filtered list", video.Status)
		}
	}
}

func TestGetOrCreateExecutionIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-exec")

	first, err := store.GetOrCreateExecution(ctx, "vid-exec")
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if first.Status != pipeline.ExecutionPending {
		t.Fatalf("expected pending status, got %s", first.Status)
	}
	if first.Progress != pipeline.ProgressSubmitted {
		t.Fatalf("expected submit progress %d, got %d", pipeline.ProgressSubmitted, first.Progress)
	}

	second, err := store.GetOrCreateExecution(ctx, "vid-exec")
	if err != nil {
		t.Fatalf("get existing execution: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected one execution per video, got ids %d and %d", first.ID, second.ID)
	}
}

func TestClaimNextPendingClaimsOldestExactlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-first")
	mustSaveVideo(t, store, "vid-second")
	if _, err := store.GetOrCreateExecution(ctx, "vid-first"); err != nil {
		t.Fatalf("create first execution: %v", err)
	}
	if _, err := store.GetOrCreateExecution(ctx, "vid-second"); err != nil {
		t.Fatalf("create second execution: %v", err)
	}

	claimed, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim first: %v", err)
	}
	if claimed == nil || claimed.VideoID != "vid-first" {
		t.Fatalf("expected oldest execution first, got %+v", claimed)
	}
	if claimed.Status != pipeline.ExecutionRunning {
		t.Fatalf("expected running status after claim, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatal("expected started_at set on first claim")
	}

	next, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim second: %v", err)
	}
	if next == nil || next.VideoID != "vid-second" {
		t.Fatalf("expected second execution, got %+v", next)
	}

	empty, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim empty queue: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil when nothing pending, got %+v", empty)
	}
}

func TestClaimNextPendingIsExclusiveUnderContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	const executions = 4
	ids := []string{"vid-w", "vid-x", "vid-y", "vid-z"}
	for _, id := range ids {
		mustSaveVideo(t, store, id)
		if _, err := store.GetOrCreateExecution(ctx, id); err != nil {
			t.Fatalf("create execution %s: %v", id, err)
		}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []int64
	)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				exec, err := store.ClaimNextPending(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if exec == nil {
					return
				}
				mu.Lock()
				claimed = append(claimed, exec.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != executions {
		t.Fatalf("expected %d claims, got %d", executions, len(claimed))
	}
	seen := make(map[int64]struct{}, len(claimed))
	for _, id := range claimed {
		if _, dup := seen[id]; dup {
			t.Fatalf("execution %d claimed twice", id)
		}
		seen[id] = struct{}{}
	}
}

func TestRecoverRunningRequeuesPreservingCheckpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-recover")
	if _, err := store.GetOrCreateExecution(ctx, "vid-recover"); err != nil {
		t.Fatalf("create execution: %v", err)
	}
	exec, err := store.ClaimNextPending(ctx)
	if err != nil || exec == nil {
		t.Fatalf("claim execution: %v (%+v)", err, exec)
	}

	exec.AdvanceCheckpoint(pipeline.StagePreprocess)
	exec.AdvanceCheckpoint(pipeline.StageExtractAudio)
	exec.AdvanceProgress(pipeline.StageProgress(pipeline.StageExtractAudio))
	if err := store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("persist checkpoint: %v", err)
	}

	recovered, err := store.RecoverRunning(ctx)
	if err != nil {
		t.Fatalf("recover running: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered execution, got %d", recovered)
	}

	reloaded, err := store.ExecutionByVideo(ctx, "vid-recover")
	if err != nil {
		t.Fatalf("reload execution: %v", err)
	}
	if reloaded.Status != pipeline.ExecutionPending {
		t.Fatalf("expected pending after recovery, got %s", reloaded.Status)
	}
	if reloaded.LastCompletedStage != pipeline.StageExtractAudio {
		t.Fatalf("checkpoint lost in recovery: %q", reloaded.LastCompletedStage)
	}
	if reloaded.Progress != pipeline.StageProgress(pipeline.StageExtractAudio) {
		t.Fatalf("progress lost in recovery: %d", reloaded.Progress)
	}
	if reloaded.StartedAt == nil {
		t.Fatal("started_at lost in recovery")
	}
}

func TestReopenFailedPreservesTraceAndRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-reopen")
	exec, err := store.GetOrCreateExecution(ctx, "vid-reopen")
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	exec.Status = pipeline.ExecutionFailed
	exec.RetryCount = 2
	exec.AppendTrace(pipeline.StageTranscribe, "inference gateway unreachable")
	completed := time.Now().UTC()
	exec.CompletedAt = &completed
	if err := store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	reopened, err := store.ReopenFailed(ctx, "vid-reopen")
	if err != nil {
		t.Fatalf("reopen failed execution: %v", err)
	}
	if !reopened {
		t.Fatal("expected reopen to apply")
	}

	reloaded, err := store.ExecutionByVideo(ctx, "vid-reopen")
	if err != nil {
		t.Fatalf("reload execution: %v", err)
	}
	if reloaded.Status != pipeline.ExecutionPending {
		t.Fatalf("expected pending after reopen, got %s", reloaded.Status)
	}
	if reloaded.RetryCount != 2 {
		t.Fatalf("retry count lost on reopen: %d", reloaded.RetryCount)
	}
	if len(reloaded.ErrorTrace) != 1 || reloaded.ErrorTrace[0].Stage != pipeline.StageTranscribe {
		t.Fatalf("error trace lost on reopen: %+v", reloaded.ErrorTrace)
	}
	if reloaded.CompletedAt != nil {
		t.Fatalf("expected completed_at cleared, got %v", reloaded.CompletedAt)
	}

	again, err := store.ReopenFailed(ctx, "vid-reopen")
	if err != nil {
		t.Fatalf("reopen pending execution: %v", err)
	}
	if again {
		t.Fatal("expected reopen to be a no-op for non-failed executions")
	}
}

func TestUpdateExecutionRoundTripsTraceAndMetering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-meter")
	exec, err := store.GetOrCreateExecution(ctx, "vid-meter")
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	exec.CurrentStage = pipeline.StageFrameAnalysis
	exec.AppendTrace(pipeline.StageExtractAudio, "ffmpeg exited with status 1")
	exec.AppendTrace(pipeline.StageExtractAudio, "ffmpeg exited with status 1 (retry)")
	exec.APICallCount = 11
	exec.CostEstimate = 0.001
	exec.ProcessingSeconds = 42.25
	if err := store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("update execution: %v", err)
	}

	reloaded, err := store.ExecutionByVideo(ctx, "vid-meter")
	if err != nil {
		t.Fatalf("reload execution: %v", err)
	}
	if reloaded.CurrentStage != pipeline.StageFrameAnalysis {
		t.Fatalf("unexpected current stage %q", reloaded.CurrentStage)
	}
	if len(reloaded.ErrorTrace) != 2 {
		t.Fatalf("expected 2 trace entries, got %d", len(reloaded.ErrorTrace))
	}
	if reloaded.ErrorTrace[1].Message != "ffmpeg exited with status 1 (retry)" {
		t.Fatalf("trace order not preserved: %+v", reloaded.ErrorTrace)
	}
	if reloaded.APICallCount != 11 || reloaded.CostEstimate != 0.001 {
		t.Fatalf("metering not persisted: calls=%d cost=%f", reloaded.APICallCount, reloaded.CostEstimate)
	}
	if reloaded.ProcessingSeconds != 42.25 {
		t.Fatalf("processing seconds not persisted: %f", reloaded.ProcessingSeconds)
	}
}

func TestSummaryCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"vid-s1", "vid-s2", "vid-s3"} {
		mustSaveVideo(t, store, id)
		if _, err := store.GetOrCreateExecution(ctx, id); err != nil {
			t.Fatalf("create execution %s: %v", id, err)
		}
	}
	exec, err := store.ClaimNextPending(ctx)
	if err != nil || exec == nil {
		t.Fatalf("claim execution: %v", err)
	}
	exec.Status = pipeline.ExecutionFailed
	if err := store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Total != 3 || summary.Pending != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestSaveDetectionsOrdersPendingTriggers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-trig")
	detections := []pipeline.Detection{
		{TimestampOffset: 42.0, Source: pipeline.SourceFalconsaiNSFW, Confidence: 0.91, Data: map[string]any{"nsfw_score": 0.91}},
		{TimestampOffset: 3.5, Source: pipeline.SourceWhisperProfanity, Confidence: 0.9, Data: map[string]any{"text": "what the damn", "matched_word": "damn"}},
		{TimestampOffset: 17.25, Source: pipeline.SourceWhisperBrand, Confidence: 0.8, Data: map[string]any{"text": "drink pepsi", "matched_brand": "pepsi"}},
	}
	written, err := store.SaveDetections(ctx, "vid-trig", detections)
	if err != nil {
		t.Fatalf("save detections: %v", err)
	}
	if written != len(detections) {
		t.Fatalf("expected %d triggers written, got %d", len(detections), written)
	}

	pending, err := store.PendingTriggersByVideo(ctx, "vid-trig")
	if err != nil {
		t.Fatalf("list pending triggers: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending triggers, got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].TimestampOffset > pending[i].TimestampOffset {
			t.Fatalf("triggers not ordered by timestamp: %+v", pending)
		}
	}

	first := pending[0]
	if first.Source != pipeline.SourceWhisperProfanity || first.Status != pipeline.TriggerPending {
		t.Fatalf("unexpected first trigger %+v", first)
	}
	if word, _ := first.Data["matched_word"].(string); word != "damn" {
		t.Fatalf("payload lost in round trip: %+v", first.Data)
	}
}

func TestMarkTriggerProcessedGuardsStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	ctx := context.Background()

	mustSaveVideo(t, store, "vid-decide")
	if _, err := store.SaveDetections(ctx, "vid-decide", []pipeline.Detection{
		{TimestampOffset: 8, Source: pipeline.SourceWhisperProfanity, Confidence: 0.9},
	}); err != nil {
		t.Fatalf("save detection: %v", err)
	}
	pending, err := store.PendingTriggersByVideo(ctx, "vid-decide")
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending trigger: %v (%d)", err, len(pending))
	}
	id := pending[0].ID

	decided, err := store.MarkTriggerProcessed(ctx, id, pipeline.DecisionProfanity, "clear case", "reviewer-1")
	if err != nil {
		t.Fatalf("process trigger: %v", err)
	}
	if decided.Status != pipeline.TriggerProcessed || decided.DecisionLabel != pipeline.DecisionProfanity {
		t.Fatalf("decision not recorded: %+v", decided)
	}
	if decided.DecidedBy != "reviewer-1" || decided.DecidedAt == nil {
		t.Fatalf("decision metadata missing: %+v", decided)
	}

	remaining, err := store.PendingTriggersByVideo(ctx, "vid-decide")
	if err != nil {
		t.Fatalf("list pending triggers: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no pending triggers, got %d", len(remaining))
	}

	if _, err := store.MarkTriggerProcessed(ctx, id, pipeline.DecisionOK, "", "reviewer-2"); !errors.Is(err, services.ErrLeaseConflict) {
		t.Fatalf("expected lease conflict on double decision, got %v", err)
	}
	if _, err := store.MarkTriggerProcessed(ctx, 99999, pipeline.DecisionOK, "", "reviewer-2"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown trigger, got %v", err)
	}
	if _, err := store.MarkTriggerProcessed(ctx, id, "looks_fine", "", "reviewer-2"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown label, got %v", err)
	}
}

func mustSaveVideo(t *testing.T, store *pipeline.Store, id string) *pipeline.Video {
	t.Helper()
	video := &pipeline.Video{
		ID:           id,
		OriginalName: id + ".mp4",
		SourcePath:   "/videos/" + id + ".mp4",
		SizeBytes:    4096,
		Format:       "mp4",
	}
	if err := store.SaveVideo(context.Background(), video); err != nil {
		t.Fatalf("save video %s: %v", id, err)
	}
	return video
}
