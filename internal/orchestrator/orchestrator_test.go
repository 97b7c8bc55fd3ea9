package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/inference"
	"vigil/internal/lease"
	"vigil/internal/logging"
	"vigil/internal/orchestrator"
	"vigil/internal/pipeline"
	"vigil/internal/services"
	"vigil/internal/stages"
	"vigil/internal/storage"
	"vigil/internal/testsupport"
)

const probeScript = `#!/bin/sh
cat <<'JSON'
{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2}
  ],
  "format": {"filename": "clip.mp4", "nb_streams": 2, "duration": "12.500000", "size": "2048", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}
JSON
`

// pipelineFFmpegScript fakes both ffmpeg roles by switching on the output
// argument: audio extraction writes a stub WAV, frame sampling drops three
// numbered jpegs. Every WAV call bumps a counter file, and the first
// audioFailures of them exit nonzero to simulate a flaky encoder.
func pipelineFFmpegScript(counterPath string, audioFailures int) string {
	return fmt.Sprintf(`#!/bin/sh
for last; do :; done
case "$last" in
*.wav)
  n=0
  [ -f "%[1]s" ] && n=$(cat "%[1]s")
  n=$((n+1))
  printf '%%s' "$n" > "%[1]s"
  if [ "$n" -le %[2]d ]; then
    echo "synthetic encoder failure" >&2
    exit 1
  fi
  printf 'RIFFdata' > "$last"
  ;;
*)
  dir=$(dirname "$last")
  mkdir -p "$dir"
  i=1
  while [ $i -le 3 ]; do
    printf 'jpg' > "$dir/$(printf 'frame_%%04d.jpg' $i)"
    i=$((i+1))
  done
  ;;
esac
`, counterPath, audioFailures)
}

// fakeGateway stands in for the inference client. Both pipeline branches call
// it concurrently, so all state sits behind the mutex.
type fakeGateway struct {
	mu              sync.Mutex
	transcribeErr   error
	frameErr        error
	transcribeCalls int
	frameCalls      int
}

func (f *fakeGateway) Transcribe(_ context.Context, _ string) (*inference.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribeCalls++
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return &inference.Transcript{
		Language: "en",
		Segments: []inference.Segment{
			{Start: 1.5, End: 3.0, Text: "well damn that was loud"},
			{Start: 4.0, End: 6.0, Text: "nothing to see here"},
		},
	}, nil
}

func (f *fakeGateway) AnalyzeFrame(_ context.Context, _ string, _ []string) ([]inference.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameCalls++
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	return []inference.Detection{{
		Source:     pipeline.SourceYOLOObject,
		Label:      "knife",
		Confidence: 0.88,
		Data:       map[string]any{"confidence": 0.88},
	}}, nil
}

func (f *fakeGateway) setTranscribeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribeErr = err
}

func (f *fakeGateway) setFrameErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameErr = err
}

func (f *fakeGateway) calls() (transcribe, frames int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcribeCalls, f.frameCalls
}

type notifiedFailure struct {
	videoID string
	stage   string
	message string
}

type notifiedReady struct {
	videoID string
	pending int
}

type recordingNotifier struct {
	mu       sync.Mutex
	failures []notifiedFailure
	ready    []notifiedReady
}

func (n *recordingNotifier) NotifyPipelineFailed(_ context.Context, videoID, stage, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, notifiedFailure{videoID: videoID, stage: stage, message: message})
	return nil
}

func (n *recordingNotifier) NotifyReadyForReview(_ context.Context, videoID string, pendingTriggers int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, notifiedReady{videoID: videoID, pending: pendingTriggers})
	return nil
}

func (n *recordingNotifier) NotifySLABreach(context.Context, int, string, time.Duration) error {
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) snapshot() ([]notifiedFailure, []notifiedReady) {
	n.mu.Lock()
	defer n.mu.Unlock()
	failures := append([]notifiedFailure(nil), n.failures...)
	ready := append([]notifiedReady(nil), n.ready...)
	return failures, ready
}

type harness struct {
	cfg      *config.Config
	store    *pipeline.Store
	tasks    *lease.Store
	gateway  *fakeGateway
	notifier *recordingNotifier
	manager  *orchestrator.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	base := []testsupport.ConfigOption{
		testsupport.WithValues(func(cfg *config.Config) {
			cfg.Workflow.Workers = 1
			cfg.Workflow.QueuePollInterval = 1
			cfg.Workflow.ErrorRetryInterval = 1
			cfg.Stages.BackoffBaseSeconds = 0
		}),
		testsupport.WithBinaryScript("ffprobe", probeScript),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	testsupport.MustEnsureDirectories(t, cfg)
	store := testsupport.MustOpenPipelineStore(t, cfg)
	tasks := testsupport.MustOpenLeaseStore(t, cfg)

	artifacts, err := storage.NewLocal(cfg.Storage.ArtifactDir)
	if err != nil {
		t.Fatalf("open artifact store: %v", err)
	}

	gateway := &fakeGateway{}
	runner := stages.NewRunner(cfg, store, gateway, artifacts, nil, logging.NewNop())
	notifier := &recordingNotifier{}
	manager := orchestrator.NewManager(cfg, store, tasks, runner, notifier, logging.NewNop())

	return &harness{
		cfg:      cfg,
		store:    store,
		tasks:    tasks,
		gateway:  gateway,
		notifier: notifier,
		manager:  manager,
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func (h *harness) submit(t *testing.T, name string) *pipeline.Video {
	t.Helper()
	source := testsupport.SampleVideo(t, t.TempDir(), name, 2048)
	video, exec, err := h.manager.SubmitFile(context.Background(), source, name)
	if err != nil {
		t.Fatalf("submit %s: %v", name, err)
	}
	if exec.Status != pipeline.ExecutionPending {
		t.Fatalf("fresh execution status = %s, want pending", exec.Status)
	}
	if exec.Progress != pipeline.ProgressSubmitted {
		t.Fatalf("fresh execution progress = %d, want %d", exec.Progress, pipeline.ProgressSubmitted)
	}
	return video
}

func (h *harness) awaitStatus(t *testing.T, videoID string, want pipeline.ExecutionStatus) *pipeline.Execution {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := h.store.ExecutionByVideo(context.Background(), videoID)
		if err != nil {
			t.Fatalf("load execution: %v", err)
		}
		if exec != nil && exec.Status == want {
			return exec
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("execution for %s never reached %s", videoID, want)
	return nil
}

func readCounter(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ffmpeg call counter: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestPipelineRunCompletesAndQueuesReview(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "wav_calls")
	h := newHarness(t, testsupport.WithBinaryScript("ffmpeg", pipelineFFmpegScript(counter, 0)))
	ctx := context.Background()

	video := h.submit(t, "clip.mp4")
	h.start(t)

	exec := h.awaitStatus(t, video.ID, pipeline.ExecutionCompleted)
	if exec.Progress != pipeline.ProgressComplete {
		t.Errorf("progress = %d, want %d", exec.Progress, pipeline.ProgressComplete)
	}
	if exec.LastCompletedStage != pipeline.StageCompileReport {
		t.Errorf("checkpoint = %q, want %q", exec.LastCompletedStage, pipeline.StageCompileReport)
	}
	if exec.CurrentStage != "" {
		t.Errorf("current stage = %q, want empty after completion", exec.CurrentStage)
	}
	if exec.CompletedAt == nil || exec.StartedAt == nil {
		t.Error("completed execution should carry started and completed timestamps")
	}
	if exec.RetryCount != 0 || len(exec.ErrorTrace) != 0 {
		t.Errorf("clean run recorded retries=%d trace=%d", exec.RetryCount, len(exec.ErrorTrace))
	}
	if exec.ProcessingSeconds <= 0 {
		t.Errorf("processing seconds = %f, want > 0", exec.ProcessingSeconds)
	}

	// One transcription call plus two metered model calls per analyzed frame.
	if exec.APICallCount != 7 {
		t.Errorf("api_call_count = %d, want 7", exec.APICallCount)
	}
	if diff := exec.CostEstimate - 0.0012; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("cost_estimate = %f, want 0.0012", exec.CostEstimate)
	}
	if transcribes, frames := h.gateway.calls(); transcribes != 1 || frames != 3 {
		t.Errorf("gateway calls = %d transcribe / %d frames, want 1/3", transcribes, frames)
	}

	stored, err := h.store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	if stored.Status != pipeline.VideoVerification {
		t.Errorf("video status = %s, want verification", stored.Status)
	}
	if stored.StatusMessage != "ready for review" {
		t.Errorf("video status message = %q", stored.StatusMessage)
	}
	if stored.ProcessedAt == nil {
		t.Error("processed_at should be set on completion")
	}

	task, err := h.tasks.TaskByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("load review task: %v", err)
	}
	if task == nil || task.Status != lease.TaskPending {
		t.Fatalf("review task = %+v, want one pending task", task)
	}
	all, err := h.tasks.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list review tasks: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("review tasks = %d, want exactly one", len(all))
	}

	triggers, err := h.store.TriggersByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("load triggers: %v", err)
	}
	if len(triggers) != 4 {
		t.Errorf("triggers = %d, want 4 (one profanity, three object hits)", len(triggers))
	}

	failures, ready := h.notifier.snapshot()
	if len(failures) != 0 {
		t.Errorf("unexpected failure notifications: %+v", failures)
	}
	if len(ready) != 1 || ready[0].videoID != video.ID || ready[0].pending != 4 {
		t.Errorf("ready notifications = %+v, want one for %s with 4 pending", ready, video.ID)
	}

	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, video.ID)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("staging workspace should be removed after success, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Storage.ArtifactDir, video.ID, "report.json")); err != nil {
		t.Errorf("report artifact missing: %v", err)
	}
}

func TestTransientStageFailuresRetryUntilSuccess(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "wav_calls")
	h := newHarness(t, testsupport.WithBinaryScript("ffmpeg", pipelineFFmpegScript(counter, 2)))

	video := h.submit(t, "clip.mp4")
	h.start(t)

	exec := h.awaitStatus(t, video.ID, pipeline.ExecutionCompleted)
	if exec.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", exec.RetryCount)
	}
	if len(exec.ErrorTrace) != 2 {
		t.Fatalf("error trace entries = %d, want 2", len(exec.ErrorTrace))
	}
	for i, entry := range exec.ErrorTrace {
		if entry.Stage != pipeline.StageExtractAudio {
			t.Errorf("trace[%d].stage = %q, want %q", i, entry.Stage, pipeline.StageExtractAudio)
		}
		if !strings.Contains(entry.Message, "synthetic encoder failure") {
			t.Errorf("trace[%d].message = %q, want encoder failure detail", i, entry.Message)
		}
	}
	if got := readCounter(t, counter); got != "3" {
		t.Errorf("ffmpeg audio invocations = %s, want 3 (two failures then success)", got)
	}
	if exec.Progress != pipeline.ProgressComplete {
		t.Errorf("progress = %d, want %d after recovery", exec.Progress, pipeline.ProgressComplete)
	}
}

func TestFatalStageFailureFailsRunButFinishesSiblingBranch(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "wav_calls")
	h := newHarness(t, testsupport.WithBinaryScript("ffmpeg", pipelineFFmpegScript(counter, 0)))
	h.gateway.setFrameErr(errors.New("model exploded"))
	ctx := context.Background()

	video := h.submit(t, "clip.mp4")
	h.start(t)

	exec := h.awaitStatus(t, video.ID, pipeline.ExecutionFailed)

	// The audio branch keeps running after the visual branch dies, so
	// lexical_scan completes; the checkpoint still stops before the gap at
	// frame_analysis.
	if exec.LastCompletedStage != pipeline.StageTranscribe {
		t.Errorf("checkpoint = %q, want %q", exec.LastCompletedStage, pipeline.StageTranscribe)
	}
	if exec.Progress != pipeline.StageProgress(pipeline.StageLexicalScan) {
		t.Errorf("progress = %d, want %d from the finished audio branch", exec.Progress, pipeline.StageProgress(pipeline.StageLexicalScan))
	}
	if exec.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0 for a fatal failure", exec.RetryCount)
	}
	if len(exec.ErrorTrace) != 1 {
		t.Fatalf("error trace entries = %d, want 1", len(exec.ErrorTrace))
	}
	if exec.ErrorTrace[0].Stage != pipeline.StageFrameAnalysis {
		t.Errorf("trace stage = %q, want %q", exec.ErrorTrace[0].Stage, pipeline.StageFrameAnalysis)
	}
	if !strings.Contains(exec.ErrorTrace[0].Message, "model exploded") {
		t.Errorf("trace message = %q, want the gateway failure detail", exec.ErrorTrace[0].Message)
	}

	if transcribes, frames := h.gateway.calls(); transcribes != 1 || frames != 1 {
		t.Errorf("gateway calls = %d transcribe / %d frames, want 1/1", transcribes, frames)
	}

	stored, err := h.store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	if stored.Status != pipeline.VideoFailed {
		t.Errorf("video status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.StatusMessage, "failed at frame_analysis") {
		t.Errorf("video status message = %q, want the failing stage named", stored.StatusMessage)
	}

	failures, ready := h.notifier.snapshot()
	if len(ready) != 0 {
		t.Errorf("unexpected ready notifications: %+v", ready)
	}
	if len(failures) != 1 || failures[0].stage != pipeline.StageFrameAnalysis {
		t.Fatalf("failure notifications = %+v, want one for frame_analysis", failures)
	}

	task, err := h.tasks.TaskByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("load review task: %v", err)
	}
	if task != nil {
		t.Errorf("failed run should not enqueue a review task, got %+v", task)
	}

	// The workspace survives failure so the finished branch's artifacts stay
	// inspectable.
	workspace := filepath.Join(h.cfg.Paths.StagingDir, video.ID)
	if _, err := os.Stat(filepath.Join(workspace, "audio.wav")); err != nil {
		t.Errorf("audio artifact should survive the failed run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "transcript.json")); err != nil {
		t.Errorf("transcript artifact should survive the failed run: %v", err)
	}
}

func TestReopenedExecutionResumesFromCheckpoint(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "wav_calls")
	h := newHarness(t, testsupport.WithBinaryScript("ffmpeg", pipelineFFmpegScript(counter, 0)))
	h.gateway.setTranscribeErr(errors.New("speech model rejected the track"))
	ctx := context.Background()

	video := h.submit(t, "clip.mp4")
	h.start(t)

	exec := h.awaitStatus(t, video.ID, pipeline.ExecutionFailed)
	if exec.LastCompletedStage != pipeline.StageExtractFrames {
		t.Fatalf("checkpoint = %q, want %q", exec.LastCompletedStage, pipeline.StageExtractFrames)
	}
	if len(exec.ErrorTrace) != 1 || exec.ErrorTrace[0].Stage != pipeline.StageTranscribe {
		t.Fatalf("trace = %+v, want one transcribe entry", exec.ErrorTrace)
	}
	if got := readCounter(t, counter); got != "1" {
		t.Fatalf("ffmpeg audio invocations before resume = %s, want 1", got)
	}

	h.gateway.setTranscribeErr(nil)
	reopened, err := h.manager.Submit(ctx, video.ID)
	if err != nil {
		t.Fatalf("resubmit video: %v", err)
	}
	if reopened.Status != pipeline.ExecutionPending {
		t.Fatalf("reopened execution status = %s, want pending", reopened.Status)
	}
	requeued, err := h.store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	if requeued.Status != pipeline.VideoProcessing || requeued.StatusMessage != "queued for retry" {
		t.Errorf("requeued video = %s %q, want processing / queued for retry", requeued.Status, requeued.StatusMessage)
	}

	exec = h.awaitStatus(t, video.ID, pipeline.ExecutionCompleted)

	// extract_audio sits at or before the checkpoint, so resume must not run
	// it again; frame_analysis sits past the checkpoint gap and runs again.
	if got := readCounter(t, counter); got != "1" {
		t.Errorf("ffmpeg audio invocations after resume = %s, want still 1", got)
	}
	if transcribes, frames := h.gateway.calls(); transcribes != 2 || frames != 6 {
		t.Errorf("gateway calls = %d transcribe / %d frames, want 2/6", transcribes, frames)
	}
	if len(exec.ErrorTrace) != 1 {
		t.Errorf("error trace entries = %d, want the first run's entry preserved", len(exec.ErrorTrace))
	}
	if exec.Progress != pipeline.ProgressComplete {
		t.Errorf("progress = %d, want %d", exec.Progress, pipeline.ProgressComplete)
	}

	triggers, err := h.store.TriggersByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("load triggers: %v", err)
	}
	if len(triggers) != 4 {
		t.Errorf("triggers = %d, want 4 saved once by the resumed run", len(triggers))
	}
}

func TestValidationFailureIsTerminalWithoutRetry(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "wav_calls")
	h := newHarness(t, testsupport.WithBinaryScript("ffmpeg", pipelineFFmpegScript(counter, 0)))
	ctx := context.Background()

	source := testsupport.SampleVideo(t, t.TempDir(), "clip.wmv", 2048)
	video, _, err := h.manager.SubmitFile(ctx, source, "clip.wmv")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.start(t)

	exec := h.awaitStatus(t, video.ID, pipeline.ExecutionFailed)
	if exec.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0", exec.RetryCount)
	}
	if exec.Progress != pipeline.ProgressSubmitted {
		t.Errorf("progress = %d, want %d with no stage run", exec.Progress, pipeline.ProgressSubmitted)
	}
	if len(exec.ErrorTrace) != 1 {
		t.Fatalf("error trace entries = %d, want 1", len(exec.ErrorTrace))
	}
	if exec.ErrorTrace[0].Stage != "validation" {
		t.Errorf("trace stage = %q, want validation", exec.ErrorTrace[0].Stage)
	}
	if !strings.Contains(exec.ErrorTrace[0].Message, "not allowed") {
		t.Errorf("trace message = %q, want format rejection detail", exec.ErrorTrace[0].Message)
	}

	stored, err := h.store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	if stored.Status != pipeline.VideoFailed || !strings.Contains(stored.StatusMessage, "failed at validation") {
		t.Errorf("video = %s %q, want failed at validation", stored.Status, stored.StatusMessage)
	}

	failures, _ := h.notifier.snapshot()
	if len(failures) != 1 || failures[0].stage != "validation" {
		t.Fatalf("failure notifications = %+v, want one validation entry", failures)
	}

	if _, err := os.Stat(counter); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ffmpeg should never run for a rejected submission, counter stat err = %v", err)
	}
}

func TestSubmitFileRejectsMissingSource(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.manager.SubmitFile(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"), "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation marker", err)
	}
}

func TestSubmitUnknownVideoIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.Submit(context.Background(), "no-such-video")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found marker", err)
	}
}

func TestSubmitLeavesNonFailedExecutionsUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video := &pipeline.Video{
		ID:           "vid-done",
		OriginalName: "done.mp4",
		SourcePath:   "/videos/done.mp4",
		Status:       pipeline.VideoCompleted,
	}
	if err := h.store.SaveVideo(ctx, video); err != nil {
		t.Fatalf("save video: %v", err)
	}
	exec, err := h.store.GetOrCreateExecution(ctx, video.ID)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	exec.Status = pipeline.ExecutionCompleted
	exec.Progress = pipeline.ProgressComplete
	if err := h.store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("update execution: %v", err)
	}

	got, err := h.manager.Submit(ctx, video.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != pipeline.ExecutionCompleted {
		t.Errorf("status = %s, want completed left untouched", got.Status)
	}
	stored, err := h.store.VideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	if stored.Status != pipeline.VideoCompleted {
		t.Errorf("video status = %s, want completed left untouched", stored.Status)
	}
}
