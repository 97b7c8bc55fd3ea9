package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"vigil/internal/config"
	"vigil/internal/inference"
	"vigil/internal/logging"
	"vigil/internal/media"
	"vigil/internal/pipeline"
	"vigil/internal/risk"
	"vigil/internal/services"
	"vigil/internal/storage"
)

// Gateway is the slice of the inference client the stages call.
type Gateway interface {
	Transcribe(ctx context.Context, audioPath string) (*inference.Transcript, error)
	AnalyzeFrame(ctx context.Context, framePath string, detectors []string) ([]inference.Detection, error)
}

// Func is the uniform stage signature the orchestrator retries.
type Func func(context.Context, *State) error

// Runner holds the collaborators shared by every pipeline stage. One Runner
// serves all workers; stage methods keep per-run data in State.
type Runner struct {
	cfg       *config.Config
	store     *pipeline.Store
	gateway   Gateway
	artifacts storage.Store
	catalog   *risk.Catalog
	scanner   *Scanner
	logger    *slog.Logger
}

// NewRunner wires the stage set. The risk catalog and term scanner are built
// once here so stages never lazily initialize shared lookup state.
func NewRunner(cfg *config.Config, store *pipeline.Store, gateway Gateway, artifacts storage.Store, catalog *risk.Catalog, logger *slog.Logger) *Runner {
	if catalog == nil {
		catalog = risk.Default()
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		gateway:   gateway,
		artifacts: artifacts,
		catalog:   catalog,
		scanner:   NewScanner(cfg.Terms.Profanity, cfg.Terms.Brand),
		logger:    logging.NewComponentLogger(logger, "stages"),
	}
}

// Lookup returns the stage function registered under the canonical stage
// name.
func (r *Runner) Lookup(stage string) (Func, bool) {
	switch stage {
	case pipeline.StagePreprocess:
		return r.Preprocess, true
	case pipeline.StageExtractAudio:
		return r.ExtractAudio, true
	case pipeline.StageExtractFrames:
		return r.ExtractFrames, true
	case pipeline.StageTranscribe:
		return r.Transcribe, true
	case pipeline.StageFrameAnalysis:
		return r.AnalyzeFrames, true
	case pipeline.StageLexicalScan:
		return r.LexicalScan, true
	case pipeline.StageCompileReport:
		return r.CompileReport, true
	default:
		return nil, false
	}
}

// Hydrate fills the state from artifacts an earlier run left in the
// workspace, so a resumed execution can skip completed stages. Missing
// artifacts are left empty; each stage validates its own inputs.
func (r *Runner) Hydrate(ctx context.Context, st *State) {
	logger := logging.WithContext(ctx, r.logger)

	if info, err := os.Stat(st.Workspace.AudioPath()); err == nil && !info.IsDir() && info.Size() > 0 {
		st.Audio.AudioPath = st.Workspace.AudioPath()
	}

	if transcript, err := loadTranscript(st.Workspace.TranscriptPath()); err == nil {
		st.Audio.Transcript = transcript
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("discarding unreadable transcript artifact", logging.Error(err))
		_ = os.Remove(st.Workspace.TranscriptPath())
	}

	if detections, err := loadDetections(st.Workspace.LexicalDetectionsPath()); err == nil {
		st.Audio.Detections = detections
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("discarding unreadable lexical detections artifact", logging.Error(err))
		_ = os.Remove(st.Workspace.LexicalDetectionsPath())
	}

	if frames, err := media.ListFrames(st.Workspace.FramesDir()); err == nil && len(frames) > 0 {
		st.Visual.FramesDir = st.Workspace.FramesDir()
		st.Visual.Frames = frames
	}

	if detections, err := loadDetections(st.Workspace.FrameDetectionsPath()); err == nil {
		st.Visual.Detections = detections
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("discarding unreadable frame detections artifact", logging.Error(err))
		_ = os.Remove(st.Workspace.FrameDetectionsPath())
	}
}

func (r *Runner) uploadArtifact(ctx context.Context, stage, localPath, key string) error {
	if r.artifacts == nil {
		return nil
	}
	if _, err := r.artifacts.Upload(ctx, localPath, key); err != nil {
		return services.Wrap(services.ErrTransient, stage, "upload artifact",
			fmt.Sprintf("failed to store artifact %s", key), err)
	}
	return nil
}

// wrapGatewayError classifies an inference failure: retryable remote and
// transport errors keep their transient marker, everything else is terminal.
func wrapGatewayError(stage, operation, message string, err error) error {
	marker := services.ErrFatal
	if inference.IsRetryable(err) {
		marker = services.ErrTransient
	}
	return services.Wrap(marker, stage, operation, message, err)
}

func artifactKey(videoID string, parts ...string) string {
	return path.Join(append([]string{videoID}, parts...)...)
}

func loadTranscript(transcriptPath string) (*inference.Transcript, error) {
	raw, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, err
	}
	var transcript inference.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &transcript, nil
}

func saveTranscript(transcriptPath string, transcript *inference.Transcript) error {
	encoded, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return os.WriteFile(transcriptPath, encoded, 0o644)
}

func loadDetections(detectionsPath string) ([]pipeline.Detection, error) {
	raw, err := os.ReadFile(detectionsPath)
	if err != nil {
		return nil, err
	}
	var detections []pipeline.Detection
	if err := json.Unmarshal(raw, &detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return detections, nil
}

func saveDetections(detectionsPath string, detections []pipeline.Detection) error {
	if detections == nil {
		detections = []pipeline.Detection{}
	}
	encoded, err := json.MarshalIndent(detections, "", "  ")
	if err != nil {
		return fmt.Errorf("encode detections: %w", err)
	}
	return os.WriteFile(detectionsPath, encoded, 0o644)
}
