package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"vigil/internal/logging"
	"vigil/internal/media"
	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// Frame sampling runs at one frame per second, and only the first few frames
// are sent to the gateway. Each analyzed frame is billed as two model calls,
// the object detector and the NSFW classifier.
const (
	frameSampleFPS      = 1.0
	frameSampleLimit    = 5
	callsPerFrame       = 2
	perCallCostEstimate = 0.0002
)

var frameDetectors = []string{pipeline.SourceYOLOObject, pipeline.SourceFalconsaiNSFW}

// ExtractFrames samples the source into still frames for visual analysis.
func (r *Runner) ExtractFrames(ctx context.Context, st *State) error {
	dest := st.Workspace.FramesDir()
	if err := media.ExtractFrames(ctx, r.cfg.FFmpegBinary(), st.Video.SourcePath, dest, frameSampleFPS); err != nil {
		return services.Wrap(services.ErrExternalTool, pipeline.StageExtractFrames, "extract frames",
			"ffmpeg could not sample frames from the source", err)
	}

	frames, err := media.ListFrames(dest)
	if err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StageExtractFrames, "list frames",
			"could not enumerate sampled frames", err)
	}
	st.Visual.FramesDir = dest
	st.Visual.Frames = frames

	logging.WithContext(ctx, r.logger).Info("frames extracted",
		logging.Int("frames", len(frames)),
	)
	return nil
}

// AnalyzeFrames sends the sampled frames to the gateway detectors and
// collects the returned detections into the visual branch. The detection set
// is written into the workspace so a resumed run that skips this stage still
// carries it into the compile step.
func (r *Runner) AnalyzeFrames(ctx context.Context, st *State) error {
	frames := st.Visual.Frames
	if len(frames) == 0 {
		listed, err := media.ListFrames(st.Workspace.FramesDir())
		if err != nil || len(listed) == 0 {
			return services.Wrap(services.ErrValidation, pipeline.StageFrameAnalysis, "locate frames",
				"no sampled frames available; extraction has not produced any", err)
		}
		frames = listed
		st.Visual.FramesDir = st.Workspace.FramesDir()
		st.Visual.Frames = listed
	}

	sample := frames
	if len(sample) > frameSampleLimit {
		sample = sample[:frameSampleLimit]
	}

	collected := make([]pipeline.Detection, 0, len(sample))
	for i, frame := range sample {
		detections, err := r.gateway.AnalyzeFrame(ctx, frame, frameDetectors)
		if err != nil {
			return wrapGatewayError(pipeline.StageFrameAnalysis, "analyze frame",
				fmt.Sprintf("inference gateway could not analyze %s", filepath.Base(frame)), err)
		}
		st.Visual.APICalls += callsPerFrame
		st.Visual.Cost += callsPerFrame * perCallCostEstimate

		offset := frameOffset(frame, i)
		for _, det := range detections {
			source := strings.TrimSpace(det.Source)
			if source == "" {
				continue
			}
			confidence := det.Confidence
			if confidence == 0 {
				confidence = PayloadConfidence(det.Data)
			}
			data := make(map[string]any, len(det.Data)+2)
			for k, v := range det.Data {
				data[k] = v
			}
			data["frame"] = filepath.Base(frame)
			if label := strings.TrimSpace(det.Label); label != "" {
				data["label"] = label
			}
			collected = append(collected, pipeline.Detection{
				TimestampOffset: offset,
				Source:          source,
				Confidence:      ClampConfidence(confidence),
				Data:            data,
			})
		}

		if err := r.uploadArtifact(ctx, pipeline.StageFrameAnalysis, frame, artifactKey(st.Video.ID, "frames", filepath.Base(frame))); err != nil {
			return err
		}
	}
	st.Visual.Detections = collected
	st.Visual.AnalyzedFrames = len(sample)

	if err := saveDetections(st.Workspace.FrameDetectionsPath(), collected); err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StageFrameAnalysis, "persist detections",
			"could not persist the frame detections artifact", err)
	}

	logging.WithContext(ctx, r.logger).Info("frame analysis complete",
		logging.Int("frames_analyzed", len(sample)),
		logging.Int("detections", len(collected)),
	)
	return nil
}

// frameOffset derives the second offset from the frame's counter in its file
// name. Sampling runs at 1 fps, so frame_0001 sits at zero seconds.
func frameOffset(frame string, fallbackIndex int) float64 {
	var n int
	if _, err := fmt.Sscanf(filepath.Base(frame), "frame_%d.jpg", &n); err == nil && n > 0 {
		return float64(n - 1)
	}
	return float64(fallbackIndex)
}
