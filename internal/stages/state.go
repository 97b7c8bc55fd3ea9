package stages

import (
	"vigil/internal/inference"
	"vigil/internal/pipeline"
)

// AudioState holds everything the audio branch produces. Only audio-branch
// stages write here, so the two branches never share mutable state.
type AudioState struct {
	AudioPath  string
	Transcript *inference.Transcript
	APICalls   int
	Cost       float64
	Detections []pipeline.Detection
}

// VisualState holds everything the visual branch produces.
type VisualState struct {
	FramesDir      string
	Frames         []string
	AnalyzedFrames int
	APICalls       int
	Cost           float64
	Detections     []pipeline.Detection
}

// State is the in-memory carrier for one execution run. The orchestrator
// builds it once per run, hydrates it from the workspace on resume, and hands
// it to every stage.
type State struct {
	Video     *pipeline.Video
	Workspace Workspace

	Audio  AudioState
	Visual VisualState

	// DetectionsSaved marks that this run already appended its detection set
	// to the trigger store. A retried compile step must not append it again.
	DetectionsSaved bool

	// Report is set by the compile step after the branch join.
	Report *pipeline.Report
}

// Detections returns the combined detection set of both branches. Safe to
// call only after the branch join.
func (s *State) Detections() []pipeline.Detection {
	combined := make([]pipeline.Detection, 0, len(s.Audio.Detections)+len(s.Visual.Detections))
	combined = append(combined, s.Audio.Detections...)
	combined = append(combined, s.Visual.Detections...)
	return combined
}

// APICallTotal returns the metered gateway calls across both branches.
func (s *State) APICallTotal() int {
	return s.Audio.APICalls + s.Visual.APICalls
}

// CostTotal returns the accumulated cost estimate across both branches.
func (s *State) CostTotal() float64 {
	return s.Audio.Cost + s.Visual.Cost
}
