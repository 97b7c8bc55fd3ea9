package orchestrator

import (
	"vigil/internal/pipeline"
)

// Plan is the stage DAG as data: a linear prefix, two branches that run
// concurrently, and a suffix that joins them. The zero Plan runs nothing.
type Plan struct {
	Prefix       []string
	AudioBranch  []string
	VisualBranch []string
	Suffix       []string
}

// DefaultPlan returns the fixed pipeline DAG.
//
//	preprocess
//	  ├─ extract_audio → transcribe → lexical_scan ─┐
//	  └─ extract_frames → frame_analysis ───────────┤
//	                                                ▼
//	                                        compile_report
func DefaultPlan() Plan {
	return Plan{
		Prefix:       []string{pipeline.StagePreprocess},
		AudioBranch:  []string{pipeline.StageExtractAudio, pipeline.StageTranscribe, pipeline.StageLexicalScan},
		VisualBranch: []string{pipeline.StageExtractFrames, pipeline.StageFrameAnalysis},
		Suffix:       []string{pipeline.StageCompileReport},
	}
}

// Remaining filters the plan down to the stages ranked after the checkpoint,
// so a resumed execution picks up where the previous run stopped. An empty or
// unknown checkpoint keeps the whole plan.
func (p Plan) Remaining(checkpoint string) Plan {
	rank := pipeline.StageRank(checkpoint)
	return Plan{
		Prefix:       stagesAfter(p.Prefix, rank),
		AudioBranch:  stagesAfter(p.AudioBranch, rank),
		VisualBranch: stagesAfter(p.VisualBranch, rank),
		Suffix:       stagesAfter(p.Suffix, rank),
	}
}

// Stages returns every stage of the plan in canonical checkpoint order.
func (p Plan) Stages() []string {
	ordered := make([]string, 0, len(p.Prefix)+len(p.AudioBranch)+len(p.VisualBranch)+len(p.Suffix))
	for _, stage := range pipeline.StageOrder() {
		if p.contains(stage) {
			ordered = append(ordered, stage)
		}
	}
	return ordered
}

// Empty reports whether the plan has no stages left to run.
func (p Plan) Empty() bool {
	return len(p.Prefix) == 0 && len(p.AudioBranch) == 0 && len(p.VisualBranch) == 0 && len(p.Suffix) == 0
}

func (p Plan) contains(stage string) bool {
	for _, group := range [][]string{p.Prefix, p.AudioBranch, p.VisualBranch, p.Suffix} {
		for _, name := range group {
			if name == stage {
				return true
			}
		}
	}
	return false
}

func stagesAfter(stages []string, rank int) []string {
	if rank < 0 {
		return stages
	}
	kept := make([]string, 0, len(stages))
	for _, stage := range stages {
		if pipeline.StageRank(stage) > rank {
			kept = append(kept, stage)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
