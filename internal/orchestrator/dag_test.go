package orchestrator_test

import (
	"reflect"
	"testing"

	"vigil/internal/orchestrator"
	"vigil/internal/pipeline"
)

func TestDefaultPlanCoversCanonicalStageOrder(t *testing.T) {
	plan := orchestrator.DefaultPlan()
	if got, want := plan.Stages(), pipeline.StageOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("plan stages = %v, want canonical order %v", got, want)
	}
	if plan.Empty() {
		t.Fatal("default plan should not be empty")
	}
}

func TestRemainingResumesAfterCheckpoint(t *testing.T) {
	tests := []struct {
		name       string
		checkpoint string
		prefix     []string
		audio      []string
		visual     []string
		suffix     []string
	}{
		{
			name:       "no checkpoint runs everything",
			checkpoint: "",
			prefix:     []string{pipeline.StagePreprocess},
			audio:      []string{pipeline.StageExtractAudio, pipeline.StageTranscribe, pipeline.StageLexicalScan},
			visual:     []string{pipeline.StageExtractFrames, pipeline.StageFrameAnalysis},
			suffix:     []string{pipeline.StageCompileReport},
		},
		{
			name:       "unknown checkpoint runs everything",
			checkpoint: "bogus",
			prefix:     []string{pipeline.StagePreprocess},
			audio:      []string{pipeline.StageExtractAudio, pipeline.StageTranscribe, pipeline.StageLexicalScan},
			visual:     []string{pipeline.StageExtractFrames, pipeline.StageFrameAnalysis},
			suffix:     []string{pipeline.StageCompileReport},
		},
		{
			name:       "after preprocess both branches remain",
			checkpoint: pipeline.StagePreprocess,
			audio:      []string{pipeline.StageExtractAudio, pipeline.StageTranscribe, pipeline.StageLexicalScan},
			visual:     []string{pipeline.StageExtractFrames, pipeline.StageFrameAnalysis},
			suffix:     []string{pipeline.StageCompileReport},
		},
		{
			name:       "after extract_frames resume runs frame_analysis not extract_frames",
			checkpoint: pipeline.StageExtractFrames,
			audio:      []string{pipeline.StageTranscribe, pipeline.StageLexicalScan},
			visual:     []string{pipeline.StageFrameAnalysis},
			suffix:     []string{pipeline.StageCompileReport},
		},
		{
			name:       "after lexical_scan only the report remains",
			checkpoint: pipeline.StageLexicalScan,
			suffix:     []string{pipeline.StageCompileReport},
		},
		{
			name:       "after compile_report nothing remains",
			checkpoint: pipeline.StageCompileReport,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := orchestrator.DefaultPlan().Remaining(tc.checkpoint)
			if !reflect.DeepEqual(plan.Prefix, tc.prefix) {
				t.Errorf("prefix = %v, want %v", plan.Prefix, tc.prefix)
			}
			if !reflect.DeepEqual(plan.AudioBranch, tc.audio) {
				t.Errorf("audio branch = %v, want %v", plan.AudioBranch, tc.audio)
			}
			if !reflect.DeepEqual(plan.VisualBranch, tc.visual) {
				t.Errorf("visual branch = %v, want %v", plan.VisualBranch, tc.visual)
			}
			if !reflect.DeepEqual(plan.Suffix, tc.suffix) {
				t.Errorf("suffix = %v, want %v", plan.Suffix, tc.suffix)
			}
			wantEmpty := len(tc.prefix)+len(tc.audio)+len(tc.visual)+len(tc.suffix) == 0
			if plan.Empty() != wantEmpty {
				t.Errorf("empty = %v, want %v", plan.Empty(), wantEmpty)
			}
		})
	}
}
