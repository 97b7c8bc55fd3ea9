package pipeline_test

import (
	"testing"

	"vigil/internal/pipeline"
)

func TestStageOrderMatchesRanks(t *testing.T) {
	order := pipeline.StageOrder()
	if len(order) != 7 {
		t.Fatalf("expected 7 stages, got %d", len(order))
	}
	for i, stage := range order {
		if !pipeline.KnownStage(stage) {
			t.Fatalf("stage %s not recognized", stage)
		}
		if rank := pipeline.StageRank(stage); rank != i {
			t.Fatalf("stage %s has rank %d, expected %d", stage, rank, i)
		}
		if pipeline.StageProgress(stage) <= 0 {
			t.Fatalf("stage %s has no progress checkpoint", stage)
		}
	}
	if pipeline.StageRank("transcode") != -1 {
		t.Fatal("unknown stage should rank -1")
	}
	if pipeline.StageRank("") != -1 {
		t.Fatal("empty stage should rank -1")
	}
}

func TestStageProgressIsMonotonic(t *testing.T) {
	last := pipeline.ProgressSubmitted
	for _, stage := range pipeline.StageOrder() {
		progress := pipeline.StageProgress(stage)
		if progress <= last {
			t.Fatalf("progress not increasing at %s: %d after %d", stage, progress, last)
		}
		last = progress
	}
	if last >= pipeline.ProgressComplete {
		t.Fatalf("final stage progress %d should stay below %d", last, pipeline.ProgressComplete)
	}
}

func TestAdvanceCheckpointNeverRegresses(t *testing.T) {
	exec := &pipeline.Execution{}
	exec.AdvanceCheckpoint(pipeline.StageExtractAudio)
	if exec.LastCompletedStage != pipeline.StageExtractAudio {
		t.Fatalf("checkpoint not set: %q", exec.LastCompletedStage)
	}
	exec.AdvanceCheckpoint(pipeline.StagePreprocess)
	if exec.LastCompletedStage != pipeline.StageExtractAudio {
		t.Fatalf("checkpoint regressed: %q", exec.LastCompletedStage)
	}
	exec.AdvanceCheckpoint(pipeline.StageLexicalScan)
	if exec.LastCompletedStage != pipeline.StageLexicalScan {
		t.Fatalf("checkpoint did not advance: %q", exec.LastCompletedStage)
	}
}

func TestAdvanceProgressNeverRegresses(t *testing.T) {
	exec := &pipeline.Execution{Progress: 40}
	exec.AdvanceProgress(30)
	if exec.Progress != 40 {
		t.Fatalf("progress regressed to %d", exec.Progress)
	}
	exec.AdvanceProgress(80)
	if exec.Progress != 80 {
		t.Fatalf("progress did not advance: %d", exec.Progress)
	}
}

func TestParseVideoStatus(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  pipeline.VideoStatus
		ok    bool
	}{
		{name: "exact", input: "processing", want: pipeline.VideoProcessing, ok: true},
		{name: "mixed case with spaces", input: "  Verification ", want: pipeline.VideoVerification, ok: true},
		{name: "unknown", input: "queued", ok: false},
		{name: "empty", input: "", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := pipeline.ParseVideoStatus(tc.input)
			if ok != tc.ok {
				t.Fatalf("ParseVideoStatus(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("ParseVideoStatus(%q) = %s, want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidDecisionLabel(t *testing.T) {
	for _, label := range pipeline.DecisionLabels() {
		if !pipeline.ValidDecisionLabel(label) {
			t.Fatalf("label %s should be valid", label)
		}
	}
	if pipeline.ValidDecisionLabel("maybe") {
		t.Fatal("unexpected label accepted")
	}
}
