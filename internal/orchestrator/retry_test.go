package orchestrator

import (
	"errors"
	"testing"
	"time"

	"vigil/internal/services"
)

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	tests := []struct {
		name  string
		base  time.Duration
		cap   time.Duration
		retry int
		want  time.Duration
	}{
		{"first retry waits the base", 2 * time.Second, 600 * time.Second, 1, 2 * time.Second},
		{"second retry doubles", 2 * time.Second, 600 * time.Second, 2, 4 * time.Second},
		{"third retry doubles again", 2 * time.Second, 600 * time.Second, 3, 8 * time.Second},
		{"cap bounds the schedule", 2 * time.Second, 5 * time.Second, 3, 5 * time.Second},
		{"cap bounds the base itself", 10 * time.Second, 5 * time.Second, 1, 5 * time.Second},
		{"zero base retries immediately", 0, 600 * time.Second, 3, 0},
		{"zero cap leaves growth unbounded", 2 * time.Second, 0, 4, 16 * time.Second},
		{"retry below one clamps to the base", 2 * time.Second, 600 * time.Second, 0, 2 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := backoffDelay(tc.base, tc.cap, tc.retry); got != tc.want {
				t.Fatalf("backoffDelay(%v, %v, %d) = %v, want %v", tc.base, tc.cap, tc.retry, got, tc.want)
			}
		})
	}
}

func TestStageErrorPreservesCauseAndStage(t *testing.T) {
	cause := services.Wrap(services.ErrFatal, "transcribe", "run attempt", "giving up after 4 attempts", nil)
	err := error(&stageError{stage: "transcribe", err: cause})

	if !errors.Is(err, services.ErrFatal) {
		t.Fatal("stage error should unwrap to the fatal marker")
	}
	var se *stageError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should recover the stage error")
	}
	if se.stage != "transcribe" {
		t.Fatalf("stage = %q, want transcribe", se.stage)
	}
	if got := err.Error(); got != "stage transcribe: "+cause.Error() {
		t.Fatalf("error string = %q", got)
	}
}

func TestFailureMessagePrefersClassifiedMessage(t *testing.T) {
	wrapped := services.Wrap(services.ErrTransient, "extract_audio", "run attempt", "encoder crashed", errors.New("exit status 1"))
	if got := failureMessage(wrapped); got != wrapped.Error() {
		t.Fatalf("failureMessage = %q, want full classified message %q", got, wrapped.Error())
	}
	plain := errors.New("boom")
	if got := failureMessage(plain); got != "boom" {
		t.Fatalf("failureMessage = %q, want boom", got)
	}
	if got := failureMessage(nil); got != "unknown error" {
		t.Fatalf("failureMessage(nil) = %q, want unknown error", got)
	}
}
