package orchestrator

import (
	"context"
	"sync"
	"time"

	"vigil/internal/pipeline"
)

// executionState serializes every mutation of one execution row. The audio
// and visual branches complete stages concurrently, so all writes to the
// shared row go through the mutex here.
type executionState struct {
	store *pipeline.Store

	mu   sync.Mutex
	exec *pipeline.Execution
	done map[string]bool
}

func newExecutionState(store *pipeline.Store, exec *pipeline.Execution) *executionState {
	done := make(map[string]bool, len(pipeline.StageOrder()))
	checkpoint := pipeline.StageRank(exec.LastCompletedStage)
	for _, stage := range pipeline.StageOrder() {
		if pipeline.StageRank(stage) <= checkpoint {
			done[stage] = true
		}
	}
	return &executionState{store: store, exec: exec, done: done}
}

// StageStarted records the stage an attempt is about to run.
func (s *executionState) StageStarted(ctx context.Context, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exec.CurrentStage = stage
	return s.store.UpdateExecution(ctx, s.exec)
}

// StageCompleted marks a stage done, advances progress, and accrues the
// metering deltas the stage produced. The checkpoint only moves through the
// contiguous prefix of completed stages, so a branch finishing early never
// lets resume skip the slower branch's pending stages.
func (s *executionState) StageCompleted(ctx context.Context, stage string, apiCalls int, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[stage] = true
	for _, candidate := range pipeline.StageOrder() {
		if pipeline.StageRank(candidate) <= pipeline.StageRank(s.exec.LastCompletedStage) {
			continue
		}
		if !s.done[candidate] {
			break
		}
		s.exec.AdvanceCheckpoint(candidate)
	}
	s.exec.AdvanceProgress(pipeline.StageProgress(stage))
	s.exec.APICallCount += apiCalls
	s.exec.CostEstimate += cost
	return s.store.UpdateExecution(ctx, s.exec)
}

// AttemptFailed appends a trace entry for a failed attempt. The retry counter
// moves only when another attempt will follow.
func (s *executionState) AttemptFailed(ctx context.Context, stage, message string, willRetry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exec.AppendTrace(stage, message)
	if willRetry {
		s.exec.RetryCount++
	}
	return s.store.UpdateExecution(ctx, s.exec)
}

// Complete finalizes a successful run.
func (s *executionState) Complete(ctx context.Context, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.exec.Status = pipeline.ExecutionCompleted
	s.exec.CurrentStage = ""
	s.exec.Progress = pipeline.ProgressComplete
	s.exec.CompletedAt = &now
	s.exec.ProcessingSeconds += elapsed.Seconds()
	return s.store.UpdateExecution(ctx, s.exec)
}

// Fail marks the run failed. The current stage is left in place so operators
// can see where the run stopped, and elapsed time still counts toward the
// processing total.
func (s *executionState) Fail(ctx context.Context, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exec.Status = pipeline.ExecutionFailed
	s.exec.ProcessingSeconds += elapsed.Seconds()
	return s.store.UpdateExecution(ctx, s.exec)
}

// Snapshot returns a copy of the execution row for read-only inspection.
func (s *executionState) Snapshot() pipeline.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := *s.exec
	snap.ErrorTrace = append([]pipeline.TraceEntry(nil), s.exec.ErrorTrace...)
	return snap
}
