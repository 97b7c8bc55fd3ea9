package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vigil/internal/logging"
	"vigil/internal/services"
	"vigil/internal/stages"
)

// stageError attributes a terminal stage failure to the stage that raised it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("stage %s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

// meterFunc reads the counters a stage accrues against. Branch stages read
// their own branch's counters so concurrent stages never race on a shared
// total.
type meterFunc func() (apiCalls int, cost float64)

// runStage executes one stage under its retry policy. A stage gets
// MaxRetries+1 attempts, each bounded by the policy's attempt timeout, with
// exponential backoff between attempts. Shutdown interrupts the loop without
// recording a failure so the execution stays running for boot recovery.
func (m *Manager) runStage(ctx context.Context, logger *slog.Logger, state *executionState, st *stages.State, stage string, meter meterFunc) error {
	fn, ok := m.runner.Lookup(stage)
	if !ok {
		return &stageError{stage: stage, err: services.Wrap(services.ErrFatal, stage, "dispatch stage", "no handler registered for stage", nil)}
	}

	policy := m.cfg.StagePolicyFor(stage)
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	attemptTimeout := time.Duration(policy.AttemptTimeoutSeconds) * time.Second
	backoffBase := time.Duration(m.cfg.Stages.BackoffBaseSeconds) * time.Second
	backoffCap := time.Duration(policy.BackoffCapSeconds) * time.Second

	stageCtx := services.WithStage(ctx, stage)
	stageLogger := logging.WithContext(stageCtx, logger)

	if err := state.StageStarted(stageCtx, stage); err != nil {
		return &stageError{stage: stage, err: err}
	}
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("max_attempts", attempts),
	)

	apiBefore, costBefore := meter()
	stageStart := time.Now()

	for attempt := 1; ; attempt++ {
		err := m.runAttempt(stageCtx, fn, st, attemptTimeout)
		if err == nil {
			apiAfter, costAfter := meter()
			if uerr := state.StageCompleted(stageCtx, stage, apiAfter-apiBefore, costAfter-costBefore); uerr != nil {
				return &stageError{stage: stage, err: uerr}
			}
			stageLogger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Int("attempts", attempt),
				logging.Duration("duration", time.Since(stageStart)),
			)
			return nil
		}

		if ctx.Err() != nil {
			// Shutdown, not a stage fault. No trace entry; the execution
			// stays running and is requeued on the next boot.
			stageLogger.Info("stage interrupted by shutdown",
				logging.String(logging.FieldEventType, "stage_interrupted"),
			)
			return &stageError{stage: stage, err: context.Canceled}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrTimeout, stage, "run attempt",
				fmt.Sprintf("no result within %s", attemptTimeout), err)
		}

		final := !services.Retryable(err) || attempt >= attempts
		if perr := state.AttemptFailed(stageCtx, stage, failureMessage(err), !final); perr != nil {
			stageLogger.Error("failed to persist attempt failure", logging.Error(perr))
		}

		if final {
			if services.Retryable(err) {
				err = services.Wrap(services.ErrFatal, stage, "run attempt",
					fmt.Sprintf("giving up after %d attempts", attempt), err)
			}
			details := services.Details(err)
			stageLogger.Error("stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.Int("attempts", attempt),
				logging.String(logging.FieldErrorKind, string(details.Kind)),
				logging.String(logging.FieldErrorOperation, details.Operation),
				logging.Error(err),
			)
			return &stageError{stage: stage, err: err}
		}

		delay := backoffDelay(backoffBase, backoffCap, attempt)
		stageLogger.Warn("stage attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return &stageError{stage: stage, err: context.Canceled}
		case <-time.After(delay):
		}
	}
}

// runAttempt bounds a single attempt with the policy timeout. The stage
// function observes cancellation through its context; there is no mid-flight
// preemption beyond that.
func (m *Manager) runAttempt(ctx context.Context, fn stages.Func, st *stages.State, timeout time.Duration) error {
	if timeout <= 0 {
		return fn(ctx, st)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, st)
}

// backoffDelay returns the wait before the next attempt: base doubled per
// completed retry, capped by the stage policy. A base of zero retries
// immediately.
func backoffDelay(base, cap time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	delay := base
	for i := 1; i < retry; i++ {
		delay *= 2
		if cap > 0 && delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}

// failureMessage extracts the trace message for a failed attempt.
func failureMessage(err error) string {
	details := services.Details(err)
	if msg := strings.TrimSpace(details.Message); msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
