package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidflow/internal/logging"
	"vidflow/internal/services"
	"vidflow/internal/stage"
)

type invokeResult struct {
	out stage.Payload
	err error
}

func (o *Orchestrator) run(parent context.Context, exec Execution) (Execution, error) {
	ctx := services.WithExecutionID(parent, exec.ID)
	logger := logging.WithContext(ctx, o.logger)

	logger.Info(
		"execution started",
		logging.String(logging.FieldEventType, "execution_start"),
		logging.Int("stage_count", o.def.Len()),
		logging.String("deadline", exec.Deadline.Format(time.RFC3339)),
	)
	o.notify(logger, "execution_started", func(obs Observer) error {
		return obs.ExecutionStarted(ctx, exec.Snapshot())
	})

	deadlineCtx, cancel := context.WithDeadline(ctx, exec.Deadline)
	defer cancel()

	current := exec.Input
	for index, handler := range o.def.stages {
		if deadlineCtx.Err() != nil {
			return o.finish(ctx, logger, exec, interruption(deadlineCtx))
		}
		name := o.def.names[index]
		exec.CurrentStage = index
		o.track(exec)

		stageCtx := services.WithStage(ctx, name)
		stageLogger := logging.WithContext(stageCtx, o.logger)
		stageLogger.Info(
			"stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Int("stage_index", index),
			logging.Int("input_bytes", len(current)),
		)
		o.notify(stageLogger, "stage_started", func(obs Observer) error {
			return obs.StageStarted(stageCtx, exec.Snapshot(), index)
		})

		result := StageResult{Index: index, Name: name, StartedAt: o.now().UTC()}
		out, abandoned, err := o.invoke(deadlineCtx, handler, current)
		result.FinishedAt = o.now().UTC()

		if abandoned {
			result.Abandoned = true
			result.Error = "abandoned at execution deadline"
			exec.Stages = append(exec.Stages, result)
			cause := interruption(deadlineCtx)
			stageLogger.Warn(
				"stage abandoned",
				logging.String(logging.FieldEventType, "stage_abandoned"),
				logging.Duration("waited", result.Duration()),
				logging.String(logging.FieldErrorHint, "stage is still running remotely; its result will be discarded"),
				logging.String(logging.FieldImpact, "execution will not complete"),
				logging.Error(cause),
			)
			o.notify(stageLogger, "stage_completed", func(obs Observer) error {
				return obs.StageCompleted(stageCtx, exec.Snapshot(), result)
			})
			return o.finish(ctx, logger, exec, cause)
		}

		if err == nil {
			current, err = out.Unwrap(o.def.outputField)
		}
		if err != nil {
			stageErr := &StageError{Stage: name, Index: index, Err: err}
			details := services.Details(err)
			result.Error = strings.TrimSpace(details.Message)
			exec.Stages = append(exec.Stages, result)
			stageLogger.Error(
				"stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.String("resolved_status", string(StatusFailed)),
				logging.Duration("duration", result.Duration()),
				logging.String("error_message", result.Error),
				logging.String(logging.FieldErrorHint, hintFor(details)),
				logging.Error(err),
			)
			o.notify(stageLogger, "stage_completed", func(obs Observer) error {
				return obs.StageCompleted(stageCtx, exec.Snapshot(), result)
			})
			return o.finish(ctx, logger, exec, stageErr)
		}

		result.Output = clonePayload(current)
		exec.Stages = append(exec.Stages, result)
		stageLogger.Info(
			"stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("duration", result.Duration()),
			logging.Int("output_bytes", len(current)),
		)
		o.notify(stageLogger, "stage_completed", func(obs Observer) error {
			return obs.StageCompleted(stageCtx, exec.Snapshot(), result)
		})
	}

	exec.CurrentStage = o.def.Len()
	exec.Output = clonePayload(current)
	return o.finish(ctx, logger, exec, nil)
}

// invoke runs the stage on its own goroutine so the caller can stop waiting
// at the deadline. The stage context keeps the execution's values but not
// its cancellation; abandoned calls are bounded by the abandon grace instead.
func (o *Orchestrator) invoke(ctx context.Context, handler stage.Handler, in stage.Payload) (stage.Payload, bool, error) {
	stageCtx, cancel := context.WithDeadline(context.WithoutCancel(services.WithStage(ctx, handler.Name())), o.graceDeadline(ctx))
	done := make(chan invokeResult, 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		out, err := handler.Invoke(stageCtx, clonePayload(in))
		done <- invokeResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, false, res.err
	case <-ctx.Done():
		return nil, true, nil
	}
}

func (o *Orchestrator) graceDeadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d.Add(o.abandonGrace)
	}
	return o.now().Add(o.timeout + o.abandonGrace)
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, exec Execution, err error) (Execution, error) {
	exec.Status = StatusForError(err)
	exec.FinishedAt = o.now().UTC()
	if err != nil {
		exec.Error = strings.TrimSpace(err.Error())
	}
	o.track(exec)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "execution_finished"),
		logging.String("status", string(exec.Status)),
		logging.Duration("duration", exec.Duration()),
		logging.Int("stages_completed", completedStages(exec)),
	}
	switch exec.Status {
	case StatusSucceeded:
		logger.Info("execution finished", logging.Args(attrs...)...)
	case StatusTimedOut:
		attrs = append(attrs, logging.String("stage", exec.StageName(o.def.names)), logging.Error(err))
		logging.WarnWithContext(logger, "execution timed out", "execution_timed_out",
			append(attrs,
				logging.String(logging.FieldErrorHint, "raise pipeline.timeout_seconds or investigate the slow stage"),
				logging.String(logging.FieldImpact, "upload was not fully processed"),
			)...)
	default:
		attrs = append(attrs, logging.Error(err))
		logging.ErrorWithContext(logger, "execution failed", "execution_failed",
			append(attrs, logging.String(logging.FieldErrorHint, "inspect the failed stage with vidflow executions show"))...)
	}

	final := exec.Snapshot()
	o.notify(logger, "execution_finished", func(obs Observer) error {
		return obs.ExecutionFinished(ctx, final.Snapshot())
	})
	return final, err
}

func (o *Orchestrator) notify(logger *slog.Logger, hook string, call func(Observer) error) {
	for _, obs := range o.observers {
		if err := call(obs); err != nil {
			logging.WarnWithContext(logger, "pipeline observer failed", "observer_failure",
				logging.String("hook", hook),
				logging.String(logging.FieldImpact, "execution outcome unaffected"),
				logging.Error(err),
			)
		}
	}
}

func interruption(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimedOut, context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
}

func hintFor(details services.ErrorDetails) string {
	if details.Hint != "" {
		return details.Hint
	}
	switch details.Code {
	case "external":
		return "check the stage service logs"
	case "validation":
		return "stage returned output the next stage cannot accept"
	default:
		return "check logs for details"
	}
}

func completedStages(exec Execution) int {
	count := 0
	for _, result := range exec.Stages {
		if result.Succeeded() {
			count++
		}
	}
	return count
}
