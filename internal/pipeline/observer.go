package pipeline

import "context"

// Observer is notified at each execution transition. Every method receives a
// snapshot, so implementations may retain it. Returned errors are logged by
// the orchestrator and otherwise ignored.
type Observer interface {
	ExecutionStarted(ctx context.Context, exec Execution) error
	StageStarted(ctx context.Context, exec Execution, index int) error
	StageCompleted(ctx context.Context, exec Execution, result StageResult) error
	ExecutionFinished(ctx context.Context, exec Execution) error
}

// BaseObserver implements Observer with no-ops so implementations can embed
// it and override only the hooks they need.
type BaseObserver struct{}

func (BaseObserver) ExecutionStarted(context.Context, Execution) error { return nil }

func (BaseObserver) StageStarted(context.Context, Execution, int) error { return nil }

func (BaseObserver) StageCompleted(context.Context, Execution, StageResult) error { return nil }

func (BaseObserver) ExecutionFinished(context.Context, Execution) error { return nil }

// ObserverFunc adapts a function called on terminal transitions only.
type ObserverFunc func(ctx context.Context, exec Execution) error

func (f ObserverFunc) ExecutionStarted(context.Context, Execution) error { return nil }

func (f ObserverFunc) StageStarted(context.Context, Execution, int) error { return nil }

func (f ObserverFunc) StageCompleted(context.Context, Execution, StageResult) error { return nil }

func (f ObserverFunc) ExecutionFinished(ctx context.Context, exec Execution) error {
	return f(ctx, exec)
}
