package store

import (
	"context"

	"vidflow/internal/pipeline"
)

type archiveObserver struct {
	pipeline.BaseObserver
	store *Store
}

// Archive returns a pipeline.Observer that persists every execution transition.
func (s *Store) Archive() pipeline.Observer {
	return archiveObserver{store: s}
}

func (a archiveObserver) ExecutionStarted(ctx context.Context, exec pipeline.Execution) error {
	return a.store.CreateExecution(context.WithoutCancel(ctx), exec)
}

func (a archiveObserver) StageCompleted(ctx context.Context, exec pipeline.Execution, result pipeline.StageResult) error {
	return a.store.RecordStage(context.WithoutCancel(ctx), exec.ID, result)
}

func (a archiveObserver) ExecutionFinished(ctx context.Context, exec pipeline.Execution) error {
	return a.store.FinishExecution(context.WithoutCancel(ctx), exec)
}
