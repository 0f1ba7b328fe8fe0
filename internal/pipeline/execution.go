package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidflow/internal/stage"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

// ParseStatus accepts the canonical upper-case names and their lower-case forms.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusRunning, StatusSucceeded, StatusFailed, StatusTimedOut:
		return Status(value), nil
	}
	switch value {
	case "running":
		return StatusRunning, nil
	case "succeeded":
		return StatusSucceeded, nil
	case "failed":
		return StatusFailed, nil
	case "timed_out":
		return StatusTimedOut, nil
	}
	return "", fmt.Errorf("unknown execution status %q", value)
}

var (
	// ErrTimedOut marks an execution that passed its overall deadline.
	ErrTimedOut = errors.New("execution timed out")
	// ErrCanceled marks an execution whose parent context ended before the deadline.
	ErrCanceled = errors.New("execution canceled")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// StageError reports the stage that ended an execution in FAILED.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StatusForError maps the error returned by Execute to the terminal status.
// A stage's own deadline error is a stage failure; only the execution
// deadline produces TIMED_OUT.
func StatusForError(err error) Status {
	if err == nil {
		return StatusSucceeded
	}
	if errors.Is(err, ErrTimedOut) {
		return StatusTimedOut
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return StatusFailed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimedOut
	}
	return StatusFailed
}

// StageResult records the outcome of a single stage invocation.
type StageResult struct {
	Index      int           `json:"index"`
	Name       string        `json:"name"`
	Output     stage.Payload `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Abandoned  bool          `json:"abandoned,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration is the wall time spent waiting on the stage.
func (r StageResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the stage returned usable output.
func (r StageResult) Succeeded() bool {
	return r.Error == "" && !r.Abandoned
}

// Execution is one run of the stage chain over one input payload. Values
// handed to observers and callers are snapshots; the orchestrator owns the
// live copy.
type Execution struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	Input        stage.Payload `json:"input"`
	Output       stage.Payload `json:"output,omitempty"`
	CurrentStage int           `json:"current_stage"`
	Stages       []StageResult `json:"stages"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Deadline     time.Time     `json:"deadline"`
	FinishedAt   time.Time     `json:"finished_at,omitempty"`
}

// Duration reports elapsed time, measured to now while the execution runs.
func (e Execution) Duration() time.Duration {
	if e.StartedAt.IsZero() {
		return 0
	}
	if e.FinishedAt.IsZero() {
		return time.Since(e.StartedAt)
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Snapshot returns a copy that shares no mutable state with e.
func (e Execution) Snapshot() Execution {
	out := e
	out.Input = clonePayload(e.Input)
	out.Output = clonePayload(e.Output)
	if e.Stages != nil {
		out.Stages = make([]StageResult, len(e.Stages))
		for i, result := range e.Stages {
			result.Output = clonePayload(result.Output)
			out.Stages[i] = result
		}
	}
	return out
}

// StageName returns the name of the stage at CurrentStage, or empty once all
// stages have returned.
func (e Execution) StageName(names []string) string {
	if e.CurrentStage < 0 || e.CurrentStage >= len(names) {
		return ""
	}
	return names[e.CurrentStage]
}

func clonePayload(p stage.Payload) stage.Payload {
	if p == nil {
		return nil
	}
	out := make(stage.Payload, len(p))
	copy(out, p)
	return out
}
