package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidflow/internal/logging"
	"vidflow/internal/stage"
)

const (
	// DefaultTimeout is the overall execution deadline.
	DefaultTimeout = 10 * time.Minute
	// DefaultAbandonGrace bounds how long an abandoned stage call may keep
	// running after the execution deadline.
	DefaultAbandonGrace = time.Minute
)

// Orchestrator runs executions over a fixed Definition. It is safe for
// concurrent use; executions share nothing but the definition.
type Orchestrator struct {
	def          *Definition
	logger       *slog.Logger
	timeout      time.Duration
	abandonGrace time.Duration
	observers    []Observer
	now          func() time.Time
	newID        func() string

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	active   map[string]Execution
	counts   map[Status]int64
	lastErr  string
	lastExec *Execution
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithTimeout overrides the overall execution deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithAbandonGrace overrides how long abandoned stage calls may run on.
func WithAbandonGrace(grace time.Duration) Option {
	return func(o *Orchestrator) {
		if grace > 0 {
			o.abandonGrace = grace
		}
	}
}

// WithObservers registers transition observers, called in order.
func WithObservers(observers ...Observer) Option {
	return func(o *Orchestrator) {
		for _, obs := range observers {
			if obs != nil {
				o.observers = append(o.observers, obs)
			}
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides execution id generation (used in tests).
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// NewOrchestrator constructs an orchestrator for def.
func NewOrchestrator(def *Definition, opts ...Option) (*Orchestrator, error) {
	if def == nil || def.Len() == 0 {
		return nil, errors.New("pipeline definition is required")
	}
	o := &Orchestrator{
		def:          def,
		logger:       logging.NewNop(),
		timeout:      DefaultTimeout,
		abandonGrace: DefaultAbandonGrace,
		now:          time.Now,
		newID:        uuid.NewString,
		active:       make(map[string]Execution),
		counts:       make(map[Status]int64),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o, nil
}

// Definition returns the stage chain this orchestrator runs.
func (o *Orchestrator) Definition() *Definition { return o.def }

// Timeout returns the configured overall deadline.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// Start launches an execution in the background and returns its id without
// waiting for any stage. ctx contributes values only; its cancellation does
// not stop the execution.
func (o *Orchestrator) Start(ctx context.Context, input stage.Payload) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	o.wg.Add(1)
	o.mu.Unlock()

	exec := o.newExecution(input)
	o.track(exec)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer o.wg.Done()
		_, _ = o.run(runCtx, exec)
	}()
	return exec.ID, nil
}

// Execute runs an execution to completion and returns its final snapshot.
// The error is nil exactly when the status is SUCCEEDED; StatusForError maps
// it to the terminal status otherwise.
func (o *Orchestrator) Execute(ctx context.Context, input stage.Payload) (Execution, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Execution{}, ErrClosed
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	exec := o.newExecution(input)
	o.track(exec)
	return o.run(ctx, exec)
}

// Get returns the snapshot of an execution that is still running.
func (o *Orchestrator) Get(id string) (Execution, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	exec, ok := o.active[id]
	if !ok {
		return Execution{}, false
	}
	return exec.Snapshot(), true
}

// Active returns snapshots of running executions, oldest first.
func (o *Orchestrator) Active() []Execution {
	o.mu.RLock()
	out := make([]Execution, 0, len(o.active))
	for _, exec := range o.active {
		out = append(out, exec.Snapshot())
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close stops accepting new executions. In-flight executions keep running.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// Wait blocks until every in-flight execution has reached a terminal status
// or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) newExecution(input stage.Payload) Execution {
	started := o.now().UTC()
	if len(input) == 0 {
		input = stage.Payload("null")
	}
	return Execution{
		ID:           o.newID(),
		Status:       StatusRunning,
		Input:        clonePayload(input),
		CurrentStage: 0,
		Stages:       make([]StageResult, 0, o.def.Len()),
		StartedAt:    started,
		Deadline:     started.Add(o.timeout),
	}
}

func (o *Orchestrator) track(exec Execution) {
	snapshot := exec.Snapshot()
	o.mu.Lock()
	if exec.Status.Terminal() {
		delete(o.active, exec.ID)
		o.counts[exec.Status]++
		o.lastExec = &snapshot
		if exec.Status != StatusSucceeded {
			o.lastErr = exec.Error
		}
	} else {
		o.active[exec.ID] = snapshot
	}
	o.mu.Unlock()
}
