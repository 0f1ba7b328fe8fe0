package stage

import (
	"context"
)

// Handler describes the contract the orchestrator needs from each stage unit.
// Invoke receives the previous stage's (unwrapped) output and returns the raw
// response; unwrapping is the orchestrator's job.
type Handler interface {
	Name() string
	Invoke(context.Context, Payload) (Payload, error)
	HealthCheck(context.Context) Health
}

// Func adapts an in-process function to the Handler interface.
type Func struct {
	StageName string
	Fn        func(context.Context, Payload) (Payload, error)
}

// NewFunc wraps fn as a stage named name.
func NewFunc(name string, fn func(context.Context, Payload) (Payload, error)) Func {
	return Func{StageName: name, Fn: fn}
}

// Passthrough returns a stage that echoes its input.
func Passthrough(name string) Func {
	return NewFunc(name, func(_ context.Context, in Payload) (Payload, error) {
		return in, nil
	})
}

func (f Func) Name() string { return f.StageName }

func (f Func) Invoke(ctx context.Context, in Payload) (Payload, error) {
	if f.Fn == nil {
		return in, nil
	}
	return f.Fn(ctx, in)
}

func (f Func) HealthCheck(context.Context) Health {
	return Healthy(f.StageName)
}
