package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"vidflow/internal/logging"
	"vidflow/internal/services"
	"vidflow/internal/stage"
)

// Starter launches a pipeline execution and returns its id.
type Starter interface {
	Start(ctx context.Context, input stage.Payload) (string, error)
}

// ObjectInfo carries metadata an inspector can add to an event.
type ObjectInfo struct {
	ETag string
	Size *int64
}

// ObjectInspector looks up object metadata missing from an event.
type ObjectInspector interface {
	Inspect(ctx context.Context, bucket, key string) (ObjectInfo, error)
}

// Input is the payload handed to the first stage.
type Input struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	ETag   string `json:"etag,omitempty"`
	Size   *int64 `json:"size,omitempty"`
}

// Decision is the outcome of routing a single event.
type Decision struct {
	Matched     bool   `json:"matched"`
	Reason      string `json:"reason"`
	ExecutionID string `json:"execution_id,omitempty"`
	Event       Event  `json:"event"`
	Input       *Input `json:"input,omitempty"`
}

// Router evaluates upload events and starts executions for matches.
type Router struct {
	rule      Rule
	starter   Starter
	inspector ObjectInspector
	logger    *slog.Logger
	observers []func(Decision)
}

// Option configures optional Router behavior.
type Option func(*Router)

// WithInspector fills in etag/size from object storage when events omit them.
func WithInspector(inspector ObjectInspector) Option {
	return func(r *Router) { r.inspector = inspector }
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDecisionObserver registers a callback invoked for every decision.
func WithDecisionObserver(fn func(Decision)) Option {
	return func(r *Router) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

// New constructs a Router. starter may be nil for evaluation-only use.
func New(rule Rule, starter Starter, opts ...Option) *Router {
	r := &Router{rule: rule, starter: starter, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "router")
	return r
}

// Rule returns the router's match rule.
func (r *Router) Rule() Rule { return r.rule }

// Evaluate applies the rule without starting anything.
func (r *Router) Evaluate(ev Event) Decision {
	matched, reason := r.rule.Match(ev)
	decision := Decision{Matched: matched, Reason: reason, Event: ev}
	if matched {
		input := inputFor(ev)
		decision.Input = &input
	}
	return decision
}

// Route starts one execution when ev matches. A mismatch is not an error.
func (r *Router) Route(ctx context.Context, ev Event) (Decision, error) {
	logger := logging.WithContext(ctx, r.logger).With(
		logging.String("bucket", ev.Bucket),
		logging.String("key", ev.Key),
	)
	decision := r.Evaluate(ev)
	if !decision.Matched {
		logger.Debug("upload event ignored",
			logging.String(logging.FieldEventType, "route_ignored"),
			logging.String("reason", decision.Reason),
			logging.String("detail_type", ev.DetailType),
		)
		r.observe(decision)
		return decision, nil
	}
	if r.starter == nil {
		return decision, services.Wrap(services.ErrConfiguration, "router", "route", "no pipeline starter configured", nil)
	}

	if r.inspector != nil && (decision.Input.ETag == "" || decision.Input.Size == nil) {
		info, err := r.inspector.Inspect(ctx, ev.Bucket, ev.Key)
		if err != nil {
			logging.WarnWithContext(logger, "object inspection failed", "route_inspect_failed",
				logging.String(logging.FieldErrorHint, "check object storage credentials and trigger.inspect_objects"),
				logging.String(logging.FieldImpact, "pipeline input lacks etag/size"),
				logging.Error(err),
			)
		} else {
			if decision.Input.ETag == "" {
				decision.Input.ETag = info.ETag
			}
			if decision.Input.Size == nil {
				decision.Input.Size = info.Size
			}
		}
	}

	payload, err := json.Marshal(decision.Input)
	if err != nil {
		return decision, fmt.Errorf("encode pipeline input: %w", err)
	}
	id, err := r.starter.Start(ctx, stage.Payload(payload))
	if err != nil {
		logging.ErrorWithContext(logger, "pipeline start failed", "route_start_failed",
			logging.String(logging.FieldErrorHint, "check daemon status; the upload was not processed"),
			logging.Error(err),
		)
		decision.Reason = "start_failed"
		r.observe(decision)
		return decision, fmt.Errorf("start pipeline for %s/%s: %w", ev.Bucket, ev.Key, err)
	}
	decision.ExecutionID = id
	logger.Info("upload routed to pipeline",
		logging.String(logging.FieldEventType, "route_matched"),
		logging.String(logging.FieldExecutionID, id),
	)
	r.observe(decision)
	return decision, nil
}

// RouteRaw parses data and routes every event it contains. Routing continues
// past a failed start; the first error is returned with all decisions.
func (r *Router) RouteRaw(ctx context.Context, data []byte) ([]Decision, error) {
	events, err := ParseEvent(data)
	if err != nil {
		return nil, err
	}
	decisions := make([]Decision, 0, len(events))
	var firstErr error
	for _, ev := range events {
		decision, err := r.Route(ctx, ev)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		decisions = append(decisions, decision)
	}
	return decisions, firstErr
}

func (r *Router) observe(decision Decision) {
	for _, fn := range r.observers {
		fn(decision)
	}
}

func inputFor(ev Event) Input {
	return Input{Bucket: ev.Bucket, Key: ev.Key, ETag: ev.ETag, Size: ev.Size}
}
