package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vidflow/internal/delivery"
	"vidflow/internal/logging"
	"vidflow/internal/services"
)

// Downstream operation names.
const (
	OperationCreateVideo             = "createVideo"
	OperationCreateVideoNotification = "createVideoNotification"
)

// Downstream performs the two mutations a change record can produce.
type Downstream interface {
	CreateVideo(ctx context.Context, input VideoInput) (string, error)
	CreateVideoNotification(ctx context.Context, input NotificationInput) (string, error)
}

// CallResult is the outcome of one downstream call.
type CallResult struct {
	Operation string `json:"operation"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Succeeded reports whether the call returned without error.
func (c CallResult) Succeeded() bool { return c.Error == "" }

// RecordOutcome summarizes a processed record. Notification is nil when the
// policy suppressed it.
type RecordOutcome struct {
	RecordID     string       `json:"record_id"`
	EventName    string       `json:"event_name"`
	Action       MutationKind `json:"action"`
	VideoID      string       `json:"video_id"`
	Video        CallResult   `json:"video"`
	Notification *CallResult  `json:"notification,omitempty"`
}

// Failed reports whether any call for the record failed.
func (o RecordOutcome) Failed() bool {
	if !o.Video.Succeeded() {
		return true
	}
	return o.Notification != nil && !o.Notification.Succeeded()
}

// BatchResult lists per-record outcomes in input order.
type BatchResult struct {
	Records  []RecordOutcome `json:"records"`
	Failures int             `json:"failures"`
}

// CallObserver is told about every downstream call result.
type CallObserver func(operation string, err error)

// Notifier processes change records.
type Notifier struct {
	downstream Downstream
	strategy   delivery.Strategy
	policy     Policy
	fields     FieldTable
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	observers  []CallObserver
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithStrategy sets how downstream calls are delivered. BestEffort by default.
func WithStrategy(strategy delivery.Strategy) Option {
	return func(n *Notifier) {
		if strategy != nil {
			n.strategy = strategy
		}
	}
}

// WithPolicy replaces the default notification policy.
func WithPolicy(policy Policy) Option {
	return func(n *Notifier) { n.policy = policy }
}

// WithFieldTable replaces VideoFields.
func WithFieldTable(fields FieldTable) Option {
	return func(n *Notifier) {
		if len(fields) > 0 {
			n.fields = fields
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(n *Notifier) {
		if fn != nil {
			n.newID = fn
		}
	}
}

// WithCallObserver registers a callback for every call result.
func WithCallObserver(fn CallObserver) Option {
	return func(n *Notifier) {
		if fn != nil {
			n.observers = append(n.observers, fn)
		}
	}
}

// New constructs a Notifier over downstream.
func New(downstream Downstream, opts ...Option) *Notifier {
	n := &Notifier{
		downstream: downstream,
		strategy:   delivery.BestEffort{},
		policy:     DefaultPolicy(),
		fields:     VideoFields,
		logger:     logging.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = logging.NewComponentLogger(n.logger, "cdc")
	return n
}

// Policy returns the active notification policy.
func (n *Notifier) Policy() Policy { return n.policy }

// HandleRaw parses a stream batch and handles it. Only decoding errors are
// returned; call failures are reported in the result.
func (n *Notifier) HandleRaw(ctx context.Context, data []byte) (BatchResult, error) {
	records, err := ParseStreamBatch(data)
	if err != nil {
		return BatchResult{}, err
	}
	return n.HandleBatch(ctx, records), nil
}

// HandleBatch processes records sequentially. A failing record never stops
// the batch.
func (n *Notifier) HandleBatch(ctx context.Context, records []Record) BatchResult {
	result := BatchResult{Records: make([]RecordOutcome, 0, len(records))}
	for _, rec := range records {
		outcome := n.HandleRecord(ctx, rec)
		if outcome.Failed() {
			result.Failures++
		}
		result.Records = append(result.Records, outcome)
	}
	n.logger.Debug("change batch processed",
		logging.String(logging.FieldEventType, "cdc_batch_processed"),
		logging.Int("records", len(records)),
		logging.Int("failures", result.Failures),
	)
	return result
}

// HandleRecord sends createVideo and, when the policy allows,
// createVideoNotification for rec. The notification is attempted even when
// createVideo fails.
func (n *Notifier) HandleRecord(ctx context.Context, rec Record) RecordOutcome {
	ctx = services.WithRecordID(ctx, rec.EventID)
	logger := logging.WithContext(ctx, n.logger)

	now := n.now()
	values := n.fields.Extract(rec.Image(), Env{Now: now, NewID: n.newID})
	video := BuildVideoInput(values, now)
	action := Classify(rec.EventName)

	outcome := RecordOutcome{
		RecordID:  rec.EventID,
		EventName: rec.EventName,
		Action:    action,
		VideoID:   video.VideoID,
	}
	logger = logger.With(logging.String("video_id", video.VideoID), logging.String("action", string(action)))

	outcome.Video = n.call(ctx, logger, rec.EventID, OperationCreateVideo, video, func(ctx context.Context) (string, error) {
		return n.downstream.CreateVideo(ctx, video)
	})

	if !n.policy.Notifies(action) {
		logger.Debug("notification suppressed by policy",
			logging.String(logging.FieldEventType, "cdc_notification_suppressed"),
		)
		return outcome
	}

	notification := BuildNotificationInput(n.newID(), video, action)
	result := n.call(ctx, logger, rec.EventID, OperationCreateVideoNotification, notification, func(ctx context.Context) (string, error) {
		return n.downstream.CreateVideoNotification(ctx, notification)
	})
	outcome.Notification = &result
	return outcome
}

func (n *Notifier) call(ctx context.Context, logger *slog.Logger, recordID, operation string, input any, fn func(context.Context) (string, error)) CallResult {
	result := CallResult{Operation: operation}
	var id string
	err := n.strategy.Deliver(ctx, delivery.Attempt{
		Operation: operation,
		RecordID:  recordID,
		Input:     input,
		Call: func(ctx context.Context) error {
			var callErr error
			id, callErr = fn(ctx)
			return callErr
		},
	})
	for _, observe := range n.observers {
		observe(operation, err)
	}
	if err != nil {
		details := services.Details(err)
		result.Error = details.Message
		attrs := []logging.Attr{
			logging.String("operation", operation),
			logging.String(logging.FieldImpact, "downstream view not updated for this record"),
			logging.Error(err),
		}
		if details.Hint != "" {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
		} else {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, "check appsync endpoint and api key"))
		}
		logging.ErrorWithContext(logger, fmt.Sprintf("%s failed", operation), "cdc_call_failed", attrs...)
		return result
	}
	result.ID = id
	logger.Info(fmt.Sprintf("%s succeeded", operation),
		logging.String(logging.FieldEventType, "cdc_call_succeeded"),
		logging.String("downstream_id", id),
	)
	return result
}
