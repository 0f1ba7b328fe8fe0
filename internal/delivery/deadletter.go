package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidflow/internal/logging"
	"vidflow/internal/services"
)

// Letter is a downstream call the delivery strategy gave up on.
type Letter struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	RecordID  string          `json:"record_id,omitempty"`
	Input     json.RawMessage `json:"input"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}

// Sink stores dead letters.
type Sink interface {
	PutDeadLetter(ctx context.Context, letter Letter) error
}

// DeadLetter records calls its inner strategy could not deliver.
type DeadLetter struct {
	inner     Strategy
	sink      Sink
	logger    *slog.Logger
	listeners []func(context.Context, Letter)
	now       func() time.Time
}

// NewDeadLetter wraps inner. Listeners run after a letter is stored.
func NewDeadLetter(inner Strategy, sink Sink, logger *slog.Logger, listeners ...func(context.Context, Letter)) *DeadLetter {
	if inner == nil {
		inner = BestEffort{}
	}
	return &DeadLetter{
		inner:     inner,
		sink:      sink,
		logger:    logging.NewComponentLogger(logger, "delivery"),
		listeners: listeners,
		now:       time.Now,
	}
}

func (d *DeadLetter) Deliver(ctx context.Context, attempt Attempt) error {
	err := d.inner.Deliver(ctx, attempt)
	if err == nil || d.sink == nil {
		return err
	}

	letter, buildErr := NewLetter(attempt, err, d.now())
	if buildErr != nil {
		d.logger.Error("dead letter encode failed", logging.String("operation", attempt.Operation), logging.Error(buildErr))
		return err
	}
	logger := logging.WithContext(ctx, d.logger)
	// Store even when the caller's context has ended.
	if putErr := d.sink.PutDeadLetter(context.WithoutCancel(ctx), letter); putErr != nil {
		logging.ErrorWithContext(logger, "dead letter write failed", "dead_letter_failure",
			logging.String("operation", attempt.Operation),
			logging.String("letter_id", letter.ID),
			logging.String(logging.FieldErrorHint, "check the dead_letter sink configuration"),
			logging.Error(putErr),
		)
		return err
	}
	logging.WarnWithContext(logger, "downstream call dead-lettered", "dead_letter",
		logging.String("operation", attempt.Operation),
		logging.String("letter_id", letter.ID),
		logging.Int("attempts", letter.Attempts),
		logging.String(logging.FieldErrorHint, "replay with vidflow deadletters replay"),
		logging.String(logging.FieldImpact, "downstream update missing until replayed"),
	)
	for _, listener := range d.listeners {
		if listener != nil {
			listener(ctx, letter)
		}
	}
	return err
}

// NewLetter builds the dead letter for a failed attempt.
func NewLetter(attempt Attempt, cause error, now time.Time) (Letter, error) {
	input, err := json.Marshal(attempt.Input)
	if err != nil {
		return Letter{}, fmt.Errorf("encode dead letter input: %w", err)
	}
	message := ""
	if cause != nil {
		message = strings.TrimSpace(services.Details(cause).Message)
	}
	return Letter{
		ID:        uuid.NewString(),
		Operation: attempt.Operation,
		RecordID:  attempt.RecordID,
		Input:     input,
		Error:     message,
		Attempts:  AttemptsMade(cause),
		CreatedAt: now.UTC(),
	}, nil
}
