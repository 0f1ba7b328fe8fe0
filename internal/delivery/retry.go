package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"vidflow/internal/logging"
	"vidflow/internal/services"
)

// Retry repeats retryable failures with exponential backoff.
type Retry struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	// Retryable classifies failures; services.IsRetryable when nil.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// NewRetry builds a Retry strategy with sane lower bounds.
func NewRetry(maxAttempts int, initial, maxDelay time.Duration, factor float64, logger *slog.Logger) *Retry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if factor < 1 {
		factor = 1
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	return &Retry{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Factor:       factor,
		Logger:       logging.NewComponentLogger(logger, "delivery"),
	}
}

func (r *Retry) Deliver(ctx context.Context, attempt Attempt) error {
	if attempt.Call == nil {
		return fmt.Errorf("delivery %s: no call", attempt.Operation)
	}
	retryable := r.Retryable
	if retryable == nil {
		retryable = services.IsRetryable
	}
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		lastErr = attempt.Call(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || n == maxAttempts {
			return &ExhaustedError{Attempts: n, Err: lastErr}
		}
		delay := r.Backoff(n)
		logging.WarnWithContext(logging.WithContext(ctx, logger), "downstream call failed; retrying", "notifier_retry",
			logging.String("operation", attempt.Operation),
			logging.Int("attempt", n),
			logging.Int("max_attempts", maxAttempts),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldImpact, "notification delayed"),
			logging.Error(lastErr),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{Attempts: n, Err: fmt.Errorf("%w (retry aborted: %v)", lastErr, ctx.Err())}
		case <-timer.C:
		}
	}
	return &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// Backoff returns the delay before attempt n+1.
func (r *Retry) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	factor := r.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(r.InitialDelay) * math.Pow(factor, float64(n-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	return time.Duration(delay)
}
