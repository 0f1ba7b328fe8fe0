package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Attempt describes one downstream call.
type Attempt struct {
	// Operation names the downstream mutation, e.g. "createVideo".
	Operation string
	// RecordID identifies the change record that produced the call.
	RecordID string
	// Input is the mutation input, kept for dead letters.
	Input any
	// Call performs the request.
	Call func(ctx context.Context) error
}

// Strategy performs an Attempt.
type Strategy interface {
	Deliver(ctx context.Context, attempt Attempt) error
}

// BestEffort makes a single attempt and reports its result.
type BestEffort struct{}

func (BestEffort) Deliver(ctx context.Context, attempt Attempt) error {
	if attempt.Call == nil {
		return fmt.Errorf("delivery %s: no call", attempt.Operation)
	}
	return attempt.Call(ctx)
}

// ExhaustedError reports the number of attempts made before giving up.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// AttemptsMade returns the attempt count carried by err, or 1.
func AttemptsMade(err error) int {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Attempts > 0 {
		return exhausted.Attempts
	}
	return 1
}
