package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vidflow/internal/delivery"
	"vidflow/internal/services"
)

func countingCall(failures int, err error) (func(context.Context) error, *int) {
	calls := 0
	return func(context.Context) error {
		calls++
		if calls <= failures {
			return err
		}
		return nil
	}, &calls
}

func TestBestEffortMakesOneAttempt(t *testing.T) {
	call, calls := countingCall(5, services.Wrap(services.ErrTransient, "appsync", "createVideo", "boom", nil))
	err := delivery.BestEffort{}.Deliver(context.Background(), delivery.Attempt{Operation: "createVideo", Call: call})
	if err == nil {
		t.Fatal("expected error")
	}
	if *calls != 1 {
		t.Fatalf("expected one attempt, got %d", *calls)
	}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	call, calls := countingCall(2, services.Wrap(services.ErrTransient, "appsync", "createVideo", "503", nil))
	r := delivery.NewRetry(4, time.Millisecond, 5*time.Millisecond, 2, nil)
	if err := r.Deliver(context.Background(), delivery.Attempt{Operation: "createVideo", Call: call}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if *calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", *calls)
	}
}

func TestRetryStopsOnPermanentFailure(t *testing.T) {
	call, calls := countingCall(10, services.Wrap(services.ErrValidation, "appsync", "createVideo", "bad input", nil))
	r := delivery.NewRetry(5, time.Millisecond, time.Millisecond, 2, nil)
	err := r.Deliver(context.Background(), delivery.Attempt{Operation: "createVideo", Call: call})
	if err == nil {
		t.Fatal("expected error")
	}
	if *calls != 1 {
		t.Fatalf("expected no retry for validation errors, got %d attempts", *calls)
	}
	if delivery.AttemptsMade(err) != 1 || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unexpected error shape %v", err)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	call, calls := countingCall(10, services.Wrap(services.ErrTransient, "appsync", "notify", "timeout", nil))
	r := delivery.NewRetry(3, time.Millisecond, time.Millisecond, 2, nil)
	err := r.Deliver(context.Background(), delivery.Attempt{Operation: "notify", Call: call})
	if *calls != 3 || delivery.AttemptsMade(err) != 3 {
		t.Fatalf("expected three attempts, got calls=%d attempts=%d", *calls, delivery.AttemptsMade(err))
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	call := func(context.Context) error {
		calls++
		cancel()
		return services.Wrap(services.ErrTransient, "appsync", "notify", "down", nil)
	}
	r := delivery.NewRetry(5, time.Hour, time.Hour, 2, nil)
	start := time.Now()
	if err := r.Deliver(ctx, delivery.Attempt{Operation: "notify", Call: call}); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second || calls != 1 {
		t.Fatalf("expected cancellation to stop retries promptly, calls=%d", calls)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	r := delivery.NewRetry(5, 100*time.Millisecond, 300*time.Millisecond, 2, nil)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := r.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

type memorySink struct {
	mu      sync.Mutex
	letters []delivery.Letter
	err     error
}

func (m *memorySink) PutDeadLetter(_ context.Context, letter delivery.Letter) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.letters = append(m.letters, letter)
	m.mu.Unlock()
	return nil
}

func TestDeadLetterRecordsGivenUpCalls(t *testing.T) {
	sink := &memorySink{}
	var notified []string
	listener := func(_ context.Context, letter delivery.Letter) { notified = append(notified, letter.ID) }
	strategy := delivery.NewDeadLetter(delivery.NewRetry(2, time.Millisecond, time.Millisecond, 1, nil), sink, nil, listener)

	call, _ := countingCall(10, services.Wrap(services.ErrTransient, "appsync", "createVideo", "503", nil))
	err := strategy.Deliver(context.Background(), delivery.Attempt{
		Operation: "createVideo",
		RecordID:  "evt-1",
		Input:     map[string]string{"videoId": "v1"},
		Call:      call,
	})
	if err == nil {
		t.Fatal("expected the failure to still be reported")
	}
	if len(sink.letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(sink.letters))
	}
	letter := sink.letters[0]
	if letter.Operation != "createVideo" || letter.RecordID != "evt-1" || letter.Attempts != 2 {
		t.Fatalf("unexpected letter %+v", letter)
	}
	if string(letter.Input) != `{"videoId":"v1"}` {
		t.Fatalf("unexpected letter input %s", letter.Input)
	}
	if !strings.Contains(letter.Error, "[transient]") {
		t.Fatalf("expected classified error message, got %q", letter.Error)
	}
	if len(notified) != 1 || notified[0] != letter.ID {
		t.Fatalf("expected listener to run once, got %v", notified)
	}
}

func TestDeadLetterSkipsSuccessfulCalls(t *testing.T) {
	sink := &memorySink{}
	strategy := delivery.NewDeadLetter(delivery.BestEffort{}, sink, nil)
	if err := strategy.Deliver(context.Background(), delivery.Attempt{Operation: "notify", Call: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(sink.letters) != 0 {
		t.Fatal("expected no dead letter for success")
	}
}

func TestDeadLetterSinkFailureKeepsOriginalError(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	original := errors.New("downstream 500")
	strategy := delivery.NewDeadLetter(delivery.BestEffort{}, sink, nil)
	err := strategy.Deliver(context.Background(), delivery.Attempt{Operation: "notify", Call: func(context.Context) error { return original }})
	if !errors.Is(err, original) {
		t.Fatalf("expected original error, got %v", err)
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkWritesJSONUnderDatedPrefix(t *testing.T) {
	putter := &fakePutter{}
	sink := delivery.NewS3Sink(putter, "dlq-bucket", "/vidflow/dead-letters/")
	letter := delivery.Letter{
		ID:        "abc",
		Operation: "createVideoNotification",
		Input:     json.RawMessage(`{"videoId":"v"}`),
		CreatedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	if err := sink.PutDeadLetter(context.Background(), letter); err != nil {
		t.Fatalf("PutDeadLetter: %v", err)
	}
	if got := *putter.input.Key; got != "vidflow/dead-letters/2024/03/09/abc.json" {
		t.Fatalf("unexpected key %q", got)
	}
	if *putter.input.Bucket != "dlq-bucket" {
		t.Fatalf("unexpected bucket %q", *putter.input.Bucket)
	}
	var decoded delivery.Letter
	if err := json.Unmarshal(putter.body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Operation != letter.Operation {
		t.Fatalf("unexpected decoded letter %+v", decoded)
	}
}

func TestS3SinkRequiresBucket(t *testing.T) {
	sink := delivery.NewS3Sink(&fakePutter{}, "", "x")
	if err := sink.PutDeadLetter(context.Background(), delivery.Letter{ID: "a"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
