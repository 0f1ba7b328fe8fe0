package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"vidflow/internal/broker"
	"vidflow/internal/config"
	"vidflow/internal/pipeline"
	"vidflow/internal/router"
	"vidflow/internal/services"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acks++; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(uint64, bool) error { return nil }

type stubRouter struct {
	decisions []router.Decision
	err       error
	bodies    [][]byte
}

func (s *stubRouter) RouteRaw(_ context.Context, data []byte) ([]router.Decision, error) {
	s.bodies = append(s.bodies, data)
	return s.decisions, s.err
}

func newConsumer(r broker.EventRouter) *broker.Consumer {
	cfg := config.Default()
	return broker.NewConsumer(cfg.AMQP, r, nil)
}

func TestHandleAcksRoutedMessage(t *testing.T) {
	ack := &fakeAcknowledger{}
	r := &stubRouter{decisions: []router.Decision{{Matched: true, ExecutionID: "e1"}}}
	newConsumer(r).Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"detail-type":"Object Created"}`)})

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if len(r.bodies) != 1 {
		t.Fatalf("expected router to see the body once, got %d", len(r.bodies))
	}
}

func TestHandleAcksIgnoredMessage(t *testing.T) {
	ack := &fakeAcknowledger{}
	r := &stubRouter{decisions: []router.Decision{{Matched: false, Reason: router.ReasonSuffix}}}
	newConsumer(r).Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 2})
	if ack.acks != 1 {
		t.Fatalf("expected ignored message to be acked, got %+v", ack)
	}
}

func TestHandleDropsUndecodableMessage(t *testing.T) {
	ack := &fakeAcknowledger{}
	r := &stubRouter{err: services.Wrap(services.ErrValidation, "router", "parse event", "invalid JSON", nil)}
	newConsumer(r).Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("{")})
	if ack.nacks != 1 || ack.requeue {
		t.Fatalf("expected nack without requeue, got %+v", ack)
	}
}

func TestHandleRequeuesFailedStart(t *testing.T) {
	ack := &fakeAcknowledger{}
	r := &stubRouter{err: errors.New("orchestrator closed")}
	newConsumer(r).Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 4})
	if ack.nacks != 1 || !ack.requeue {
		t.Fatalf("expected nack with requeue, got %+v", ack)
	}
}

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return f.err
}

func TestPublisherObserverPublishesTransitions(t *testing.T) {
	ch := &fakeChannel{}
	pub := broker.NewPublisher(ch, "video_pipeline", "status", nil)
	obs := pub.Observer([]string{"create-casings", "transcode"})
	ctx := context.Background()

	exec := pipeline.Execution{ID: "e1", Status: pipeline.StatusRunning}
	if err := obs.ExecutionStarted(ctx, exec); err != nil {
		t.Fatalf("ExecutionStarted: %v", err)
	}
	if err := obs.StageCompleted(ctx, exec, pipeline.StageResult{Index: 0, Name: "create-casings"}); err != nil {
		t.Fatalf("StageCompleted: %v", err)
	}
	exec.Status = pipeline.StatusFailed
	exec.CurrentStage = 1
	exec.Error = "boom"
	if err := obs.ExecutionFinished(ctx, exec); err != nil {
		t.Fatalf("ExecutionFinished: %v", err)
	}

	if len(ch.calls) != 3 {
		t.Fatalf("expected three publishes, got %d", len(ch.calls))
	}
	for _, call := range ch.calls {
		if call.exchange != "video_pipeline" || call.key != "status" || call.msg.ContentType != "application/json" {
			t.Fatalf("unexpected publish %+v", call)
		}
	}
	var finished broker.StatusEvent
	if err := json.Unmarshal(ch.calls[2].msg.Body, &finished); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if finished.Kind != broker.KindExecutionFinished || finished.Status != pipeline.StatusFailed || finished.Stage != "transcode" || finished.Error != "boom" {
		t.Fatalf("unexpected finished event %+v", finished)
	}
	var stageEvent broker.StatusEvent
	if err := json.Unmarshal(ch.calls[1].msg.Body, &stageEvent); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if stageEvent.StageIndex == nil || *stageEvent.StageIndex != 0 {
		t.Fatalf("expected stage index 0, got %+v", stageEvent)
	}
}

func TestPublisherReturnsChannelError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	pub := broker.NewPublisher(ch, "x", "status", nil)
	if err := pub.Publish(context.Background(), broker.StatusEvent{ExecutionID: "e1"}); err == nil {
		t.Fatal("expected publish error")
	}
}
