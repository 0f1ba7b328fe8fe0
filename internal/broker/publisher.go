package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"vidflow/internal/config"
	"vidflow/internal/logging"
	"vidflow/internal/pipeline"
)

const publishTimeout = 5 * time.Second

// Status event kinds.
const (
	KindExecutionStarted  = "execution_started"
	KindStageCompleted    = "stage_completed"
	KindExecutionFinished = "execution_finished"
)

// StatusEvent is the message body published for execution transitions.
type StatusEvent struct {
	Kind        string          `json:"kind"`
	ExecutionID string          `json:"execution_id"`
	Status      pipeline.Status `json:"status"`
	Stage       string          `json:"stage,omitempty"`
	StageIndex  *int            `json:"stage_index,omitempty"`
	Error       string          `json:"error,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes status events to a direct exchange.
type Publisher struct {
	ch         Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	now        func() time.Time
	mu         sync.Mutex
}

// NewPublisher wraps an open channel.
func NewPublisher(ch Channel, exchange, routingKey string, logger *slog.Logger) *Publisher {
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logging.NewComponentLogger(logger, "broker"),
		now:        time.Now,
	}
}

// DialPublisher connects, declares the status exchange, and returns the
// publisher with a closer for the connection.
func DialPublisher(cfg config.AMQP, logger *slog.Logger) (*Publisher, func() error, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.StatusExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", cfg.StatusExchange, err)
	}
	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewPublisher(ch, cfg.StatusExchange, cfg.StatusRoutingKey, logger), closer, nil
}

// Publish sends one status event.
func (p *Publisher) Publish(ctx context.Context, event StatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ExecutionID,
		Timestamp:    event.Timestamp,
		Type:         event.Kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

// Observer returns a pipeline observer publishing execution transitions.
func (p *Publisher) Observer(stageNames []string) pipeline.Observer {
	return &statusObserver{p: p, names: stageNames}
}

type statusObserver struct {
	pipeline.BaseObserver
	p     *Publisher
	names []string
}

func (o *statusObserver) ExecutionStarted(ctx context.Context, exec pipeline.Execution) error {
	return o.p.Publish(context.WithoutCancel(ctx), StatusEvent{
		Kind:        KindExecutionStarted,
		ExecutionID: exec.ID,
		Status:      exec.Status,
		Timestamp:   o.p.now().UTC(),
	})
}

func (o *statusObserver) StageCompleted(ctx context.Context, exec pipeline.Execution, result pipeline.StageResult) error {
	index := result.Index
	return o.p.Publish(context.WithoutCancel(ctx), StatusEvent{
		Kind:        KindStageCompleted,
		ExecutionID: exec.ID,
		Status:      exec.Status,
		Stage:       result.Name,
		StageIndex:  &index,
		Error:       result.Error,
		Timestamp:   o.p.now().UTC(),
	})
}

func (o *statusObserver) ExecutionFinished(ctx context.Context, exec pipeline.Execution) error {
	return o.p.Publish(context.WithoutCancel(ctx), StatusEvent{
		Kind:        KindExecutionFinished,
		ExecutionID: exec.ID,
		Status:      exec.Status,
		Stage:       exec.StageName(o.names),
		Error:       exec.Error,
		Timestamp:   o.p.now().UTC(),
	})
}
