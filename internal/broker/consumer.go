package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"vidflow/internal/config"
	"vidflow/internal/logging"
	"vidflow/internal/router"
	"vidflow/internal/services"
)

// EventRouter routes a raw upload event body.
type EventRouter interface {
	RouteRaw(ctx context.Context, data []byte) ([]router.Decision, error)
}

// Consumer consumes upload events from an AMQP queue.
type Consumer struct {
	url       string
	queue     string
	prefetch  int
	reconnect time.Duration
	router    EventRouter
	logger    *slog.Logger
}

// NewConsumer builds a consumer from the [amqp] section.
func NewConsumer(cfg config.AMQP, r EventRouter, logger *slog.Logger) *Consumer {
	reconnect := time.Duration(cfg.ReconnectSeconds) * time.Second
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &Consumer{
		url:       cfg.URL,
		queue:     cfg.UploadQueue,
		prefetch:  cfg.Prefetch,
		reconnect: reconnect,
		router:    r,
		logger:    logging.NewComponentLogger(logger, "broker"),
	}
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logging.WarnWithContext(c.logger, "upload consumer disconnected", "amqp_disconnected",
			logging.String("queue", c.queue),
			logging.Duration("retry_in", c.reconnect),
			logging.String(logging.FieldErrorHint, "check amqp.url and broker availability"),
			logging.Error(err),
		)
		timer := time.NewTimer(c.reconnect)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	deliveries, err := ch.Consume(c.queue, "vidflow", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("upload consumer started",
		logging.String(logging.FieldEventType, "amqp_consumer_started"),
		logging.String("queue", c.queue),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle routes one delivery and settles it.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	logger := c.logger.With(logging.String("message_id", d.MessageId), logging.Int64("delivery_tag", int64(d.DeliveryTag)))
	decisions, err := c.router.RouteRaw(ctx, d.Body)
	switch {
	case err == nil:
		started := 0
		for _, decision := range decisions {
			if decision.ExecutionID != "" {
				started++
			}
		}
		logger.Debug("upload message handled",
			logging.String(logging.FieldEventType, "amqp_message_handled"),
			logging.Int("events", len(decisions)),
			logging.Int("started", started),
		)
		c.settle(logger, d.Ack(false))
	case errors.Is(err, services.ErrValidation):
		logging.WarnWithContext(logger, "undecodable upload message dropped", "amqp_message_rejected",
			logging.String(logging.FieldErrorHint, "publish EventBridge or S3 notification JSON"),
			logging.Error(err),
		)
		c.settle(logger, d.Nack(false, false))
	default:
		logging.ErrorWithContext(logger, "upload message requeued", "amqp_message_requeued",
			logging.String(logging.FieldImpact, "upload will be retried on redelivery"),
			logging.Error(err),
		)
		c.settle(logger, d.Nack(false, true))
	}
}

func (c *Consumer) settle(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("message settle failed", logging.String(logging.FieldEventType, "amqp_settle_failed"), logging.Error(err))
	}
}
