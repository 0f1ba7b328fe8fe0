// Package changestream feeds video change batches from NATS JetStream into the
// change notifier.
//
// Each message body is a DynamoDB stream batch. Messages are acked once their
// batch has been handled, whatever the outcome of the individual downstream
// calls; messages that cannot be decoded are terminated so they are never
// redelivered.
package changestream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"vidflow/internal/cdc"
	"vidflow/internal/config"
	"vidflow/internal/logging"
	"vidflow/internal/services"
)

// ChangeHandler processes one encoded change batch.
type ChangeHandler interface {
	HandleRaw(ctx context.Context, data []byte) (cdc.BatchResult, error)
}

// Message is the subset of jetstream.Msg the consumer settles.
type Message interface {
	Data() []byte
	Subject() string
	Ack() error
	Term() error
}

// Consumer is a durable JetStream pull consumer.
type Consumer struct {
	cfg     config.JetStream
	handler ChangeHandler
	logger  *slog.Logger
}

// NewConsumer builds a consumer from the [jetstream] section.
func NewConsumer(cfg config.JetStream, handler ChangeHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "changestream"),
	}
}

// Run connects and fetches batches until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.Name("vidflow-notifier"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.WarnWithContext(c.logger, "nats disconnected", "nats_disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			c.logger.Info("nats reconnected", logging.String(logging.FieldEventType, "nats_reconnected"))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("open jetstream: %w", err)
	}
	if err := ensureStream(ctx, js, c.cfg.Stream, c.cfg.Subject); err != nil {
		return err
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.cfg.Durable, err)
	}

	c.logger.Info("change stream consumer started",
		logging.String(logging.FieldEventType, "jetstream_consumer_started"),
		logging.String("stream", c.cfg.Stream),
		logging.String("durable", c.cfg.Durable),
	)

	wait := time.Duration(c.cfg.FetchWaitSeconds) * time.Second
	for ctx.Err() == nil {
		batch, err := consumer.Fetch(c.cfg.BatchSize, jetstream.FetchMaxWait(wait))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logging.WarnWithContext(c.logger, "change stream fetch failed", "jetstream_fetch_failed",
				logging.String(logging.FieldErrorHint, "check jetstream.url and stream configuration"),
				logging.Error(err),
			)
			sleep(ctx, time.Second)
			continue
		}
		for msg := range batch.Messages() {
			if ctx.Err() != nil {
				break
			}
			c.Handle(ctx, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
			c.logger.Debug("fetch ended", logging.Error(err))
		}
	}
	return nil
}

// Handle processes one message and settles it. A message arriving after ctx
// is done is left unacked for redelivery; once started, a batch runs to
// completion so every record gets its downstream attempt before the ack.
func (c *Consumer) Handle(ctx context.Context, msg Message) {
	logger := c.logger.With(logging.String("subject", msg.Subject()))
	if ctx.Err() != nil {
		logger.Debug("change batch left for redelivery",
			logging.String(logging.FieldEventType, "jetstream_message_deferred"),
		)
		return
	}
	result, err := c.handler.HandleRaw(context.WithoutCancel(ctx), msg.Data())
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			logging.WarnWithContext(logger, "undecodable change batch terminated", "jetstream_message_terminated",
				logging.String(logging.FieldErrorHint, "publish DynamoDB stream JSON with a Records array"),
				logging.Error(err),
			)
			if termErr := msg.Term(); termErr != nil {
				logger.Warn("message term failed", logging.Error(termErr))
			}
			return
		}
		logging.ErrorWithContext(logger, "change batch failed", "jetstream_message_failed", logging.Error(err))
	} else {
		logger.Debug("change batch consumed",
			logging.String(logging.FieldEventType, "jetstream_message_consumed"),
			logging.Int("records", len(result.Records)),
			logging.Int("failures", result.Failures),
		)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		logger.Warn("message ack failed", logging.Error(ackErr))
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name, subject string) error {
	if _, err := js.Stream(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", name, err)
	}
	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
