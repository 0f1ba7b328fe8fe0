package preflight

import (
	"context"
	"strings"

	"vidflow/internal/config"
)

// CheckAMQPFromConfig evaluates RabbitMQ reachability when the upload queue is enabled.
func CheckAMQPFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "RabbitMQ"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.AMQP.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.AMQP.URL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	return CheckTCP(ctx, name, cfg.AMQP.URL, "5672")
}

// CheckJetStreamFromConfig evaluates NATS reachability when the change stream is enabled.
func CheckJetStreamFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "NATS JetStream"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.JetStream.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.JetStream.URL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	return CheckTCP(ctx, name, cfg.JetStream.URL, "4222")
}

// CheckNtfyFromConfig reports whether operator alerts are configured.
func CheckNtfyFromConfig(cfg *config.Config) Result {
	const name = "ntfy"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Notifications.NtfyTopic}
}
