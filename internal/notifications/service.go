package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidflow/internal/config"
)

const userAgent = "vidflow/0.1.0"

// Event identifies an alert type.
type Event string

const (
	EventExecutionFailed   Event = "execution_failed"
	EventExecutionTimedOut Event = "execution_timed_out"
	EventDeadLetter        Event = "dead_letter"
	EventTest              Event = "test"
)

// Payload carries event fields used to format the message.
type Payload map[string]any

// Service publishes alerts.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("notifications: unsupported event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventExecutionFailed:
		return message{
			title:    "vidflow - Execution Failed",
			body:     executionBody("❌ Execution failed", payload),
			tags:     []string{"vidflow", "pipeline", "failed"},
			priority: "high",
		}, true
	case EventExecutionTimedOut:
		return message{
			title:    "vidflow - Execution Timed Out",
			body:     executionBody("⏱️ Execution timed out", payload),
			tags:     []string{"vidflow", "pipeline", "timeout"},
			priority: "high",
		}, true
	case EventDeadLetter:
		body := fmt.Sprintf("📮 %s dead-lettered after %s attempt(s)", text(payload, "operation", "downstream call"), text(payload, "attempts", "?"))
		if video := text(payload, "recordID", ""); video != "" {
			body += "\nRecord: " + video
		}
		if reason := text(payload, "error", ""); reason != "" {
			body += "\nError: " + reason
		}
		return message{
			title: "vidflow - Dead Letter",
			body:  body,
			tags:  []string{"vidflow", "notifier", "deadletter"},
		}, true
	case EventTest:
		return message{
			title:    "vidflow - Test",
			body:     text(payload, "message", "🧪 Notification system test"),
			tags:     []string{"vidflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func executionBody(headline string, payload Payload) string {
	var b strings.Builder
	b.WriteString(headline)
	if id := text(payload, "executionID", ""); id != "" {
		b.WriteString(": ")
		b.WriteString(id)
	}
	if stage := text(payload, "stage", ""); stage != "" {
		b.WriteString("\nStage: ")
		b.WriteString(stage)
	}
	if key := text(payload, "key", ""); key != "" {
		b.WriteString("\nObject: ")
		b.WriteString(key)
	}
	if reason := text(payload, "error", ""); reason != "" {
		b.WriteString("\nError: ")
		b.WriteString(reason)
	}
	return b.String()
}

func text(payload Payload, key, fallback string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(value))
	if s == "" {
		return fallback
	}
	return s
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
