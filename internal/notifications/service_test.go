package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vidflow/internal/config"
	"vidflow/internal/delivery"
	"vidflow/internal/notifications"
	"vidflow/internal/pipeline"
	"vidflow/internal/stage"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventExecutionFailed, notifications.Payload{"executionID": "e1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		msgs []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		msgs = append(msgs, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), msgs...)
	}
}

func ntfyService(t *testing.T, url string) notifications.Service {
	t.Helper()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	return notifications.NewService(&cfg)
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "execution failed",
			event: notifications.EventExecutionFailed,
			payload: notifications.Payload{
				"executionID": "exec-1",
				"stage":       "transcode",
				"key":         "videos/a.mp4",
				"error":       "returned 500",
			},
			expectTitle:    "vidflow - Execution Failed",
			expectMessage:  "❌ Execution failed: exec-1\nStage: transcode\nObject: videos/a.mp4\nError: returned 500",
			expectTags:     "vidflow,pipeline,failed",
			expectPriority: "high",
		},
		{
			name:           "execution timed out",
			event:          notifications.EventExecutionTimedOut,
			payload:        notifications.Payload{"executionID": "exec-2"},
			expectTitle:    "vidflow - Execution Timed Out",
			expectMessage:  "⏱️ Execution timed out: exec-2",
			expectTags:     "vidflow,pipeline,timeout",
			expectPriority: "high",
		},
		{
			name:  "dead letter",
			event: notifications.EventDeadLetter,
			payload: notifications.Payload{
				"operation": "createVideo",
				"attempts":  3,
				"recordID":  "evt-1",
				"error":     "unavailable",
			},
			expectTitle:   "vidflow - Dead Letter",
			expectMessage: "📮 createVideo dead-lettered after 3 attempt(s)\nRecord: evt-1\nError: unavailable",
			expectTags:    "vidflow,notifier,deadletter",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "vidflow - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "vidflow,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, messages := newNtfyServer(t)
			svc := ntfyService(t, server.URL)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			got := messages()
			if len(got) != 1 {
				t.Fatalf("expected one message, got %d", len(got))
			}
			msg := got[0]
			if msg.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, msg.title)
			}
			if msg.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, msg.body)
			}
			if msg.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, msg.tags)
			}
			if msg.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, msg.priority)
			}
		})
	}
}

func TestNtfyServiceRejectsUnknownEvent(t *testing.T) {
	server, messages := newNtfyServer(t)
	svc := ntfyService(t, server.URL)
	if err := svc.Publish(context.Background(), notifications.Event("disc_detected"), nil); err == nil {
		t.Fatal("expected error for unknown event")
	}
	if len(messages()) != 0 {
		t.Fatal("expected nothing sent for unknown event")
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	if err := ntfyService(t, server.URL).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestExecutionAlertsPublishOnlyFailures(t *testing.T) {
	server, messages := newNtfyServer(t)
	obs := notifications.ExecutionAlerts(ntfyService(t, server.URL), []string{"create-casings", "transcode"})
	ctx := context.Background()

	input := stage.MustObjectPayload(map[string]any{"bucket": "uploads", "key": "videos/a.mp4"})
	for _, status := range []pipeline.Status{pipeline.StatusSucceeded, pipeline.StatusFailed, pipeline.StatusTimedOut} {
		exec := pipeline.Execution{ID: "e-" + string(status), Status: status, Input: input, CurrentStage: 1, Error: "boom"}
		if err := obs.ExecutionFinished(ctx, exec); err != nil {
			t.Fatalf("ExecutionFinished(%s): %v", status, err)
		}
	}

	got := messages()
	if len(got) != 2 {
		t.Fatalf("expected two alerts, got %d", len(got))
	}
	want := "❌ Execution failed: e-FAILED\nStage: transcode\nObject: videos/a.mp4\nError: boom"
	if got[0].body != want {
		t.Fatalf("unexpected failure alert %q", got[0].body)
	}
	if got[1].title != "vidflow - Execution Timed Out" {
		t.Fatalf("unexpected timeout alert title %q", got[1].title)
	}
}

func TestDeadLetterAlertsPublish(t *testing.T) {
	server, messages := newNtfyServer(t)
	listener := notifications.DeadLetterAlerts(ntfyService(t, server.URL), nil)
	listener(context.Background(), delivery.Letter{ID: "l1", Operation: "createVideoNotification", Attempts: 2})

	got := messages()
	if len(got) != 1 || got[0].title != "vidflow - Dead Letter" {
		t.Fatalf("unexpected alerts %+v", got)
	}
}
