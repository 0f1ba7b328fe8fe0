package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vidflow/internal/delivery"
	"vidflow/internal/metrics"
	"vidflow/internal/pipeline"
	"vidflow/internal/router"
)

func TestExecutionObserverCountsStatusAndInFlight(t *testing.T) {
	m := metrics.New(false)
	obs := m.Observer()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	exec := pipeline.Execution{ID: "e1", Status: pipeline.StatusRunning, StartedAt: start}
	if err := obs.ExecutionStarted(ctx, exec); err != nil {
		t.Fatalf("ExecutionStarted: %v", err)
	}
	if err := obs.StageCompleted(ctx, exec, pipeline.StageResult{Name: "transcode", StartedAt: start, FinishedAt: start.Add(2 * time.Second)}); err != nil {
		t.Fatalf("StageCompleted: %v", err)
	}
	exec.Status = pipeline.StatusTimedOut
	exec.FinishedAt = start.Add(3 * time.Second)
	if err := obs.ExecutionFinished(ctx, exec); err != nil {
		t.Fatalf("ExecutionFinished: %v", err)
	}

	expected := `
# HELP vidflow_executions_total Finished pipeline executions by terminal status.
# TYPE vidflow_executions_total counter
vidflow_executions_total{status="TIMED_OUT"} 1
# HELP vidflow_executions_in_flight Executions currently running.
# TYPE vidflow_executions_in_flight gauge
vidflow_executions_in_flight 0
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "vidflow_executions_total", "vidflow_executions_in_flight"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if count := testutil.CollectAndCount(m.Registry(), "vidflow_stage_duration_seconds"); count != 1 {
		t.Fatalf("expected one stage histogram series, got %d", count)
	}
}

func TestRouteAndCallCounters(t *testing.T) {
	m := metrics.New(false)
	m.ObserveRoute(router.Decision{Matched: true, ExecutionID: "e1"})
	m.ObserveRoute(router.Decision{Matched: false, Reason: router.ReasonSuffix})
	m.ObserveRoute(router.Decision{Matched: false, Reason: router.ReasonBucket})
	m.ObserveRoute(router.Decision{Matched: true, Reason: "start_failed"})
	m.ObserveCall("createVideo", nil)
	m.ObserveCall("createVideoNotification", errors.New("boom"))
	m.ObserveDeadLetter(context.Background(), delivery.Letter{ID: "l1"})

	expected := `
# HELP vidflow_routes_total Upload events evaluated by the router.
# TYPE vidflow_routes_total counter
vidflow_routes_total{decision="failed"} 1
vidflow_routes_total{decision="ignored"} 2
vidflow_routes_total{decision="started"} 1
# HELP vidflow_notifier_calls_total Downstream calls made by the change notifier.
# TYPE vidflow_notifier_calls_total counter
vidflow_notifier_calls_total{operation="createVideo",result="success"} 1
vidflow_notifier_calls_total{operation="createVideoNotification",result="failure"} 1
# HELP vidflow_dead_letters_total Downstream calls written to the dead-letter sink.
# TYPE vidflow_dead_letters_total counter
vidflow_dead_letters_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"vidflow_routes_total", "vidflow_notifier_calls_total", "vidflow_dead_letters_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := metrics.New(true)
	m.ObserveCall("createVideo", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "vidflow_notifier_calls_total") || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected vidflow and runtime metrics, got %s", body)
	}
}
