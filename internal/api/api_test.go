package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidflow/internal/cdc"
	"vidflow/internal/pipeline"
	"vidflow/internal/router"
	"vidflow/internal/stage"
)

func TestFromExecutionIncludesStages(t *testing.T) {
	started := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	exec := pipeline.Execution{
		ID:           "exec-1",
		Status:       pipeline.StatusFailed,
		Input:        stage.Payload(`{"bucket":"uploads","key":"a.mp4"}`),
		CurrentStage: 1,
		Error:        "stage transcode failed: boom",
		StartedAt:    started,
		FinishedAt:   started.Add(1500 * time.Millisecond),
		Stages: []pipeline.StageResult{
			{Index: 0, Name: "create-casings", Output: stage.Payload(`{"ok":true}`), StartedAt: started, FinishedAt: started.Add(time.Second)},
			{Index: 1, Name: "transcode", Error: "boom", StartedAt: started.Add(time.Second), FinishedAt: started.Add(1500 * time.Millisecond)},
		},
	}

	dto := FromExecution(exec, []string{"create-casings", "transcode"})
	if dto.Status != "FAILED" {
		t.Fatalf("unexpected status %q", dto.Status)
	}
	if dto.CurrentStage != "" {
		t.Fatalf("expected no current stage for terminal execution, got %q", dto.CurrentStage)
	}
	if dto.DurationMS != 1500 {
		t.Fatalf("expected 1500ms duration, got %d", dto.DurationMS)
	}
	if dto.StartedAt != "2026-10-14T12:00:00.000Z" {
		t.Fatalf("unexpected startedAt %q", dto.StartedAt)
	}
	if dto.FinishedAt == "" || dto.Deadline != "" {
		t.Fatalf("unexpected timestamps: finished=%q deadline=%q", dto.FinishedAt, dto.Deadline)
	}
	if len(dto.Stages) != 2 || dto.Stages[1].Error != "boom" || dto.Stages[0].DurationMS != 1000 {
		t.Fatalf("unexpected stages: %+v", dto.Stages)
	}
	if string(dto.Stages[0].Output) != `{"ok":true}` {
		t.Fatalf("expected raw stage output, got %s", dto.Stages[0].Output)
	}
}

func TestFromExecutionRunningReportsStageName(t *testing.T) {
	exec := pipeline.Execution{ID: "exec-2", Status: pipeline.StatusRunning, CurrentStage: 1}
	dto := FromExecution(exec, []string{"a", "b"})
	if dto.CurrentStage != "b" {
		t.Fatalf("expected current stage b, got %q", dto.CurrentStage)
	}
}

func TestStageHealthSliceSorted(t *testing.T) {
	health := map[string]stage.Health{
		"transcode":      stage.Healthy("transcode"),
		"create-casings": stage.Unhealthy("create-casings", "url missing"),
	}
	out := StageHealthSlice(health)
	if len(out) != 2 || out[0].Name != "create-casings" || out[0].Ready || out[1].Name != "transcode" {
		t.Fatalf("unexpected ordering: %+v", out)
	}
}

func TestFromDecisionsCollectsExecutionIDs(t *testing.T) {
	resp := FromDecisions([]router.Decision{
		{Matched: true, Reason: router.ReasonMatched, ExecutionID: "exec-1", Event: router.Event{Bucket: "uploads", Key: "a.mp4"}},
		{Matched: false, Reason: router.ReasonSuffix, Event: router.Event{Bucket: "uploads", Key: "a.txt"}},
	})
	if len(resp.ExecutionIDs) != 1 || resp.ExecutionIDs[0] != "exec-1" {
		t.Fatalf("unexpected execution ids: %v", resp.ExecutionIDs)
	}
	if len(resp.Decisions) != 2 || resp.Decisions[1].Reason != "suffix" {
		t.Fatalf("unexpected decisions: %+v", resp.Decisions)
	}
}

func TestFromBatchResultKeepsSuppressedNotificationNil(t *testing.T) {
	resp := FromBatchResult(cdc.BatchResult{
		Records: []cdc.RecordOutcome{
			{RecordID: "r1", EventName: "MODIFY", Action: cdc.MutationUpdate, Video: cdc.CallResult{Operation: cdc.OperationCreateVideo, ID: "v1"}},
			{RecordID: "r2", EventName: "INSERT", Action: cdc.MutationCreate, Video: cdc.CallResult{Operation: cdc.OperationCreateVideo, Error: "boom"},
				Notification: &cdc.CallResult{Operation: cdc.OperationCreateVideoNotification, ID: "n1"}},
		},
		Failures: 1,
	})
	if resp.Failures != 1 || len(resp.Records) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Records[0].Notification != nil {
		t.Fatal("expected suppressed notification to stay nil")
	}
	if resp.Records[1].Notification == nil || resp.Records[1].Notification.ID != "n1" {
		t.Fatalf("unexpected notification: %+v", resp.Records[1].Notification)
	}
	if resp.Records[1].Action != "CREATE" {
		t.Fatalf("unexpected action %q", resp.Records[1].Action)
	}
}

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/api/executions":
			if got := r.URL.Query()["status"]; len(got) != 1 || got[0] != "FAILED" {
				t.Errorf("unexpected status filter %v", got)
			}
			_ = json.NewEncoder(w).Encode(ExecutionListResponse{Executions: []Execution{{ID: "exec-1", Status: "FAILED"}}})
		case "/api/executions/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"execution not found"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", nil)
	execs, err := client.ListExecutions(context.Background(), []string{"FAILED"}, 10)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(execs) != 1 || execs[0].ID != "exec-1" {
		t.Fatalf("unexpected executions: %+v", execs)
	}

	missing, err := client.GetExecution(context.Background(), "missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil execution without error, got %+v, %v", missing, err)
	}

	unauthorized := NewClient(srv.URL, "wrong", nil)
	_, err = unauthorized.Status(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized || statusErr.Message != "unauthorized" {
		t.Fatalf("expected unauthorized status error, got %v", err)
	}
}

func TestNewClientAddsScheme(t *testing.T) {
	client := NewClient("127.0.0.1:7490/", "", nil)
	if client.BaseURL() != "http://127.0.0.1:7490" {
		t.Fatalf("unexpected base url %q", client.BaseURL())
	}
}
