package api

import (
	"encoding/json"
	"sort"
	"time"

	"vidflow/internal/cdc"
	"vidflow/internal/delivery"
	"vidflow/internal/pipeline"
	"vidflow/internal/router"
	"vidflow/internal/stage"
)

// FromExecution converts an execution snapshot to its API representation.
// stageNames resolves CurrentStage to a name; nil leaves it empty.
func FromExecution(exec pipeline.Execution, stageNames []string) Execution {
	dto := Execution{
		ID:           exec.ID,
		Status:       string(exec.Status),
		CurrentStage: exec.StageName(stageNames),
		Input:        rawPayload(exec.Input),
		Output:       rawPayload(exec.Output),
		Error:        exec.Error,
		StartedAt:    formatTime(exec.StartedAt),
		Deadline:     formatTime(exec.Deadline),
		FinishedAt:   formatTime(exec.FinishedAt),
		DurationMS:   exec.Duration().Milliseconds(),
		Stages:       make([]StageResult, 0, len(exec.Stages)),
	}
	if exec.Status.Terminal() {
		dto.CurrentStage = ""
	}
	for _, result := range exec.Stages {
		dto.Stages = append(dto.Stages, StageResult{
			Index:      result.Index,
			Name:       result.Name,
			Output:     rawPayload(result.Output),
			Error:      result.Error,
			Abandoned:  result.Abandoned,
			StartedAt:  formatTime(result.StartedAt),
			FinishedAt: formatTime(result.FinishedAt),
			DurationMS: result.Duration().Milliseconds(),
		})
	}
	return dto
}

// FromExecutions converts a list of executions preserving order.
func FromExecutions(execs []pipeline.Execution, stageNames []string) []Execution {
	out := make([]Execution, 0, len(execs))
	for _, exec := range execs {
		out = append(out, FromExecution(exec, stageNames))
	}
	return out
}

// FromStatusSummary converts orchestrator diagnostics.
func FromStatusSummary(summary pipeline.StatusSummary) PipelineStatus {
	dto := PipelineStatus{
		Accepting:   summary.Accepting,
		InFlight:    summary.InFlight,
		Timeout:     summary.Timeout,
		Stages:      append([]string(nil), summary.Stages...),
		Finished:    make(map[string]int, len(summary.Finished)),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	for status, count := range summary.Finished {
		dto.Finished[string(status)] = int(count)
	}
	if summary.LastExec != nil {
		last := FromExecution(*summary.LastExec, summary.Stages)
		dto.LastExecution = &last
	}
	return dto
}

// StageHealthSlice returns stage health sorted by stage name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StatusCounts converts archived execution stats keyed by status.
func StatusCounts(stats map[pipeline.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromDecision converts a router decision.
func FromDecision(decision router.Decision) RouteDecision {
	return RouteDecision{
		Matched:     decision.Matched,
		Reason:      decision.Reason,
		Bucket:      decision.Event.Bucket,
		Key:         decision.Event.Key,
		ExecutionID: decision.ExecutionID,
	}
}

// FromDecisions converts router decisions and collects started execution ids.
func FromDecisions(decisions []router.Decision) UploadResponse {
	resp := UploadResponse{
		ExecutionIDs: []string{},
		Decisions:    make([]RouteDecision, 0, len(decisions)),
	}
	for _, decision := range decisions {
		resp.Decisions = append(resp.Decisions, FromDecision(decision))
		if decision.ExecutionID != "" {
			resp.ExecutionIDs = append(resp.ExecutionIDs, decision.ExecutionID)
		}
	}
	return resp
}

// FromBatchResult converts a notifier batch outcome.
func FromBatchResult(result cdc.BatchResult) ChangeBatchResponse {
	resp := ChangeBatchResponse{
		Records:  make([]RecordOutcome, 0, len(result.Records)),
		Failures: result.Failures,
	}
	for _, rec := range result.Records {
		outcome := RecordOutcome{
			RecordID:  rec.RecordID,
			EventName: rec.EventName,
			Action:    string(rec.Action),
			VideoID:   rec.VideoID,
			Video:     CallResult(rec.Video),
		}
		if rec.Notification != nil {
			call := CallResult(*rec.Notification)
			outcome.Notification = &call
		}
		resp.Records = append(resp.Records, outcome)
	}
	return resp
}

// FromLetter converts a stored dead letter.
func FromLetter(letter delivery.Letter) DeadLetter {
	return DeadLetter{
		ID:        letter.ID,
		Operation: letter.Operation,
		RecordID:  letter.RecordID,
		Input:     letter.Input,
		Error:     letter.Error,
		Attempts:  letter.Attempts,
		CreatedAt: formatTime(letter.CreatedAt),
	}
}

func rawPayload(p stage.Payload) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	return json.RawMessage(p)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
