package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Execution describes a pipeline execution in a transport-friendly format.
type Execution struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	CurrentStage string          `json:"currentStage,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    string          `json:"startedAt,omitempty"`
	Deadline     string          `json:"deadline,omitempty"`
	FinishedAt   string          `json:"finishedAt,omitempty"`
	DurationMS   int64           `json:"durationMs"`
	Stages       []StageResult   `json:"stages"`
}

// StageResult is one stage outcome inside an Execution.
type StageResult struct {
	Index      int             `json:"index"`
	Name       string          `json:"name"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Abandoned  bool            `json:"abandoned,omitempty"`
	StartedAt  string          `json:"startedAt,omitempty"`
	FinishedAt string          `json:"finishedAt,omitempty"`
	DurationMS int64           `json:"durationMs"`
}

// PipelineStatus summarizes orchestrator state.
type PipelineStatus struct {
	Accepting     bool           `json:"accepting"`
	InFlight      int            `json:"inFlight"`
	Timeout       string         `json:"timeout"`
	Stages        []string       `json:"stages"`
	Finished      map[string]int `json:"finished"`
	LastError     string         `json:"lastError,omitempty"`
	LastExecution *Execution     `json:"lastExecution,omitempty"`
	StageHealth   []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// TransportStatus reports whether an optional transport is running.
type TransportStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Detail  string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	StorePath    string            `json:"storePath"`
	LockFilePath string            `json:"lockFilePath"`
	APIBind      string            `json:"apiBind,omitempty"`
	Pipeline     PipelineStatus    `json:"pipeline"`
	Archived     map[string]int    `json:"archived"`
	DeadLetters  int               `json:"deadLetters"`
	Transports   []TransportStatus `json:"transports"`
}

// ExecutionListResponse wraps a collection of executions.
type ExecutionListResponse struct {
	Executions []Execution `json:"executions"`
}

// ExecutionResponse wraps a single execution.
type ExecutionResponse struct {
	Execution Execution `json:"execution"`
}

// StartExecutionResponse acknowledges a directly started execution.
type StartExecutionResponse struct {
	ExecutionID string `json:"executionId"`
}

// RouteDecision reports how the router treated one upload event.
type RouteDecision struct {
	Matched     bool   `json:"matched"`
	Reason      string `json:"reason"`
	Bucket      string `json:"bucket,omitempty"`
	Key         string `json:"key,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
}

// UploadResponse is returned by POST /api/uploads when at least one event
// started an execution. When a later event fails to start, the response also
// carries Error and lists the executions that did start.
type UploadResponse struct {
	ExecutionIDs []string        `json:"executionIds"`
	Decisions    []RouteDecision `json:"decisions"`
	Error        string          `json:"error,omitempty"`
}

// CallResult mirrors one downstream mutation outcome.
type CallResult struct {
	Operation string `json:"operation"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RecordOutcome mirrors the handling of one change record.
type RecordOutcome struct {
	RecordID     string      `json:"recordId"`
	EventName    string      `json:"eventName"`
	Action       string      `json:"action"`
	VideoID      string      `json:"videoId,omitempty"`
	Video        CallResult  `json:"video"`
	Notification *CallResult `json:"notification,omitempty"`
}

// ChangeBatchResponse is returned by POST /api/changes.
type ChangeBatchResponse struct {
	Records  []RecordOutcome `json:"records"`
	Failures int             `json:"failures"`
}

// DeadLetter describes a stored failed downstream call.
type DeadLetter struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	RecordID  string          `json:"recordId,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// DeadLetterListResponse wraps a collection of dead letters.
type DeadLetterListResponse struct {
	DeadLetters []DeadLetter `json:"deadLetters"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
