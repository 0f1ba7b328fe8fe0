// Package api defines wire-format types, converters, and the HTTP client for
// the vidflowd operator API. It translates pipeline, router, and notifier
// models into transport-friendly DTOs so the CLI and other consumers can
// render them without coupling to internal types.
//
// # Key Types
//
// Execution: transport representation of a pipeline execution with per-stage
// results and millisecond durations.
//
// PipelineStatus: orchestrator accepting state, in-flight count, finished
// counts, and sorted stage health.
//
// DaemonStatus: aggregated runtime information including archived counts,
// dead letters, and transport state.
//
// UploadResponse/ChangeBatchResponse: replies for the upload and change
// submission endpoints.
//
// # Converters
//
// FromExecution: pipeline.Execution -> Execution.
//
// FromStatusSummary: pipeline.StatusSummary -> PipelineStatus.
//
// FromDecisions, FromBatchResult, FromLetter: router, cdc, and delivery
// results.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Execution statuses keep their upper-case
// names. Timestamps use RFC3339 with milliseconds. Stage payloads are passed
// through as json.RawMessage to avoid double-encoding.
package api
