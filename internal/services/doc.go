// Package services defines shared utilities consumed by the orchestrator, the
// change notifier, and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp execution IDs, stage names, change record IDs,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into codes, operator hints, and retryability.
//
// Use these helpers when wiring new stages or transports so error handling and
// observability stay uniform across the system.
package services
