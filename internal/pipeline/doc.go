// Package pipeline runs upload payloads through the configured stage chain.
//
// The Orchestrator invokes each stage.Handler strictly in order, unwrapping
// the configured envelope field between stages so stage N's output becomes
// stage N+1's input. An execution ends in exactly one terminal status:
// SUCCEEDED when every stage returns, FAILED on the first stage error (later
// stages are never invoked and nothing is retried), or TIMED_OUT when the
// overall deadline passes. At the deadline the in-flight stage is abandoned;
// the orchestrator stops waiting for it and its eventual result is discarded.
//
// Start launches an execution in the background and returns its id at once.
// Observers receive snapshots at every transition and are how the archive,
// metrics, status fan-out, and operator alerts learn about progress. An
// observer failure is logged and never changes an execution's outcome.
package pipeline
