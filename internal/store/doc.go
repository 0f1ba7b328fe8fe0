// Package store archives pipeline executions and dead letters in SQLite.
//
// Executions are written as they progress through the pipeline.Observer
// returned by Archive, so `vidflow executions` and the daemon API can show
// terminal outcomes after the in-memory orchestrator has forgotten them. The
// dead_letters table is the default delivery.Sink.
//
// The schema is created on first open and versioned; a version mismatch is an
// error that asks the operator to remove the database rather than migrating it.
package store
