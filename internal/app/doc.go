// Package app wires the vidflow component graph from configuration: the
// SQLite store, stage handlers, the pipeline orchestrator with its observers,
// the upload router, the change-record notifier with its delivery strategy,
// and the optional S3 and AMQP clients. The daemon and the CLI share it so
// both run the same pipeline.
package app
