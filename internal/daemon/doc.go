// Package daemon coordinates the long-running vidflowd process.
//
// It takes a wired app.App and adds the process lifecycle: a flock-based lock
// in the data directory prevents multiple instances, preflight checks verify
// directory access, executions left RUNNING by a previous process are marked
// failed, and the HTTP API plus the optional AMQP and JetStream consumers are
// started. Stop closes intake first and then drains in-flight executions for
// up to pipeline.drain_timeout_seconds.
//
// The HTTP API accepts upload events and change batches, reports status, and
// serves the execution archive and Prometheus metrics. Keep pipeline and
// notifier logic in their own packages; the daemon focuses on startup,
// shutdown, and transport plumbing.
package daemon
