// Package main hosts the vidflow CLI entrypoint and command graph.
//
// Commands either talk to a running vidflowd over its HTTP API (status,
// executions, pipeline run) or wire the components locally from the loaded
// configuration (route, notify, deadletters, pipeline run --dry-run). The
// daemon command runs vidflowd in the foreground.
//
// Keep this package lean: new behavior belongs in the internal packages and is
// only surfaced here through commands or flags.
package main
