// Package logs reads the daemon's vidflow.log for the CLI: the last lines of
// the file and a polling follower, both optionally filtered to the lines that
// mention one execution or event type.
package logs
