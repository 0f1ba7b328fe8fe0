// Package delivery decides how each downstream notifier call is attempted.
//
// BestEffort makes exactly one attempt. Retry repeats retryable failures with
// exponential backoff. DeadLetter wraps either of them and records calls the
// inner strategy gave up on to a Sink (the SQLite archive or an S3 prefix) so
// operators can replay them later. Whatever the strategy, a failed call is
// still reported to the caller; recording it never turns failure into success.
package delivery
