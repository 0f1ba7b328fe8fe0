// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover
// failed and timed-out executions plus dead-lettered downstream calls.
package notifications
