// Package preflight provides readiness checks for external services
// and filesystem paths that vidflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before accepting work. A failed directory check
//     aborts startup; failed connectivity checks are logged.
//   - The CLI "vidflow status" command uses the *FromConfig helpers to display
//     service health.
//
// Each transport check is gated by its config toggle; disabled features are
// reported as such and never fail.
package preflight
