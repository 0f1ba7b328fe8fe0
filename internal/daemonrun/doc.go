// Package daemonrun hosts the vidflowd process runtime: signal handling,
// logger construction with a mirrored log file, the pid file, and the
// app/daemon lifecycle. Both cmd/vidflowd and "vidflow daemon" call Run.
package daemonrun
