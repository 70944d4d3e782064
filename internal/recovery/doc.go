// Package recovery detects workstation link crashes and drives the
// reconnect cycle that brings a session back.
//
// The OSC bridge lives inside the workstation process, so a crash or
// restart on that side surfaces here only as transport noise:
// connection resets, socket timeouts, remote script tracebacks quoted
// in reply text. The Manager classifies errors against a known set of
// crash indicators, counts consecutive failures behind a mutex, and
// walks a small state machine:
//
//	healthy -> degraded -> recovering -> healthy
//	                    \-> exhausted
//
// A recovery attempt snapshots the session (tempo plus per-track
// volumes, best effort), waits out a cooldown so the workstation can
// finish rebooting, then probes the link with a tempo read. Success
// resets the counters, notifies registered callbacks in registration
// order and restores the snapshot through verified sets. Attempts are
// bounded; once the budget is spent every further call reports
// ErrRecoveryExhausted and a human has to intervene.
//
// ExecuteWithRecovery wraps an operation in this cycle: crash-classed
// errors trigger recovery and a retry, anything else passes through
// unchanged.
package recovery
