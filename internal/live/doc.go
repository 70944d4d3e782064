// Package live supervises the audio workstation process.
//
// Most installations launch the workstation by hand and leave this
// package idle (Managed: false). With management enabled, the Manager
// wraps a process.Manager around the workstation binary: it launches
// the process (optionally with a project file), waits for the OSC
// bridge inside it to answer a tempo probe, restarts it on failure
// with the process package's backoff, and runs a layered health check
// as the restart watchdog.
//
// Health check layers:
//   - Layer 0: workstation binary still present on disk. Not
//     recoverable; restarting cannot fix a missing install.
//   - Layer 1: process state via /proc. Catches SIGSTOP, zombies, and
//     sustained uninterruptible sleep.
//   - Layer 2: OSC tempo probe. Catches a running process whose bridge
//     has stopped answering, which is how most workstation hangs look
//     from outside.
//
// A workstation that already answers the probe at startup is adopted
// rather than launched again: two instances fighting over the same
// OSC ports produces nothing but reply corruption.
package live
