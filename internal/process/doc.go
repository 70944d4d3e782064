// Package process supervises long-running child processes, primarily
// the audio workstation binary when it runs under the daemon's control
// rather than being launched by hand.
//
// A Manager starts its process in a dedicated process group, captures
// stdout and stderr into the log, and restarts on failure with capped
// exponential backoff. The restart budget resets once a run has stayed
// up past the stable threshold, so a crash loop is distinguished from
// the occasional fault. An optional health check kills and restarts a
// process that is alive but unresponsive; failures implementing
// RecoverableError can opt out of restarting entirely.
//
// Stop is graceful: SIGTERM to the whole group, then SIGKILL after the
// configured timeout. Shutdown of the daemon cancels the Start context,
// which abandons any pending restart.
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "workstation",
//	    Binary: "/usr/bin/ableton-live",
//	    Args:   []string{"/srv/projects/live-set.als"},
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
