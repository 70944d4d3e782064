package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// outputBufferSize is the read chunk for subprocess stdout/stderr.
const outputBufferSize = 4096

// maxConsecutiveHealthFailures is how many health check failures in a
// row the watchdog tolerates before killing a hung process.
const maxConsecutiveHealthFailures = 3

// healthCheckTimeout bounds a single health probe, and doubles as the
// post-kill wait for the process to actually exit.
const healthCheckTimeout = 5 * time.Second

// RecoverableError lets health check errors state whether restarting
// the process can fix them. A missing binary or absent audio hardware
// is not recoverable; a hung process is.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether restarting might fix err. Errors that
// do not implement RecoverableError are treated as recoverable, since
// a restart is the only remedy this package has.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// Config describes the subprocess to supervise and how aggressively
// to bring it back when it dies.
type Config struct {
	// Name identifies the process in logs and stats.
	Name string

	// Binary is the executable path.
	Binary string

	// Args are passed to the binary verbatim.
	Args []string

	// Env entries (key=value) are appended to the parent environment.
	// Nil inherits the parent environment unchanged.
	Env []string

	// WorkDir, when set, becomes the process working directory.
	WorkDir string

	// RestartOnFailure enables automatic restart when the process exits
	// unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the base delay before the first restart attempt.
	// Subsequent attempts back off exponentially.
	RestartDelay time.Duration

	// MaxRestartDelay caps the exponential restart backoff.
	MaxRestartDelay time.Duration

	// MaxRestartAttempts caps consecutive restarts; zero disables the cap.
	MaxRestartAttempts int

	// StableThreshold is how long the process must stay up for the
	// restart counter to reset. A workstation that ran for an hour and
	// then crashed deserves a fresh restart budget; one that dies
	// within seconds does not.
	StableThreshold time.Duration

	// GracefulTimeout is how long to wait for graceful shutdown before
	// SIGKILL. Audio hosts flush project state on SIGTERM, so this
	// should comfortably exceed a project save.
	GracefulTimeout time.Duration

	// HealthCheckFunc is called periodically to verify the process is
	// healthy. If nil, the process is considered healthy while running.
	// Returning a non-recoverable error (see RecoverableError) stops
	// the restart loop entirely.
	HealthCheckFunc func(ctx context.Context) error

	// HealthCheckInterval is the spacing between health probes.
	HealthCheckInterval time.Duration

	// OnStart fires after each successful launch, including restarts.
	OnStart func()

	// OnStop fires when the process goes down; err is nil for a
	// requested stop.
	OnStop func(err error)

	// OnRestart fires before each restart attempt with the attempt
	// number.
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config tuned for a long-lived workstation
// process: restart on failure with a modest backoff, two minutes of
// uptime to forgive earlier crashes.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		MaxRestartAttempts:  10,
		StableThreshold:     2 * time.Minute,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Logger is the logging interface the manager emits through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything; the default until SetLogger.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one subprocess: it launches the binary, watches
// for exits and hangs, and restarts with exponential backoff until the
// attempt budget runs out or the failure is not recoverable.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	// done closes when the monitor goroutine finishes.
	done chan struct{}
}

// NewManager creates a manager for cfg, filling zero durations with
// the DefaultConfig values.
func NewManager(cfg Config) *Manager {
	cfg.RestartDelay = orDur(cfg.RestartDelay, 5*time.Second)
	cfg.MaxRestartDelay = orDur(cfg.MaxRestartDelay, 5*time.Minute)
	cfg.StableThreshold = orDur(cfg.StableThreshold, 2*time.Minute)
	cfg.GracefulTimeout = orDur(cfg.GracefulTimeout, 10*time.Second)
	cfg.HealthCheckInterval = orDur(cfg.HealthCheckInterval, 30*time.Second)

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// orDur substitutes fallback for unset durations.
func orDur(v, fallback time.Duration) time.Duration {
	if v == 0 {
		return fallback
	}
	return v
}

// SetLogger replaces the discard logger. Call before Start.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess and begins monitoring it. Returns an
// error when the process is already running or fails to launch; later
// failures go through the restart loop instead.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.launch(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)

	return nil
}

// launch starts the binary and wires up output capture.
func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("launching process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary path comes from validated daemon config

	// New process group so shutdown can signal all children. Audio
	// hosts spawn plugin sandboxes and crash handlers that must die
	// with the parent.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("process launched",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}

	return nil
}

// captureOutput drains one output stream into debug logs. Audio hosts
// are chatty on both streams; anything useful for diagnosis surfaces
// through health checks, not stdout.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	chunk := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			m.logger.Debug("subprocess output",
				"name", m.config.Name,
				"stream", stream,
				"output", string(chunk[:n]),
			)
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Debug("output stream ended",
					"name", m.config.Name,
					"stream", stream,
					"error", err,
				)
			}
			return
		}
	}
}

// monitor drives the supervision loop: wait for an exit (or watchdog
// kill), then decide between stopping, giving up, and restarting.
func (m *Manager) monitor(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		started := m.startTime
		m.mu.RUnlock()

		if cmd == nil {
			return
		}

		err := m.waitForExitOrHealthFailure(ctx, cmd)
		ranFor := time.Since(started)

		if m.stopWasRequested() {
			m.setStatus(StatusStopped)
			m.logger.Info("process stopped as requested", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		m.logger.Warn("process exited unexpectedly",
			"name", m.config.Name,
			"error", err,
			"uptime", ranFor,
		)
		m.recordFailure(err, ranFor)

		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		attempt, retry := m.nextAttempt(err)
		if !retry {
			return
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process",
			"name", m.config.Name,
			"attempt", attempt,
			"delay", delay,
		)

		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			m.logger.Info("shutdown in progress, abandoning restart", "name", m.config.Name)
			return
		case <-time.After(delay):
		}

		if m.stopWasRequested() {
			return
		}

		if err := m.launch(ctx); err != nil {
			m.logger.Error("failed to restart process",
				"name", m.config.Name,
				"error", err,
			)
			// Loop again; the next attempt draws from the same budget.
		}
	}
}

// recordFailure stores the exit error and resets the restart counter
// after a stable run.
func (m *Manager) recordFailure(err error, ranFor time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = err
	m.status = StatusFailed

	if ranFor >= m.config.StableThreshold && m.restartCount > 0 {
		m.logger.Info("stable run, resetting restart counter",
			"name", m.config.Name,
			"uptime", ranFor,
		)
		m.restartCount = 0
	}
}

// nextAttempt decides whether the exit err warrants a restart and, if
// so, claims the next attempt number.
func (m *Manager) nextAttempt(err error) (int, bool) {
	if !m.config.RestartOnFailure {
		m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
		return 0, false
	}

	if !IsRecoverable(err) {
		m.logger.Error("failure is not recoverable, not restarting",
			"name", m.config.Name,
			"error", err,
		)
		return 0, false
	}

	m.mu.Lock()
	m.restartCount++
	attempt := m.restartCount
	m.mu.Unlock()

	if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
		m.logger.Error("max restart attempts reached",
			"name", m.config.Name,
			"attempts", attempt,
		)
		return 0, false
	}

	return attempt, true
}

// waitForExitOrHealthFailure blocks until the process exits or the
// watchdog gives up on it. A process failing
// maxConsecutiveHealthFailures checks in a row is killed; the returned
// error wraps the last health error so its recoverability survives
// for the restart decision.
func (m *Manager) waitForExitOrHealthFailure(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	// Without a health check, the process is healthy while it runs.
	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	var lastHealthErr error

	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if consecutiveFailures > 0 {
					m.logger.Info("health check recovered",
						"name", m.config.Name,
						"previous_failures", consecutiveFailures,
					)
				}
				consecutiveFailures = 0
				continue
			}

			consecutiveFailures++
			lastHealthErr = err
			m.logger.Warn("health check failed",
				"name", m.config.Name,
				"error", err,
				"consecutive_failures", consecutiveFailures,
			)

			if consecutiveFailures < maxConsecutiveHealthFailures {
				continue
			}

			m.logger.Error("health check failed repeatedly, killing process",
				"name", m.config.Name,
				"failures", consecutiveFailures,
			)

			if cmd.Process != nil {
				cmd.Process.Kill() //nolint:errcheck // Process may have exited already
			}

			select {
			case <-exitCh:
				return fmt.Errorf("killed after %d failed health checks: %w", consecutiveFailures, lastHealthErr)
			case <-time.After(healthCheckTimeout):
				return fmt.Errorf("process did not exit after kill: %w", lastHealthErr)
			}
		}
	}
}

// calculateBackoffDelay returns the restart delay for the given
// attempt: RestartDelay doubled per attempt, capped at
// MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return m.config.RestartDelay
	}
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

// Stop sends SIGTERM to the process group, escalating to SIGKILL
// after GracefulTimeout. No-op when nothing is running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning && m.status != StatusStarting {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Stop before Start finished wiring the monitor.
	if done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	// Negative PID signals the whole group (Setpgid above), so plugin
	// sandboxes and other children shut down with the host.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
		}
	}

	select {
	case <-done:
		m.logger.Info("process exited cleanly", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful stop timed out, escalating to SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
		}
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)

	return nil
}

func (m *Manager) stopWasRequested() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopRequested
}

func (m *Manager) setStatus(st Status) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the process is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the most recent unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns how many restarts have been attempted since
// the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the current incarnation has been up, or 0
// when nothing is running.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the OS process ID, or 0 when nothing is running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a point-in-time snapshot of the supervised process,
// shaped for health payloads.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats snapshots the current state under the read lock.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}

	if m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
	}
	if m.status == StatusRunning {
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}
