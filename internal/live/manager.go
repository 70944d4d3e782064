package live

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/live-logic-core/internal/process"
)

// Timeouts and intervals for workstation supervision.
const (
	// readyPollInterval is how often to probe during the readiness wait.
	// Workstation boot is dominated by plugin scans and project load,
	// so polling faster buys nothing.
	readyPollInterval = 500 * time.Millisecond

	// probeTimeout bounds a single readiness or health probe.
	probeTimeout = 2 * time.Second

	// dStateLimit is how many consecutive health checks may observe the
	// process in uninterruptible sleep before it counts as hung.
	// Project loads legitimately park the process in D state for a few
	// seconds of disk I/O.
	dStateLimit = 3
)

// HealthError represents a health check failure with recoverability
// information, so the process manager can decide whether restarting
// will help.
type HealthError struct {
	// Layer is which health check layer failed (0-2)
	Layer int
	// Recoverable indicates if restarting the process might fix the issue
	Recoverable bool
	// Err is the underlying error
	Err error
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health check layer %d failed: %v", e.Layer, e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

// IsRecoverable implements the process.RecoverableError interface.
func (e *HealthError) IsRecoverable() bool {
	return e.Recoverable
}

// newHealthError creates a health check error for a specific layer.
func newHealthError(layer int, recoverable bool, err error) *HealthError {
	return &HealthError{
		Layer:       layer,
		Recoverable: recoverable,
		Err:         err,
	}
}

// Prober is the slice of the OSC client used for readiness and health
// probes. A tempo read is the cheapest end-to-end round trip the
// bridge offers.
type Prober interface {
	Tempo(ctx context.Context) (float64, error)
}

// Logger defines the logging interface for the workstation manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds workstation supervision settings.
type Config struct {
	// Managed enables launching and supervising the workstation binary.
	// When false the daemon expects an externally started instance.
	Managed bool

	// Binary is the path to the workstation executable.
	// Required when Managed is true.
	Binary string

	// ProjectPath is an optional project file to open at launch.
	ProjectPath string

	// Args are extra command-line arguments for the binary.
	Args []string

	// StartupWait is the readiness budget: how long the freshly
	// launched workstation gets to answer its first probe.
	StartupWait time.Duration

	// RestartDelay is the base delay between restart attempts.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait for the workstation to shut
	// down cleanly before killing it. Covers a project save.
	GracefulTimeout time.Duration

	// HealthCheckInterval is how often the watchdog probes a running
	// workstation.
	HealthCheckInterval time.Duration
}

// Validate checks the configuration for a managed workstation.
func (c *Config) Validate() error {
	if c.Managed && strings.TrimSpace(c.Binary) == "" {
		return errors.New("live: binary path required when managed")
	}
	return nil
}

// Event reports a workstation lifecycle transition. Events are
// published on the message bus so the rest of the studio can react to
// workstation state without polling.
type Event struct {
	State   string `json:"state"`
	PID     int    `json:"pid,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Lifecycle states carried in Event.State.
const (
	EventStarting   = "starting"
	EventReady      = "ready"
	EventAdopted    = "adopted"
	EventExternal   = "external"
	EventStopped    = "stopped"
	EventRestarting = "restarting"
	EventFailed     = "failed"
)

// Manager supervises the workstation process.
type Manager struct {
	config  Config
	process *process.Manager
	prober  Prober
	logger  Logger
	onEvent func(Event)

	// adopted marks an externally launched workstation we attached to
	// instead of starting our own.
	adopted bool

	// dStateCount tracks consecutive health checks with the process in
	// uninterruptible sleep. Reset when it wakes.
	dStateCount atomic.Int32
}

// NewManager creates a workstation manager.
func NewManager(cfg Config, prober Prober) (*Manager, error) {
	// Apply defaults for zero values
	if cfg.StartupWait == 0 {
		cfg.StartupWait = 15 * time.Second
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 3
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 15 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workstation config: %w", err)
	}

	return &Manager{
		config: cfg,
		prober: prober,
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetOnEvent registers a listener for lifecycle events.
func (m *Manager) SetOnEvent(fn func(Event)) {
	m.onEvent = fn
}

// Start launches the workstation if it is managed and not already
// running. It blocks until the OSC bridge answers a probe or the
// startup budget runs out.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Managed {
		m.logger.Info("workstation management disabled, expecting external instance")
		m.emit(Event{State: EventExternal})
		return nil
	}

	// Adopt a workstation someone already launched. A second instance
	// cannot bind the OSC ports and would only corrupt replies.
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	_, probeErr := m.prober.Tempo(probeCtx)
	cancel()
	if probeErr == nil {
		m.logger.Info("workstation already answering, adopting running instance")
		m.adopted = true
		m.emit(Event{State: EventAdopted})
		return nil
	}

	args := make([]string, 0, len(m.config.Args)+1)
	args = append(args, m.config.Args...)
	if m.config.ProjectPath != "" {
		args = append(args, m.config.ProjectPath)
	}

	m.logger.Info("starting workstation",
		"binary", m.config.Binary,
		"project", m.config.ProjectPath,
	)

	procConfig := process.Config{
		Name:               "workstation",
		Binary:             m.config.Binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStart: func() {
			m.emit(Event{State: EventStarting, PID: m.process.PID()})
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("workstation process stopped", "error", err)
				m.emit(Event{State: EventFailed, Error: err.Error()})
			} else {
				m.logger.Info("workstation process stopped")
				m.emit(Event{State: EventStopped})
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("workstation restarting", "attempt", attempt)
			m.emit(Event{State: EventRestarting, Attempt: attempt})
		},
		// Watchdog: layered health check to catch hung workstations.
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting workstation: %w", err)
	}

	if err := m.waitForReady(ctx); err != nil {
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping workstation after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("workstation failed to become ready: %w", err)
	}

	m.logger.Info("workstation ready", "pid", m.process.PID())
	m.emit(Event{State: EventReady, PID: m.process.PID()})

	return nil
}

// waitForReady polls the tempo probe until the bridge answers. The
// budget covers plugin scans and project load, which dominate
// workstation boot time.
func (m *Manager) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(m.config.StartupWait)

	m.logger.Debug("waiting for workstation bridge", "budget", m.config.StartupWait)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for workstation: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for workstation bridge after %v", m.config.StartupWait)
		}

		// A process that already died will never become ready.
		if !m.process.IsRunning() {
			lastErr := m.process.LastError()
			if lastErr != nil {
				return fmt.Errorf("workstation process exited: %w", lastErr)
			}
			return errors.New("workstation process exited unexpectedly")
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		_, err := m.prober.Tempo(probeCtx)
		cancel()
		if err == nil {
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// Stop gracefully stops the workstation if we launched it. Adopted and
// external instances are left alone.
func (m *Manager) Stop() error {
	if !m.config.Managed || m.process == nil {
		return nil
	}

	m.logger.Info("stopping workstation")
	return m.process.Stop()
}

// IsRunning reports whether the workstation is running. Unmanaged and
// adopted instances are assumed running; the health check is the
// authority on their link state.
func (m *Manager) IsRunning() bool {
	if !m.config.Managed || m.adopted {
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// IsManaged returns true if this manager launched the workstation.
func (m *Manager) IsManaged() bool {
	return m.config.Managed && !m.adopted
}

// Stats holds statistics about the supervised workstation.
type Stats struct {
	Managed      bool          `json:"managed"`
	Status       string        `json:"status"`
	ProjectPath  string        `json:"project_path,omitempty"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the workstation.
func (m *Manager) Stats() Stats {
	stats := Stats{
		Managed:     m.config.Managed,
		ProjectPath: m.config.ProjectPath,
	}

	switch {
	case m.process != nil:
		procStats := m.process.Stats()
		stats.Status = string(procStats.Status)
		stats.PID = procStats.PID
		stats.Uptime = procStats.Uptime
		stats.RestartCount = procStats.RestartCount
		stats.LastError = procStats.LastError
	case m.adopted:
		stats.Status = "adopted"
	case !m.config.Managed:
		stats.Status = "external"
	default:
		stats.Status = "stopped"
	}

	return stats
}

// HealthCheck verifies the workstation is healthy using a layered
// approach:
//
//	Layer 0: binary present on disk. NOT RECOVERABLE: a missing
//	         install cannot be fixed by restarting.
//	Layer 1: process state via /proc. Catches SIGSTOP, zombies and
//	         sustained uninterruptible sleep.
//	Layer 2: OSC tempo probe. Catches a live process whose bridge has
//	         stopped answering.
//
// Layers 0 and 1 only apply to a process we launched; adopted and
// external instances get the probe alone.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.config.Managed && !m.adopted {
		if _, err := os.Stat(m.config.Binary); err != nil {
			return newHealthError(0, false, fmt.Errorf("workstation binary missing: %w", err))
		}

		if m.process != nil {
			pid := m.process.PID()
			if pid > 0 {
				if err := m.checkProcessState(pid); err != nil {
					return newHealthError(1, true, err)
				}
			}
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	_, err := m.prober.Tempo(probeCtx)
	cancel()
	if err != nil {
		return newHealthError(2, true, fmt.Errorf("bridge probe failed: %w", err))
	}

	return nil
}

// checkProcessState reads /proc/PID/stat to verify the process is in a
// healthy state. Returns an error for stopped (T), zombie (Z), dead
// (X/x) and sustained uninterruptible sleep (D) states.
func (m *Manager) checkProcessState(pid int) error {
	// Format: pid (comm) state ...
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		// Process might have just exited
		return fmt.Errorf("cannot read process state: %w", err)
	}

	// The comm field may contain spaces, so parse from its closing ")".
	statStr := string(data)
	closeParenIdx := strings.LastIndex(statStr, ")")
	if closeParenIdx == -1 || closeParenIdx+2 >= len(statStr) {
		return fmt.Errorf("invalid /proc/stat format")
	}

	fields := strings.Fields(statStr[closeParenIdx+2:])
	if len(fields) < 1 {
		return fmt.Errorf("invalid /proc/stat format: no state field")
	}

	state := fields[0]

	switch state {
	case "T", "t":
		return fmt.Errorf("workstation process is stopped (state=%s)", state)
	case "Z":
		return fmt.Errorf("workstation process is zombie (state=%s)", state)
	case "X", "x":
		return fmt.Errorf("workstation process is dead (state=%s)", state)
	case "D":
		// Uninterruptible sleep is normal during project load and
		// sample streaming, but a workstation parked there across
		// several checks has a hung disk or driver.
		count := m.dStateCount.Add(1)
		if count >= dStateLimit {
			return fmt.Errorf("workstation stuck in uninterruptible sleep (state=D, count=%d)", count)
		}
		m.logger.Debug("workstation in uninterruptible sleep", "count", count)
		return nil
	default:
		// R, S, I are healthy states
		m.dStateCount.Store(0)
		return nil
	}
}

// emit sends a lifecycle event to the registered listener.
func (m *Manager) emit(ev Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}
