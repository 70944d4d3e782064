package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/live-logic-core/internal/bridges/osc"
)

// Default recovery tuning. A workstation restart takes tens of seconds,
// so the cooldown is generous and the attempt budget small: if three
// spaced probes cannot reach the bridge, retrying harder will not help.
const (
	defaultMaxAttempts      = 3
	defaultCooldown         = 5 * time.Second
	defaultFailureThreshold = 3
	defaultProbeTimeout     = 3 * time.Second
)

// State is the recovery state machine position.
type State string

const (
	// StateHealthy means the link is operating normally.
	StateHealthy State = "healthy"

	// StateDegraded means consecutive failures crossed the threshold
	// and the workstation is presumed crashed.
	StateDegraded State = "degraded"

	// StateRecovering means a recovery attempt is in flight.
	StateRecovering State = "recovering"

	// StateExhausted means the recovery budget is spent. Only operator
	// intervention (and a daemon restart) leaves this state.
	StateExhausted State = "exhausted"
)

// Config holds recovery tuning. Zero values select the defaults above.
type Config struct {
	// MaxAttempts bounds recovery attempts before giving up.
	MaxAttempts int

	// Cooldown is how long to wait before probing the link, giving the
	// workstation time to finish restarting.
	Cooldown time.Duration

	// FailureThreshold is how many consecutive failures mark the link
	// as crashed.
	FailureThreshold int

	// ProbeTimeout bounds the tempo read used as the recovery probe.
	ProbeTimeout time.Duration

	// ExtraIndicators extends the built-in crash indicator list with
	// site-specific substrings.
	ExtraIndicators []string
}

// Workstation is the slice of the OSC client the recovery manager
// needs: a cheap probe plus the reads and verified writes that back
// session snapshots.
type Workstation interface {
	Tempo(ctx context.Context) (float64, error)
	TrackNames(ctx context.Context) ([]string, error)
	TrackVolume(ctx context.Context, track int) (float64, error)
	SetTempoVerified(ctx context.Context, bpm float64, opts osc.VerifyOptions) (osc.SetResult, error)
	SetTrackVolumeVerified(ctx context.Context, track int, volume float64, opts osc.VerifyOptions) (osc.SetResult, error)
	DefaultVerifyOptions() osc.VerifyOptions
}

// Logger defines the logging interface for the recovery manager.
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

// Status is a point-in-time view of the recovery state machine,
// published on state transitions and embedded in health payloads.
type Status struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CrashCount          int       `json:"crash_count"`
	RecoveryAttempts    int       `json:"recovery_attempts"`
	LastCrashTime       time.Time `json:"last_crash_time"`
	LastSuccessTime     time.Time `json:"last_success_time"`
}

// Manager owns crash detection and the recovery cycle for one
// workstation link. All counter access is mutex-guarded; the snapshot
// store, callbacks and state listener are optional.
type Manager struct {
	cfg        Config
	ws         Workstation
	classifier *Classifier
	logger     Logger

	store   SnapshotStore
	onState func(Status)

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	crashCount          int
	recoveryAttempts    int
	lastCrashTime       time.Time
	lastSuccessTime     time.Time
	lastSnapshot        *SessionSnapshot
	callbacks           []func(ctx context.Context) error
}

// NewManager creates a recovery manager for the given workstation link.
func NewManager(cfg Config, ws Workstation) *Manager {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}

	return &Manager{
		cfg:        cfg,
		ws:         ws,
		classifier: NewClassifier(cfg.ExtraIndicators...),
		logger:     noopLogger{},
		state:      StateHealthy,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetSnapshotStore sets the persistence backend for session snapshots.
// Without a store, snapshots live only in memory for the current cycle.
func (m *Manager) SetSnapshotStore(store SnapshotStore) {
	m.store = store
}

// SetOnStateChange registers a listener invoked on every state machine
// transition. Called outside the manager's lock.
func (m *Manager) SetOnStateChange(fn func(Status)) {
	m.onState = fn
}

// OnRecovered registers a callback invoked after each successful
// recovery, in registration order. A callback error is logged and does
// not stop later callbacks. Subsystems use this to rebuild state the
// restart destroyed (rediscover parameters, resubscribe listeners).
func (m *Manager) OnRecovered(fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// IsCrashError reports whether err is classified as a workstation crash.
func (m *Manager) IsCrashError(err error) bool {
	return m.classifier.IsCrashError(err)
}

// FirstCrashIndicator scans messages for crash evidence. See
// Classifier.FirstCrashIndicator.
func (m *Manager) FirstCrashIndicator(msgs ...string) (string, bool) {
	return m.classifier.FirstCrashIndicator(msgs...)
}

// RecordFailure counts one failed operation. Crossing the consecutive
// failure threshold marks the link degraded and stamps the crash time.
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	m.consecutiveFailures++
	status, changed := m.evaluateLocked()
	m.mu.Unlock()

	if changed {
		m.notify(status)
	}
}

// RecordSuccess counts one successful operation, resetting the
// consecutive failure counter. A success while degraded means the link
// came back on its own, so the state returns to healthy. Exhausted is
// sticky: it reflects a spent budget, not current link quality.
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	m.consecutiveFailures = 0
	m.lastSuccessTime = time.Now()
	var (
		status  Status
		changed bool
	)
	if m.state == StateDegraded {
		changed = m.setStateLocked(StateHealthy)
		status = m.statusLocked()
	}
	m.mu.Unlock()

	if changed {
		m.notify(status)
	}
}

// Healthy reports whether the link is considered operational: below the
// failure threshold and not exhausted.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateExhausted && m.consecutiveFailures < m.cfg.FailureThreshold
}

// State returns the current state machine position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a point-in-time view of the recovery counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// AttemptRecovery runs one bounded recovery attempt: snapshot the
// session (best effort), wait out the cooldown, probe the link with a
// tempo read. On success the counters reset, recovery callbacks run in
// registration order and the snapshot is restored. Returns
// ErrRecoveryExhausted once the attempt budget is spent, or the probe
// error when the workstation is still unreachable.
func (m *Manager) AttemptRecovery(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateExhausted {
		m.mu.Unlock()
		return ErrRecoveryExhausted
	}
	m.recoveryAttempts++
	attempt := m.recoveryAttempts
	if attempt > m.cfg.MaxAttempts {
		changed := m.setStateLocked(StateExhausted)
		status := m.statusLocked()
		m.mu.Unlock()
		if changed {
			m.notify(status)
		}
		m.logger.Error("recovery budget spent, operator intervention required",
			"attempts", attempt-1,
			"max_attempts", m.cfg.MaxAttempts,
		)
		return fmt.Errorf("attempt %d: %w", attempt, ErrRecoveryExhausted)
	}
	changed := m.setStateLocked(StateRecovering)
	status := m.statusLocked()
	m.mu.Unlock()
	if changed {
		m.notify(status)
	}

	m.logger.Info("attempting recovery",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxAttempts,
		"cooldown", m.cfg.Cooldown,
	)

	// Snapshot before the cooldown: if the crash was partial the
	// session may still be readable for a moment.
	snap := m.captureSnapshot(ctx, "pre-recovery")

	if err := sleepContext(ctx, m.cfg.Cooldown); err != nil {
		m.revertToDegraded()
		return fmt.Errorf("recovery cooldown: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	_, err := m.ws.Tempo(probeCtx)
	cancel()
	if err != nil {
		m.logger.Warn("recovery probe failed, workstation still unreachable",
			"attempt", attempt,
			"error", err,
		)
		m.revertToDegraded()
		return fmt.Errorf("recovery probe: %w", err)
	}

	m.mu.Lock()
	m.recoveryAttempts = 0
	m.consecutiveFailures = 0
	m.lastSuccessTime = time.Now()
	m.setStateLocked(StateHealthy)
	status = m.statusLocked()
	callbacks := make([]func(ctx context.Context) error, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()
	m.notify(status)

	for i, fn := range callbacks {
		if cbErr := fn(ctx); cbErr != nil {
			m.logger.Warn("recovery callback failed",
				"callback", i,
				"error", cbErr,
			)
		}
	}

	m.restoreSnapshot(ctx, snap)

	m.logger.Info("recovery complete", "attempt", attempt)
	return nil
}

// ExecuteWithRecovery runs op, classifying its errors. A crash-classed
// error records a failure, drives one recovery attempt and retries op;
// any other error passes through unchanged. The loop allows at most
// MaxAttempts recoveries per call, independent of the manager's own
// attempt budget, because each successful recovery resets that budget:
// an operation that crashes the workstation every time it runs must
// still terminate.
func (m *Manager) ExecuteWithRecovery(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			m.RecordSuccess()
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !m.classifier.IsCrashError(err) {
			return err
		}

		lastErr = err
		m.RecordFailure()
		m.logger.Warn("crash indicator detected",
			"operation", name,
			"error", err,
		)

		if attempt >= m.cfg.MaxAttempts {
			break
		}
		if rerr := m.AttemptRecovery(ctx); rerr != nil {
			return fmt.Errorf("%s: %w", name, rerr)
		}
		m.logger.Info("retrying operation after recovery", "operation", name)
	}
	return fmt.Errorf("%s: %w (last error: %v)", name, ErrRecoveryExhausted, lastErr)
}

// captureSnapshot reads tempo and per-track mixer state. Best effort:
// any read failure abandons the capture and the previous snapshot (if
// any) stays in place.
func (m *Manager) captureSnapshot(ctx context.Context, reason string) *SessionSnapshot {
	tempo, err := m.ws.Tempo(ctx)
	if err != nil {
		m.logger.Debug("session snapshot skipped, tempo unreadable", "error", err)
		return m.previousSnapshot(ctx)
	}

	snap := SessionSnapshot{
		SavedAt: time.Now(),
		Reason:  reason,
		Tempo:   tempo,
	}

	names, err := m.ws.TrackNames(ctx)
	if err != nil {
		m.logger.Debug("session snapshot has no tracks, names unreadable", "error", err)
	}
	for i, name := range names {
		volume, volErr := m.ws.TrackVolume(ctx, i)
		if volErr != nil {
			continue
		}
		snap.Tracks = append(snap.Tracks, TrackSnapshot{Index: i, Name: name, Volume: volume})
	}

	m.mu.Lock()
	m.lastSnapshot = &snap
	m.mu.Unlock()

	if m.store != nil {
		if saveErr := m.store.SaveSnapshot(ctx, snap); saveErr != nil {
			m.logger.Warn("persisting session snapshot failed", "error", saveErr)
		}
	}

	m.logger.Debug("session snapshot captured",
		"tempo", tempo,
		"tracks", len(snap.Tracks),
	)
	return &snap
}

// previousSnapshot falls back to the in-memory snapshot, then the
// persisted one. Returns nil when neither exists.
func (m *Manager) previousSnapshot(ctx context.Context) *SessionSnapshot {
	m.mu.Lock()
	snap := m.lastSnapshot
	m.mu.Unlock()
	if snap != nil {
		return snap
	}
	if m.store == nil {
		return nil
	}
	stored, err := m.store.LatestSnapshot(ctx)
	if err != nil {
		return nil
	}
	return &stored
}

// restoreSnapshot pushes a snapshot back through verified sets. Best
// effort: individual failures are logged and skipped, because a partial
// restore still beats a silent tempo reset to the workstation default.
func (m *Manager) restoreSnapshot(ctx context.Context, snap *SessionSnapshot) {
	if snap == nil {
		return
	}

	opts := m.ws.DefaultVerifyOptions()

	if _, err := m.ws.SetTempoVerified(ctx, snap.Tempo, opts); err != nil {
		m.logger.Warn("restoring tempo failed", "tempo", snap.Tempo, "error", err)
	}

	restored := 0
	for _, track := range snap.Tracks {
		if _, err := m.ws.SetTrackVolumeVerified(ctx, track.Index, track.Volume, opts); err != nil {
			m.logger.Warn("restoring track volume failed",
				"track", track.Index,
				"error", err,
			)
			continue
		}
		restored++
	}

	m.logger.Info("session snapshot restored",
		"tempo", snap.Tempo,
		"tracks_restored", restored,
		"tracks_total", len(snap.Tracks),
	)
}

// evaluateLocked applies the failure threshold. Caller holds m.mu.
func (m *Manager) evaluateLocked() (Status, bool) {
	if m.consecutiveFailures >= m.cfg.FailureThreshold && m.state == StateHealthy {
		m.crashCount++
		m.lastCrashTime = time.Now()
		m.setStateLocked(StateDegraded)
		return m.statusLocked(), true
	}
	return m.statusLocked(), false
}

// setStateLocked transitions the state machine. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

// revertToDegraded returns a failed recovery attempt to degraded so the
// published state never sticks at "recovering".
func (m *Manager) revertToDegraded() {
	m.mu.Lock()
	changed := m.setStateLocked(StateDegraded)
	status := m.statusLocked()
	m.mu.Unlock()
	if changed {
		m.notify(status)
	}
}

// statusLocked builds a Status. Caller holds m.mu.
func (m *Manager) statusLocked() Status {
	return Status{
		State:               m.state,
		ConsecutiveFailures: m.consecutiveFailures,
		CrashCount:          m.crashCount,
		RecoveryAttempts:    m.recoveryAttempts,
		LastCrashTime:       m.lastCrashTime,
		LastSuccessTime:     m.lastSuccessTime,
	}
}

// notify invokes the state listener outside the lock.
func (m *Manager) notify(status Status) {
	if m.onState != nil {
		m.onState(status)
	}
	m.logger.Info("recovery state changed",
		"state", status.State,
		"consecutive_failures", status.ConsecutiveFailures,
		"crash_count", status.CrashCount,
	)
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
