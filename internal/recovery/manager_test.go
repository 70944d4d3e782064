package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/live-logic-core/internal/bridges/osc"
)

var errReset = errors.New("read udp 127.0.0.1:11001: connection reset by peer")

type volumeCall struct {
	track  int
	volume float64
}

// fakeLink models the workstation link for recovery tests. failTempo
// scripts how many upcoming Tempo calls fail before it answers again.
type fakeLink struct {
	mu         sync.Mutex
	tempo      float64
	trackNames []string
	volumes    map[int]float64

	failTempo int

	tempoCalls     int
	setTempoCalls  []float64
	setVolumeCalls []volumeCall
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		tempo:      120,
		trackNames: []string{"Drums", "Bass"},
		volumes:    map[int]float64{0: 0.8, 1: 0.6},
	}
}

func (f *fakeLink) Tempo(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tempoCalls++
	if f.failTempo > 0 {
		f.failTempo--
		return 0, errReset
	}
	return f.tempo, nil
}

func (f *fakeLink) TrackNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackNames, nil
}

func (f *fakeLink) TrackVolume(ctx context.Context, track int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[track]
	if !ok {
		return 0, osc.ErrQueryTimeout
	}
	return v, nil
}

func (f *fakeLink) SetTempoVerified(ctx context.Context, bpm float64, opts osc.VerifyOptions) (osc.SetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setTempoCalls = append(f.setTempoCalls, bpm)
	return osc.SetResult{Success: true, Verified: true, Attempts: 1}, nil
}

func (f *fakeLink) SetTrackVolumeVerified(ctx context.Context, track int, volume float64, opts osc.VerifyOptions) (osc.SetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setVolumeCalls = append(f.setVolumeCalls, volumeCall{track: track, volume: volume})
	return osc.SetResult{Success: true, Verified: true, Attempts: 1}, nil
}

func (f *fakeLink) DefaultVerifyOptions() osc.VerifyOptions {
	return osc.VerifyOptions{Verify: true}
}

type fakeStore struct {
	mu    sync.Mutex
	saved []SessionSnapshot
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, snap SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return nil
}

func (s *fakeStore) LatestSnapshot(ctx context.Context) (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return SessionSnapshot{}, ErrNoSnapshot
	}
	return s.saved[len(s.saved)-1], nil
}

// testManager builds a manager with a fast cooldown so tests stay quick.
func testManager(link *fakeLink, cfg Config) *Manager {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = time.Millisecond
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = time.Second
	}
	return NewManager(cfg, link)
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{}, newFakeLink())

	if m.cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", m.cfg.MaxAttempts)
	}
	if m.cfg.Cooldown != 5*time.Second {
		t.Errorf("Cooldown = %v, want 5s", m.cfg.Cooldown)
	}
	if m.cfg.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %d, want 3", m.cfg.FailureThreshold)
	}
	if m.State() != StateHealthy {
		t.Errorf("initial State() = %q, want %q", m.State(), StateHealthy)
	}
	if !m.Healthy() {
		t.Error("new manager should report healthy")
	}
}

func TestRecordFailure_ThresholdTransition(t *testing.T) {
	m := testManager(newFakeLink(), Config{})

	var transitions []State
	m.SetOnStateChange(func(s Status) { transitions = append(transitions, s.State) })

	m.RecordFailure()
	m.RecordFailure()
	if m.State() != StateHealthy {
		t.Fatalf("State() after 2 failures = %q, want healthy", m.State())
	}
	if !m.Healthy() {
		t.Error("below threshold should still be healthy")
	}

	m.RecordFailure()
	if m.State() != StateDegraded {
		t.Fatalf("State() after 3 failures = %q, want degraded", m.State())
	}
	if m.Healthy() {
		t.Error("at threshold should not be healthy")
	}

	status := m.Status()
	if status.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", status.ConsecutiveFailures)
	}
	if status.CrashCount != 1 {
		t.Errorf("CrashCount = %d, want 1", status.CrashCount)
	}
	if status.LastCrashTime.IsZero() {
		t.Error("LastCrashTime should be stamped on the threshold crossing")
	}

	// Further failures deepen the counter without re-counting the crash.
	m.RecordFailure()
	if got := m.Status().CrashCount; got != 1 {
		t.Errorf("CrashCount after 4th failure = %d, want 1", got)
	}

	if len(transitions) != 1 || transitions[0] != StateDegraded {
		t.Errorf("transitions = %v, want [degraded]", transitions)
	}
}

func TestRecordSuccess_ResetsCounter(t *testing.T) {
	m := testManager(newFakeLink(), Config{})

	m.RecordFailure()
	m.RecordFailure()
	m.RecordFailure()
	if m.State() != StateDegraded {
		t.Fatalf("State() = %q, want degraded", m.State())
	}

	m.RecordSuccess()
	if m.State() != StateHealthy {
		t.Errorf("State() after success = %q, want healthy", m.State())
	}
	status := m.Status()
	if status.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", status.ConsecutiveFailures)
	}
	if status.LastSuccessTime.IsZero() {
		t.Error("LastSuccessTime should be stamped")
	}
	// The crash already happened; success does not erase history.
	if status.CrashCount != 1 {
		t.Errorf("CrashCount = %d, want 1", status.CrashCount)
	}
}

func TestAttemptRecovery_Success(t *testing.T) {
	link := newFakeLink()
	link.tempo = 124
	store := &fakeStore{}

	m := testManager(link, Config{})
	m.SetSnapshotStore(store)

	var transitions []State
	m.SetOnStateChange(func(s Status) { transitions = append(transitions, s.State) })

	var order []int
	m.OnRecovered(func(ctx context.Context) error {
		order = append(order, 1)
		return nil
	})
	m.OnRecovered(func(ctx context.Context) error {
		order = append(order, 2)
		return errors.New("rediscovery failed")
	})
	m.OnRecovered(func(ctx context.Context) error {
		order = append(order, 3)
		return nil
	})

	if err := m.AttemptRecovery(context.Background()); err != nil {
		t.Fatalf("AttemptRecovery() error: %v", err)
	}

	// Callbacks ran in registration order, the middle failure included.
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callback order = %v, want [1 2 3]", order)
	}

	// Snapshot persisted and restored through verified sets.
	if len(store.saved) != 1 {
		t.Fatalf("snapshots saved = %d, want 1", len(store.saved))
	}
	snap := store.saved[0]
	if snap.Tempo != 124 {
		t.Errorf("snapshot tempo = %v, want 124", snap.Tempo)
	}
	if len(snap.Tracks) != 2 {
		t.Fatalf("snapshot tracks = %d, want 2", len(snap.Tracks))
	}
	if len(link.setTempoCalls) != 1 || link.setTempoCalls[0] != 124 {
		t.Errorf("setTempoCalls = %v, want [124]", link.setTempoCalls)
	}
	want := []volumeCall{{track: 0, volume: 0.8}, {track: 1, volume: 0.6}}
	if len(link.setVolumeCalls) != 2 || link.setVolumeCalls[0] != want[0] || link.setVolumeCalls[1] != want[1] {
		t.Errorf("setVolumeCalls = %v, want %v", link.setVolumeCalls, want)
	}

	// Counters reset; state walked recovering -> healthy.
	status := m.Status()
	if status.RecoveryAttempts != 0 {
		t.Errorf("RecoveryAttempts = %d, want 0", status.RecoveryAttempts)
	}
	if status.State != StateHealthy {
		t.Errorf("State = %q, want healthy", status.State)
	}
	if len(transitions) != 2 || transitions[0] != StateRecovering || transitions[1] != StateHealthy {
		t.Errorf("transitions = %v, want [recovering healthy]", transitions)
	}
}

func TestAttemptRecovery_ProbeFailure(t *testing.T) {
	link := newFakeLink()
	link.failTempo = 99 // capture and probe both fail

	m := testManager(link, Config{})

	err := m.AttemptRecovery(context.Background())
	if err == nil {
		t.Fatal("AttemptRecovery() expected error, got nil")
	}
	if errors.Is(err, ErrRecoveryExhausted) {
		t.Error("single probe failure must not report exhaustion")
	}
	if m.State() != StateDegraded {
		t.Errorf("State() = %q, want degraded after failed probe", m.State())
	}
	if got := m.Status().RecoveryAttempts; got != 1 {
		t.Errorf("RecoveryAttempts = %d, want 1", got)
	}
}

func TestAttemptRecovery_Exhaustion(t *testing.T) {
	link := newFakeLink()
	link.failTempo = 99

	m := testManager(link, Config{MaxAttempts: 2})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := m.AttemptRecovery(ctx); err == nil {
			t.Fatalf("attempt %d expected probe error, got nil", i+1)
		}
	}

	err := m.AttemptRecovery(ctx)
	if !errors.Is(err, ErrRecoveryExhausted) {
		t.Fatalf("third attempt error = %v, want ErrRecoveryExhausted", err)
	}
	if m.State() != StateExhausted {
		t.Errorf("State() = %q, want exhausted", m.State())
	}
	if m.Healthy() {
		t.Error("exhausted manager must not report healthy")
	}

	// Exhausted is sticky: no further probing happens.
	before := link.tempoCalls
	if err := m.AttemptRecovery(ctx); !errors.Is(err, ErrRecoveryExhausted) {
		t.Errorf("post-exhaustion attempt error = %v, want ErrRecoveryExhausted", err)
	}
	if link.tempoCalls != before {
		t.Error("exhausted manager should not touch the link")
	}
}

func TestAttemptRecovery_CancelledDuringCooldown(t *testing.T) {
	link := newFakeLink()
	m := testManager(link, Config{Cooldown: 500 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.AttemptRecovery(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AttemptRecovery() error = %v, want context.DeadlineExceeded", err)
	}
	if m.State() != StateDegraded {
		t.Errorf("State() = %q, want degraded after cancelled attempt", m.State())
	}
}

func TestExecuteWithRecovery_NonCrashPassthrough(t *testing.T) {
	link := newFakeLink()
	m := testManager(link, Config{})

	musical := errors.New("device not found: OTT")
	calls := 0
	err := m.ExecuteWithRecovery(context.Background(), "load device", func(ctx context.Context) error {
		calls++
		return musical
	})

	if !errors.Is(err, musical) {
		t.Fatalf("error = %v, want the original musical error", err)
	}
	if calls != 1 {
		t.Errorf("op calls = %d, want 1 (no retry)", calls)
	}
	if link.tempoCalls != 0 {
		t.Errorf("tempo calls = %d, want 0 (no recovery)", link.tempoCalls)
	}
	if !m.Healthy() {
		t.Error("musical failures must not degrade the link state")
	}
}

func TestExecuteWithRecovery_RetriesAfterRecovery(t *testing.T) {
	link := newFakeLink()
	m := testManager(link, Config{})

	calls := 0
	err := m.ExecuteWithRecovery(context.Background(), "pipeline run", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errReset
		}
		return nil
	})

	if err != nil {
		t.Fatalf("ExecuteWithRecovery() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("op calls = %d, want 2", calls)
	}
	if m.State() != StateHealthy {
		t.Errorf("State() = %q, want healthy", m.State())
	}
	if got := m.Status().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got)
	}
}

func TestExecuteWithRecovery_Exhaustion(t *testing.T) {
	link := newFakeLink()
	m := testManager(link, Config{MaxAttempts: 2})

	calls := 0
	err := m.ExecuteWithRecovery(context.Background(), "pipeline run", func(ctx context.Context) error {
		calls++
		return errReset
	})

	if !errors.Is(err, ErrRecoveryExhausted) {
		t.Fatalf("error = %v, want ErrRecoveryExhausted", err)
	}
	// Initial run plus one retry per allowed recovery.
	if calls != 3 {
		t.Errorf("op calls = %d, want 3", calls)
	}
}

func TestExecuteWithRecovery_RecoveryFailurePropagates(t *testing.T) {
	link := newFakeLink()
	link.failTempo = 99 // recovery probes never succeed

	m := testManager(link, Config{})

	calls := 0
	err := m.ExecuteWithRecovery(context.Background(), "pipeline run", func(ctx context.Context) error {
		calls++
		return errReset
	})

	if err == nil {
		t.Fatal("expected error when recovery cannot reach the workstation")
	}
	if calls != 1 {
		t.Errorf("op calls = %d, want 1 (no retry after failed recovery)", calls)
	}
}
