package param

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/live-logic-core/internal/bridges/osc"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
)

type slotKey struct{ track, device int }

type paramKey struct{ track, device, param int }

type setCall struct {
	track, device, param int
	value                float64
}

// fakeTransport is an in-memory stand-in for the OSC command channel.
// The wire behavior itself is covered by the osc package tests.
type fakeTransport struct {
	mu          sync.Mutex
	counts      map[int]int
	deviceNames map[slotKey]string
	paramNames  map[slotKey][]string
	paramMins   map[slotKey][]float64
	paramMaxs   map[slotKey][]float64
	values      map[paramKey]float64
	sets        []setCall
	nameCalls   int
	readyAfter  int // name queries to answer empty before the device appears
	namesErr    error
	rangesErr   error
	unverified  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		counts:      make(map[int]int),
		deviceNames: make(map[slotKey]string),
		paramNames:  make(map[slotKey][]string),
		paramMins:   make(map[slotKey][]float64),
		paramMaxs:   make(map[slotKey][]float64),
		values:      make(map[paramKey]float64),
	}
}

func (f *fakeTransport) addDevice(track, device int, name string, params []string, mins, maxs []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotKey{track, device}
	f.deviceNames[key] = name
	f.paramNames[key] = params
	f.paramMins[key] = mins
	f.paramMaxs[key] = maxs
	if device >= f.counts[track] {
		f.counts[track] = device + 1
	}
}

func (f *fakeTransport) DeviceCount(ctx context.Context, track int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[track], nil
}

func (f *fakeTransport) DeviceName(ctx context.Context, track, device int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.deviceNames[slotKey{track, device}]
	if !ok {
		return "", osc.ErrQueryTimeout
	}
	return name, nil
}

func (f *fakeTransport) ParameterNames(ctx context.Context, track, device int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	if f.readyAfter > 0 && f.nameCalls <= f.readyAfter {
		return nil, nil
	}
	return f.paramNames[slotKey{track, device}], nil
}

func (f *fakeTransport) ParameterRanges(ctx context.Context, track, device int) ([]float64, []float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rangesErr != nil {
		return nil, nil, f.rangesErr
	}
	key := slotKey{track, device}
	return f.paramMins[key], f.paramMaxs[key], nil
}

func (f *fakeTransport) ParameterValue(ctx context.Context, track, device, param int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[paramKey{track, device, param}], nil
}

func (f *fakeTransport) SetParameterVerified(ctx context.Context, track, device, param int, value float64, opts osc.VerifyOptions) (osc.SetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, setCall{track, device, param, value})
	f.values[paramKey{track, device, param}] = value
	if f.unverified {
		return osc.SetResult{Success: true, Verified: false, Attempts: opts.Retries}, nil
	}
	return osc.SetResult{Success: true, Verified: true, Attempts: 1, Actual: value}, nil
}

func (f *fakeTransport) DefaultVerifyOptions() osc.VerifyOptions {
	return osc.VerifyOptions{
		Verify:     true,
		Retries:    3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		GetTimeout: 10 * time.Millisecond,
		Tolerance:  0.02,
	}
}

func (f *fakeTransport) nameQueryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nameCalls
}

func (f *fakeTransport) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setCall(nil), f.sets...)
}

type loadCall struct {
	track    int
	name     string
	position int
}

type fakeLoader struct {
	mu      sync.Mutex
	loads   []loadCall
	deletes []slotKey
	loadErr error
	onLoad  func()
}

func (f *fakeLoader) LoadDevice(ctx context.Context, track int, name string, position int) error {
	f.mu.Lock()
	f.loads = append(f.loads, loadCall{track, name, position})
	err := f.loadErr
	hook := f.onLoad
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeLoader) DeleteDevice(ctx context.Context, track, device int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, slotKey{track, device})
	return nil
}

func (f *fakeLoader) loadCalls() []loadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]loadCall(nil), f.loads...)
}

func (f *fakeLoader) deleteCalls() []slotKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]slotKey(nil), f.deletes...)
}

func testController(transport *fakeTransport, loader *fakeLoader) *Controller {
	cfg := config.ParamsConfig{
		ReadyTimeoutMS:      100,
		ReadyPollIntervalMS: 5,
		LoadSettleDelayMS:   5,
	}
	return NewController(transport, loader, nil, cfg, nil)
}

func addCompressor(ft *fakeTransport, track, device int) {
	ft.addDevice(track, device, "Compressor",
		[]string{"Device On", "Threshold", "Ratio", "Attack", "Release", "Output Gain", "Dry/Wet"},
		[]float64{0, -70, 0, 0, 0, -30, 0},
		[]float64{1, 6, 1, 1, 1, 30, 1})
}

func TestRefreshDiscovery(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	c := testController(ft, &fakeLoader{})

	info, err := c.Info(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if !info.Accessible {
		t.Error("device not marked accessible")
	}
	if info.Name != "Compressor" {
		t.Errorf("Name = %q", info.Name)
	}
	if len(info.Params) != 7 {
		t.Fatalf("got %d params, want 7", len(info.Params))
	}
	want := ParameterDescriptor{Index: 1, Name: "Threshold", Min: -70, Max: 6}
	if info.Params[1] != want {
		t.Errorf("Params[1] = %+v, want %+v", info.Params[1], want)
	}

	// Second lookup is served from the cache.
	calls := ft.nameQueryCount()
	if _, err := c.Info(context.Background(), 0, 0); err != nil {
		t.Fatalf("cached Info() error: %v", err)
	}
	if got := ft.nameQueryCount(); got != calls {
		t.Errorf("cached Info() queried the transport (%d -> %d calls)", calls, got)
	}
}

func TestRefreshTransportError(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.namesErr = osc.ErrQueryTimeout
	c := testController(ft, &fakeLoader{})

	if _, err := c.Info(context.Background(), 0, 0); !errors.Is(err, osc.ErrQueryTimeout) {
		t.Errorf("error = %v, want ErrQueryTimeout", err)
	}
	if _, ok := c.Cache().Get(0, 0); ok {
		t.Error("failed discovery left a cache entry")
	}
}

func TestRefreshNotAccessible(t *testing.T) {
	ft := newFakeTransport()
	ft.addDevice(0, 0, "Hidden Plugin", nil, nil, nil)
	c := testController(ft, &fakeLoader{})

	info, err := c.Info(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Accessible {
		t.Error("zero-parameter device marked accessible")
	}
	if info.Name != "Hidden Plugin" {
		t.Errorf("Name = %q", info.Name)
	}

	// The negative result is cached too.
	if _, ok := c.Cache().Get(0, 0); !ok {
		t.Error("inaccessible device not cached")
	}
}

func TestRefreshRangeLengthMismatch(t *testing.T) {
	ft := newFakeTransport()
	ft.addDevice(0, 0, "Odd Device",
		[]string{"A", "B", "C"},
		[]float64{-70}, nil)
	c := testController(ft, &fakeLoader{})

	info, err := c.Refresh(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if info.Params[0].Min != -70 {
		t.Errorf("Params[0].Min = %v, want -70", info.Params[0].Min)
	}
	// Missing range entries keep the 0..1 default.
	if info.Params[1].Min != 0 || info.Params[1].Max != 1 {
		t.Errorf("Params[1] range = %v..%v, want 0..1", info.Params[1].Min, info.Params[1].Max)
	}
	if info.Params[0].Max != 1 {
		t.Errorf("Params[0].Max = %v, want 1", info.Params[0].Max)
	}
}

func TestRefreshRangeQueryFailed(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.rangesErr = osc.ErrQueryTimeout
	c := testController(ft, &fakeLoader{})

	info, err := c.Refresh(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if !info.Accessible {
		t.Fatal("range failure should not make the device inaccessible")
	}
	for _, p := range info.Params {
		if p.Min != 0 || p.Max != 1 {
			t.Errorf("param %q range = %v..%v, want 0..1 default", p.Name, p.Min, p.Max)
		}
	}
}

func TestWaitForDeviceReady(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.readyAfter = 3
	c := testController(ft, &fakeLoader{})

	ready, err := c.WaitForDeviceReady(context.Background(), 0, 0, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForDeviceReady() error: %v", err)
	}
	if !ready {
		t.Error("device never reported ready")
	}
	if calls := ft.nameQueryCount(); calls < 4 {
		t.Errorf("expected at least 4 polls, got %d", calls)
	}
}

func TestWaitForDeviceReadyTimeout(t *testing.T) {
	ft := newFakeTransport()
	ft.addDevice(0, 0, "Empty", nil, nil, nil)
	c := testController(ft, &fakeLoader{})

	start := time.Now()
	ready, err := c.WaitForDeviceReady(context.Background(), 0, 0, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForDeviceReady() error: %v", err)
	}
	if ready {
		t.Error("empty device reported ready")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned before the timeout: %v", elapsed)
	}
}

func TestWaitForDeviceReadyCancelled(t *testing.T) {
	ft := newFakeTransport()
	ft.addDevice(0, 0, "Empty", nil, nil, nil)
	c := testController(ft, &fakeLoader{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.WaitForDeviceReady(ctx, 0, 0, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestLoadDeviceVerified(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	fl := &fakeLoader{}
	fl.onLoad = func() {
		ft.addDevice(0, 1, "Reverb",
			[]string{"Device On", "Decay Time", "Dry/Wet"},
			[]float64{0, 0, 0}, []float64{1, 1, 1})
	}
	c := testController(ft, fl)

	// Stale entry that must be dropped when indices shift.
	c.Cache().Put(cachedInfo(0, 0, "Compressor"))

	res, err := c.LoadDeviceVerified(context.Background(), 0, "Reverb", -1)
	if err != nil {
		t.Fatalf("LoadDeviceVerified() error: %v", err)
	}
	if !res.Success {
		t.Fatalf("load failed: %+v", res)
	}
	if res.DeviceIndex != 1 {
		t.Errorf("DeviceIndex = %d, want 1", res.DeviceIndex)
	}
	if res.Message != "loaded" {
		t.Errorf("Message = %q", res.Message)
	}

	loads := fl.loadCalls()
	if len(loads) != 1 || loads[0] != (loadCall{0, "Reverb", -1}) {
		t.Errorf("loader calls = %+v", loads)
	}
	if _, ok := c.Cache().Get(0, 0); ok {
		t.Error("track cache not invalidated after load")
	}
}

func TestLoadDeviceVerifiedAtPosition(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.addDevice(0, 1, "Utility",
		[]string{"Device On", "Gain"}, []float64{0, -35}, []float64{1, 35})
	fl := &fakeLoader{}
	fl.onLoad = func() {
		ft.addDevice(0, 2, "Gate",
			[]string{"Device On", "Threshold"}, []float64{0, -70}, []float64{1, 0})
	}
	c := testController(ft, fl)

	res, err := c.LoadDeviceVerified(context.Background(), 0, "Gate", 0)
	if err != nil {
		t.Fatalf("LoadDeviceVerified() error: %v", err)
	}
	if !res.Success || res.DeviceIndex != 0 {
		t.Errorf("result = %+v, want success at index 0", res)
	}
}

func TestLoadDeviceVerifiedCountNeverGrows(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	c := testController(ft, &fakeLoader{})

	res, err := c.LoadDeviceVerified(context.Background(), 0, "Reverb", -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("load reported success without a new device")
	}
	if res.DeviceIndex != -1 {
		t.Errorf("DeviceIndex = %d, want -1", res.DeviceIndex)
	}
	if res.Message != "device count did not increase" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestLoadDeviceVerifiedLoaderError(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	wantErr := errors.New("loader down")
	c := testController(ft, &fakeLoader{loadErr: wantErr})

	res, err := c.LoadDeviceVerified(context.Background(), 0, "Reverb", -1)
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
	if res.Success {
		t.Error("failed load reported success")
	}
}

func TestSetParameterByNameSemantic(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	c := testController(ft, &fakeLoader{})

	report, err := c.SetParameterByName(context.Background(), 0, 0, "threshold_db", -20,
		ft.DefaultVerifyOptions())
	if err != nil {
		t.Fatalf("SetParameterByName() error: %v", err)
	}
	if report.NotFound {
		t.Fatal("semantic key reported not found")
	}
	if report.Resolved != "Threshold" || report.Index != 1 {
		t.Errorf("resolved %q at %d, want Threshold at 1", report.Resolved, report.Index)
	}
	if report.Curve != CurveDecibel {
		t.Errorf("Curve = %q, want decibel", report.Curve)
	}
	if !report.Success || !report.Verified {
		t.Errorf("report = %+v", report)
	}

	// -20 dB over the declared -70..6 span.
	sets := ft.setCalls()
	if len(sets) != 1 {
		t.Fatalf("got %d set calls, want 1", len(sets))
	}
	wantNorm := (-20.0 + 70.0) / 76.0
	if sets[0].param != 1 || math.Abs(sets[0].value-wantNorm) > 1e-9 {
		t.Errorf("set call = %+v, want param 1 value %v", sets[0], wantNorm)
	}
	if math.Abs(report.Actual-(-20)) > 1e-6 {
		t.Errorf("Actual = %v, want -20", report.Actual)
	}
}

func TestSetParameterByNameSemanticFallbackIndex(t *testing.T) {
	// The semantic target name is missing from the live list, so the
	// measured fallback index is used instead.
	ft := newFakeTransport()
	ft.addDevice(0, 0, "EQ Eight",
		[]string{"Master Gain", "1 Frequency A"},
		[]float64{-15, 0}, []float64{15, 1})
	c := testController(ft, &fakeLoader{})

	report, err := c.SetParameterByName(context.Background(), 0, 0, "output_gain", 3,
		ft.DefaultVerifyOptions())
	if err != nil {
		t.Fatalf("SetParameterByName() error: %v", err)
	}
	if report.NotFound {
		t.Fatal("fallback index not used")
	}
	if report.Index != 0 || report.Resolved != "Master Gain" {
		t.Errorf("resolved %q at %d, want Master Gain at 0", report.Resolved, report.Index)
	}
}

func TestSetParameterByNameAlias(t *testing.T) {
	ft := newFakeTransport()
	ft.addDevice(0, 0, "Gate",
		[]string{"Device On", "Threshold", "Dry/Wet"},
		[]float64{0, -70, 0}, []float64{1, 0, 1})
	c := testController(ft, &fakeLoader{})

	report, err := c.SetParameterByName(context.Background(), 0, 0, "mix", 30,
		ft.DefaultVerifyOptions())
	if err != nil {
		t.Fatalf("SetParameterByName() error: %v", err)
	}
	if report.Index != 2 || report.Resolved != "Dry/Wet" {
		t.Errorf("resolved %q at %d, want Dry/Wet at 2", report.Resolved, report.Index)
	}
	if report.Curve != CurvePercentage {
		t.Errorf("Curve = %q, want percentage", report.Curve)
	}

	sets := ft.setCalls()
	if len(sets) != 1 || math.Abs(sets[0].value-0.3) > 1e-9 {
		t.Errorf("set calls = %+v, want one write of 0.3", sets)
	}
}

func TestSetParameterByNameNotFound(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	c := testController(ft, &fakeLoader{})

	report, err := c.SetParameterByName(context.Background(), 0, 0, "wobble", 1,
		ft.DefaultVerifyOptions())
	if err != nil {
		t.Fatalf("unknown name returned error: %v", err)
	}
	if !report.NotFound {
		t.Error("NotFound not set")
	}
	if report.Success || report.Attempts != 0 {
		t.Errorf("report = %+v, want no attempts", report)
	}
	if len(ft.setCalls()) != 0 {
		t.Error("unknown name reached the transport")
	}
}

func TestSetParameterByNameUnverified(t *testing.T) {
	// A write the workstation accepted but never echoed back within
	// tolerance still counts as sent.
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.unverified = true
	c := testController(ft, &fakeLoader{})

	report, err := c.SetParameterByName(context.Background(), 0, 0, "threshold_db", -20,
		ft.DefaultVerifyOptions())
	if err != nil {
		t.Fatalf("SetParameterByName() error: %v", err)
	}
	if !report.Success || report.Verified {
		t.Errorf("report = %+v, want sent but unverified", report)
	}
	if report.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", report.Attempts)
	}

	batch, err := c.SetParametersByName(context.Background(), 0, 0,
		[]Target{{Name: "mix", Value: 50}}, time.Millisecond)
	if err != nil {
		t.Fatalf("SetParametersByName() error: %v", err)
	}
	if batch.Succeeded != 1 || batch.Failed != 0 {
		t.Errorf("batch = %+v, want unverified write counted as succeeded", batch)
	}
}

func TestResolveParameter(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.values[paramKey{0, 0, 2}] = 0.25
	c := testController(ft, &fakeLoader{})

	desc, ok, err := c.ResolveParameter(context.Background(), 0, 0, "ratio")
	if err != nil {
		t.Fatalf("ResolveParameter() error: %v", err)
	}
	if !ok || desc.Index != 2 || desc.Name != "Ratio" {
		t.Errorf("resolved %+v, want Ratio at 2", desc)
	}

	if _, ok, _ := c.ResolveParameter(context.Background(), 0, 0, "wobble"); ok {
		t.Error("unknown name resolved")
	}

	raw, err := c.NormalizedParameterValue(context.Background(), 0, 0, desc.Index)
	if err != nil {
		t.Fatalf("NormalizedParameterValue() error: %v", err)
	}
	if raw != 0.25 {
		t.Errorf("raw value = %v, want 0.25", raw)
	}
}

func TestSetParametersByName(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	c := testController(ft, &fakeLoader{})

	targets := []Target{
		{Name: "threshold_db", Value: -20},
		{Name: "wobble", Value: 1},
		{Name: "mix", Value: 50},
	}
	batch, err := c.SetParametersByName(context.Background(), 0, 0, targets, time.Millisecond)
	if err != nil {
		t.Fatalf("SetParametersByName() error: %v", err)
	}

	if batch.Total != 3 || batch.Succeeded != 2 || batch.Failed != 0 || batch.NotFound != 1 {
		t.Errorf("batch = %+v", batch)
	}
	if len(batch.Reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(batch.Reports))
	}
	if !batch.Reports[1].NotFound {
		t.Error("second report should be not-found")
	}

	// Writes happen in order: Threshold (1), then Dry/Wet (6).
	sets := ft.setCalls()
	if len(sets) != 2 || sets[0].param != 1 || sets[1].param != 6 {
		t.Errorf("set calls = %+v", sets)
	}
}

func TestReadParameterValue(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	ft.values[paramKey{0, 0, 6}] = 0.42
	c := testController(ft, &fakeLoader{})

	human, curve, err := c.ReadParameterValue(context.Background(), 0, 0, "dry_wet")
	if err != nil {
		t.Fatalf("ReadParameterValue() error: %v", err)
	}
	if curve != CurvePercentage {
		t.Errorf("curve = %q, want percentage", curve)
	}
	if math.Abs(human-42) > 1e-9 {
		t.Errorf("value = %v, want 42", human)
	}

	_, _, err = c.ReadParameterValue(context.Background(), 0, 0, "wobble")
	if !errors.Is(err, ErrParameterNotFound) {
		t.Errorf("unknown name error = %v, want ErrParameterNotFound", err)
	}
}

func TestReadParameterValueNotAccessible(t *testing.T) {
	ft := newFakeTransport()
	ft.addDevice(0, 0, "Hidden Plugin", nil, nil, nil)
	c := testController(ft, &fakeLoader{})

	_, _, err := c.ReadParameterValue(context.Background(), 0, 0, "gain")
	if !errors.Is(err, ErrDeviceNotAccessible) {
		t.Errorf("error = %v, want ErrDeviceNotAccessible", err)
	}
}

func TestSetDeviceEnabled(t *testing.T) {
	ft := newFakeTransport()
	addCompressor(ft, 0, 0)
	c := testController(ft, &fakeLoader{})

	res, err := c.SetDeviceEnabled(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("SetDeviceEnabled() error: %v", err)
	}
	if !res.Verified {
		t.Errorf("result = %+v", res)
	}

	if _, err := c.SetDeviceEnabled(context.Background(), 0, 0, true); err != nil {
		t.Fatalf("SetDeviceEnabled() error: %v", err)
	}

	sets := ft.setCalls()
	if len(sets) != 2 {
		t.Fatalf("got %d set calls, want 2", len(sets))
	}
	if sets[0].param != 0 || sets[0].value != 0 {
		t.Errorf("disable call = %+v, want param 0 value 0", sets[0])
	}
	if sets[1].param != 0 || sets[1].value != 1 {
		t.Errorf("enable call = %+v, want param 0 value 1", sets[1])
	}
}

func TestDeleteDevice(t *testing.T) {
	ft := newFakeTransport()
	fl := &fakeLoader{}
	c := testController(ft, fl)

	c.Cache().Put(cachedInfo(0, 0, "Compressor"))
	c.Cache().Put(cachedInfo(0, 1, "Reverb"))
	c.Cache().Put(cachedInfo(1, 0, "Delay"))

	if err := c.DeleteDevice(context.Background(), 0, 1); err != nil {
		t.Fatalf("DeleteDevice() error: %v", err)
	}

	deletes := fl.deleteCalls()
	if len(deletes) != 1 || deletes[0] != (slotKey{0, 1}) {
		t.Errorf("delete calls = %+v", deletes)
	}

	// The whole track is invalidated; other tracks survive.
	if _, ok := c.Cache().Get(0, 0); ok {
		t.Error("(0,0) survived track invalidation")
	}
	if _, ok := c.Cache().Get(1, 0); !ok {
		t.Error("(1,0) dropped by another track's invalidation")
	}
}
