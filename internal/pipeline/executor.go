package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/live-logic-core/internal/bridges/osc"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/live-logic-core/internal/param"
)

// Logger is the logging interface for the pipeline package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceController is the device and parameter surface the executor
// consumes. *param.Controller satisfies it.
type DeviceController interface {
	LoadDeviceVerified(ctx context.Context, track int, name string, position int) (param.LoadResult, error)
	WaitForDeviceReady(ctx context.Context, track, device int, timeout time.Duration) (bool, error)
	ResolveParameter(ctx context.Context, track, device int, name string) (param.ParameterDescriptor, bool, error)
	NormalizedParameterValue(ctx context.Context, track, device, param int) (float64, error)
	SetParameterByName(ctx context.Context, track, device int, name string, value float64, opts osc.VerifyOptions) (param.SetReport, error)
	SetDeviceEnabled(ctx context.Context, track, device int, enabled bool) (osc.SetResult, error)
	DeleteDevice(ctx context.Context, track, device int) error
	DefaultVerifyOptions() osc.VerifyOptions
}

// LiveQuerier reports the live set layout. *osc.Client satisfies it.
type LiveQuerier interface {
	TrackNames(ctx context.Context) ([]string, error)
	DeviceCount(ctx context.Context, track int) (int, error)
}

// Publisher broadcasts completed run results, typically onto the
// message bus. Implementations must not block. May be nil.
type Publisher interface {
	PublishResult(result Result)
}

// Timing fallbacks when the corresponding config values are unset.
const (
	defaultInterParamDelay = 50 * time.Millisecond
	defaultClearSettle     = 100 * time.Millisecond
	defaultTolerance       = 0.02
)

// Executor runs plans through four phases: PLAN (validate, resolve
// names), EXECUTE (load devices, set parameters), VERIFY (re-read
// unverified writes) and REPORT (aggregate, persist, publish).
//
// One run processes its devices, and the parameters within each
// device, strictly in plan order on the calling goroutine. Failures of
// individual steps are recorded in the result and never abort the run;
// the only errors Execute returns are guardrail violations.
type Executor struct {
	controller DeviceController
	live       LiveQuerier
	metrics    *Metrics
	store      RunStore
	publisher  Publisher
	prefs      Preferences
	cfg        config.PipelineConfig
	logger     Logger
}

// NewExecutor creates a plan executor.
//
// Parameters:
//   - controller: Device/parameter controller for loads and writes
//   - live: Track and device-count queries for validation and clearing
//   - metrics: Run metrics recorder (may be nil)
//   - store: Durable run history (may be nil)
//   - publisher: Result broadcast hook (may be nil)
//   - cfg: Pipeline tuning, including the device blacklist
//   - logger: Logger instance (nil discards)
func NewExecutor(controller DeviceController, live LiveQuerier, metrics *Metrics, store RunStore, publisher Publisher, cfg config.PipelineConfig, logger Logger) *Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{
		controller: controller,
		live:       live,
		metrics:    metrics,
		store:      store,
		publisher:  publisher,
		prefs:      NewPreferences(cfg.DeviceBlacklist),
		cfg:        cfg,
		logger:     logger,
	}
}

// resolvedDevice pairs a device spec with its resolved load name.
type resolvedDevice struct {
	spec       DeviceSpec
	requested  string
	resolved   string
	isFallback bool
}

// Execute runs a plan to completion and returns the full report.
//
// Environmental failures (unreachable tracks, failed loads, unverified
// writes) are recorded in the result; the returned error is non-nil
// only for guardrail violations, which indicate an orchestration bug.
func (e *Executor) Execute(ctx context.Context, plan Plan) (Result, error) {
	start := time.Now()
	result := Result{
		RunID:               uuid.New().String(),
		Phase:               PhasePlan,
		TrackIndex:          plan.TrackIndex,
		Description:         plan.Description,
		DryRun:              plan.DryRun,
		TotalDevicesPlanned: len(plan.Devices),
		TotalParamsPlanned:  countParams(plan.Devices),
	}

	if err := plan.Validate(e.cfg.MaxDevices); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return e.finalize(ctx, result, start), nil
	}

	// The advisory call that produced this plan is charged up front.
	guardrail := NewGuardrail(e.budgetFor(plan))
	calls, err := guardrail.RecordCall(ctx, PhasePlan)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return e.finalize(ctx, result, start), err
	}
	result.AdvisoryCallsUsed = calls

	names, err := e.live.TrackNames(ctx)
	if err != nil {
		result.Errors = append(result.Errors, "track list query failed: "+err.Error())
		return e.finalize(ctx, result, start), nil
	}
	if plan.TrackIndex >= len(names) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("track index %d out of range (have %d tracks)", plan.TrackIndex, len(names)))
		return e.finalize(ctx, result, start), nil
	}
	result.TrackName = names[plan.TrackIndex]

	resolved := e.resolveAll(plan.Devices)

	e.logger.Info("pipeline run started",
		"run_id", result.RunID,
		"track", plan.TrackIndex,
		"track_name", result.TrackName,
		"devices", len(resolved),
		"dry_run", plan.DryRun,
	)

	if plan.DryRun {
		result.Devices = predictDevices(resolved)
		result.Success = true
		return e.finalize(ctx, result, start), nil
	}

	result.Phase = PhaseExecute
	execCtx, releaseExec := guardrail.BlockPhase(ctx, PhaseExecute)
	if plan.ClearExisting {
		e.clearTrack(execCtx, plan.TrackIndex)
	}
	for _, rd := range resolved {
		if execCtx.Err() != nil {
			result.Errors = append(result.Errors, "run cancelled: "+execCtx.Err().Error())
			break
		}
		dr := e.executeDevice(execCtx, plan.TrackIndex, rd)
		result.Devices = append(result.Devices, dr)
		if dr.Loaded {
			result.TotalDevicesLoaded++
		}
	}
	releaseExec()

	result.Phase = PhaseVerify
	verifyCtx, releaseVerify := guardrail.BlockPhase(ctx, PhaseVerify)
	for i := range result.Devices {
		if result.Devices[i].Loaded && result.Devices[i].DeviceIndex >= 0 {
			e.verifyDeviceParams(verifyCtx, plan.TrackIndex, &result.Devices[i])
		}
	}
	releaseVerify()

	result.Phase = PhaseReport
	e.aggregate(&result)

	return e.finalize(ctx, result, start), nil
}

// budgetFor returns the advisory budget a plan is entitled to.
func (e *Executor) budgetFor(plan Plan) int {
	if plan.Retry {
		if e.cfg.AdvisoryRetryBudget > 0 {
			return e.cfg.AdvisoryRetryBudget
		}
		return retryBudget
	}
	if e.cfg.AdvisoryBudget > 0 {
		return e.cfg.AdvisoryBudget
	}
	return defaultBudget
}

// resolveAll maps every device spec to a loadable name.
func (e *Executor) resolveAll(devices []DeviceSpec) []resolvedDevice {
	resolved := make([]resolvedDevice, 0, len(devices))
	for _, spec := range devices {
		name, isFallback := ResolveDeviceName(spec.Name, spec.Fallback, e.prefs)
		resolved = append(resolved, resolvedDevice{
			spec:       spec,
			requested:  spec.Name,
			resolved:   name,
			isFallback: isFallback,
		})
		if isFallback {
			e.logger.Info("device resolved to substitute", "requested", spec.Name, "resolved", name)
		}
	}
	return resolved
}

// predictDevices builds the dry-run report: nothing loaded, every
// parameter predicted to succeed unverified.
func predictDevices(resolved []resolvedDevice) []DeviceResult {
	devices := make([]DeviceResult, 0, len(resolved))
	for _, rd := range resolved {
		dr := DeviceResult{
			Name:          rd.resolved,
			RequestedName: rd.requested,
			DeviceIndex:   -1,
			IsFallback:    rd.isFallback,
		}
		for _, ps := range rd.spec.Params {
			dr.Params = append(dr.Params, ParamResult{
				Name:           ps.Name,
				RequestedValue: ps.Value,
				Success:        true,
			})
		}
		devices = append(devices, dr)
	}
	return devices
}

// clearTrack deletes every device on the track, last to first so
// indices stay valid, pausing between deletes.
func (e *Executor) clearTrack(ctx context.Context, track int) {
	count, err := e.live.DeviceCount(ctx, track)
	if err != nil {
		e.logger.Warn("device count query failed before clear", "track", track, "error", err)
		return
	}
	for i := count - 1; i >= 0; i-- {
		if err := e.controller.DeleteDevice(ctx, track, i); err != nil {
			e.logger.Warn("device delete failed", "track", track, "device", i, "error", err)
		}
		if err := sleepCtx(ctx, e.clearSettle()); err != nil {
			return
		}
	}
	e.logger.Info("cleared existing devices", "track", track, "count", count)
}

// loadCandidates builds the ordered load cascade for a device:
// resolved name, then the explicit fallback, then the keyword chain.
func (e *Executor) loadCandidates(rd resolvedDevice) []string {
	candidates := []string{rd.resolved}
	if fb := strings.TrimSpace(rd.spec.Fallback); fb != "" && !containsName(candidates, fb) {
		candidates = append(candidates, fb)
	}
	for _, name := range FallbackChain(rd.requested, e.prefs) {
		if !containsName(candidates, name) {
			candidates = append(candidates, name)
		}
	}
	return candidates
}

// executeDevice loads one device through the cascade and sets its
// parameters. Failures are recorded on the result, never returned.
func (e *Executor) executeDevice(ctx context.Context, track int, rd resolvedDevice) DeviceResult {
	dr := DeviceResult{
		Name:          rd.resolved,
		RequestedName: rd.requested,
		DeviceIndex:   -1,
		IsFallback:    rd.isFallback,
	}

	candidates := e.loadCandidates(rd)
	loadStart := time.Now()

	var load param.LoadResult
	var lastMsg string
	for i, candidate := range candidates {
		if ctx.Err() != nil {
			lastMsg = "cancelled"
			break
		}
		res, err := e.controller.LoadDeviceVerified(ctx, track, candidate, -1)
		if err != nil {
			lastMsg = err.Error()
			continue
		}
		if res.Success {
			load = res
			dr.Name = candidate
			if i > 0 {
				dr.IsFallback = true
			}
			break
		}
		lastMsg = res.Message
		if i < len(candidates)-1 {
			e.logger.Info("device load failed, trying next candidate",
				"requested", rd.requested, "candidate", candidate, "message", res.Message)
		}
	}
	dr.LoadTimeMS = msSince(loadStart)

	if !load.Success {
		if lastMsg == "" {
			lastMsg = "load failed"
		}
		dr.Error = fmt.Sprintf("load failed after %d candidates: %s", len(candidates), lastMsg)
		return dr
	}

	dr.Loaded = true
	dr.DeviceIndex = load.DeviceIndex

	ready, err := e.controller.WaitForDeviceReady(ctx, track, dr.DeviceIndex, 0)
	if err != nil {
		dr.Error = "cancelled waiting for readiness"
		return dr
	}
	if !ready {
		dr.Error = "device loaded but not answering discovery"
		return dr
	}

	paramStart := time.Now()
	for i, ps := range rd.spec.Params {
		dr.Params = append(dr.Params, e.setParam(ctx, track, dr.DeviceIndex, dr.Name, ps))
		if i < len(rd.spec.Params)-1 {
			if err := sleepCtx(ctx, e.interParamDelay()); err != nil {
				break
			}
		}
	}
	dr.ParamTimeMS = msSince(paramStart)

	if !rd.spec.IsEnabled() {
		if _, err := e.controller.SetDeviceEnabled(ctx, track, dr.DeviceIndex, false); err != nil {
			e.logger.Warn("device bypass failed", "track", track, "device", dr.DeviceIndex, "error", err)
		}
	}

	return dr
}

// setParam writes one parameter target with an idempotency check: when
// the current normalized value already sits within tolerance of the
// target, no datagram is sent.
func (e *Executor) setParam(ctx context.Context, track, device int, deviceName string, ps ParamSpec) ParamResult {
	pr := ParamResult{Name: ps.Name, RequestedValue: ps.Value}

	desc, ok, err := e.controller.ResolveParameter(ctx, track, device, ps.Name)
	if err != nil {
		pr.Error = "resolution failed: " + err.Error()
		return pr
	}
	if !ok {
		pr.Error = fmt.Sprintf("parameter %q not found on %s", ps.Name, deviceName)
		return pr
	}

	target, _ := param.Normalize(desc.Name, ps.Value, desc.Min, desc.Max)
	if current, err := e.controller.NormalizedParameterValue(ctx, track, device, desc.Index); err == nil {
		if math.Abs(current-target) <= e.toleranceFor(ps) {
			pr.Success = true
			pr.Verified = true
			pr.SkippedIdempotent = true
			pr.ActualValue = &ps.Value
			return pr
		}
	}

	setStart := time.Now()
	report, err := e.controller.SetParameterByName(ctx, track, device, ps.Name, ps.Value, e.controller.DefaultVerifyOptions())
	if err != nil {
		pr.Error = "set failed: " + err.Error()
		return pr
	}
	if report.NotFound {
		pr.Error = fmt.Sprintf("parameter %q not found on %s", ps.Name, deviceName)
		return pr
	}
	if e.metrics != nil {
		e.metrics.RecordSet(track, device, desc.Name, report.Attempts, report.Verified, time.Since(setStart))
	}

	pr.Success = report.Success
	pr.Verified = report.Verified
	if report.Verified {
		actual := report.Actual
		pr.ActualValue = &actual
	}
	if !pr.Success {
		pr.Error = "set not confirmed"
	}
	return pr
}

// verifyDeviceParams re-reads parameters that were set but not
// verified, upgrading Verified where the readback now matches the
// target within tolerance.
func (e *Executor) verifyDeviceParams(ctx context.Context, track int, dr *DeviceResult) {
	for i := range dr.Params {
		pr := &dr.Params[i]
		if !pr.Success || pr.Verified || pr.SkippedIdempotent {
			continue
		}

		desc, ok, err := e.controller.ResolveParameter(ctx, track, dr.DeviceIndex, pr.Name)
		if err != nil || !ok {
			continue
		}
		raw, err := e.controller.NormalizedParameterValue(ctx, track, dr.DeviceIndex, desc.Index)
		if err != nil {
			continue
		}

		target, _ := param.Normalize(desc.Name, pr.RequestedValue, desc.Min, desc.Max)
		if math.Abs(raw-target) <= e.tolerance() {
			human, _ := param.Denormalize(desc.Name, raw, desc.Min, desc.Max)
			pr.ActualValue = &human
			pr.Verified = true
		}
	}
}

// aggregate fills the report totals and applies the partial-success
// rule: when every planned device loaded but some parameters failed,
// the errors demote to warnings.
func (e *Executor) aggregate(result *Result) {
	for _, dev := range result.Devices {
		for _, pr := range dev.Params {
			if pr.Success {
				result.TotalParamsSet++
			}
			if pr.Verified {
				result.TotalParamsVerified++
			}
			if pr.SkippedIdempotent {
				result.TotalParamsSkipped++
			}
			if pr.Error != "" {
				result.Errors = append(result.Errors, fmt.Sprintf("%s.%s: %s", dev.Name, pr.Name, pr.Error))
			}
		}
		if dev.Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", dev.Name, dev.Error))
		}
	}

	result.Success = result.TotalDevicesLoaded == result.TotalDevicesPlanned && len(result.Errors) == 0

	if !result.Success && result.TotalDevicesLoaded == result.TotalDevicesPlanned && result.TotalDevicesLoaded > 0 {
		result.Warnings = append(result.Warnings, result.Errors...)
		result.Errors = nil
		result.Success = true
	}
}

// finalize stamps the wall time and hands the result to the metrics
// recorder, the run store and the publisher, all best-effort.
func (e *Executor) finalize(ctx context.Context, result Result, start time.Time) Result {
	result.TotalTimeMS = msSince(start)

	if e.metrics != nil {
		e.metrics.Record(result)
	}
	if e.store != nil {
		if err := e.store.SaveRun(ctx, result); err != nil {
			e.logger.Error("failed to save run record", "run_id", result.RunID, "error", err)
		}
	}
	if e.publisher != nil {
		e.publisher.PublishResult(result)
	}
	return result
}

func (e *Executor) toleranceFor(ps ParamSpec) float64 {
	if ps.Tolerance > 0 {
		return ps.Tolerance
	}
	return e.tolerance()
}

func (e *Executor) tolerance() float64 {
	if e.cfg.IdempotencyTolerance > 0 {
		return e.cfg.IdempotencyTolerance
	}
	return defaultTolerance
}

func (e *Executor) interParamDelay() time.Duration {
	if d := e.cfg.GetInterParamDelay(); d > 0 {
		return d
	}
	return defaultInterParamDelay
}

func (e *Executor) clearSettle() time.Duration {
	if d := e.cfg.GetClearSettleDelay(); d > 0 {
		return d
	}
	return defaultClearSettle
}

func countParams(devices []DeviceSpec) int {
	total := 0
	for _, d := range devices {
		total += len(d.Params)
	}
	return total
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
