package param

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/live-logic-core/internal/bridges/osc"
	"github.com/nerrad567/live-logic-core/internal/catalog"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
)

// Transport is the command-channel surface the controller consumes.
// *osc.Client satisfies it.
type Transport interface {
	DeviceCount(ctx context.Context, track int) (int, error)
	DeviceName(ctx context.Context, track, device int) (string, error)
	ParameterNames(ctx context.Context, track, device int) ([]string, error)
	ParameterRanges(ctx context.Context, track, device int) (mins, maxs []float64, err error)
	ParameterValue(ctx context.Context, track, device, param int) (float64, error)
	SetParameterVerified(ctx context.Context, track, device, param int, value float64, opts osc.VerifyOptions) (osc.SetResult, error)
	DefaultVerifyOptions() osc.VerifyOptions
}

// DeviceLoader is the loader-channel surface the controller consumes.
// *osc.Loader satisfies it.
type DeviceLoader interface {
	LoadDevice(ctx context.Context, track int, name string, position int) error
	DeleteDevice(ctx context.Context, track, device int) error
}

// Logger is the logging interface for the controller.
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

// Fallbacks when the corresponding config values are unset.
const (
	defaultReadyTimeout  = 8 * time.Second
	defaultReadyInterval = 150 * time.Millisecond
	defaultLoadSettle    = 500 * time.Millisecond
	defaultInterSetDelay = 50 * time.Millisecond

	// readyQueryTimeout bounds each poll query so a dead transport
	// cannot eat the whole readiness window in one call.
	readyQueryTimeout = time.Second
)

// Controller couples discovery, the cache, the catalog and the curve
// normalizer into by-name device and parameter operations.
//
// All methods are safe for concurrent use; the cache carries the only
// shared state.
type Controller struct {
	transport Transport
	loader    DeviceLoader
	catalog   *catalog.Catalog
	cache     *Cache
	cfg       config.ParamsConfig
	logger    Logger
}

// NewController creates a controller over the given transport and
// loader. A nil catalog falls back to the builtin tables; a nil
// logger discards.
func NewController(transport Transport, loader DeviceLoader, cat *catalog.Catalog, cfg config.ParamsConfig, logger Logger) *Controller {
	if cat == nil {
		cat = catalog.Builtin()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		transport: transport,
		loader:    loader,
		catalog:   cat,
		cache:     NewCache(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Cache exposes the device info cache, mainly for invalidation by
// callers that mutate the set outside this controller.
func (c *Controller) Cache() *Cache {
	return c.cache
}

// Info returns device info from the cache, discovering on a miss.
func (c *Controller) Info(ctx context.Context, track, device int) (*DeviceInfo, error) {
	if info, ok := c.cache.Get(track, device); ok {
		return info, nil
	}
	return c.Refresh(ctx, track, device)
}

// Refresh rediscovers a device slot, replacing any cached entry.
//
// Discovery runs three queries: parameter names, then declared mins
// and maxs. A device that answers with zero names is recorded as not
// accessible, which is how plugins behave before their editor has
// been opened.
func (c *Controller) Refresh(ctx context.Context, track, device int) (*DeviceInfo, error) {
	names, err := c.transport.ParameterNames(ctx, track, device)
	if err != nil {
		return nil, err
	}

	info := &DeviceInfo{Track: track, Device: device}

	// Best effort; a nameless entry is still usable.
	if name, err := c.transport.DeviceName(ctx, track, device); err == nil {
		info.Name = name
	}

	if len(names) == 0 {
		c.cache.Put(info)
		c.logger.Warn("device not accessible", "track", track, "device", device, "name", info.Name)
		return info, nil
	}

	info.Accessible = true
	info.Params = make([]ParameterDescriptor, len(names))
	for i, name := range names {
		info.Params[i] = ParameterDescriptor{Index: i, Name: name, Min: 0, Max: 1}
	}

	mins, maxs, err := c.transport.ParameterRanges(ctx, track, device)
	if err != nil {
		c.logger.Warn("parameter range query failed, assuming 0..1",
			"track", track, "device", device, "error", err)
	} else {
		for i := range info.Params {
			if i < len(mins) {
				info.Params[i].Min = mins[i]
			}
			if i < len(maxs) {
				info.Params[i].Max = maxs[i]
			}
		}
	}

	c.cache.Put(info)
	c.logger.Debug("device discovered",
		"track", track, "device", device, "name", info.Name, "params", len(info.Params))
	return info, nil
}

// WaitForDeviceReady polls the uncached parameter name query until the
// device answers with a non-empty list or the timeout passes. The
// loader ack only means the insert was requested; the workstation
// materializes the device asynchronously.
//
// timeout <= 0 uses the configured default. Returns false on timeout;
// the only error is context cancellation.
func (c *Controller) WaitForDeviceReady(ctx context.Context, track, device int, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = c.readyTimeout()
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		queryCtx, cancel := context.WithTimeout(ctx, readyQueryTimeout)
		names, err := c.transport.ParameterNames(queryCtx, track, device)
		cancel()
		if err == nil && len(names) > 0 {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}
		if err := sleepCtx(ctx, c.readyInterval()); err != nil {
			return false, err
		}
	}
}

// LoadDeviceVerified loads a device by browser name and confirms the
// insert actually happened: count devices, issue the load, wait out
// the settle delay, poll until the count grows, then wait for the new
// slot to answer discovery. The track's cache entries are dropped
// because indices shift.
//
// The new device index is resolved by position: -1 means the end of
// the chain, anything else is the requested slot.
func (c *Controller) LoadDeviceVerified(ctx context.Context, track int, name string, position int) (LoadResult, error) {
	before, err := c.transport.DeviceCount(ctx, track)
	if err != nil {
		return LoadResult{DeviceIndex: -1, Message: "device count query failed"}, err
	}

	if err := c.loader.LoadDevice(ctx, track, name, position); err != nil {
		return LoadResult{DeviceIndex: -1, Message: "load request failed"}, err
	}

	// The remote script acks before the insert lands.
	if err := sleepCtx(ctx, c.loadSettle()); err != nil {
		return LoadResult{DeviceIndex: -1, Message: "cancelled during settle"}, err
	}

	after := before
	deadline := time.Now().Add(c.readyTimeout())
	for after <= before {
		if count, err := c.transport.DeviceCount(ctx, track); err == nil {
			after = count
		}
		if after > before {
			break
		}
		if time.Now().After(deadline) {
			c.cache.InvalidateTrack(track)
			c.logger.Warn("device load not observed",
				"track", track, "name", name, "count", before)
			return LoadResult{DeviceIndex: -1, Message: "device count did not increase"}, nil
		}
		if err := sleepCtx(ctx, c.readyInterval()); err != nil {
			return LoadResult{DeviceIndex: -1, Message: "cancelled waiting for device"}, err
		}
	}

	index := position
	if index < 0 || index >= after {
		index = after - 1
	}

	c.cache.InvalidateTrack(track)

	ready, err := c.WaitForDeviceReady(ctx, track, index, 0)
	if err != nil {
		return LoadResult{Success: true, DeviceIndex: index, Message: "cancelled waiting for readiness"}, err
	}

	msg := "loaded"
	if !ready {
		msg = "loaded; device not answering discovery yet"
	}
	c.logger.Info("device loaded",
		"track", track, "name", name, "index", index, "ready", ready)
	return LoadResult{Success: true, DeviceIndex: index, Message: msg}, nil
}

// ResolveParameter resolves a requested name to a live descriptor
// without writing anything. Callers that need the index and declared
// range before deciding whether to write, such as idempotency checks,
// use this. A miss on an accessible device returns false with no error.
func (c *Controller) ResolveParameter(ctx context.Context, track, device int, name string) (ParameterDescriptor, bool, error) {
	info, err := c.Info(ctx, track, device)
	if err != nil {
		return ParameterDescriptor{}, false, err
	}
	if !info.Accessible {
		return ParameterDescriptor{}, false, nil
	}
	desc, ok := c.resolveParameter(info, name)
	return desc, ok, nil
}

// NormalizedParameterValue reads a parameter's raw normalized value by
// index, bypassing name resolution and curve conversion.
func (c *Controller) NormalizedParameterValue(ctx context.Context, track, device, param int) (float64, error) {
	return c.transport.ParameterValue(ctx, track, device, param)
}

// DefaultVerifyOptions exposes the transport's standard verification
// policy for callers composing their own writes.
func (c *Controller) DefaultVerifyOptions() osc.VerifyOptions {
	return c.transport.DefaultVerifyOptions()
}

// SetParameterByName resolves a parameter by name and writes it with
// read-back verification. Unknown names come back as NotFound reports,
// not errors; only transport failures are errors.
func (c *Controller) SetParameterByName(ctx context.Context, track, device int, name string, value float64, opts osc.VerifyOptions) (SetReport, error) {
	report := SetReport{Name: name, Index: -1, Target: value}

	info, err := c.Info(ctx, track, device)
	if err != nil {
		return report, err
	}

	desc, ok := c.resolveParameter(info, name)
	if !ok {
		report.NotFound = true
		c.logger.Warn("parameter not found",
			"track", track, "device", device, "name", name, "device_name", info.Name)
		return report, nil
	}
	report.Resolved = desc.Name
	report.Index = desc.Index

	normalized, curve := Normalize(desc.Name, value, desc.Min, desc.Max)
	report.Curve = curve

	res, err := c.transport.SetParameterVerified(ctx, track, device, desc.Index, normalized, opts)
	report.Attempts = res.Attempts
	if err != nil {
		return report, err
	}

	report.Success = res.Success
	report.Verified = res.Verified
	report.Actual, _ = Denormalize(desc.Name, res.Actual, desc.Min, desc.Max)

	c.logger.Debug("parameter set",
		"track", track, "device", device, "param", desc.Name, "index", desc.Index,
		"curve", string(curve), "target", value, "normalized", normalized,
		"verified", res.Verified, "attempts", res.Attempts)
	return report, nil
}

// SetParametersByName writes an ordered batch, pausing between writes
// so the workstation keeps up. delayBetween <= 0 uses the default.
// Not-found names are counted separately from failed writes.
func (c *Controller) SetParametersByName(ctx context.Context, track, device int, targets []Target, delayBetween time.Duration) (BatchReport, error) {
	if delayBetween <= 0 {
		delayBetween = defaultInterSetDelay
	}

	batch := BatchReport{Total: len(targets), Reports: make([]SetReport, 0, len(targets))}
	opts := c.transport.DefaultVerifyOptions()

	for i, target := range targets {
		report, err := c.SetParameterByName(ctx, track, device, target.Name, target.Value, opts)
		batch.Reports = append(batch.Reports, report)
		switch {
		case report.NotFound:
			batch.NotFound++
		case err != nil || !report.Success:
			batch.Failed++
		default:
			batch.Succeeded++
		}
		if err != nil {
			return batch, err
		}

		if i < len(targets)-1 {
			if err := sleepCtx(ctx, delayBetween); err != nil {
				return batch, err
			}
		}
	}
	return batch, nil
}

// ReadParameterValue reads a parameter by name and converts it to
// human units.
func (c *Controller) ReadParameterValue(ctx context.Context, track, device int, name string) (float64, Curve, error) {
	info, err := c.Info(ctx, track, device)
	if err != nil {
		return 0, CurveUnknown, err
	}
	if !info.Accessible {
		return 0, CurveUnknown, fmt.Errorf("%w: track %d device %d", ErrDeviceNotAccessible, track, device)
	}

	desc, ok := c.resolveParameter(info, name)
	if !ok {
		return 0, CurveUnknown, fmt.Errorf("%w: %q on %q", ErrParameterNotFound, name, info.Name)
	}

	raw, err := c.transport.ParameterValue(ctx, track, device, desc.Index)
	if err != nil {
		return 0, CurveUnknown, err
	}

	human, curve := Denormalize(desc.Name, raw, desc.Min, desc.Max)
	return human, curve, nil
}

// SetDeviceEnabled toggles a device's on/off switch, parameter index
// zero on every stock device.
func (c *Controller) SetDeviceEnabled(ctx context.Context, track, device int, enabled bool) (osc.SetResult, error) {
	value := 0.0
	if enabled {
		value = 1.0
	}
	return c.transport.SetParameterVerified(ctx, track, device, 0, value, c.transport.DefaultVerifyOptions())
}

// DeleteDevice removes a device through the loader channel and drops
// the track's cache entries, since following indices shift down.
func (c *Controller) DeleteDevice(ctx context.Context, track, device int) error {
	if err := c.loader.DeleteDevice(ctx, track, device); err != nil {
		return err
	}
	c.cache.InvalidateTrack(track)
	c.logger.Info("device deleted", "track", track, "device", device)
	return nil
}

// resolveParameter resolves a requested name against live info: the
// catalog's semantic mapping first (mapped name, then its measured
// fallback index), then a direct lookup with alias normalization.
func (c *Controller) resolveParameter(info *DeviceInfo, name string) (ParameterDescriptor, bool) {
	if sem, ok := c.catalog.Semantic(info.Name, name); ok {
		if desc, ok := info.FindParameter(sem.Name); ok {
			return desc, true
		}
		if sem.FallbackIndex >= 0 && sem.FallbackIndex < len(info.Params) {
			return info.Params[sem.FallbackIndex], true
		}
	}
	return info.FindParameter(c.catalog.NormalizeParamName(name))
}

func (c *Controller) readyTimeout() time.Duration {
	if d := c.cfg.GetReadyTimeout(); d > 0 {
		return d
	}
	return defaultReadyTimeout
}

func (c *Controller) readyInterval() time.Duration {
	if d := c.cfg.GetReadyPollInterval(); d > 0 {
		return d
	}
	return defaultReadyInterval
}

func (c *Controller) loadSettle() time.Duration {
	if d := c.cfg.GetLoadSettleDelay(); d > 0 {
		return d
	}
	return defaultLoadSettle
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
