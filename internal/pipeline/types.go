package pipeline

import (
	"fmt"
	"strings"
)

// Phase identifies the stage a run has reached.
type Phase string

const (
	PhasePlan    Phase = "plan"
	PhaseExecute Phase = "execute"
	PhaseVerify  Phase = "verify"
	PhaseReport  Phase = "report"
)

// Validation constants.
const (
	defaultMaxDevices = 16
	maxDescriptionLen = 500
)

// Plan is a complete rig-building request: an ordered device chain for
// one track, produced upstream in a single advisory call and executed
// here without further advice.
type Plan struct {
	// TrackIndex is the 0-based target track.
	TrackIndex int `json:"track_index"`

	// Devices is the ordered chain to load (signal flow order).
	Devices []DeviceSpec `json:"devices"`

	// Description of what the chain achieves (optional).
	Description string `json:"description,omitempty"`

	// ClearExisting removes all devices from the track first.
	ClearExisting bool `json:"clear_existing"`

	// DryRun validates and resolves without touching the workstation.
	DryRun bool `json:"dry_run"`

	// Retry marks this plan as a retry of a failed intent, which widens
	// the advisory call budget by one.
	Retry bool `json:"retry"`
}

// DeviceSpec is a single device to load with its parameter targets.
type DeviceSpec struct {
	// Name is the requested device name. Non-stock names resolve
	// through the fallback table.
	Name string `json:"name"`

	// Purpose is a human-readable role hint (optional).
	Purpose string `json:"purpose,omitempty"`

	// Params are the targets to set after loading, in order.
	Params []ParamSpec `json:"params,omitempty"`

	// Enabled bypasses the device when false. Nil means enabled.
	Enabled *bool `json:"enabled,omitempty"`

	// Fallback is an explicit substitute tried when the primary fails
	// to load, ahead of the keyword chain.
	Fallback string `json:"fallback,omitempty"`
}

// IsEnabled reports whether the device should stay active after its
// parameters are set.
func (d DeviceSpec) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// ParamSpec is one parameter target in human units (Hz, dB, ms, percent).
type ParamSpec struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`

	// Tolerance overrides the normalized-space idempotency tolerance
	// for this target. Zero uses the configured default.
	Tolerance float64 `json:"tolerance,omitempty"`
}

// Validate checks a plan before any workstation traffic.
// maxDevices <= 0 uses the default limit.
// Returns an error wrapping ErrInvalidPlan describing the first
// failure found.
func (p *Plan) Validate(maxDevices int) error {
	if maxDevices <= 0 {
		maxDevices = defaultMaxDevices
	}

	if p.TrackIndex < 0 {
		return fmt.Errorf("%w: track index must be >= 0", ErrInvalidPlan)
	}
	if len(p.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidPlan, maxDescriptionLen)
	}
	if len(p.Devices) == 0 {
		return fmt.Errorf("%w: at least one device is required", ErrInvalidPlan)
	}
	if len(p.Devices) > maxDevices {
		return fmt.Errorf("%w: exceeds maximum of %d devices", ErrInvalidPlan, maxDevices)
	}

	for i, d := range p.Devices {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: device[%d]: name is required", ErrInvalidPlan, i)
		}
		for j, ps := range d.Params {
			if strings.TrimSpace(ps.Name) == "" {
				return fmt.Errorf("%w: device[%d] param[%d]: name is required", ErrInvalidPlan, i, j)
			}
			if ps.Tolerance < 0 {
				return fmt.Errorf("%w: device[%d] param[%d]: tolerance must be >= 0", ErrInvalidPlan, i, j)
			}
		}
	}
	return nil
}

// ParamResult is the outcome of one parameter target.
type ParamResult struct {
	Name           string  `json:"name"`
	RequestedValue float64 `json:"requested_value"`

	// ActualValue is the read-back value in human units, set when the
	// write was verified or re-read. Nil when no readback succeeded.
	ActualValue *float64 `json:"actual_value,omitempty"`

	Success  bool `json:"success"`
	Verified bool `json:"verified"`

	// SkippedIdempotent marks a target that already held within
	// tolerance; no datagram was sent.
	SkippedIdempotent bool `json:"skipped_idempotent"`

	Error string `json:"error,omitempty"`
}

// DeviceResult is the outcome of loading and configuring one device.
type DeviceResult struct {
	// Name is the device actually loaded (after fallback resolution).
	Name string `json:"name"`

	// RequestedName is what the plan asked for.
	RequestedName string `json:"requested_name"`

	// DeviceIndex is the slot the device landed in, -1 when unknown.
	DeviceIndex int `json:"device_index"`

	Loaded     bool `json:"loaded"`
	IsFallback bool `json:"is_fallback"`

	Params []ParamResult `json:"params,omitempty"`
	Error  string        `json:"error,omitempty"`

	LoadTimeMS  float64 `json:"load_time_ms"`
	ParamTimeMS float64 `json:"param_time_ms"`
}

// Result is the complete report for one run.
type Result struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`
	Phase   Phase  `json:"phase_reached"`

	TrackIndex  int    `json:"track_index"`
	TrackName   string `json:"track_name,omitempty"`
	Description string `json:"description,omitempty"`
	DryRun      bool   `json:"dry_run"`

	Devices []DeviceResult `json:"devices"`

	TotalDevicesPlanned int `json:"total_devices_planned"`
	TotalDevicesLoaded  int `json:"total_devices_loaded"`
	TotalParamsPlanned  int `json:"total_params_planned"`
	TotalParamsSet      int `json:"total_params_set"`
	TotalParamsVerified int `json:"total_params_verified"`
	TotalParamsSkipped  int `json:"total_params_skipped_idempotent"`

	// AdvisoryCallsUsed is the number of advisory calls charged to this
	// run: always 1, the call that produced the plan.
	AdvisoryCallsUsed int `json:"advisory_calls_used"`

	TotalTimeMS float64 `json:"total_time_ms"`

	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
