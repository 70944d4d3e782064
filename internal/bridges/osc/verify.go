package osc

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Fallbacks for verification settings left zero in both VerifyOptions
// and the configuration.
const (
	defaultVerifyRetries   = 3
	defaultVerifyBaseDelay = 100 * time.Millisecond
	defaultVerifyMaxDelay  = 2 * time.Second
	defaultVerifyTolerance = 0.02
)

// VerifyOptions tunes the verified-set read-back loop. Zero-valued
// fields fall back to the client configuration, then to the package
// defaults.
type VerifyOptions struct {
	// Verify disables the read-back loop entirely when false: the
	// value is written once and reported unverified.
	Verify bool

	// Retries is the maximum number of write attempts.
	Retries int

	// BaseDelay is the backoff after the first failed attempt. Each
	// subsequent attempt doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// GetTimeout bounds each read-back query.
	GetTimeout time.Duration

	// Tolerance is the maximum |actual-target| accepted for float
	// targets. Integer and boolean targets compare exactly.
	Tolerance float64
}

// SetResult reports the outcome of a verified set.
type SetResult struct {
	// Success is true when the value was written to the transport.
	Success bool

	// Verified is true when a read-back confirmed the value. False
	// with Success true means the write went out but confirmation
	// never arrived, or the workstation kept reporting a different
	// value. The caller decides how severe that is.
	Verified bool

	// Attempts is the number of write attempts made.
	Attempts int

	// Actual is the last value the workstation reported, when any
	// read-back succeeded.
	Actual float64
}

// setRequest couples a write with the query that confirms it. expect is
// the target value: int and bool compare exactly, floats within
// tolerance.
type setRequest struct {
	setAddress string
	setArgs    []any
	getAddress string
	getArgs    []any
	expect     any
}

// SetParameterVerified writes a device parameter and confirms it by
// reading the value back. See VerifyOptions for the retry behavior.
func (c *Client) SetParameterVerified(ctx context.Context, track, device, param int, value float64, opts VerifyOptions) (SetResult, error) {
	return c.verifiedSet(ctx, setRequest{
		setAddress: addrSetParamValue,
		setArgs:    []any{track, device, param, value},
		getAddress: addrGetParamValue,
		getArgs:    []any{track, device, param},
		expect:     value,
	}, opts)
}

// SetTempoVerified writes the song tempo and confirms it by read-back.
// Tempo compares in BPM, so callers usually want a looser tolerance
// than the normalized parameter default.
func (c *Client) SetTempoVerified(ctx context.Context, bpm float64, opts VerifyOptions) (SetResult, error) {
	return c.verifiedSet(ctx, setRequest{
		setAddress: addrSetTempo,
		setArgs:    []any{bpm},
		getAddress: addrGetTempo,
		expect:     bpm,
	}, opts)
}

// SetTrackVolumeVerified writes a track mixer volume and confirms it by
// read-back.
func (c *Client) SetTrackVolumeVerified(ctx context.Context, track int, volume float64, opts VerifyOptions) (SetResult, error) {
	return c.verifiedSet(ctx, setRequest{
		setAddress: addrSetTrackVolume,
		setArgs:    []any{track, volume},
		getAddress: addrGetTrackVolume,
		getArgs:    []any{track},
		expect:     volume,
	}, opts)
}

// DefaultVerifyOptions returns the client's configured verification
// settings with Verify enabled.
func (c *Client) DefaultVerifyOptions() VerifyOptions {
	return c.fillVerifyDefaults(VerifyOptions{Verify: true})
}

// verifiedSet writes a value and confirms it by read-back.
//
// Each attempt sends the set, queries the current value and compares
// against the target. Failed attempts back off exponentially from
// BaseDelay up to MaxDelay. Exhausting every attempt is not an error:
// the result reports Success true with Verified false and the caller
// decides severity. Only transport failures and context cancellation
// return an error.
func (c *Client) verifiedSet(ctx context.Context, req setRequest, opts VerifyOptions) (SetResult, error) {
	opts = c.fillVerifyDefaults(opts)

	if !opts.Verify {
		if err := c.Send(ctx, req.setAddress, req.setArgs...); err != nil {
			return SetResult{Attempts: 1}, err
		}
		return SetResult{Success: true, Attempts: 1}, nil
	}

	var result SetResult
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		result.Attempts = attempt

		if err := c.Send(ctx, req.setAddress, req.setArgs...); err != nil {
			return result, err
		}
		result.Success = true

		reply, err := c.query(ctx, opts.GetTimeout, req.getAddress, req.getArgs...)
		if err == nil {
			actual, ok := compareReply(reply, req.expect, opts.Tolerance)
			result.Actual = actual
			if ok {
				result.Verified = true
				return result, nil
			}
		} else if ctx.Err() != nil {
			return result, fmt.Errorf("verify %s: %w", req.setAddress, ctx.Err())
		}

		if attempt < opts.Retries {
			if err := sleepContext(ctx, backoffDelay(opts.BaseDelay, opts.MaxDelay, attempt)); err != nil {
				return result, err
			}
		}
	}

	c.logDebug("verification exhausted",
		"address", req.setAddress,
		"attempts", result.Attempts,
		"actual", result.Actual,
	)
	return result, nil
}

func (c *Client) fillVerifyDefaults(opts VerifyOptions) VerifyOptions {
	v := c.cfg.Verify
	if opts.Retries <= 0 {
		opts.Retries = v.Retries
		if opts.Retries <= 0 {
			opts.Retries = defaultVerifyRetries
		}
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = v.GetBaseDelay()
		if opts.BaseDelay <= 0 {
			opts.BaseDelay = defaultVerifyBaseDelay
		}
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = v.GetMaxDelay()
		if opts.MaxDelay <= 0 {
			opts.MaxDelay = defaultVerifyMaxDelay
		}
	}
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = c.queryTimeout()
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = v.Tolerance
		if opts.Tolerance <= 0 {
			opts.Tolerance = defaultVerifyTolerance
		}
	}
	return opts
}

// compareReply extracts the reported value from a read-back reply and
// checks it against the target. The reply echoes the request indices,
// so the reported value is the final numeric argument.
func compareReply(msg Message, expect any, tolerance float64) (actual float64, ok bool) {
	v, found := lastNumeric(msg)
	if !found {
		return 0, false
	}
	switch want := expect.(type) {
	case int:
		return v, v == float64(want)
	case bool:
		target := 0.0
		if want {
			target = 1.0
		}
		return v, v == target
	case float64:
		return v, math.Abs(v-want) <= tolerance
	case float32:
		return v, math.Abs(v-float64(want)) <= tolerance
	default:
		return v, false
	}
}

// backoffDelay computes min(base*2^(attempt-1), max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// sleepContext pauses for d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
