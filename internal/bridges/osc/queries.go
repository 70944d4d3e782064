package osc

import (
	"context"
	"fmt"
	"strconv"
)

// Workstation OSC address space. The /live tree is served by the
// AbletonOSC-compatible bridge inside the workstation; the /loader tree
// lives in loader.go.
const (
	addrGetTempo         = "/live/song/get/tempo"
	addrSetTempo         = "/live/song/set/tempo"
	addrGetTrackNames    = "/live/song/get/track_names"
	addrGetNumTracks     = "/live/song/get/num_tracks"
	addrGetTrackVolume   = "/live/track/get/volume"
	addrSetTrackVolume   = "/live/track/set/volume"
	addrGetNumDevices    = "/live/track/get/num_devices"
	addrGetDeviceNames   = "/live/track/get/devices/name"
	addrGetDeviceName    = "/live/device/get/name"
	addrGetDeviceClass   = "/live/device/get/class_name"
	addrGetParamNames    = "/live/device/get/parameters/name"
	addrGetParamValues   = "/live/device/get/parameters/value"
	addrGetParamMins     = "/live/device/get/parameters/min"
	addrGetParamMaxs     = "/live/device/get/parameters/max"
	addrGetParamValue    = "/live/device/get/parameter/value"
	addrSetParamValue    = "/live/device/set/parameter/value"
	addrGetParamValueStr = "/live/device/get/parameter/value_string"
)

// Tempo reads the song tempo in BPM.
func (c *Client) Tempo(ctx context.Context) (float64, error) {
	msg, err := c.Query(ctx, addrGetTempo)
	if err != nil {
		return 0, err
	}
	v, ok := lastNumeric(msg)
	if !ok {
		return 0, fmt.Errorf("%w: no tempo in %s", ErrArgument, msg)
	}
	return v, nil
}

// SetTempo sets the song tempo without read-back. Use SetTempoVerified
// when confirmation matters.
func (c *Client) SetTempo(ctx context.Context, bpm float64) error {
	return c.Send(ctx, addrSetTempo, bpm)
}

// TrackCount reads the number of tracks in the song.
func (c *Client) TrackCount(ctx context.Context) (int, error) {
	msg, err := c.Query(ctx, addrGetNumTracks)
	if err != nil {
		return 0, err
	}
	v, ok := lastNumeric(msg)
	if !ok {
		return 0, fmt.Errorf("%w: no track count in %s", ErrArgument, msg)
	}
	return int(v), nil
}

// TrackNames reads the names of all tracks in order.
func (c *Client) TrackNames(ctx context.Context) ([]string, error) {
	msg, err := c.Query(ctx, addrGetTrackNames)
	if err != nil {
		return nil, err
	}
	return stringArgs(msg), nil
}

// TrackVolume reads a track mixer volume in its normalized 0..1 range.
func (c *Client) TrackVolume(ctx context.Context, track int) (float64, error) {
	msg, err := c.Query(ctx, addrGetTrackVolume, track)
	if err != nil {
		return 0, err
	}
	v, ok := lastNumeric(msg)
	if !ok {
		return 0, fmt.Errorf("%w: no volume in %s", ErrArgument, msg)
	}
	return v, nil
}

// SetTrackVolume sets a track mixer volume without read-back.
func (c *Client) SetTrackVolume(ctx context.Context, track int, volume float64) error {
	return c.Send(ctx, addrSetTrackVolume, track, volume)
}

// DeviceCount reads the number of devices on a track.
func (c *Client) DeviceCount(ctx context.Context, track int) (int, error) {
	msg, err := c.Query(ctx, addrGetNumDevices, track)
	if err != nil {
		return 0, err
	}
	v, ok := lastNumeric(msg)
	if !ok {
		return 0, fmt.Errorf("%w: no device count in %s", ErrArgument, msg)
	}
	return int(v), nil
}

// DeviceNames reads the device names on a track in chain order.
func (c *Client) DeviceNames(ctx context.Context, track int) ([]string, error) {
	msg, err := c.Query(ctx, addrGetDeviceNames, track)
	if err != nil {
		return nil, err
	}
	return stringArgs(msg), nil
}

// DeviceName reads the display name of one device.
func (c *Client) DeviceName(ctx context.Context, track, device int) (string, error) {
	msg, err := c.Query(ctx, addrGetDeviceName, track, device)
	if err != nil {
		return "", err
	}
	s, ok := lastString(msg)
	if !ok {
		return "", fmt.Errorf("%w: no device name in %s", ErrArgument, msg)
	}
	return s, nil
}

// DeviceClassName reads the device class, e.g. "Compressor2", or
// "PluginDevice" for third-party plugins.
func (c *Client) DeviceClassName(ctx context.Context, track, device int) (string, error) {
	msg, err := c.Query(ctx, addrGetDeviceClass, track, device)
	if err != nil {
		return "", err
	}
	s, ok := lastString(msg)
	if !ok {
		return "", fmt.Errorf("%w: no class name in %s", ErrArgument, msg)
	}
	return s, nil
}

// ParameterNames reads the names of every parameter on a device, in
// parameter index order.
func (c *Client) ParameterNames(ctx context.Context, track, device int) ([]string, error) {
	msg, err := c.Query(ctx, addrGetParamNames, track, device)
	if err != nil {
		return nil, err
	}
	return stringArgs(msg), nil
}

// ParameterValues reads the current values of every parameter on a
// device, index-aligned with ParameterNames.
func (c *Client) ParameterValues(ctx context.Context, track, device int) ([]float64, error) {
	msg, err := c.Query(ctx, addrGetParamValues, track, device)
	if err != nil {
		return nil, err
	}
	return floatArgs(msg), nil
}

// ParameterRanges reads the min and max arrays for every parameter on a
// device. Both arrays are index-aligned with ParameterNames.
func (c *Client) ParameterRanges(ctx context.Context, track, device int) (mins, maxs []float64, err error) {
	minMsg, err := c.Query(ctx, addrGetParamMins, track, device)
	if err != nil {
		return nil, nil, err
	}
	maxMsg, err := c.Query(ctx, addrGetParamMaxs, track, device)
	if err != nil {
		return nil, nil, err
	}
	return floatArgs(minMsg), floatArgs(maxMsg), nil
}

// ParameterValue reads a single parameter value.
func (c *Client) ParameterValue(ctx context.Context, track, device, param int) (float64, error) {
	msg, err := c.Query(ctx, addrGetParamValue, track, device, param)
	if err != nil {
		return 0, err
	}
	v, ok := lastNumeric(msg)
	if !ok {
		return 0, fmt.Errorf("%w: no value in %s", ErrArgument, msg)
	}
	return v, nil
}

// ParameterValueString reads the human display string for a parameter,
// e.g. "-18.0 dB". Older workstation bridges lack the endpoint and
// reply on the plain value address instead, so both reply addresses are
// accepted and a numeric reply is formatted as text.
func (c *Client) ParameterValueString(ctx context.Context, track, device, param int) (string, error) {
	accept := []string{
		addrGetParamValueStr,
		addrGetParamValueStr + "/response",
		addrGetParamValue,
		addrGetParamValue + "/response",
	}
	msg, err := c.queryAccept(ctx, c.queryTimeout(), addrGetParamValueStr, accept, track, device, param)
	if err != nil {
		return "", err
	}
	if s, ok := lastString(msg); ok {
		return s, nil
	}
	if v, ok := lastNumeric(msg); ok {
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("%w: no display value in %s", ErrArgument, msg)
}

// SetParameter writes a device parameter value without read-back. Use
// SetParameterVerified when confirmation matters.
func (c *Client) SetParameter(ctx context.Context, track, device, param int, value float64) error {
	return c.Send(ctx, addrSetParamValue, track, device, param, value)
}

// lastNumeric returns the final numeric argument of a reply. Replies
// echo the request indices before the value, so the value of interest
// is always the last numeric.
func lastNumeric(msg Message) (float64, bool) {
	for i := len(msg.Arguments) - 1; i >= 0; i-- {
		switch v := msg.Arguments[i].(type) {
		case float32:
			return float64(v), true
		case int32:
			return float64(v), true
		case bool:
			if v {
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

// lastString returns the final string argument of a reply.
func lastString(msg Message) (string, bool) {
	for i := len(msg.Arguments) - 1; i >= 0; i-- {
		if s, ok := msg.Arguments[i].(string); ok {
			return s, true
		}
	}
	return "", false
}

// stringArgs collects the string arguments of a list reply. Leading
// integer echoes of the request indices are skipped by type.
func stringArgs(msg Message) []string {
	out := make([]string, 0, len(msg.Arguments))
	for _, arg := range msg.Arguments {
		if s, ok := arg.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// floatArgs collects the numeric arguments of a list reply after
// stripping the leading track and device index echoes when present.
func floatArgs(msg Message) []float64 {
	args := msg.Arguments
	if len(args) >= 2 {
		_, ok0 := args[0].(int32)
		_, ok1 := args[1].(int32)
		if ok0 && ok1 {
			args = args[2:]
		}
	}
	out := make([]float64, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case float32:
			out = append(out, float64(v))
		case int32:
			out = append(out, float64(v))
		}
	}
	return out
}
