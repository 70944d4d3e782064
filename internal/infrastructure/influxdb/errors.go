package influxdb

import "errors"

var (
	// ErrNotConnected means the client was closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed initial ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the config section is
	// off; the daemon treats it as "run without telemetry". Write
	// failures carry no sentinel, they surface through the SetOnError
	// callback instead.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
