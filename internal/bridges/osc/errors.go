package osc

import "errors"

// Domain errors for workstation OSC operations.
var (
	// ErrNotRunning indicates the client has been closed or never started.
	ErrNotRunning = errors.New("osc: client not running")

	// ErrConnectionFailed indicates a UDP socket could not be set up.
	ErrConnectionFailed = errors.New("osc: connection failed")

	// ErrInvalidMessage indicates a datagram that does not decode as OSC 1.0.
	ErrInvalidMessage = errors.New("osc: invalid message")

	// ErrUnsupportedType indicates an argument type with no OSC 1.0 encoding.
	ErrUnsupportedType = errors.New("osc: unsupported argument type")

	// ErrArgument indicates a reply argument is missing or of the wrong type.
	ErrArgument = errors.New("osc: argument mismatch")

	// ErrSendFailed indicates a datagram could not be written.
	ErrSendFailed = errors.New("osc: send failed")

	// ErrQueryTimeout indicates no reply arrived before the deadline.
	ErrQueryTimeout = errors.New("osc: query timed out")

	// ErrLoaderTimeout indicates the loader script did not acknowledge in time.
	ErrLoaderTimeout = errors.New("osc: loader ack timed out")
)
