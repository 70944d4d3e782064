package param

import "errors"

// Domain errors for parameter operations.
var (
	// ErrParameterNotFound indicates no parameter matched the requested
	// name on the target device.
	ErrParameterNotFound = errors.New("param: parameter not found")

	// ErrDeviceNotAccessible indicates the device answered discovery
	// with an empty parameter list.
	ErrDeviceNotAccessible = errors.New("param: device not accessible")
)
