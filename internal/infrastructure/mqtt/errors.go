package mqtt

import "errors"

// Sentinels, matched with errors.Is. Wrapped forms carry the paho
// detail.
var (
	// ErrNotConnected: operation attempted on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed: initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed: publish rejected, timed out, or oversized.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed / ErrUnsubscribeFailed: broker refused or the
	// token timed out.
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS: level outside 0, 1, 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic: empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
