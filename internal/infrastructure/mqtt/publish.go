package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outbound payloads at 1MB, in line with common
// broker limits. Pipeline results are the largest payload the daemon
// produces and sit well under it.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic at the given QoS.
//
// Retained is for state topics (workstation state, recovery state,
// system status): the broker keeps the last message and replays it to
// new subscribers. Results and other one-shot events go unretained.
//
// QoS follows MQTT semantics: 0 fire-and-forget, 1 at-least-once,
// 2 exactly-once. The daemon publishes at the QoS configured in the
// mqtt section.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS. Used for the daemon's state topics.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// awaitTimeout waits for the broker to acknowledge a paho operation,
// folding timeouts and broker-side failures into sentinel.
func awaitTimeout(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// await applies the standard publish/subscribe ack timeout.
func await(token pahomqtt.Token, sentinel error) error {
	return awaitTimeout(token, defaultPublishTimeout, sentinel)
}
