package mqtt

import (
	"fmt"
)

// Subscribe registers handler for messages on topic and adds the
// subscription to the restore set so it survives reconnects.
//
// Topics accept MQTT wildcards: + matches one level
// ("livelogic/health/+" is every component's health), # matches the
// rest of the tree. The daemon's own intake is a single exact topic,
// the pipeline request queue.
//
// Handlers run on paho's goroutines; a returned error is logged and
// the message is still acknowledged.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := await(token, ErrSubscribeFailed); err != nil {
		c.forgetSubscription(topic)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for topic and drops it from the restore
// set. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forgetSubscription(topic)

	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

func (c *Client) forgetSubscription(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether topic is in the restore set. Exact
// string match only, no wildcard expansion.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
