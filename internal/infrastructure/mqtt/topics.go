package mqtt

import "fmt"

// Topic prefixes for the Live Logic MQTT surface.
//
// All topics use the flat scheme: livelogic/{category}/{...}
const (
	// TopicPrefix is the base for all Live Logic topics.
	TopicPrefix = "livelogic"

	// TopicPrefixPipeline is the base for pipeline request/result topics.
	TopicPrefixPipeline = "livelogic/pipeline"

	// TopicPrefixSystem is the base for daemon status and shutdown topics.
	TopicPrefixSystem = "livelogic/system"
)

// Topics builds every Live Logic topic string; hand-assembled paths
// drift, so all publishes and subscriptions go through these methods.
//
//	topics := mqtt.Topics{}
//	resultTopic := topics.PipelineResult("run-abc123")
//	// "livelogic/pipeline/result/run-abc123"
type Topics struct{}

// =============================================================================
// Pipeline Topics
// =============================================================================

// PipelineRequest returns the topic the daemon watches for device-chain plans.
//
// Payloads are JSON-encoded plans; each is executed in submission order and
// answered on the matching result topic.
//
// Example: livelogic/pipeline/request
func (Topics) PipelineRequest() string {
	return fmt.Sprintf("%s/request", TopicPrefixPipeline)
}

// PipelineResult returns the topic a run's result is published to.
//
// Example: livelogic/pipeline/result/run-abc123
func (Topics) PipelineResult(runID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefixPipeline, runID)
}

// =============================================================================
// Health and Recovery Topics
// =============================================================================

// Health returns the health topic for a component.
//
// Example: livelogic/health/osc
func (Topics) Health(component string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, component)
}

// RecoveryState returns the topic for crash-recovery state transitions.
//
// Example: livelogic/recovery/state
func (Topics) RecoveryState() string {
	return fmt.Sprintf("%s/recovery/state", TopicPrefix)
}

// WorkstationState returns the topic for workstation supervisor events
// (started, restarted, stopped).
//
// Example: livelogic/live/state
func (Topics) WorkstationState() string {
	return fmt.Sprintf("%s/live/state", TopicPrefix)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the daemon online/offline status topic, also
// used for the broker Last Will.
//
// Example: livelogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the topic a remote shutdown request arrives on.
//
// Example: livelogic/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllPipelineResults returns a pattern matching every run result.
//
// Pattern: livelogic/pipeline/result/+
func (Topics) AllPipelineResults() string {
	return fmt.Sprintf("%s/result/+", TopicPrefixPipeline)
}

// AllHealth returns a pattern matching all component health updates.
//
// Pattern: livelogic/health/+
func (Topics) AllHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Live Logic topics.
// Debugging aid; subscribing to it sees every message on the bus.
//
// Pattern: livelogic/#
func (Topics) AllTopics() string {
	return "livelogic/#"
}
