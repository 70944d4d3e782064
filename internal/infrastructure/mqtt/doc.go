// Package mqtt is the daemon's command and telemetry bus.
//
// Plan producers submit device-chain plans on the pipeline request
// topic and watch per-run result topics; the daemon publishes component
// health, recovery state transitions, and workstation supervisor events
// on the livelogic/ tree. Topic strings come from the Topics builders,
// never from hand-assembled paths.
//
// The client wraps eclipse/paho with auto-reconnect, replaying tracked
// subscriptions after each reconnect. State topics (workstation state,
// recovery state, system status) are published retained so late joiners
// see current state immediately, and a Last Will marks the daemon
// offline if the session dies without a graceful Close.
//
// Anonymous plaintext connections are for local development only; set
// broker TLS and credentials for anything beyond localhost.
package mqtt
