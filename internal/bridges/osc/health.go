package osc

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthInterval is used when the configuration leaves the
// reporting interval zero.
const defaultHealthInterval = 30 * time.Second

// HealthStatus represents the health state of the OSC service.
type HealthStatus string

// Health status values published to the health topic.
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage is the payload published to the health topic.
type HealthMessage struct {
	Component     string               `json:"component"`
	Timestamp     time.Time            `json:"timestamp"`
	Status        HealthStatus         `json:"status"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Connection    *ConnectionStatus    `json:"connection,omitempty"`
	Statistics    *TransportStatistics `json:"statistics,omitempty"`
	RecoveryState string               `json:"recovery_state,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

// ConnectionStatus describes the command-channel socket state.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Address string `json:"address"`
}

// TransportStatistics carries transport counters for health payloads.
type TransportStatistics struct {
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	RepliesUnmatched uint64 `json:"replies_unmatched"`
	Errors           uint64 `json:"errors"`
	LoaderRequests   uint64 `json:"loader_requests"`
	LoaderAcks       uint64 `json:"loader_acks"`
}

// HealthPublisher is the MQTT surface the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Component string
	Version   string
	Topic     string
	Interval  time.Duration
	Publisher HealthPublisher
	Client    *Client
	Loader    *Loader
	Logger    Logger
}

// HealthReporter periodically publishes OSC service health to MQTT as a
// retained message, so subscribers see the latest state immediately.
type HealthReporter struct {
	component string
	version   string
	topic     string
	startTime time.Time
	interval  time.Duration

	publisher HealthPublisher
	client    *Client
	loader    *Loader

	recoveryState string
	stateMu       sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Interval defaults to 30
// seconds when zero.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		component: cfg.Component,
		version:   cfg.Version,
		topic:     cfg.Topic,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		client:    cfg.Client,
		loader:    cfg.Loader,
		done:      make(chan struct{}),
		logger:    cfg.Logger,
	}
}

// Start begins periodic reporting. An initial "starting" report goes
// out immediately.
func (h *HealthReporter) Start(ctx context.Context) {
	h.publishStatus(HealthStarting, "")

	h.wg.Add(1)
	go h.reportLoop(ctx)

	h.logInfo("health reporter started", "topic", h.topic, "interval", h.interval)
}

// Stop halts reporting and publishes a final best-effort "stopping"
// status. Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.publishStatus(HealthStopping, "shutdown requested")
		h.logInfo("health reporter stopped")
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// SetRecoveryState records the recovery manager state for inclusion in
// health payloads and status determination.
func (h *HealthReporter) SetRecoveryState(state string) {
	h.stateMu.Lock()
	h.recoveryState = state
	h.stateMu.Unlock()
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.PublishNow()
		case <-ctx.Done():
			return
		case <-h.done:
			return
		}
	}
}

// determineStatus derives the health status from the MQTT connection,
// the transport and the recovery state, in that order.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.client == nil || !h.client.IsRunning() {
		return HealthUnhealthy, "OSC transport closed"
	}

	h.stateMu.RLock()
	state := h.recoveryState
	h.stateMu.RUnlock()

	switch state {
	case "", "healthy":
		return HealthHealthy, ""
	case "exhausted":
		return HealthUnhealthy, "recovery exhausted"
	default:
		return HealthDegraded, "recovery state " + state
	}
}

func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Component:     h.component,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	h.stateMu.RLock()
	msg.RecoveryState = h.recoveryState
	h.stateMu.RUnlock()

	if h.client != nil {
		stats := h.client.GetStats()
		connStatus := "closed"
		if stats.Running {
			connStatus = "running"
		}
		msg.Connection = &ConnectionStatus{
			Status:  connStatus,
			Address: h.client.RemoteAddr().String(),
		}

		st := &TransportStatistics{
			MessagesSent:     stats.MessagesSent,
			MessagesReceived: stats.MessagesReceived,
			RepliesUnmatched: stats.RepliesUnmatched,
			Errors:           stats.Errors,
		}
		if h.loader != nil {
			ls := h.loader.GetStats()
			st.LoaderRequests = ls.Requests
			st.LoaderAcks = ls.Acks
		}
		msg.Statistics = st
	}

	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		h.logError("health payload marshal failed", "error", err)
		return err
	}

	if err := h.publisher.Publish(h.topic, payload, 1, true); err != nil {
		h.logError("health publish failed", "topic", h.topic, "error", err)
		return err
	}
	return nil
}

func (h *HealthReporter) logInfo(msg string, args ...any) {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *HealthReporter) logError(msg string, args ...any) {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	if h.logger != nil {
		h.logger.Error(msg, args...)
	}
}
