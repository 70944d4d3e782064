package pipeline

import (
	"sync"
	"time"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/influxdb"
)

const defaultHistorySize = 100

// MetricsWriter exports run metrics and per-write latency to the
// time-series store. *influxdb.Client satisfies it. May be nil.
type MetricsWriter interface {
	WriteRunMetric(m influxdb.RunMetric)
	WriteVerifyLatency(trackIndex, deviceIndex int, param string, attempts int, verified bool, latency time.Duration)
}

// RunRecord is one entry in the in-memory run history.
type RunRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	RunID          string    `json:"run_id"`
	Success        bool      `json:"success"`
	Phase          Phase     `json:"phase_reached"`
	TrackIndex     int       `json:"track_index"`
	DryRun         bool      `json:"dry_run"`
	DevicesPlanned int       `json:"devices_planned"`
	DevicesLoaded  int       `json:"devices_loaded"`
	ParamsPlanned  int       `json:"params_planned"`
	ParamsSet      int       `json:"params_set"`
	ParamsVerified int       `json:"params_verified"`
	ParamsSkipped  int       `json:"params_skipped"`
	AdvisoryCalls  int       `json:"advisory_calls"`
	ErrorCount     int       `json:"error_count"`
	TimeMS         float64   `json:"time_ms"`
}

// Stats summarises the retained run history.
type Stats struct {
	TotalRuns          int     `json:"total_runs"`
	SuccessRate        float64 `json:"success_rate"`
	AvgTimeMS          float64 `json:"avg_time_ms"`
	TotalAdvisoryCalls int     `json:"total_advisory_calls"`
	TotalParamsSet     int     `json:"total_params_set"`
	TotalParamsSkipped int     `json:"total_params_skipped"`
}

// Metrics keeps a bounded in-memory history of pipeline runs, emits
// one summary log line per run and forwards run metrics to the
// time-series store. Safe for concurrent use.
type Metrics struct {
	mu      sync.Mutex
	history []RunRecord
	size    int
	writer  MetricsWriter
	logger  Logger
}

// NewMetrics creates a run metrics recorder retaining the most recent
// size runs (0 or negative selects the default of 100).
func NewMetrics(size int, writer MetricsWriter, logger Logger) *Metrics {
	if size <= 0 {
		size = defaultHistorySize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Metrics{
		history: make([]RunRecord, 0, size),
		size:    size,
		writer:  writer,
		logger:  logger,
	}
}

// Record appends a completed run to the history, trimming the oldest
// entries past the retention size.
func (m *Metrics) Record(result Result) {
	rec := RunRecord{
		Timestamp:      time.Now().UTC(),
		RunID:          result.RunID,
		Success:        result.Success,
		Phase:          result.Phase,
		TrackIndex:     result.TrackIndex,
		DryRun:         result.DryRun,
		DevicesPlanned: result.TotalDevicesPlanned,
		DevicesLoaded:  result.TotalDevicesLoaded,
		ParamsPlanned:  result.TotalParamsPlanned,
		ParamsSet:      result.TotalParamsSet,
		ParamsVerified: result.TotalParamsVerified,
		ParamsSkipped:  result.TotalParamsSkipped,
		AdvisoryCalls:  result.AdvisoryCallsUsed,
		ErrorCount:     len(result.Errors),
		TimeMS:         result.TotalTimeMS,
	}

	m.mu.Lock()
	m.history = append(m.history, rec)
	if len(m.history) > m.size {
		m.history = m.history[len(m.history)-m.size:]
	}
	m.mu.Unlock()

	// Grep-stable markers for log-based monitoring.
	msg := "PIPELINE_OK"
	if !result.Success {
		msg = "PIPELINE_FAIL"
	}
	m.logger.Info(msg,
		"run_id", result.RunID,
		"track", result.TrackIndex,
		"phase", string(result.Phase),
		"devices_loaded", result.TotalDevicesLoaded,
		"devices_planned", result.TotalDevicesPlanned,
		"params_set", result.TotalParamsSet,
		"params_planned", result.TotalParamsPlanned,
		"params_skipped", result.TotalParamsSkipped,
		"advisory_calls", result.AdvisoryCallsUsed,
		"dry_run", result.DryRun,
		"errors", len(result.Errors),
		"time_ms", result.TotalTimeMS,
	)

	if m.writer != nil {
		m.writer.WriteRunMetric(influxdb.RunMetric{
			RunID:          result.RunID,
			TrackIndex:     result.TrackIndex,
			Success:        result.Success,
			DryRun:         result.DryRun,
			DevicesPlanned: result.TotalDevicesPlanned,
			DevicesLoaded:  result.TotalDevicesLoaded,
			ParamsPlanned:  result.TotalParamsPlanned,
			ParamsSet:      result.TotalParamsSet,
			ParamsVerified: result.TotalParamsVerified,
			ParamsSkipped:  result.TotalParamsSkipped,
			ErrorCount:     len(result.Errors),
			WarningCount:   len(result.Warnings),
			Duration:       time.Duration(result.TotalTimeMS * float64(time.Millisecond)),
		})
	}
}

// RecordSet forwards one verified-write outcome to the time-series
// store. Latency covers the full set-verify loop including retries.
func (m *Metrics) RecordSet(track, device int, param string, attempts int, verified bool, latency time.Duration) {
	if m.writer != nil {
		m.writer.WriteVerifyLatency(track, device, param, attempts, verified, latency)
	}
}

// History returns the most recent runs, newest last. A limit of 0 or
// less returns the full retained history.
func (m *Metrics) History(limit int) []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunRecord, n)
	copy(out, m.history[len(m.history)-n:])
	return out
}

// Stats aggregates the retained history.
func (m *Metrics) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{TotalRuns: len(m.history)}
	if s.TotalRuns == 0 {
		return s
	}

	succeeded := 0
	totalTime := 0.0
	for _, rec := range m.history {
		if rec.Success {
			succeeded++
		}
		totalTime += rec.TimeMS
		s.TotalAdvisoryCalls += rec.AdvisoryCalls
		s.TotalParamsSet += rec.ParamsSet
		s.TotalParamsSkipped += rec.ParamsSkipped
	}
	s.SuccessRate = float64(succeeded) / float64(s.TotalRuns)
	s.AvgTimeMS = totalTime / float64(s.TotalRuns)
	return s
}
