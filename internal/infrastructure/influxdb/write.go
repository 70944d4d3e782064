package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RunMetric summarises a completed pipeline run for time-series
// recording.
type RunMetric struct {
	RunID          string
	TrackIndex     int
	Success        bool
	DryRun         bool
	DevicesPlanned int
	DevicesLoaded  int
	ParamsPlanned  int
	ParamsSet      int
	ParamsVerified int
	ParamsSkipped  int
	ErrorCount     int
	WarningCount   int
	Duration       time.Duration
}

// emit hands a point to the batching write API unless the client is
// closed. All write helpers funnel through here.
func (c *Client) emit(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// ms converts a duration to fractional milliseconds, the unit the
// dashboards expect.
func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// WriteRunMetric records a pipeline run outcome under the
// pipeline_run measurement. Non-blocking; batched like all writes.
func (c *Client) WriteRunMetric(m RunMetric) {
	c.emit(write.NewPoint(
		"pipeline_run",
		map[string]string{
			"track":   strconv.Itoa(m.TrackIndex),
			"success": strconv.FormatBool(m.Success),
			"dry_run": strconv.FormatBool(m.DryRun),
		},
		map[string]any{
			"run_id":          m.RunID,
			"devices_planned": m.DevicesPlanned,
			"devices_loaded":  m.DevicesLoaded,
			"params_planned":  m.ParamsPlanned,
			"params_set":      m.ParamsSet,
			"params_verified": m.ParamsVerified,
			"params_skipped":  m.ParamsSkipped,
			"error_count":     m.ErrorCount,
			"warning_count":   m.WarningCount,
			"duration_ms":     ms(m.Duration),
		},
		time.Now(),
	))
}

// WriteVerifyLatency records one verified parameter write under the
// osc_set measurement: how many set-verify attempts it took and the
// wall time from first send to final readback, tagged by track,
// device and parameter name.
func (c *Client) WriteVerifyLatency(trackIndex, deviceIndex int, param string, attempts int, verified bool, latency time.Duration) {
	c.emit(write.NewPoint(
		"osc_set",
		map[string]string{
			"track":  strconv.Itoa(trackIndex),
			"device": strconv.Itoa(deviceIndex),
			"param":  param,
		},
		map[string]any{
			"attempts":   attempts,
			"verified":   verified,
			"latency_ms": ms(latency),
		},
		time.Now(),
	))
}

// WriteRecoveryEvent records a crash-recovery state transition under
// the recovery_event measurement. attempt is 0 for passive
// transitions; success marks a completed recovery.
func (c *Client) WriteRecoveryEvent(state string, attempt int, success bool) {
	c.emit(write.NewPoint(
		"recovery_event",
		map[string]string{"state": state},
		map[string]any{
			"attempt": attempt,
			"success": success,
		},
		time.Now(),
	))
}

// WritePoint records a custom measurement. Keep tags low-cardinality;
// put the data in fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.emit(write.NewPoint(measurement, tags, fields, time.Now()))
}

// WritePointWithTime is WritePoint with an explicit timestamp, for
// data that arrives after the fact.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	c.emit(write.NewPoint(measurement, tags, fields, timestamp))
}
