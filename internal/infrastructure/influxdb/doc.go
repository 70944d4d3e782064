// Package influxdb writes the daemon's time-series telemetry through
// the official influxdb-client-go v2 library.
//
// Three measurements cover the interesting behaviour:
//   - pipeline_run: outcome and counts for each pipeline run
//   - osc_set: per-parameter verified-write latency and attempts
//   - recovery_event: crash-recovery state transitions
//
// Writes are batched and non-blocking; a slow or absent InfluxDB must
// never stall a pipeline run, so failures surface only through the
// SetOnError callback and points are dropped once the client closes.
// Batch size and flush interval come from the influxdb section of
// config.yaml.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteVerifyLatency(0, 1, "Threshold", 2, true, 340*time.Millisecond)
package influxdb
