// Package osc implements the OSC-over-UDP transport to the audio
// workstation.
//
// Two channels exist. The command channel sends /live queries and sets
// to the AbletonOSC-compatible bridge and receives replies on a
// dedicated reply port; a single long-lived Client owns that socket.
// The loader channel sends /loader requests to the companion remote
// script, which can insert, select and delete devices; each request is
// a short-lived socket round trip handled by Loader.
//
// Because UDP gives no delivery guarantee and the workstation applies
// some writes asynchronously, plain sets are unreliable on their own.
// SetParameterVerified and friends close the loop: write, read back,
// compare, retry with exponential backoff. Exhausting retries is
// reported in the SetResult rather than as an error, so callers can
// decide whether an unverified write is fatal for their operation.
//
// # Usage
//
//	client, err := osc.Connect(cfg.OSC)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	tempo, err := client.Tempo(ctx)
//
//	res, err := client.SetParameterVerified(ctx, 0, 1, 5, 0.43,
//		client.DefaultVerifyOptions())
//	if err == nil && !res.Verified {
//		log.Warn("unverified write", "actual", res.Actual)
//	}
//
// A HealthReporter publishes transport status to MQTT at a fixed
// interval, in the same retained-message shape the rest of the system
// uses.
package osc
