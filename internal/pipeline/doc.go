// Package pipeline executes device chain plans against the live
// workstation with deterministic recovery behavior.
//
// A plan is a declarative description of one track's device chain:
// which devices to load, in what order, with which parameter targets.
// Plans typically arrive from an advisory model over the message bus,
// so the executor assumes nothing about their quality and runs every
// plan through four phases:
//
//   - PLAN: validate the plan, check the track exists, resolve device
//     names through the stock table, the configured blacklist and the
//     keyword fallback rules. Dry runs stop here with a prediction.
//   - EXECUTE: optionally clear the track (last to first), then load
//     each device through its fallback cascade, wait for discovery
//     readiness and write parameter targets with pacing delays and an
//     idempotency skip for values already in place.
//   - VERIFY: re-read parameters that were written but never
//     confirmed, upgrading them when the readback matches.
//   - REPORT: aggregate totals, decide success, demote parameter
//     errors to warnings when every device loaded, then persist,
//     record metrics and publish.
//
// Failures inside a run are data, not control flow: they land in the
// result and the run keeps going. The one exception is the advisory
// guardrail, which enforces that model calls stay inside the per-run
// budget and never happen during EXECUTE or VERIFY; violations
// propagate as errors because they indicate an orchestration bug, not
// a misbehaving workstation.
package pipeline
