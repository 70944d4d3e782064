// Package param turns raw OSC device queries into by-name parameter
// control.
//
// The workstation exposes parameters as flat index lists per device,
// with declared ranges that are unreliable for some control classes.
// This package adds the three layers plans actually need:
//
//   - Discovery and caching: parameter names and declared ranges per
//     (track, device), cached without a TTL and invalidated whenever a
//     load or delete shifts indices.
//   - Name resolution: catalog semantic keys first ("band1_gain_db"),
//     then alias-normalized live lookup (exact, substring, reverse
//     substring).
//   - Curve normalization: human units (Hz, ms, dB, percent) to the
//     normalized parameter space and back, classified by name keyword
//     because declared ranges lie for frequency and time controls.
//
// The Controller composes these over the osc transport: verified
// loads with readiness polling, verified by-name sets, ordered
// batches, reads and deletes.
package param
