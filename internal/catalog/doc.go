// Package catalog carries the device knowledge base: stock device
// layouts, name and alias resolution, and the semantic parameter map
// that translates plan-level keys ("band1_gain_db", "decay_time_ms")
// into workstation parameter names with measured fallback indices.
//
// The catalog is seed metadata, not ground truth. Parameter layouts
// drift between workstation versions and plugin installs, so live
// discovery stays authoritative for anything loaded; the catalog
// resolves names before discovery and supplies fallback indices when
// a live name lookup misses.
//
// # Overlay
//
// Sites extend the builtin tables with a YAML overlay, typically for
// plugins the stock tables cannot know:
//
//	devices:
//	  - name: FabFilter Pro-Q 3
//	    class: PluginDevice
//	    aliases: [proq3]
//	    params:
//	      - {index: 0, name: Bypass}
//	      - {index: 3, name: Band 1 Gain}
//	    semantics:
//	      band1_gain: {name: Band 1 Gain, fallback: 3}
//	aliases:
//	  wetness: Dry/Wet
//
// Overlay devices extend or replace builtin entries by name; the
// builtin tables themselves are never mutated.
package catalog
