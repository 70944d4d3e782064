package catalog

import "strconv"

// ParameterDef is one entry in a device's typical parameter layout.
type ParameterDef struct {
	Index int
	Name  string
}

// DeviceProfile describes a stock workstation device: the browser name
// the loader accepts, the class name the device query reports, accepted
// aliases and the typical parameter layout.
//
// Layouts are seed metadata. Live discovery remains authoritative for
// loaded devices; the layout serves name resolution and the semantic
// fallback indices when a live lookup misses.
type DeviceProfile struct {
	Name    string         // Browser name (e.g. "Glue Compressor")
	Class   string         // Reported class name (e.g. "GlueCompressor")
	Aliases []string       // Accepted aliases that resolve to this device
	Params  []ParameterDef // Typical layout, index order
}

// StockProfiles is the authoritative list of stock devices with known
// parameter layouts. Plugins and devices outside this list are fully
// discovered at runtime.
var StockProfiles = []DeviceProfile{
	// ── Dynamics ─────────────────────────────────────────────
	{
		Name: "Compressor", Class: "Compressor2", Aliases: []string{"comp"},
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Threshold"}, {2, "Ratio"}, {3, "Attack"},
			{4, "Release"}, {5, "Output Gain"}, {6, "Dry/Wet"}, {7, "Model"},
			{8, "Knee"}, {9, "Makeup"}, {10, "Env Mode"}, {11, "Sidechain"},
		},
	},
	{
		Name: "Gate", Class: "Gate",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Threshold"}, {2, "Return"}, {3, "Attack"},
			{4, "Hold"}, {5, "Release"}, {6, "Floor"},
		},
	},
	{
		Name: "Limiter", Class: "Limiter",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Gain"}, {2, "Ceiling"}, {3, "Release"},
		},
	},

	// ── EQ / Filter ──────────────────────────────────────────
	{
		Name: "EQ Eight", Class: "Eq8", Aliases: []string{"eq8", "eq 8"},
		Params: eq8Params(),
	},
	{
		Name: "Auto Filter", Class: "AutoFilter", Aliases: []string{"autofilter"},
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Filter Type"}, {2, "Frequency"},
			{3, "Resonance"}, {4, "Env Amount"}, {5, "Env Attack"},
			{6, "Env Release"}, {7, "LFO Amount"}, {8, "LFO Rate"},
			{9, "LFO Phase"}, {10, "LFO Sync"}, {11, "Dry/Wet"},
		},
	},

	// ── Time / Space ─────────────────────────────────────────
	{
		Name: "Reverb", Class: "Reverb",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Decay Time"}, {2, "Room Size"},
			{3, "Pre-Delay"}, {4, "Input Filter Freq"}, {5, "Input Filter Width"},
			{6, "Early Reflect"}, {7, "Spin Rate"}, {8, "Spin Amount"},
			{9, "Diffuse Network"}, {10, "Hi Shelf Freq"}, {11, "Hi Shelf Gain"},
			{12, "Lo Shelf Freq"}, {13, "Lo Shelf Gain"}, {14, "Chorus Rate"},
			{15, "Chorus Amount"}, {16, "Density"}, {17, "Scale"}, {18, "Flat"},
			{19, "Stereo Image"}, {20, "Dry/Wet"},
		},
	},
	{
		Name: "Delay", Class: "Delay",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "L Time"}, {2, "L Sync"}, {3, "R Time"},
			{4, "R Sync"}, {5, "Feedback"}, {6, "Dry/Wet"}, {7, "Filter On"},
			{8, "Filter Freq"}, {9, "Filter Width"},
		},
	},
	{
		Name: "Simple Delay", Class: "SimpleDelay", Aliases: []string{"simpledelay"},
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Delay Time"}, {2, "Sync"}, {3, "Feedback"},
			{4, "Dry/Wet"},
		},
	},

	// ── Color ────────────────────────────────────────────────
	{
		Name: "Saturator", Class: "Saturator",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Drive"}, {2, "Type"}, {3, "Base"},
			{4, "Frequency"}, {5, "Width"}, {6, "Depth"}, {7, "Output"},
			{8, "Dry/Wet"},
		},
	},
	{
		Name: "Chorus", Class: "Chorus",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Rate"}, {2, "Amount"}, {3, "Delay 1 Time"},
			{4, "Delay 2 Time"}, {5, "Feedback"}, {6, "Polarity"}, {7, "Dry/Wet"},
		},
	},

	// ── Utility ──────────────────────────────────────────────
	{
		Name: "Utility", Class: "StereoGain",
		Params: []ParameterDef{
			{0, "Device On"}, {1, "Gain"}, {2, "Mute"}, {3, "Phase Invert L"},
			{4, "Phase Invert R"}, {5, "Channel Mode"}, {6, "Width"},
			{7, "Mid/Side"}, {8, "Balance"}, {9, "Panorama"},
		},
	},
}

// eq8Params builds the eight-band EQ layout: a device toggle followed
// by the repeating five-parameter band block.
func eq8Params() []ParameterDef {
	params := make([]ParameterDef, 0, 41)
	params = append(params, ParameterDef{0, "Device On"})
	for band := 1; band <= 8; band++ {
		n := strconv.Itoa(band)
		base := 1 + (band-1)*5
		params = append(params,
			ParameterDef{base, "Band " + n + " On"},
			ParameterDef{base + 1, "Band " + n + " Type"},
			ParameterDef{base + 2, "Band " + n + " Freq"},
			ParameterDef{base + 3, "Band " + n + " Gain"},
			ParameterDef{base + 4, "Band " + n + " Q"},
		)
	}
	return params
}

// commonAliases maps spoken or plan-level parameter shorthands to the
// canonical parameter names used across stock devices.
var commonAliases = map[string]string{
	"dry wet":   "Dry/Wet",
	"drywet":    "Dry/Wet",
	"mix":       "Dry/Wet",
	"volume":    "Gain",
	"level":     "Gain",
	"amount":    "Amount",
	"rate":      "Rate",
	"speed":     "Rate",
	"decay":     "Decay Time",
	"size":      "Room Size",
	"attack":    "Attack",
	"release":   "Release",
	"threshold": "Threshold",
	"ratio":     "Ratio",
	"frequency": "Frequency",
	"freq":      "Frequency",
	"resonance": "Resonance",
	"feedback":  "Feedback",
	"drive":     "Drive",
	"width":     "Width",
}
