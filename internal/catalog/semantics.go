package catalog

import "strings"

// SemanticParam is the target of a semantic key: the canonical
// workstation parameter name, plus the layout index to fall back to
// when a live name lookup misses (layouts shift between workstation
// versions; the measured index usually survives a rename).
type SemanticParam struct {
	Name          string
	FallbackIndex int
}

// semanticParams maps device name → semantic key → target parameter.
// Keys are normalized (lowercase, spaces and hyphens to underscores),
// so "Band 1 Gain", "band-1-gain" and "band_1_gain" all land on the
// same entry.
var semanticParams = map[string]map[string]SemanticParam{
	"EQ Eight": {
		// The per-band live layout is Freq, Gain, Q, Type, On.
		"band1_on": {"1 Filter On A", 5}, "band1_active": {"1 Filter On A", 5},
		"band1_freq_hz": {"1 Frequency A", 1}, "band1_frequency": {"1 Frequency A", 1},
		"band1_gain_db": {"1 Gain A", 2}, "band1_gain": {"1 Gain A", 2},
		"band1_q":    {"1 Resonance A", 3},
		"band1_type": {"1 Filter Type A", 4},

		"band2_on": {"2 Filter On A", 10}, "band2_active": {"2 Filter On A", 10},
		"band2_freq_hz": {"2 Frequency A", 6}, "band2_frequency": {"2 Frequency A", 6},
		"band2_gain_db": {"2 Gain A", 7}, "band2_gain": {"2 Gain A", 7},
		"band2_q":    {"2 Resonance A", 8},
		"band2_type": {"2 Filter Type A", 9},

		"band3_on": {"3 Filter On A", 15}, "band3_active": {"3 Filter On A", 15},
		"band3_freq_hz": {"3 Frequency A", 11}, "band3_frequency": {"3 Frequency A", 11},
		"band3_gain_db": {"3 Gain A", 12}, "band3_gain": {"3 Gain A", 12},
		"band3_q":    {"3 Resonance A", 13},
		"band3_type": {"3 Filter Type A", 14},

		"band4_on": {"4 Filter On A", 20}, "band4_active": {"4 Filter On A", 20},
		"band4_freq_hz": {"4 Frequency A", 16}, "band4_frequency": {"4 Frequency A", 16},
		"band4_gain_db": {"4 Gain A", 17}, "band4_gain": {"4 Gain A", 17},
		"band4_q":    {"4 Resonance A", 18},
		"band4_type": {"4 Filter Type A", 19},

		"band5_on": {"5 Filter On A", 25}, "band5_active": {"5 Filter On A", 25},
		"band5_freq_hz": {"5 Frequency A", 21}, "band5_frequency": {"5 Frequency A", 21},
		"band5_gain_db": {"5 Gain A", 22}, "band5_gain": {"5 Gain A", 22},
		"band5_q":    {"5 Resonance A", 23},
		"band5_type": {"5 Filter Type A", 24},

		"band8_on": {"8 Filter On A", 40}, "band8_active": {"8 Filter On A", 40},
		"band8_freq_hz": {"8 Frequency A", 36}, "band8_frequency": {"8 Frequency A", 36},
		"band8_gain_db": {"8 Gain A", 37}, "band8_gain": {"8 Gain A", 37},
		"band8_q":    {"8 Resonance A", 38},
		"band8_type": {"8 Filter Type A", 39},

		// Underscored band keys as plan JSON tends to emit them.
		"band_1_filter_type": {"1 Filter Type A", 4},
		"band_1_frequency":   {"1 Frequency A", 1},
		"band_1_gain":        {"1 Gain A", 2},
		"band_1_q":           {"1 Resonance A", 3},

		"band_2_filter_type": {"2 Filter Type A", 9},
		"band_2_frequency":   {"2 Frequency A", 6},
		"band_2_gain":        {"2 Gain A", 7},
		"band_2_q":           {"2 Resonance A", 8},

		"band_5_filter_type": {"5 Filter Type A", 24},
		"band_5_frequency":   {"5 Frequency A", 21},
		"band_5_gain":        {"5 Gain A", 22},
		"band_5_q":           {"5 Resonance A", 23},

		"band_8_filter_type": {"8 Filter Type A", 39},
		"band_8_frequency":   {"8 Frequency A", 36},
		"band_8_gain":        {"8 Gain A", 37},
		"band_8_q":           {"8 Resonance A", 38},

		"output_gain": {"Output Gain", 0},
	},
	"Compressor": {
		"threshold_db": {"Threshold", 1}, "threshold": {"Threshold", 1},
		"ratio":     {"Ratio", 2},
		"attack_ms": {"Attack", 4}, "attack": {"Attack", 4},
		"release_ms": {"Release", 5}, "release": {"Release", 5},
		"output_gain_db": {"Output Gain", 6}, "makeup_gain": {"Output Gain", 6},
		"knee_db": {"Knee", 12}, "knee": {"Knee", 12},
		"dry_wet_pct": {"Dry/Wet", 8}, "dry_wet": {"Dry/Wet", 8}, "mix": {"Dry/Wet", 8},
	},
	"Glue Compressor": {
		"threshold_db": {"Threshold", 1}, "threshold": {"Threshold", 1},
		"ratio":     {"Ratio", 2},
		"attack_ms": {"Attack", 3}, "attack": {"Attack", 3},
		"release_ms": {"Release", 4}, "release": {"Release", 4},
		"makeup_db": {"Makeup", 6}, "makeup": {"Makeup", 6},
		"dry_wet_pct": {"Dry/Wet", 9}, "dry_wet": {"Dry/Wet", 9}, "mix": {"Dry/Wet", 9},
	},
	"Multiband Dynamics": {
		"high_threshold": {"H Threshold", 20},
		"high_ratio":     {"H Ratio", 21},
		"high_attack":    {"H Attack", 22},
		"high_release":   {"H Release", 23},
		"high_gain":      {"H Output Gain", 24},
		"dry_wet":        {"Dry/Wet", 0},
		"output_gain":    {"Output Gain", 0},
	},
	"Saturator": {
		"drive_db": {"Drive", 2}, "drive": {"Drive", 2},
		"output_db": {"Output", 3}, "output": {"Output", 3},
		"dry_wet_pct": {"Dry/Wet", 6}, "dry_wet": {"Dry/Wet", 6}, "mix": {"Dry/Wet", 6},
		"type": {"Shaper Type", 1},
	},
	"Reverb": {
		"decay_time_ms": {"Decay Time", 3}, "decay_time": {"Decay Time", 3}, "decay": {"Decay Time", 3},
		"predelay_ms": {"Predelay", 1}, "predelay": {"Predelay", 1},
		"dry_wet_pct": {"Dry/Wet", 10}, "dry_wet": {"Dry/Wet", 10}, "mix": {"Dry/Wet", 10},
		"room_size": {"Room Size", 2}, "size": {"Room Size", 2},
		"high_cut_hz": {"HiShelf Freq", 7}, "high_cut": {"HiShelf Freq", 7},
		"low_cut_hz": {"LoShelf Freq", 5}, "low_cut": {"LoShelf Freq", 5},
	},
	"Delay": {
		"delay_time_ms": {"L Time", 2}, "delay_time": {"L Time", 2}, "time": {"L Time", 2},
		"time_left":  {"L Time", 2},
		"time_right": {"R Time", 4},
		"sync":       {"L Sync", 0},
		"ping_pong":  {"Ping Pong", 1},
		"feedback_pct": {"Feedback", 12}, "feedback": {"Feedback", 12},
		"dry_wet_pct": {"Dry/Wet", 14}, "dry_wet": {"Dry/Wet", 14}, "mix": {"Dry/Wet", 14},
		"filter_on":      {"Filter", 6},
		"filter_freq_hz": {"Filter Freq", 7}, "filter_freq": {"Filter Freq", 7},
		"filter_low":  {"Filter Freq", 7},
		"filter_high": {"Filter Width", 8},
		"output_gain": {"Output Gain", 0},
	},
	"Utility": {
		"gain_db": {"Gain", 3}, "gain": {"Gain", 3},
		"pan": {"Panorama", 4}, "panorama": {"Panorama", 4},
		"width_pct": {"Width", 6}, "width": {"Width", 6},
		"mute": {"Mute", 1},
	},
}

// normalizeSemanticKey folds a parameter request into semantic-key
// form: lowercase with spaces and hyphens as underscores.
func normalizeSemanticKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	return strings.ReplaceAll(key, "-", "_")
}
