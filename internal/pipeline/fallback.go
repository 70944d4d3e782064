package pipeline

import "strings"

// stockDevices lists the workstation's built-in devices, which load
// without any plugin scan. Requests matching one of these resolve
// natively.
var stockDevices = []string{
	"EQ Eight", "EQ Three", "Channel EQ",
	"Compressor", "Glue Compressor", "Multiband Dynamics",
	"Reverb", "Delay", "Echo", "Simple Delay",
	"Saturator", "Limiter", "Pedal", "Overdrive",
	"Corpus", "Erosion", "Vinyl Distortion",
	"Auto Filter", "Auto Pan",
	"Chorus-Ensemble", "Phaser-Flanger",
	"Spectral Resonator", "Spectral Time",
	"Utility", "Tuner", "Gate", "Drum Buss",
}

var stockByLower map[string]string

func init() {
	stockByLower = make(map[string]string, len(stockDevices))
	for _, name := range stockDevices {
		stockByLower[strings.ToLower(name)] = name
	}
}

// keywordRule maps a substring of a requested name to an ordered chain
// of native substitutes.
type keywordRule struct {
	keyword string
	chain   []string
}

// keywordRules is scanned in order; the first keyword contained in the
// lowercased request wins. Ordering is load-policy: "eq" outranks
// everything so EQ-ish plugin names land on a native equalizer.
var keywordRules = []keywordRule{
	{"eq", []string{"EQ Eight", "EQ Three", "Channel EQ"}},
	{"eq_eight", []string{"EQ Eight"}},
	{"equalizer", []string{"EQ Eight", "EQ Three"}},
	{"compressor", []string{"Compressor", "Glue Compressor"}},
	{"comp", []string{"Compressor", "Glue Compressor"}},
	{"glue_compressor", []string{"Glue Compressor", "Compressor"}},
	{"limiter", []string{"Limiter"}},
	{"reverb", []string{"Reverb"}},
	{"delay", []string{"Delay", "Echo", "Simple Delay"}},
	{"echo", []string{"Echo", "Delay"}},
	{"saturation", []string{"Saturator", "Pedal"}},
	{"saturator", []string{"Saturator", "Pedal", "Overdrive"}},
	{"distortion", []string{"Saturator", "Pedal", "Overdrive"}},
	{"drive", []string{"Saturator", "Overdrive"}},
	{"overdrive", []string{"Overdrive", "Saturator"}},
	{"de-esser", []string{"Multiband Dynamics"}},
	{"deesser", []string{"Multiband Dynamics"}},
	{"de_esser", []string{"Multiband Dynamics"}},
	{"dynamics", []string{"Multiband Dynamics", "Gate"}},
	{"multiband", []string{"Multiband Dynamics"}},
	{"gate", []string{"Gate"}},
	{"chorus", []string{"Chorus-Ensemble"}},
	{"phaser", []string{"Phaser-Flanger"}},
	{"flanger", []string{"Phaser-Flanger"}},
	{"modulation", []string{"Chorus-Ensemble", "Phaser-Flanger"}},
	{"utility", []string{"Utility"}},
	{"filter", []string{"Auto Filter"}},
	{"auto_filter", []string{"Auto Filter"}},
	// Spectrum is loadable even though the stock table omits it.
	{"spectrum", []string{"Spectrum"}},
	{"tuner", []string{"Tuner"}},
}

// Preferences carries the configured device blacklist: names that must
// not be loaded mapped to ordered substitute chains. The zero value is
// an empty preference set.
type Preferences struct {
	blacklist map[string][]string
}

// NewPreferences builds a preference set from a config blacklist map.
func NewPreferences(blacklist map[string][]string) Preferences {
	if len(blacklist) == 0 {
		return Preferences{}
	}
	p := Preferences{blacklist: make(map[string][]string, len(blacklist))}
	for name, chain := range blacklist {
		p.blacklist[strings.ToLower(strings.TrimSpace(name))] = append([]string(nil), chain...)
	}
	return p
}

// Substitutes returns the configured substitute chain for a
// blacklisted name, or nil.
func (p Preferences) Substitutes(name string) []string {
	if p.blacklist == nil {
		return nil
	}
	return p.blacklist[strings.ToLower(strings.TrimSpace(name))]
}

// ResolveDeviceName resolves a requested device name to one the loader
// should try first.
//
// Resolution order:
//  1. exact stock-device match (native, no fallback)
//  2. case-insensitive stock match (canonical casing, no fallback)
//  3. configured blacklist substitute (first chain entry)
//  4. keyword match (first rule whose keyword the request contains)
//  5. verbatim passthrough, letting the loader try it
//
// explicitFallback does not participate here: the executor tries the
// resolved name first and falls back on load failure, so an explicit
// substitute only enters the load cascade.
//
// Returns the resolved name and whether it substitutes the request.
func ResolveDeviceName(requested, explicitFallback string, prefs Preferences) (string, bool) {
	name := strings.TrimSpace(requested)
	lower := strings.ToLower(name)

	if canonical, ok := stockByLower[lower]; ok {
		return canonical, false
	}

	if chain := prefs.Substitutes(name); len(chain) > 0 {
		return chain[0], true
	}

	for _, rule := range keywordRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.chain[0], true
		}
	}

	return name, false
}

// FallbackChain returns the ordered substitute candidates for a
// requested name: configured preferences first, then the first
// matching keyword rule's chain. The list may be empty.
func FallbackChain(requested string, prefs Preferences) []string {
	var chain []string

	chain = append(chain, prefs.Substitutes(requested)...)

	lower := strings.ToLower(strings.TrimSpace(requested))
	for _, rule := range keywordRules {
		if strings.Contains(lower, rule.keyword) {
			for _, candidate := range rule.chain {
				if !containsName(chain, candidate) {
					chain = append(chain, candidate)
				}
			}
			break
		}
	}

	return chain
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
