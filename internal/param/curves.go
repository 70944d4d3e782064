package param

import (
	"math"
	"strings"
)

// Curve identifies the value mapping chosen for a parameter.
type Curve string

const (
	CurveLinear       Curve = "linear"
	CurveFrequencyLog Curve = "frequency-log"
	CurveDecibel      Curve = "decibel"
	CurveTimeLog      Curve = "time-log"
	CurvePercentage   Curve = "percentage"
	CurveToggle       Curve = "toggle"
	CurveEnum         Curve = "enum"
	CurveUnknown      Curve = "unknown"
)

// Frequency parameters always map over the audible band. Declared
// frequency ranges are unreliable on several stock devices, so the
// declared span is deliberately ignored for this class.
const (
	freqLowHz  = 20.0
	freqHighHz = 20000.0
)

var frequencyKeywords = []string{"freq", "cutoff", "crossover", "hz"}

// timeSpans maps time-style keywords to the millisecond span the
// human value is interpreted over. Order matters: "Decay Time" must
// classify as decay, not time.
var timeSpans = []struct {
	keyword string
	lo, hi  float64
}{
	{"attack", 0.1, 1000},
	{"release", 1, 3000},
	{"decay", 200, 60000},
	{"delay", 1, 2000},
	{"time", 1, 2000},
}

var decibelKeywords = []string{"gain", "output", "volume", "threshold", "drive", "makeup", "ceiling", "floor"}

var percentageKeywords = []string{"wet", "mix", "width", "pan", "blend", "feedback"}

var toggleKeywords = []string{"mute", "sync", "invert", "ping pong", "enabled"}

var enumKeywords = []string{"type", "mode", "shape", "model"}

// classification is the curve choice plus the span it maps over. The
// span unit depends on the curve: Hz for frequency, ms for time, the
// declared units for decibel and linear, raw steps for enum.
type classification struct {
	curve    Curve
	lo, hi   float64
	logScale bool
}

// classify picks a curve for a parameter, keywords first. Declared
// ranges lie for some control types but not others, so name keywords
// override the range for frequency and time parameters while decibel
// and linear parameters trust it.
func classify(name string, declMin, declMax float64) classification {
	lower := strings.ToLower(name)

	if isToggleName(lower) && declMin == 0 && declMax == 1 {
		return classification{curve: CurveToggle, lo: 0, hi: 1}
	}

	if containsAny(lower, enumKeywords) && isIntegralSpan(declMin, declMax) {
		return classification{curve: CurveEnum, lo: declMin, hi: declMax}
	}

	if containsAny(lower, frequencyKeywords) {
		return classification{curve: CurveFrequencyLog, lo: freqLowHz, hi: freqHighHz, logScale: true}
	}

	// Predelay predates the log-time handling and stays linear.
	if strings.Contains(lower, "predelay") || strings.Contains(lower, "pre-delay") {
		return classification{curve: CurveTimeLog, lo: 0, hi: 250}
	}
	for _, span := range timeSpans {
		if strings.Contains(lower, span.keyword) {
			return classification{curve: CurveTimeLog, lo: span.lo, hi: span.hi, logScale: true}
		}
	}

	if containsAny(lower, decibelKeywords) {
		if declMax <= declMin {
			return classification{curve: CurveUnknown}
		}
		return classification{curve: CurveDecibel, lo: declMin, hi: declMax}
	}

	if containsAny(lower, percentageKeywords) {
		return classification{curve: CurvePercentage, lo: 0, hi: 100}
	}

	if declMax <= declMin {
		return classification{curve: CurveUnknown}
	}
	return classification{curve: CurveLinear, lo: declMin, hi: declMax}
}

// Normalize converts a human value into the workstation's normalized
// parameter space and reports the curve used. Positions clamp to
// [0,1]; enum values are rounded, clamped and passed raw; a degenerate
// declared range passes the value through unchanged as CurveUnknown.
func Normalize(name string, human, declMin, declMax float64) (float64, Curve) {
	c := classify(name, declMin, declMax)

	switch c.curve {
	case CurveToggle:
		return math.Round(clamp01(human)), c.curve
	case CurveEnum:
		v := math.Round(human)
		if v < c.lo {
			v = c.lo
		}
		if v > c.hi {
			v = c.hi
		}
		return v, c.curve
	case CurvePercentage:
		return clamp01(human / 100), c.curve
	case CurveUnknown:
		return human, c.curve
	}

	if c.logScale {
		h := human
		if h < c.lo {
			h = c.lo
		}
		if h > c.hi {
			h = c.hi
		}
		return math.Log(h/c.lo) / math.Log(c.hi/c.lo), c.curve
	}
	return clamp01((human - c.lo) / (c.hi - c.lo)), c.curve
}

// Denormalize is the inverse of Normalize: it converts a normalized
// workstation value back into human units, reporting the same curve
// Normalize would choose for the name and range.
func Denormalize(name string, normalized, declMin, declMax float64) (float64, Curve) {
	c := classify(name, declMin, declMax)

	switch c.curve {
	case CurveToggle:
		return math.Round(clamp01(normalized)), c.curve
	case CurveEnum:
		v := math.Round(normalized)
		if v < c.lo {
			v = c.lo
		}
		if v > c.hi {
			v = c.hi
		}
		return v, c.curve
	case CurvePercentage:
		return clamp01(normalized) * 100, c.curve
	case CurveUnknown:
		return normalized, c.curve
	}

	pos := clamp01(normalized)
	if c.logScale {
		return c.lo * math.Pow(c.hi/c.lo, pos), c.curve
	}
	return c.lo + pos*(c.hi-c.lo), c.curve
}

func isToggleName(lower string) bool {
	if lower == "on" || strings.HasSuffix(lower, " on") {
		return true
	}
	return containsAny(lower, toggleKeywords)
}

func isIntegralSpan(declMin, declMax float64) bool {
	span := declMax - declMin
	return isIntegral(declMin) && isIntegral(declMax) && span >= 1 && span <= 32
}

func isIntegral(v float64) bool {
	return math.Abs(v-math.Round(v)) < 1e-9
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
