package pipeline

import (
	"reflect"
	"testing"
)

func TestResolveDeviceNameStock(t *testing.T) {
	name, isFallback := ResolveDeviceName("EQ Eight", "", Preferences{})
	if name != "EQ Eight" || isFallback {
		t.Fatalf("ResolveDeviceName(EQ Eight) = (%q, %v), want (EQ Eight, false)", name, isFallback)
	}
}

func TestResolveDeviceNameCaseInsensitive(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"glue compressor", "Glue Compressor"},
		{"REVERB", "Reverb"},
		{"  eq eight  ", "EQ Eight"},
	}
	for _, tt := range tests {
		name, isFallback := ResolveDeviceName(tt.requested, "", Preferences{})
		if name != tt.want || isFallback {
			t.Errorf("ResolveDeviceName(%q) = (%q, %v), want (%q, false)",
				tt.requested, name, isFallback, tt.want)
		}
	}
}

func TestResolveDeviceNameKeyword(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"vintage warmth compressor", "Compressor"},
		{"TDR Kotelnikov comp", "Compressor"},
		{"ValhallaRoom reverb", "Reverb"},
		{"analog delay unit", "Delay"},
		{"harmonic distortion box", "Saturator"},
		{"de-esser pro", "Multiband Dynamics"},
		{"SPAN spectrum analyzer", "Spectrum"},
		// Keyword matching is substring-based: "fabfilter" contains
		// "filter", "frequency" contains "eq".
		{"FabFilter Pro-Q 3", "Auto Filter"},
		{"Frequency Shifter", "EQ Eight"},
	}
	for _, tt := range tests {
		name, isFallback := ResolveDeviceName(tt.requested, "", Preferences{})
		if name != tt.want || !isFallback {
			t.Errorf("ResolveDeviceName(%q) = (%q, %v), want (%q, true)",
				tt.requested, name, isFallback, tt.want)
		}
	}
}

func TestResolveDeviceNameBlacklist(t *testing.T) {
	prefs := NewPreferences(map[string][]string{
		"FabFilter Pro-Q 3": {"EQ Eight", "EQ Three"},
	})

	// The configured substitute outranks the keyword table, which
	// would pick Auto Filter here.
	name, isFallback := ResolveDeviceName("fabfilter pro-q 3", "", prefs)
	if name != "EQ Eight" || !isFallback {
		t.Fatalf("= (%q, %v), want (EQ Eight, true)", name, isFallback)
	}
}

func TestResolveDeviceNameVerbatim(t *testing.T) {
	name, isFallback := ResolveDeviceName("Serum", "", Preferences{})
	if name != "Serum" || isFallback {
		t.Fatalf("= (%q, %v), want verbatim passthrough", name, isFallback)
	}
}

func TestResolveDeviceNameIgnoresExplicitFallback(t *testing.T) {
	// An explicit fallback joins the load cascade; it never changes
	// what gets tried first.
	name, isFallback := ResolveDeviceName("Serum", "Utility", Preferences{})
	if name != "Serum" || isFallback {
		t.Fatalf("= (%q, %v), want (Serum, false)", name, isFallback)
	}
}

func TestFallbackChain(t *testing.T) {
	got := FallbackChain("vintage delay", Preferences{})
	want := []string{"Delay", "Echo", "Simple Delay"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FallbackChain(vintage delay) = %v, want %v", got, want)
	}
}

func TestFallbackChainPreferencesFirst(t *testing.T) {
	prefs := NewPreferences(map[string][]string{
		"vintage delay": {"Echo"},
	})

	got := FallbackChain("vintage delay", prefs)
	want := []string{"Echo", "Delay", "Simple Delay"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FallbackChain() = %v, want preferences first with dedupe, %v", got, want)
	}
}

func TestFallbackChainEmpty(t *testing.T) {
	if got := FallbackChain("Serum", Preferences{}); len(got) != 0 {
		t.Fatalf("FallbackChain(Serum) = %v, want empty", got)
	}
}

func TestPreferencesZeroValue(t *testing.T) {
	var prefs Preferences
	if got := prefs.Substitutes("anything"); got != nil {
		t.Fatalf("Substitutes() on zero value = %v, want nil", got)
	}
}
