package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog resolves device and parameter names. It is built from the
// stock tables and optionally extended by a YAML overlay, so site
// installs can teach it plugins and rack layouts without a rebuild.
// All methods are read-only after construction.
type Catalog struct {
	profiles  map[string]*DeviceProfile           // lowercase name/class/alias → profile
	order     []string                            // canonical names, table order
	semantics map[string]map[string]SemanticParam // lowercase device name → semantic key → target
	aliases   map[string]string                   // lowercase shorthand → canonical parameter name
}

var builtin *Catalog

func init() {
	builtin = newBuiltin()
}

// Builtin returns the catalog built from the stock tables alone.
func Builtin() *Catalog {
	return builtin
}

// Load builds a catalog from the stock tables merged with the overlay
// file at path. An empty path returns the builtin catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog overlay: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parsing catalog overlay: %w", err)
	}

	c := newBuiltin()
	if err := c.merge(&overlay); err != nil {
		return nil, fmt.Errorf("applying catalog overlay: %w", err)
	}
	return c, nil
}

// newBuiltin constructs a catalog from the stock tables. Profiles and
// their slices are copied so overlay merges never touch package data.
func newBuiltin() *Catalog {
	c := &Catalog{
		profiles:  make(map[string]*DeviceProfile, len(StockProfiles)*3),
		order:     make([]string, 0, len(StockProfiles)),
		semantics: make(map[string]map[string]SemanticParam, len(semanticParams)),
		aliases:   make(map[string]string, len(commonAliases)),
	}

	for i := range StockProfiles {
		src := StockProfiles[i]
		p := &DeviceProfile{
			Name:    src.Name,
			Class:   src.Class,
			Aliases: append([]string(nil), src.Aliases...),
			Params:  append([]ParameterDef(nil), src.Params...),
		}
		c.index(p)
		c.order = append(c.order, p.Name)
	}

	for device, params := range semanticParams {
		entry := make(map[string]SemanticParam, len(params))
		for key, target := range params {
			entry[key] = target
		}
		c.semantics[strings.ToLower(device)] = entry
	}

	for alias, canonical := range commonAliases {
		c.aliases[alias] = canonical
	}

	return c
}

// index registers a profile under its name, class and aliases.
func (c *Catalog) index(p *DeviceProfile) {
	c.profiles[strings.ToLower(p.Name)] = p
	if p.Class != "" {
		c.profiles[strings.ToLower(p.Class)] = p
	}
	for _, alias := range p.Aliases {
		c.profiles[strings.ToLower(alias)] = p
	}
}

// Profile resolves a device request by name, class or alias.
// Matching is case-insensitive. Returns nil if unknown.
func (c *Catalog) Profile(name string) *DeviceProfile {
	return c.profiles[strings.ToLower(strings.TrimSpace(name))]
}

// KnownDevices returns the canonical device names in table order.
func (c *Catalog) KnownDevices() []string {
	return append([]string(nil), c.order...)
}

// ParameterIndex resolves a parameter name to its layout index for the
// given device. The name is matched case-insensitively, first as given
// and then through the common alias table.
// Returns -1 and false if the device or parameter is unknown.
func (c *Catalog) ParameterIndex(device, param string) (int, bool) {
	p := c.Profile(device)
	if p == nil {
		return -1, false
	}

	want := strings.ToLower(strings.TrimSpace(param))
	for _, def := range p.Params {
		if strings.ToLower(def.Name) == want {
			return def.Index, true
		}
	}

	if canonical, ok := c.aliases[want]; ok {
		canonical = strings.ToLower(canonical)
		for _, def := range p.Params {
			if strings.ToLower(def.Name) == canonical {
				return def.Index, true
			}
		}
	}

	return -1, false
}

// ParameterName returns the layout name at an index for the given
// device. Returns empty string and false if unknown.
func (c *Catalog) ParameterName(device string, index int) (string, bool) {
	p := c.Profile(device)
	if p == nil {
		return "", false
	}
	for _, def := range p.Params {
		if def.Index == index {
			return def.Name, true
		}
	}
	return "", false
}

// Semantic resolves a semantic parameter key for a device, e.g.
// ("EQ Eight", "band1_gain_db") → {"1 Gain A", 2}. The key is
// normalized first, so "Band 1 Gain dB" matches too. The device is
// resolved through the profile table when possible, falling back to a
// direct match for devices that carry semantics without a layout.
func (c *Catalog) Semantic(device, key string) (SemanticParam, bool) {
	normalized := normalizeSemanticKey(key)

	if p := c.Profile(device); p != nil {
		if entry, ok := c.semantics[strings.ToLower(p.Name)]; ok {
			if target, ok := entry[normalized]; ok {
				return target, true
			}
		}
		return SemanticParam{}, false
	}

	if entry, ok := c.semantics[strings.ToLower(strings.TrimSpace(device))]; ok {
		if target, ok := entry[normalized]; ok {
			return target, true
		}
	}
	return SemanticParam{}, false
}

// NormalizeParamName maps a shorthand to its canonical parameter name
// ("mix" → "Dry/Wet"). Unrecognised names pass through unchanged.
func (c *Catalog) NormalizeParamName(name string) string {
	if canonical, ok := c.aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canonical
	}
	return name
}

// Overlay file shape:
//
//	devices:
//	  - name: FabFilter Pro-Q 3
//	    class: PluginDevice
//	    aliases: [proq3]
//	    params:
//	      - {index: 0, name: Bypass}
//	    semantics:
//	      band1_gain: {name: Band 1 Gain, fallback: 3}
//	aliases:
//	  wetness: Dry/Wet
type overlayFile struct {
	Devices []overlayDevice   `yaml:"devices"`
	Aliases map[string]string `yaml:"aliases"`
}

type overlayDevice struct {
	Name      string                     `yaml:"name"`
	Class     string                     `yaml:"class"`
	Aliases   []string                   `yaml:"aliases"`
	Params    []overlayParam             `yaml:"params"`
	Semantics map[string]overlaySemantic `yaml:"semantics"`
}

type overlayParam struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
}

type overlaySemantic struct {
	Name     string `yaml:"name"`
	Fallback int    `yaml:"fallback"`
}

// merge applies an overlay on top of the builtin tables. Overlay
// devices extend or replace by canonical name: params replace the
// whole layout when given, aliases append, semantics merge per key.
func (c *Catalog) merge(overlay *overlayFile) error {
	for i, dev := range overlay.Devices {
		if strings.TrimSpace(dev.Name) == "" {
			return fmt.Errorf("device %d: name is required", i)
		}

		for _, p := range dev.Params {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("device %q: parameter %d: name is required", dev.Name, p.Index)
			}
			if p.Index < 0 {
				return fmt.Errorf("device %q: parameter %q: negative index", dev.Name, p.Name)
			}
		}
		for key, sem := range dev.Semantics {
			if strings.TrimSpace(sem.Name) == "" {
				return fmt.Errorf("device %q: semantic %q: name is required", dev.Name, key)
			}
			if sem.Fallback < 0 {
				return fmt.Errorf("device %q: semantic %q: negative fallback index", dev.Name, key)
			}
		}

		profile := c.Profile(dev.Name)
		if profile == nil {
			profile = &DeviceProfile{Name: dev.Name}
			c.order = append(c.order, dev.Name)
		}
		if dev.Class != "" {
			profile.Class = dev.Class
		}
		if len(dev.Aliases) > 0 {
			profile.Aliases = append(profile.Aliases, dev.Aliases...)
		}
		if len(dev.Params) > 0 {
			params := make([]ParameterDef, 0, len(dev.Params))
			for _, p := range dev.Params {
				params = append(params, ParameterDef{Index: p.Index, Name: p.Name})
			}
			profile.Params = params
		}
		c.index(profile)

		if len(dev.Semantics) > 0 {
			key := strings.ToLower(profile.Name)
			entry := c.semantics[key]
			if entry == nil {
				entry = make(map[string]SemanticParam, len(dev.Semantics))
				c.semantics[key] = entry
			}
			for semKey, sem := range dev.Semantics {
				entry[normalizeSemanticKey(semKey)] = SemanticParam{
					Name:          sem.Name,
					FallbackIndex: sem.Fallback,
				}
			}
		}
	}

	for alias, canonical := range overlay.Aliases {
		if strings.TrimSpace(canonical) == "" {
			return fmt.Errorf("alias %q: canonical name is required", alias)
		}
		c.aliases[strings.ToLower(alias)] = canonical
	}

	return nil
}
