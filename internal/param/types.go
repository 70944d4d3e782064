package param

import "strings"

// ParameterDescriptor is one discovered parameter: its index in the
// device's parameter list, the name the workstation reports and the
// declared value range.
type ParameterDescriptor struct {
	Index int
	Name  string
	Min   float64
	Max   float64
}

// DeviceInfo is the discovered state of one device slot.
//
// Accessible is false when the device answered the name query with an
// empty list, which is how plugins behave before their editor has been
// opened at least once.
type DeviceInfo struct {
	Track      int
	Device     int
	Name       string
	Accessible bool
	Params     []ParameterDescriptor
}

// FindParameter resolves a parameter by name: exact case-insensitive
// match first, then substring (query contained in a parameter name),
// then reverse substring (parameter name contained in the query).
// A miss returns false, never an error.
func (d *DeviceInfo) FindParameter(name string) (ParameterDescriptor, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return ParameterDescriptor{}, false
	}

	for _, p := range d.Params {
		if strings.ToLower(p.Name) == query {
			return p, true
		}
	}
	for _, p := range d.Params {
		if strings.Contains(strings.ToLower(p.Name), query) {
			return p, true
		}
	}
	for _, p := range d.Params {
		lower := strings.ToLower(p.Name)
		if lower != "" && strings.Contains(query, lower) {
			return p, true
		}
	}

	return ParameterDescriptor{}, false
}

// Target is one entry in a batch parameter write.
type Target struct {
	Name  string
	Value float64
}

// SetReport describes the outcome of one by-name parameter write.
type SetReport struct {
	Name     string // name as requested
	Resolved string // workstation parameter name, empty when not found
	Index    int    // resolved index, -1 when not found
	Curve    Curve
	Success  bool
	Verified bool
	Attempts int
	Target   float64 // requested value, human units
	Actual   float64 // read-back value converted to human units
	NotFound bool
}

// BatchReport aggregates an ordered batch of by-name writes.
// NotFound names are counted separately from failed sets.
type BatchReport struct {
	Total     int
	Succeeded int
	Failed    int
	NotFound  int
	Reports   []SetReport
}

// LoadResult describes a verified device load.
type LoadResult struct {
	Success     bool
	DeviceIndex int
	Message     string
}
