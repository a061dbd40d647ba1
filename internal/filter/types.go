package filter

import (
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/subtype"
)

// Plugin names as used in device configuration.
const (
	SunEventsName     = "sunEvents"
	NaturalLightName  = "naturalLight"
	ExternalFlagsName = "externalFlags"
	ScheduleName      = "schedule"
)

// Target identifies the device a command is being filtered for.
type Target struct {
	Channel int
	Alias   string
	Kind    subtype.Kind
}

// StateValue is the day (Value) and night (AltValue) value of a parameter.
type StateValue struct {
	Value    float64
	AltValue float64
}

// Restriction vetoes a filter while a condition holds.
type Restriction struct {
	// Type names the plugin that evaluates the restriction, e.g. externalFlags.
	Type string `yaml:"type" json:"type"`
	// URL is the flag source; empty falls back to Settings.URL.
	URL           string `yaml:"url,omitempty" json:"url,omitempty"`
	Flag          string `yaml:"flag" json:"flag"`
	BlockingState any    `yaml:"blockingState" json:"blockingState"`
}

// Settings is the static, per-device configuration of one filter.
type Settings struct {
	TransitionTime solar.Pair                `yaml:"transitionTime" json:"transitionTime"`
	Offset         solar.Pair                `yaml:"offset" json:"offset"`
	Day            map[command.Param]float64 `yaml:"day,omitempty" json:"day,omitempty"`
	Night          map[command.Param]float64 `yaml:"night,omitempty" json:"night,omitempty"`
	Restrictions   []Restriction             `yaml:"restrictions,omitempty" json:"restrictions,omitempty"`
	// URL is the flag source polled by externalFlags.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := s
	out.Day = cloneParams(s.Day)
	out.Night = cloneParams(s.Night)
	if s.Restrictions != nil {
		out.Restrictions = append([]Restriction(nil), s.Restrictions...)
	}
	return out
}

func cloneParams(m map[command.Param]float64) map[command.Param]float64 {
	if m == nil {
		return nil
	}
	out := make(map[command.Param]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Context is the per-invocation configuration and scratch space handed to
// every plugin in a chain.
type Context struct {
	Settings Settings
	// StateData must be filled (by naturalLight) before sunEvents runs,
	// otherwise sunEvents leaves the command alone.
	StateData map[command.Param]StateValue
	// ApplyPartially, when set, blends the filtered value back toward the
	// original: 0 keeps the original, 1 (or nil) keeps the filtered value.
	ApplyPartially *float64
}

// Spec is one configured filter on a device.
type Spec struct {
	Plugin         string   `yaml:"plugin" json:"plugin"`
	Settings       Settings `yaml:"settings" json:"settings"`
	ApplyPartially *float64 `yaml:"applyPartially,omitempty" json:"applyPartially,omitempty"`
	// Periodic filters are also re-applied on a timer, not only on commands.
	Periodic bool `yaml:"periodic,omitempty" json:"periodic,omitempty"`
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	out := s
	out.Settings = s.Settings.Clone()
	if s.ApplyPartially != nil {
		ap := *s.ApplyPartially
		out.ApplyPartially = &ap
	}
	return out
}

// CloneSpecs deep-copies a filter chain.
func CloneSpecs(specs []Spec) []Spec {
	if specs == nil {
		return nil
	}
	out := make([]Spec, len(specs))
	for i, s := range specs {
		out[i] = s.Clone()
	}
	return out
}
