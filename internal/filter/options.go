package filter

import (
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
)

// Options is a partial update to filter specs. Nil fields are left alone.
type Options struct {
	// Plugin limits the update to specs of one plugin; empty matches all.
	Plugin         string                    `yaml:"filter,omitempty" json:"filter,omitempty"`
	ApplyPartially *float64                  `yaml:"applyPartially,omitempty" json:"applyPartially,omitempty"`
	TransitionTime *solar.Pair               `yaml:"transitionTime,omitempty" json:"transitionTime,omitempty"`
	Offset         *solar.Pair               `yaml:"offset,omitempty" json:"offset,omitempty"`
	Day            map[command.Param]float64 `yaml:"day,omitempty" json:"day,omitempty"`
	Night          map[command.Param]float64 `yaml:"night,omitempty" json:"night,omitempty"`
	Restrictions   []Restriction             `yaml:"restrictions,omitempty" json:"restrictions,omitempty"`
	URL            *string                   `yaml:"url,omitempty" json:"url,omitempty"`
}

// IsEmpty reports whether o would change nothing.
func (o Options) IsEmpty() bool {
	return o.ApplyPartially == nil && o.TransitionTime == nil && o.Offset == nil &&
		len(o.Day) == 0 && len(o.Night) == 0 && o.Restrictions == nil && o.URL == nil
}

// Matches reports whether o targets spec.
func (o Options) Matches(spec Spec) bool {
	return o.Plugin == "" || o.Plugin == spec.Plugin
}

// MergeInto applies o to every matching spec in place and returns how many
// specs were touched.
func (o Options) MergeInto(specs []Spec) int {
	n := 0
	for i := range specs {
		if !o.Matches(specs[i]) {
			continue
		}
		o.apply(&specs[i])
		n++
	}
	return n
}

func (o Options) apply(spec *Spec) {
	if o.ApplyPartially != nil {
		ap := *o.ApplyPartially
		spec.ApplyPartially = &ap
	}
	if o.TransitionTime != nil {
		spec.Settings.TransitionTime = *o.TransitionTime
	}
	if o.Offset != nil {
		spec.Settings.Offset = *o.Offset
	}
	if len(o.Day) > 0 {
		spec.Settings.Day = mergeParams(spec.Settings.Day, o.Day)
	}
	if len(o.Night) > 0 {
		spec.Settings.Night = mergeParams(spec.Settings.Night, o.Night)
	}
	if o.Restrictions != nil {
		spec.Settings.Restrictions = append([]Restriction(nil), o.Restrictions...)
	}
	if o.URL != nil {
		spec.Settings.URL = *o.URL
	}
}

func mergeParams(dst, src map[command.Param]float64) map[command.Param]float64 {
	out := cloneParams(dst)
	if out == nil {
		out = make(map[command.Param]float64, len(src))
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
