package filter

import (
	"math"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
)

// NightClock reports the current night percent for a transition and offset.
// *solar.Clock satisfies it.
type NightClock interface {
	NightPercent(transition, offset solar.Pair) float64
}

// SunEvents scales every parameter in the context's StateData from its day
// value toward its night value by the current night percent.
type SunEvents struct {
	clock NightClock
}

// NewSunEvents creates the sunEvents plugin.
func NewSunEvents(clock NightClock) *SunEvents {
	return &SunEvents{clock: clock}
}

// Name implements Plugin.
func (s *SunEvents) Name() string { return SunEventsName }

// Apply implements Plugin.
func (s *SunEvents) Apply(fctx *Context, cmd command.Command, target Target, reg *Registry) command.Command {
	if fctx == nil || len(fctx.StateData) == 0 {
		logger(reg).Debug("sunEvents has no state data, passing through", "channel", target.Channel)
		return cmd
	}

	pct := s.clock.NightPercent(fctx.Settings.TransitionTime, fctx.Settings.Offset)
	out := cmd
	for param, sv := range fctx.StateData {
		out = out.With(param, math.Round(solar.Scale(sv.Value, sv.AltValue, pct)))
	}
	return out
}
