package filter

import (
	"fmt"
	"math"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
)

// FlagChecker answers flag queries from a cache. The externalFlags plugin
// implements it.
type FlagChecker interface {
	CheckFlagStateOnURL(url, flag string) (any, bool)
}

// NaturalLight resolves the device kind's day/night presets into
// StateData, honours restrictions and delegates scaling to sunEvents.
type NaturalLight struct{}

// NewNaturalLight creates the naturalLight plugin.
func NewNaturalLight() *NaturalLight {
	return &NaturalLight{}
}

// Name implements Plugin.
func (n *NaturalLight) Name() string { return NaturalLightName }

// Apply implements Plugin.
func (n *NaturalLight) Apply(fctx *Context, cmd command.Command, target Target, reg *Registry) command.Command {
	log := logger(reg)

	if v, ok := cmd.Int(command.IgnoreDefault); ok && v != 0 {
		return cmd
	}

	profile := target.Kind.Profile()
	if len(profile.NaturalLight) == 0 {
		return cmd
	}

	if n.restricted(fctx, target, reg) {
		fctx.StateData = nil
		return cmd
	}

	ap := fctx.ApplyPartially
	if ap != nil && *ap <= 0 {
		return cmd
	}

	fctx.StateData = make(map[command.Param]StateValue, len(profile.NaturalLight))
	for param, dn := range profile.NaturalLight {
		sv := StateValue{Value: dn.Day, AltValue: dn.Night}
		if v, ok := fctx.Settings.Day[param]; ok {
			sv.Value = v
		}
		if v, ok := fctx.Settings.Night[param]; ok {
			sv.AltValue = v
		}
		fctx.StateData[param] = sv
	}

	prepared := cmd
	for param, v := range profile.Sentinels {
		prepared = prepared.With(param, v)
	}

	sun, ok := reg.Lookup(SunEventsName)
	if !ok {
		log.Warn("naturalLight requires sunEvents, passing through", "channel", target.Channel)
		return cmd
	}
	result := sun.Apply(fctx, prepared, target, reg)

	if ap == nil || *ap >= 1 {
		return result
	}
	return blend(cmd, result, fctx.StateData, *ap)
}

// blend moves each state parameter from its pre-filter value toward the
// filtered value by ap. A parameter the original command did not carry
// starts from its day value.
//
// The result is round(Scale(original, filtered, ap)). This is not the same
// as scaling the night fraction that produced filtered: filtered is already
// rounded, so the two can differ by one unit near .5 boundaries.
func blend(original, filtered command.Command, state map[command.Param]StateValue, ap float64) command.Command {
	out := filtered
	for param, sv := range state {
		target, ok := filtered.Get(param)
		if !ok {
			continue
		}
		from, ok := original.Get(param)
		if !ok || math.IsNaN(from) {
			from = sv.Value
		}
		out = out.With(param, math.Round(solar.Scale(from, target, ap)))
	}
	return out
}

// restricted reports whether any restriction currently vetoes the filter.
// A restriction that cannot be evaluated does not veto.
func (n *NaturalLight) restricted(fctx *Context, target Target, reg *Registry) bool {
	log := logger(reg)

	for _, r := range fctx.Settings.Restrictions {
		if r.Type != ExternalFlagsName {
			log.Debug("unsupported restriction type ignored", "type", r.Type, "channel", target.Channel)
			continue
		}

		plugin, ok := reg.Lookup(ExternalFlagsName)
		if !ok {
			log.Warn("externalFlags plugin missing, restriction not evaluated",
				"flag", r.Flag, "channel", target.Channel)
			continue
		}
		checker, ok := plugin.(FlagChecker)
		if !ok {
			log.Warn("externalFlags plugin has no flag checker, restriction not evaluated",
				"flag", r.Flag, "channel", target.Channel)
			continue
		}

		url := r.URL
		if url == "" {
			url = fctx.Settings.URL
		}
		state, found := checker.CheckFlagStateOnURL(url, r.Flag)
		if found && sameState(state, r.BlockingState) {
			log.Debug("naturalLight vetoed by restriction",
				"flag", r.Flag, "state", state, "channel", target.Channel)
			return true
		}
	}
	return false
}

// sameState compares a fetched flag with a configured blocking state.
// Numbers compare by value regardless of their decoded type.
func sameState(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
