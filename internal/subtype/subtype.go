// Package subtype is the closed set of device kinds the bridge drives.
//
// Each kind carries its own polling interval, its natural-light day/night
// defaults and the sentinel fields its wire protocol needs. The data is
// resolved once when the device inventory loads; nothing downstream
// switches on subtype strings.
package subtype

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// ErrUnknownKind is returned by Parse for an unrecognised subtype string.
var ErrUnknownKind = errors.New("subtype: unknown kind")

// Kind identifies a device subtype.
type Kind int

const (
	Unknown Kind = iota
	Bulb
	LEDStrip
	Plug
	Switch
)

var names = map[Kind]string{
	Bulb:     "bulb",
	LEDStrip: "led-strip",
	Plug:     "plug",
	Switch:   "switch",
}

// All returns every known kind.
func All() []Kind {
	return []Kind{Bulb, LEDStrip, Plug, Switch}
}

// Parse converts a configuration string to a Kind.
func Parse(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range names {
		if name == s {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// String returns the configuration name of k.
func (k Kind) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalYAML decodes a kind from its configuration name.
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	return k.UnmarshalText([]byte(value.Value))
}

// IsLight reports whether k accepts light-state commands.
func (k Kind) IsLight() bool {
	return k == Bulb || k == LEDStrip
}

// DayNight is a pair of values for one parameter.
type DayNight struct {
	Day   float64
	Night float64
}

// Profile is the static behaviour attached to a kind.
type Profile struct {
	PollInterval time.Duration
	// NaturalLight holds the default day/night value per parameter.
	NaturalLight map[command.Param]DayNight
	// Sentinels are forced into natural-light commands, e.g. strips need
	// color_temp=0 before they honour hue and saturation.
	Sentinels map[command.Param]float64
}

var profiles = map[Kind]Profile{
	Bulb: {
		PollInterval: 10 * time.Second,
		NaturalLight: map[command.Param]DayNight{
			command.ColorTemp: {Day: 6500, Night: 2700},
		},
	},
	LEDStrip: {
		PollInterval: 10 * time.Second,
		NaturalLight: map[command.Param]DayNight{
			command.Hue:        {Day: 0, Night: 30},
			command.Saturation: {Day: 0, Night: 90},
		},
		Sentinels: map[command.Param]float64{
			command.ColorTemp: 0,
		},
	},
	Plug: {
		PollInterval: 5 * time.Second,
	},
	Switch: {
		PollInterval: time.Second,
	},
}

// Profile returns a copy of the profile for k. Unknown kinds get a plug-like
// profile with no natural-light parameters.
func (k Kind) Profile() Profile {
	p, ok := profiles[k]
	if !ok {
		p = profiles[Plug]
	}
	out := Profile{PollInterval: p.PollInterval}
	if p.NaturalLight != nil {
		out.NaturalLight = make(map[command.Param]DayNight, len(p.NaturalLight))
		for param, dn := range p.NaturalLight {
			out.NaturalLight[param] = dn
		}
	}
	if p.Sentinels != nil {
		out.Sentinels = make(map[command.Param]float64, len(p.Sentinels))
		for param, v := range p.Sentinels {
			out.Sentinels[param] = v
		}
	}
	return out
}

// PollInterval is shorthand for k.Profile().PollInterval.
func (k Kind) PollInterval() time.Duration {
	return k.Profile().PollInterval
}
