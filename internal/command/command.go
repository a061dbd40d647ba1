package command

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Param is a whitelisted command parameter name.
type Param string

const (
	OnOff            Param = "on_off"
	Channel          Param = "ch"
	Brightness       Param = "brightness"
	ColorTemp        Param = "color_temp"
	Hue              Param = "hue"
	Saturation       Param = "saturation"
	IgnoreDefault    Param = "ignore_default"
	TransitionPeriod Param = "transition_period"
	Mode             Param = "mode"
)

// numeric lists the integer parameters in canonical order.
var numeric = []Param{OnOff, Channel, Brightness, ColorTemp, Hue, Saturation, IgnoreDefault, TransitionPeriod}

var order = func() map[Param]int {
	m := make(map[Param]int, len(numeric))
	for i, p := range numeric {
		m[p] = i
	}
	return m
}()

// IsNumeric reports whether p is one of the integer parameters.
func IsNumeric(p Param) bool {
	_, ok := order[p]
	return ok
}

// Lookup resolves a raw key to a whitelisted parameter.
func Lookup(key string) (Param, bool) {
	p := Param(key)
	if p == Mode || IsNumeric(p) {
		return p, true
	}
	return "", false
}

// Command is an immutable set of parameter values. The zero value is an
// empty command ready to use.
type Command struct {
	values  map[Param]float64
	mode    string
	hasMode bool
}

// New returns an empty command.
func New() Command {
	return Command{}
}

// Get returns the value of a numeric parameter.
func (c Command) Get(p Param) (float64, bool) {
	v, ok := c.values[p]
	return v, ok
}

// Has reports whether p is set. For Mode it reports whether a mode is set.
func (c Command) Has(p Param) bool {
	if p == Mode {
		return c.hasMode
	}
	_, ok := c.values[p]
	return ok
}

// Mode returns the mode string, if any.
func (c Command) Mode() (string, bool) {
	return c.mode, c.hasMode
}

// Len returns the number of set parameters, mode included.
func (c Command) Len() int {
	n := len(c.values)
	if c.hasMode {
		n++
	}
	return n
}

// IsEmpty reports whether no parameter is set.
func (c Command) IsEmpty() bool {
	return c.Len() == 0
}

// With returns a copy of c with p set to v. Non-numeric parameters are ignored.
func (c Command) With(p Param, v float64) Command {
	if !IsNumeric(p) {
		return c
	}
	out := c.clone()
	if out.values == nil {
		out.values = make(map[Param]float64, 1)
	}
	out.values[p] = v
	return out
}

// WithInt is With for integer values.
func (c Command) WithInt(p Param, v int) Command {
	return c.With(p, float64(v))
}

// Without returns a copy of c with p removed.
func (c Command) Without(p Param) Command {
	if !c.Has(p) {
		return c
	}
	out := c.clone()
	if p == Mode {
		out.mode, out.hasMode = "", false
		return out
	}
	delete(out.values, p)
	return out
}

// WithMode returns a copy of c with mode set.
func (c Command) WithMode(mode string) Command {
	out := c.clone()
	out.mode, out.hasMode = mode, true
	return out
}

// Merge returns c with every parameter of other applied on top.
func (c Command) Merge(other Command) Command {
	out := c.clone()
	for p, v := range other.values {
		if out.values == nil {
			out.values = make(map[Param]float64, len(other.values))
		}
		out.values[p] = v
	}
	if other.hasMode {
		out.mode, out.hasMode = other.mode, true
	}
	return out
}

// Params returns the set numeric parameters in canonical order.
func (c Command) Params() []Param {
	ps := make([]Param, 0, len(c.values))
	for p := range c.values {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return order[ps[i]] < order[ps[j]] })
	return ps
}

// Int returns p rounded to the nearest integer. ok is false when p is
// unset or NaN.
func (c Command) Int(p Param) (int, bool) {
	v, ok := c.values[p]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return int(math.Round(v)), true
}

// Channel returns the ch parameter.
func (c Command) Channel() (int, bool) {
	return c.Int(Channel)
}

// PowerState returns on_off as a boolean.
func (c Command) PowerState() (on, ok bool) {
	v, ok := c.Int(OnOff)
	if !ok {
		return false, false
	}
	return v != 0, true
}

// NaNParams lists parameters whose value failed to parse.
func (c Command) NaNParams() []Param {
	var out []Param
	for _, p := range c.Params() {
		if math.IsNaN(c.values[p]) {
			out = append(out, p)
		}
	}
	return out
}

// StripNaN returns c without NaN parameters, plus the names removed.
func (c Command) StripNaN() (Command, []Param) {
	bad := c.NaNParams()
	if len(bad) == 0 {
		return c, nil
	}
	out := c.clone()
	for _, p := range bad {
		delete(out.values, p)
	}
	return out, bad
}

// Equal reports whether c and other carry the same parameters and values.
// NaN equals NaN here so a pass-through command compares equal to its input.
func (c Command) Equal(other Command) bool {
	if c.hasMode != other.hasMode || c.mode != other.mode || len(c.values) != len(other.values) {
		return false
	}
	for p, v := range c.values {
		w, ok := other.values[p]
		if !ok {
			return false
		}
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

// Map returns the command as plain values: integers as int, NaN as nil,
// mode as string.
func (c Command) Map() map[string]any {
	m := make(map[string]any, c.Len())
	for p, v := range c.values {
		if math.IsNaN(v) {
			m[string(p)] = nil
			continue
		}
		m[string(p)] = int(math.Round(v))
	}
	if c.hasMode {
		m[string(Mode)] = c.mode
	}
	return m
}

// MarshalJSON encodes the command as a flat JSON object.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// UnmarshalJSON decodes a flat JSON object through FromAny.
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding command: %w", err)
	}
	*c = FromAny(raw)
	return nil
}

// UnmarshalYAML decodes a preset command from a YAML mapping.
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decoding command: %w", err)
	}
	*c = FromAny(raw)
	return nil
}

// String renders the command in canonical order, e.g. "ch=14 brightness=80".
func (c Command) String() string {
	parts := make([]string, 0, c.Len())
	for _, p := range c.Params() {
		v := c.values[p]
		if math.IsNaN(v) {
			parts = append(parts, string(p)+"=NaN")
			continue
		}
		parts = append(parts, string(p)+"="+strconv.FormatFloat(v, 'f', -1, 64))
	}
	if c.hasMode {
		parts = append(parts, "mode="+c.mode)
	}
	return strings.Join(parts, " ")
}

func (c Command) clone() Command {
	out := Command{mode: c.mode, hasMode: c.hasMode}
	if c.values != nil {
		out.values = make(map[Param]float64, len(c.values))
		for p, v := range c.values {
			out.values[p] = v
		}
	}
	return out
}
