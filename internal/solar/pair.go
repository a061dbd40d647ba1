package solar

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Pair holds a per-event setting in minutes. Configuration may give a
// single number, which applies to both events, or {sunrise, sunset}.
type Pair struct {
	Sunrise float64 `json:"sunrise" yaml:"sunrise"`
	Sunset  float64 `json:"sunset" yaml:"sunset"`
}

// Uniform returns a Pair with the same value for both events.
func Uniform(minutes float64) Pair {
	return Pair{Sunrise: minutes, Sunset: minutes}
}

// IsZero reports whether both members are zero.
func (p Pair) IsZero() bool {
	return p.Sunrise == 0 && p.Sunset == 0
}

func (p Pair) sunrise() time.Duration { return minutes(p.Sunrise) }
func (p Pair) sunset() time.Duration  { return minutes(p.Sunset) }

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

type pairFields Pair

// UnmarshalJSON accepts a number or an object.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Uniform(n)
		return nil
	}
	var f pairFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("solar: pair must be a number or {sunrise, sunset}: %w", err)
	}
	*p = Pair(f)
	return nil
}

// UnmarshalYAML accepts a scalar or a mapping.
func (p *Pair) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var n float64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("solar: pair must be a number or {sunrise, sunset}: %w", err)
		}
		*p = Uniform(n)
		return nil
	}
	var f pairFields
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("solar: pair must be a number or {sunrise, sunset}: %w", err)
	}
	*p = Pair(f)
	return nil
}
