package device

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/subtype"
)

// Config is the static device inventory.
//
// Example (devices.yaml):
//
//	devices:
//	  - alias: "Desk Lamp"
//	    ch: 14
//	    id: "8006A1B2C3D4E5F60718"
//	    subType: bulb
//	    class: office
//	    filters:
//	      - plugin: naturalLight
//	        periodic: true
//	        settings:
//	          transitionTime: {sunrise: 60, sunset: 90}
//	  - alias: "Hall Switch"
//	    ch: 1
//	    id: "8006F0E1D2C3B4A59687"
//	    subType: switch
//	    switchTargets: [14]
//	globalConfig:
//	  bulb: {pollInterval: 10000}
//	presets:
//	  evening:
//	    command: {on_off: 1, brightness: 40}
type Config struct {
	Devices      []DeviceConfig             `yaml:"devices"`
	GlobalConfig map[subtype.Kind]KindConfig `yaml:"globalConfig"`
	Presets      map[string]Preset          `yaml:"presets"`
}

// DeviceConfig is one configured channel.
type DeviceConfig struct {
	Alias            string        `yaml:"alias"`
	Channel          int           `yaml:"ch"`
	ID               string        `yaml:"id"`
	SubType          subtype.Kind  `yaml:"subType"`
	Class            string        `yaml:"class"`
	Groups           []string      `yaml:"groups"`
	SwitchTargets    []int         `yaml:"switchTargets"`
	SwitchTargetsOff []int         `yaml:"switchTargetsOff"`
	Filters          []filter.Spec `yaml:"filters"`
}

// ClassName returns the configured class, defaulting to the subtype name.
func (d DeviceConfig) ClassName() string {
	if d.Class != "" {
		return d.Class
	}
	return d.SubType.String()
}

// KindConfig overrides per-subtype defaults.
type KindConfig struct {
	// PollInterval in milliseconds; zero keeps the subtype default.
	PollInterval int `yaml:"pollInterval"`
}

// Preset is a canned command plus filter options applied to a class.
type Preset struct {
	Command command.Command `yaml:"command"`
	Options filter.Options  `yaml:"options"`
}

// LoadConfig reads and validates a device inventory file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading device config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a device inventory.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing device config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PollInterval returns the poll interval for kind, honouring globalConfig.
func (c *Config) PollInterval(kind subtype.Kind) time.Duration {
	if kc, ok := c.GlobalConfig[kind]; ok && kc.PollInterval > 0 {
		return time.Duration(kc.PollInterval) * time.Millisecond
	}
	return kind.PollInterval()
}

// Validate checks the inventory and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	channels := make(map[int]DeviceConfig, len(c.Devices))
	ids := make(map[string]int, len(c.Devices))

	for i, d := range c.Devices {
		if d.Channel < 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: channel must be non-negative", i))
		}
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: id is required", i))
		}
		if d.SubType == subtype.Unknown {
			errs = append(errs, fmt.Errorf("devices[%d]: subType is required", i))
		}
		if _, dup := channels[d.Channel]; dup {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate channel %d", i, d.Channel))
		}
		if prev, dup := ids[d.ID]; dup && d.ID != "" {
			errs = append(errs, fmt.Errorf("devices[%d]: id %q already used by channel %d", i, d.ID, prev))
		}
		for j, f := range d.Filters {
			if f.Plugin == "" {
				errs = append(errs, fmt.Errorf("devices[%d].filters[%d]: plugin is required", i, j))
			}
		}
		channels[d.Channel] = d
		ids[d.ID] = d.Channel
	}

	for i, d := range c.Devices {
		targets := append(append([]int(nil), d.SwitchTargets...), d.SwitchTargetsOff...)
		if len(targets) > 0 && d.SubType != subtype.Switch {
			errs = append(errs, fmt.Errorf("devices[%d]: switch targets on a %s", i, d.SubType))
		}
		for _, ch := range targets {
			target, ok := channels[ch]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("devices[%d]: switch target %d is not configured", i, ch))
			case target.SubType == subtype.Switch:
				errs = append(errs, fmt.Errorf("devices[%d]: switch target %d is itself a switch", i, ch))
			}
		}
	}

	for kind, kc := range c.GlobalConfig {
		if kc.PollInterval < 0 {
			errs = append(errs, fmt.Errorf("globalConfig.%s: pollInterval must be non-negative", kind))
		}
	}

	for id, p := range c.Presets {
		if p.Command.IsEmpty() && p.Options.IsEmpty() {
			errs = append(errs, fmt.Errorf("presets.%s: command or options required", id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
