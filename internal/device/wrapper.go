package device

import (
	"sync"
	"time"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/subtype"
)

// Wrapper is one configured channel: static config plus live state.
// Wrappers are created at pool construction and never destroyed.
type Wrapper struct {
	Channel          int
	ID               string
	Alias            string
	Kind             subtype.Kind
	Class            string
	Groups           []string
	SwitchTargets    []int
	SwitchTargetsOff []int
	PollInterval     time.Duration

	mu                sync.RWMutex
	transport         Transport
	online            bool
	powerKnown        bool
	on                bool
	light             command.Command
	lastCommand       *command.Command
	baseline          command.Command
	lastSeen          time.Time
	filters           []filter.Spec
	periodicSuspended bool
}

func newWrapper(dc DeviceConfig, poll time.Duration) *Wrapper {
	return &Wrapper{
		Channel:          dc.Channel,
		ID:               dc.ID,
		Alias:            dc.Alias,
		Kind:             dc.SubType,
		Class:            dc.ClassName(),
		Groups:           append([]string(nil), dc.Groups...),
		SwitchTargets:    append([]int(nil), dc.SwitchTargets...),
		SwitchTargetsOff: append([]int(nil), dc.SwitchTargetsOff...),
		PollInterval:     poll,
		filters:          filter.CloneSpecs(dc.Filters),
	}
}

// Target returns the filter target for w.
func (w *Wrapper) Target() filter.Target {
	return filter.Target{Channel: w.Channel, Alias: w.Alias, Kind: w.Kind}
}

// IsOnline reports whether w has a live transport.
func (w *Wrapper) IsOnline() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// PowerState returns the last known power state; ok is false before the
// first report.
func (w *Wrapper) PowerState() (on, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.on, w.powerKnown
}

// LastCommand returns the last command dispatched to w, if any.
func (w *Wrapper) LastCommand() (command.Command, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastCommand == nil {
		return command.Command{}, false
	}
	return *w.lastCommand, true
}

// Filters returns a copy of w's filter chain.
func (w *Wrapper) Filters() []filter.Spec {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return filter.CloneSpecs(w.filters)
}

// PeriodicSuspended reports whether periodic filters are paused for w.
func (w *Wrapper) PeriodicSuspended() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.periodicSuspended
}

// InGroup reports whether w belongs to group.
func (w *Wrapper) InGroup(group string) bool {
	for _, g := range w.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func (w *Wrapper) boundTransport() Transport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.transport
}

// bind attaches t and marks w online. It reports whether w was offline.
func (w *Wrapper) bind(t Transport, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	wasOffline := !w.online
	w.transport = t
	w.online = true
	w.lastSeen = now
	return wasOffline
}

// unbind drops the transport and marks w offline. It reports whether w was online.
func (w *Wrapper) unbind() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	wasOnline := w.online
	w.transport = nil
	w.online = false
	return wasOnline
}

// record stores a state report and returns which parts changed.
func (w *Wrapper) record(s Status, now time.Time) (powerChanged, lightChanged bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	powerChanged = !w.powerKnown || w.on != s.On
	w.powerKnown = true
	w.on = s.On
	w.lastSeen = now
	if !s.Light.IsEmpty() {
		lightChanged = !w.light.Equal(s.Light)
		w.light = s.Light
	}
	return powerChanged, lightChanged
}

func (w *Wrapper) setLastCommand(cmd command.Command) {
	w.mu.Lock()
	w.lastCommand = &cmd
	w.mu.Unlock()
}

// setBaseline stores the pre-filter light request that periodic filters
// start from. Power and channel are not part of it.
func (w *Wrapper) setBaseline(cmd command.Command) {
	cmd = cmd.Without(command.OnOff).Without(command.Channel)
	w.mu.Lock()
	w.baseline = cmd
	w.mu.Unlock()
}

func (w *Wrapper) periodicBaseline() command.Command {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.baseline
}

func (w *Wrapper) lightState() command.Command {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.light
}

func (w *Wrapper) mergeOptions(opts filter.Options) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return opts.MergeInto(w.filters)
}

func (w *Wrapper) setPeriodicSuspended(v bool) {
	w.mu.Lock()
	w.periodicSuspended = v
	w.mu.Unlock()
}

// Snapshot is a point-in-time, JSON-friendly view of a wrapper.
type Snapshot struct {
	Channel           int            `json:"channel"`
	ID                string         `json:"id"`
	Alias             string         `json:"alias"`
	SubType           string         `json:"subType"`
	Class             string         `json:"class"`
	Groups            []string       `json:"groups,omitempty"`
	Online            bool           `json:"online"`
	PowerState        *bool          `json:"powerState,omitempty"`
	LightState        map[string]any `json:"lightState,omitempty"`
	LastCommand       map[string]any `json:"lastCommand,omitempty"`
	LastSeen          *time.Time     `json:"lastSeen,omitempty"`
	Filters           []string       `json:"filters,omitempty"`
	PeriodicSuspended bool           `json:"periodicSuspended"`
}

// Snapshot returns the current view of w.
func (w *Wrapper) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Snapshot{
		Channel:           w.Channel,
		ID:                w.ID,
		Alias:             w.Alias,
		SubType:           w.Kind.String(),
		Class:             w.Class,
		Groups:            append([]string(nil), w.Groups...),
		Online:            w.online,
		PeriodicSuspended: w.periodicSuspended,
	}
	if w.powerKnown {
		on := w.on
		s.PowerState = &on
	}
	if !w.light.IsEmpty() {
		s.LightState = w.light.Map()
	}
	if w.lastCommand != nil {
		s.LastCommand = w.lastCommand.Map()
	}
	if !w.lastSeen.IsZero() {
		seen := w.lastSeen
		s.LastSeen = &seen
	}
	for _, f := range w.filters {
		s.Filters = append(s.Filters, f.Plugin)
	}
	return s
}
