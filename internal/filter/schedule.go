package filter

import (
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// Schedule is the time-window override filter. It currently returns every
// command unchanged and logs the pass at debug level.
//
// TODO(schedule): apply per-window overrides once a windows setting is added
// to Settings.
type Schedule struct{}

// NewSchedule creates the schedule plugin.
func NewSchedule() *Schedule {
	return &Schedule{}
}

// Name implements Plugin.
func (s *Schedule) Name() string { return ScheduleName }

// Apply implements Plugin.
func (s *Schedule) Apply(_ *Context, cmd command.Command, target Target, reg *Registry) command.Command {
	logger(reg).Debug("schedule filter passing through", "channel", target.Channel)
	return cmd
}

// NewDefaultRegistry registers the four built-in plugins.
func NewDefaultRegistry(clock NightClock, cache FlagCache) *Registry {
	return NewRegistry(
		NewSunEvents(clock),
		NewNaturalLight(),
		NewExternalFlags(cache),
		NewSchedule(),
	)
}
