package solar

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Location is a point on Earth in decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Times are the sun events for one calendar day.
type Times struct {
	Sunrise time.Time
	Sunset  time.Time
	// Noon is the midpoint between sunrise and sunset.
	Noon time.Time
}

// SunTimes returns the sun events for the calendar date of day (in its own
// location). ok is false when the sun neither rises nor sets that day.
func SunTimes(day time.Time, loc Location) (Times, bool) {
	y, m, d := day.Date()
	rise, set := sunrise.SunriseSunset(loc.Latitude, loc.Longitude, y, m, d)
	if rise.IsZero() || set.IsZero() {
		return Times{}, false
	}
	return Times{
		Sunrise: rise,
		Sunset:  set,
		Noon:    rise.Add(set.Sub(rise) / 2),
	}, true
}

// Scale interpolates linearly from a (p=0) to b (p=1).
func Scale(a, b, p float64) float64 {
	return a + (b-a)*p
}

// NightPercent returns how far into night now is, between 0 and 1.
//
// transition is the width of the ramp window in minutes and offset shifts
// the sun event, both per event. Polar days and nights report 0.
func NightPercent(now time.Time, loc Location, transition, offset Pair) float64 {
	times, ok := SunTimes(now, loc)
	if !ok {
		return 0
	}
	return nightPercentAt(now, times, transition, offset)
}

func nightPercentAt(now time.Time, times Times, transition, offset Pair) float64 {
	if now.Before(times.Noon) {
		event := times.Sunrise.Add(offset.sunrise())
		// Morning: night fades out across the window.
		return 1 - ramp(now, event, transition.sunrise())
	}
	event := times.Sunset.Add(offset.sunset())
	return ramp(now, event, transition.sunset())
}

// ramp is 0 before the window centred on event, 1 after it and linear inside.
func ramp(now, event time.Time, window time.Duration) float64 {
	if window <= 0 {
		if now.Before(event) {
			return 0
		}
		return 1
	}
	start := event.Add(-window / 2)
	end := start.Add(window)
	switch {
	case !now.After(start):
		return 0
	case !now.Before(end):
		return 1
	default:
		return float64(now.Sub(start)) / float64(window)
	}
}

// Clock binds a location and a time source so filters can ask for the
// current night percent without threading coordinates around.
type Clock struct {
	Location Location
	Now      func() time.Time
}

// NewClock returns a Clock reading the wall clock.
func NewClock(loc Location) *Clock {
	return &Clock{Location: loc, Now: time.Now}
}

// NightPercent evaluates NightPercent at the clock's current time.
func (c *Clock) NightPercent(transition, offset Pair) float64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return NightPercent(now(), c.Location, transition, offset)
}
