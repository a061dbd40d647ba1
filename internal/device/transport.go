package device

import (
	"context"
	"time"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// Transport is the capability a physical device exposes to the pool.
// Implementations must be safe for concurrent use.
type Transport interface {
	// DeviceID returns the physical device identifier used to match config.
	DeviceID() string
	SetPowerState(ctx context.Context, on bool) error
	SetLightState(ctx context.Context, cmd command.Command) error
	// Poll returns the device's current state or an error if it is unreachable.
	Poll(ctx context.Context) (Status, error)
}

// Status is a device state report.
type Status struct {
	On bool
	// Light holds the reported light parameters; empty for plugs and switches.
	Light command.Command
}

// TelemetryEvent describes a device transition.
type TelemetryEvent struct {
	Name    string
	Channel int
	Alias   string
	Time    time.Time
}

// Telemetry event names.
const (
	EventPowerOn    = "power-on"
	EventPowerOff   = "power-off"
	EventLightState = "light-state"
	EventOnline     = "online"
	EventOffline    = "offline"
)

// TelemetrySink receives transition notifications. The pool calls Notify in
// its own goroutine with a bounded context; errors are logged only.
type TelemetrySink interface {
	Notify(ctx context.Context, ev TelemetryEvent) error
}

// Broadcaster pushes device snapshots to live subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// BroadcastChannel is the hub channel device snapshots are sent on.
const BroadcastChannel = "device.state"

// EventType distinguishes entries on the pool's event queue.
type EventType int

const (
	// EventStatus is a successful poll or command acknowledgement.
	EventStatus EventType = iota + 1
	// EventPollFailed is a failed poll.
	EventPollFailed
)

// Event is a state report queued for the pool.
type Event struct {
	Type    EventType
	Channel int
	Status  Status
	Err     error
	// transport that produced the event, used to rebind after an outage.
	transport Transport
}
