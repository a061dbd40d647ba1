package kasa

import (
	"context"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
)

// Transport is the device.Transport for one Kasa device behind the bridge.
type Transport struct {
	id     string
	bridge *Bridge
}

var _ device.Transport = (*Transport)(nil)

// DeviceID implements device.Transport.
func (t *Transport) DeviceID() string { return t.id }

// SetPowerState implements device.Transport.
func (t *Transport) SetPowerState(_ context.Context, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return t.bridge.publishCommand(t.id, CommandSetPowerState, map[string]any{
		string(command.OnOff): v,
	})
}

// SetLightState implements device.Transport. The channel parameter is
// local to the pool and is not forwarded.
func (t *Transport) SetLightState(_ context.Context, cmd command.Command) error {
	return t.bridge.publishCommand(t.id, CommandSetLightState, cmd.Without(command.Channel).Map())
}

// Poll requests a fresh report and waits for it until ctx ends, then
// answers from the cache.
func (t *Transport) Poll(ctx context.Context) (device.Status, error) {
	next := t.bridge.waiter(t.id)

	if err := t.bridge.publishGet(t.id); err != nil {
		t.bridge.logger.Debug("state request failed", "device_id", t.id, "error", err)
		return t.bridge.fresh(t.id)
	}

	select {
	case <-next:
	case <-ctx.Done():
	}
	return t.bridge.fresh(t.id)
}
