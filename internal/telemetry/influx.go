package telemetry

import (
	"context"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/influxdb"
)

// PointWriter is the InfluxDB surface the sink needs. *influxdb.Client
// satisfies it.
type PointWriter interface {
	WriteDeviceEvent(ev influxdb.DeviceEvent)
}

// InfluxSink writes one point per device event.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates a sink over w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// Notify implements device.TelemetrySink. Writes are batched by the client,
// so this never blocks on the network.
func (s *InfluxSink) Notify(_ context.Context, ev device.TelemetryEvent) error {
	if ev.Name == "" {
		return ErrInvalidEvent
	}
	s.writer.WriteDeviceEvent(influxdb.DeviceEvent{
		Channel: ev.Channel,
		Alias:   ev.Alias,
		Event:   ev.Name,
		Fields:  eventFields(ev.Name),
		Time:    ev.Time,
	})
	return nil
}

// eventFields maps an event onto numeric fields for graphing.
func eventFields(name string) map[string]float64 {
	switch name {
	case device.EventPowerOn:
		return map[string]float64{"on_off": 1}
	case device.EventPowerOff:
		return map[string]float64{"on_off": 0}
	case device.EventOnline:
		return map[string]float64{"online": 1}
	case device.EventOffline:
		return map[string]float64{"online": 0}
	default:
		return nil
	}
}
