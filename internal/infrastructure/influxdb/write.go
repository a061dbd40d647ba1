package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceEvents holds one point per device state transition.
const MeasurementDeviceEvents = "device_events"

// DeviceEvent is a single power or light transition.
type DeviceEvent struct {
	Channel int
	Alias   string
	Event   string
	// Fields carries numeric state such as on_off or brightness.
	Fields map[string]float64
	Time   time.Time
}

// WriteDeviceEvent queues a device transition point.
//
// Tags: channel, alias, event. Fields: the event's numeric state plus a
// constant count=1 so transitions can be summed per window.
func (c *Client) WriteDeviceEvent(ev DeviceEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceEventPoint(ev))
}

func deviceEventPoint(ev DeviceEvent) *write.Point {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := make(map[string]interface{}, len(ev.Fields)+1)
	for k, v := range ev.Fields {
		fields[k] = v
	}
	fields["count"] = 1

	tags := map[string]string{
		"channel": strconv.Itoa(ev.Channel),
		"event":   ev.Event,
	}
	if ev.Alias != "" {
		tags["alias"] = ev.Alias
	}

	return write.NewPoint(MeasurementDeviceEvents, tags, fields, ts)
}
