// Package influxdb records device transitions as InfluxDB v2 time series.
//
// Every power or light change the device pool reports becomes one point in
// the device_events measurement, tagged by channel, alias and event name.
// The integration is optional and disabled unless influxdb.enabled is set.
package influxdb
