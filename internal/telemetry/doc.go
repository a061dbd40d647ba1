// Package telemetry delivers device transition notifications to external
// sinks.
//
// Sinks implement device.TelemetrySink:
//   - LifeLogSink posts each event to the LifeLog HTTP endpoint
//   - InfluxSink writes a point per event to InfluxDB
//   - EventLogSink appends events to the local SQLite log
//
// Multi fans one event out to several sinks. The device pool already calls
// sinks off the dispatch path with a bounded context, so sinks do their work
// synchronously and report errors; nothing here retries.
package telemetry
