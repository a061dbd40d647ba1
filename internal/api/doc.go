// Package api implements the HTTP and WebSocket surface of the Kasa bridge.
//
// This package provides:
//   - Query-string control routes (setPowerState, setLightState, applyPreset)
//   - Filter option updates by class, channel or group
//   - Device snapshots and event history
//   - WebSocket hub for device.state broadcasts and command events
//   - Prometheus metrics and health endpoints
//
// # Architecture
//
// The server sits between automation clients and the device pool. Control
// routes translate query parameters into commands with the command builder
// and hand them to the pool, which filters and dispatches them. State flows
// back through the pool's Broadcaster, implemented here by Hub.
//
// # Responses
//
// Control routes answer in plain text: "ok" on success, the error text
// otherwise. Device errors map to status codes:
//
//	device.ErrDeviceNotFound   404
//	device.ErrNotLight         400
//	device.ErrDeviceOffline    503
//	device.ErrDeviceTimeout    504 (generic message)
//
// Read routes answer in JSON.
package api
