// Package mqtt provides the broker connection the Kasa bridge uses to reach
// its devices.
//
// Plugs, bulbs, strips and switches are fronted by a device agent that
// speaks MQTT. The bridge subscribes to discovery and state topics, and
// publishes commands and state requests:
//
//	Kasa bridge ↔ MQTT broker ↔ device agent ↔ devices
//
// The client restores subscriptions after reconnects, publishes a retained
// online/offline status with a last-will, and guards handlers against panics.
package mqtt
