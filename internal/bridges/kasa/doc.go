// Package kasa connects Kasa plugs, bulbs, strips and switches to the
// device pool over MQTT.
//
// A separate LAN agent speaks the Kasa wire protocol and mirrors each device
// onto the broker:
//
//	┌──────────────┐  discovery/state   ┌──────────────┐   UDP/TCP    ┌─────────┐
//	│  Device Pool │◄──────────────────►│  LAN agent   │◄────────────►│  Kasa   │
//	│ (this bridge)│  command/get       │              │              │ devices │
//	└──────────────┘                    └──────────────┘              └─────────┘
//
// Topics (prefix from mqtt.topic_prefix, default "kasa"):
//
//	kasa/discovery/{id}  agent → bridge   device announced
//	kasa/state/{id}      agent → bridge   retained state report
//	kasa/command/{id}    bridge → agent   set power or light state
//	kasa/get/{id}        bridge → agent   request a fresh state report
//
// The Bridge registers every announced device with the pool through a
// Transport whose Poll requests a state report and waits for it, falling
// back to the cached report while it is younger than stale_after.
package kasa
