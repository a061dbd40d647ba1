// Package device provides the Device Pool for the Kasa bridge.
//
// The pool is the single source of truth for device identity, health and
// dispatch. Every configured channel has a Wrapper that exists for the whole
// process lifetime; discovery binds a Transport to it and polling failures
// unbind it again.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                              Device Pool                             │
//	│                                                                      │
//	│  ┌────────────────┐   ┌──────────────────┐   ┌───────────────────┐   │
//	│  │   Wrappers     │   │   Poll loops     │   │  Filter pipeline  │   │
//	│  │  (wrapper.go)  │◀──│   (pool.go)      │   │  (internal/filter)│   │
//	│  │                │   │                  │   │                   │   │
//	│  │ • static conf  │   │ • one per device │   │ • per-device specs│   │
//	│  │ • live state   │   │ • events channel │   │ • runs on dispatch│   │
//	│  └────────────────┘   └──────────────────┘   └───────────────────┘   │
//	│           │                                            │             │
//	└───────────│────────────────────────────────────────────│─────────────┘
//	            ▼                                            ▼
//	┌──────────────────────┐                     ┌──────────────────────┐
//	│  Telemetry sinks     │                     │  Transport (MQTT)    │
//	│  • LifeLog, Influx   │                     │  bridges/kasa        │
//	│  • SQLite event log  │                     └──────────────────────┘
//	└──────────────────────┘
//
// # Usage
//
//	cfg, err := device.LoadConfig("configs/devices.yaml")
//	if err != nil {
//	    return err
//	}
//	pool, err := device.NewPool(cfg, pipeline, device.PoolOptions{Logger: log})
//	if err != nil {
//	    return err
//	}
//	go pool.Run(ctx)
//
//	// from the discovery listener
//	pool.RegisterFromDiscovery(transport)
//
//	// from the HTTP layer
//	err = pool.SetPowerState(ctx, 14, true)
//
// # Switch coupling
//
// A switch reporting a power transition drives its switchTargets to the same
// state and its switchTargetsOff to the opposite state. Config validation
// rejects switches that target other switches and the event handler never
// cascades more than one level.
//
// # Thread Safety
//
// Pool methods are safe for concurrent use. Each Wrapper guards its live state
// with its own mutex, so dispatches to different channels never wait on each
// other. Concurrent dispatches to the same channel are last-write-wins.
//
// Poll reports are handled by the single Run consumer. A successful dispatch
// applies its acknowledged state on the caller's goroutine instead, including
// telemetry and switch coupling, so the state is current when SetPowerState or
// SetLightState returns.
package device
