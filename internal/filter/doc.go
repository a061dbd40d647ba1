// Package filter implements the command-filter pipeline applied to every
// outbound device command.
//
// A Plugin rewrites a command for one device. Plugins are looked up by name
// in a Registry; a missing plugin is a normal, logged case and the command
// passes through unchanged. Plugins can depend on each other through the
// registry: naturalLight delegates scaling to sunEvents and asks
// externalFlags whether a restriction currently applies.
//
// Built-in plugins:
//
//	sunEvents      scales stateData parameters between day and night values
//	naturalLight   resolves per-subtype day/night presets, restrictions and partial blending
//	externalFlags  keeps remote flag sets fresh and answers flag queries from cache
//	schedule       time-window override; currently passes commands through
//
// Ordering is part of each device's configuration: later plugins see the
// output of earlier ones.
package filter
