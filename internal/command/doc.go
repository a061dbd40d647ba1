// Package command defines the whitelisted command object sent to devices
// and the builders that turn untyped request input into one.
//
// A Command maps a fixed set of parameter names to values. Every parameter
// is an integer except mode, which is a string. Unknown keys are dropped
// silently and integers that fail to parse become NaN; NaN values travel
// through the filter pipeline and are stripped at the dispatch boundary.
//
// Commands have value semantics: With, Without and WithMode return a new
// Command and never modify the receiver, so a filter can hand back its
// input unchanged and callers can rely on bit-identical pass-through.
package command
