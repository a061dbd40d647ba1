package telemetry

import "errors"

var (
	// ErrSinkFailed is returned when a sink could not deliver an event.
	ErrSinkFailed = errors.New("telemetry: sink failed")

	// ErrInvalidEvent is returned for events without a name.
	ErrInvalidEvent = errors.New("telemetry: invalid event")
)
