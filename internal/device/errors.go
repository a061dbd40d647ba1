package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceOffline) {
//	    // retry after the next poll
//	}
var (
	// ErrDeviceNotFound is returned when a channel, class or group matches no device.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceOffline is returned when the device has no live transport.
	ErrDeviceOffline = errors.New("device: offline")

	// ErrDeviceTimeout is returned when the transport rejected or timed out a command.
	ErrDeviceTimeout = errors.New("device: timeout")

	// ErrNotConfigured is returned when a discovered device has no channel.
	ErrNotConfigured = errors.New("device: not configured")

	// ErrNotLight is returned when a light command targets a plug or switch.
	ErrNotLight = errors.New("device: not a light")

	// ErrPresetNotFound is returned when a preset ID does not exist.
	ErrPresetNotFound = errors.New("device: preset not found")

	// ErrInvalidConfig is returned when the device configuration fails validation.
	ErrInvalidConfig = errors.New("device: invalid config")

	// ErrInvalidTarget is returned for an unknown target type.
	ErrInvalidTarget = errors.New("device: invalid target type")
)
