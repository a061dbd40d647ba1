package telemetry

import (
	"context"
	"errors"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
)

// Multi delivers every event to each of its sinks and joins their errors.
type Multi []device.TelemetrySink

// Notify implements device.TelemetrySink.
func (m Multi) Notify(ctx context.Context, ev device.TelemetryEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
