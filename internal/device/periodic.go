package device

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
)

// ApplyPeriodicFilters re-runs the periodic filters of every eligible light
// and sends the result where it differs from the current light state.
// Eligible lights are online, switched on and not suspended.
//
// Filters start from the last light request made through SetPowerState or
// SetLightState, before filtering, so repeated passes at the same sun
// position converge on the same values. A light that was never commanded
// starts from an empty request.
//
// Returns:
//   - int: number of devices updated
func (p *Pool) ApplyPeriodicFilters(ctx context.Context) int {
	if p.pipeline == nil {
		return 0
	}

	var (
		wg      sync.WaitGroup
		updated atomic.Int32
	)
	for _, w := range p.wrappers {
		if !p.periodicEligible(w) {
			continue
		}
		wg.Add(1)
		go func(w *Wrapper) {
			defer wg.Done()
			if p.applyPeriodic(ctx, w) {
				updated.Add(1)
			}
		}(w)
	}
	wg.Wait()
	return int(updated.Load())
}

func (p *Pool) periodicEligible(w *Wrapper) bool {
	if !w.Kind.IsLight() || !w.IsOnline() || w.PeriodicSuspended() {
		return false
	}
	if on, known := w.PowerState(); !known || !on {
		return false
	}
	return filter.HasPeriodic(w.Filters())
}

func (p *Pool) applyPeriodic(ctx context.Context, w *Wrapper) bool {
	t := w.boundTransport()
	if t == nil {
		return false
	}

	base := w.periodicBaseline().WithInt(command.Channel, w.Channel)
	next, dropped := p.pipeline.ApplyPeriodic(w.Filters(), base, w.Target()).StripNaN()
	if len(dropped) > 0 {
		p.logger.Warn("dropping unparseable command parameters", "channel", w.Channel, "params", dropped)
	}
	if !differsFrom(next, w.lightState()) {
		return false
	}

	err := p.send(ctx, w, opPeriodic, next, 0, func(ctx context.Context) error {
		return t.SetLightState(ctx, next)
	})
	if err != nil {
		p.logger.Warn("periodic filter dispatch failed", "channel", w.Channel, "error", err)
		return false
	}
	return true
}

// differsFrom reports whether cmd would change any light parameter of current.
func differsFrom(cmd, current command.Command) bool {
	for _, param := range lightParams {
		v, ok := cmd.Get(param)
		if !ok {
			continue
		}
		if cv, known := current.Get(param); !known || cv != v {
			return true
		}
	}
	return false
}
