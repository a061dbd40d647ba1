package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// Dispatch operation labels used in logs and metrics.
const (
	opPower    = "power"
	opLight    = "light"
	opPeriodic = "periodic"
)

// lightParams are the parameters that make a command a light-state command.
var lightParams = []command.Param{
	command.Brightness,
	command.ColorTemp,
	command.Hue,
	command.Saturation,
}

func hasLightParams(cmd command.Command) bool {
	for _, p := range lightParams {
		if cmd.Has(p) {
			return true
		}
	}
	return false
}

// SetPowerState switches ch on or off. Power-on commands run through the
// device's filter chain; if the filters add light parameters the command is
// sent as a light-state command.
//
// Returns ErrDeviceNotFound, ErrDeviceOffline or ErrDeviceTimeout.
func (p *Pool) SetPowerState(ctx context.Context, ch int, on bool) error {
	return p.setPower(ctx, ch, on, 0)
}

func (p *Pool) setPower(ctx context.Context, ch int, on bool, depth int) error {
	w, t, err := p.resolve(ch)
	if err != nil {
		p.metrics.dispatch(opPower, resultLabel(err))
		return err
	}

	requested := command.New().WithInt(command.OnOff, boolToInt(on)).WithInt(command.Channel, ch)
	cmd := requested
	if on {
		cmd = p.filtered(w, cmd)
		if v, ok := cmd.PowerState(); ok {
			on = v
		}
	}

	if w.Kind.IsLight() && hasLightParams(cmd) {
		err = p.send(ctx, w, opPower, cmd, depth, func(ctx context.Context) error {
			return t.SetLightState(ctx, cmd)
		})
	} else {
		err = p.send(ctx, w, opPower, cmd, depth, func(ctx context.Context) error {
			return t.SetPowerState(ctx, on)
		})
	}
	if err == nil && on {
		w.setBaseline(requested)
	}
	return err
}

// SetLightState sends a light command to ch after running it through the
// device's filter chain. Parameters that failed to parse are dropped here.
//
// Returns ErrDeviceNotFound, ErrNotLight, ErrDeviceOffline or ErrDeviceTimeout.
func (p *Pool) SetLightState(ctx context.Context, ch int, cmd command.Command) error {
	w := p.GetByChannel(ch)
	if w == nil {
		p.metrics.dispatch(opLight, resultLabel(ErrDeviceNotFound))
		return fmt.Errorf("channel %d: %w", ch, ErrDeviceNotFound)
	}
	if !w.Kind.IsLight() {
		return fmt.Errorf("channel %d (%s): %w", ch, w.Kind, ErrNotLight)
	}
	_, t, err := p.resolve(ch)
	if err != nil {
		p.metrics.dispatch(opLight, resultLabel(err))
		return err
	}

	requested := cmd.WithInt(command.Channel, ch)
	cmd = p.filtered(w, requested)
	err = p.send(ctx, w, opLight, cmd, 0, func(ctx context.Context) error {
		return t.SetLightState(ctx, cmd)
	})
	if err == nil {
		w.setBaseline(requested)
	}
	return err
}

// resolve returns ch's wrapper and its live transport.
func (p *Pool) resolve(ch int) (*Wrapper, Transport, error) {
	w := p.GetByChannel(ch)
	if w == nil {
		return nil, nil, fmt.Errorf("channel %d: %w", ch, ErrDeviceNotFound)
	}
	t := w.boundTransport()
	if t == nil {
		return w, nil, fmt.Errorf("channel %d (%s): %w", ch, w.Alias, ErrDeviceOffline)
	}
	return w, t, nil
}

// filtered runs w's filter chain over cmd and drops NaN parameters.
func (p *Pool) filtered(w *Wrapper, cmd command.Command) command.Command {
	if p.pipeline != nil {
		cmd = p.pipeline.Apply(w.Filters(), cmd, w.Target())
	}
	cmd, dropped := cmd.StripNaN()
	if len(dropped) > 0 {
		p.logger.Warn("dropping unparseable command parameters",
			"channel", w.Channel,
			"params", dropped,
		)
	}
	return cmd
}

// send invokes the transport under the dispatch timeout. A failure unbinds
// the wrapper until the next successful poll. On success the predicted state
// is handled on the calling goroutine.
func (p *Pool) send(ctx context.Context, w *Wrapper, op string, cmd command.Command, depth int, call func(context.Context) error) error {
	dctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()

	if err := call(dctx); err != nil {
		p.metrics.dispatch(op, resultLabel(ErrDeviceTimeout))
		p.logger.Warn("device dispatch failed, marking offline",
			"channel", w.Channel,
			"alias", w.Alias,
			"op", op,
			"command", cmd.String(),
			"error", err,
		)
		if w.unbind() {
			p.wentOffline(w)
		}
		return fmt.Errorf("channel %d: %w: %w", w.Channel, ErrDeviceTimeout, err)
	}

	w.setLastCommand(cmd)
	p.metrics.dispatch(op, "ok")
	p.logger.Debug("device command dispatched",
		"channel", w.Channel,
		"op", op,
		"command", cmd.String(),
	)

	p.handle(ctx, Event{Type: EventStatus, Channel: w.Channel, Status: statusAfter(w, cmd)}, depth)
	return nil
}

// statusAfter predicts w's state once cmd has been acknowledged.
func statusAfter(w *Wrapper, cmd command.Command) Status {
	on, known := w.PowerState()
	if v, ok := cmd.PowerState(); ok {
		on = v
	} else if !known {
		on = true
	}

	light := w.lightState()
	for _, param := range lightParams {
		if v, ok := cmd.Get(param); ok {
			light = light.With(param, v)
		}
	}
	return Status{On: on, Light: light}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeviceNotFound):
		return "not_found"
	case errors.Is(err, ErrDeviceOffline):
		return "offline"
	case errors.Is(err, ErrDeviceTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
