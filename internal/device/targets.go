package device

import (
	"fmt"
	"strconv"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
)

// TargetType selects how ApplyOptionsTo resolves wrappers.
type TargetType string

// Target types.
const (
	TargetClass   TargetType = "class"
	TargetChannel TargetType = "channel"
	TargetGroup   TargetType = "group"
)

// Resolve returns the wrappers matching a target. An empty result is
// reported as ErrDeviceNotFound.
func (p *Pool) Resolve(tt TargetType, id string) ([]*Wrapper, error) {
	var out []*Wrapper

	switch tt {
	case TargetChannel:
		ch, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", id, ErrDeviceNotFound)
		}
		if w := p.GetByChannel(ch); w != nil {
			out = append(out, w)
		}
	case TargetClass:
		for _, w := range p.wrappers {
			if w.Class == id {
				out = append(out, w)
			}
		}
	case TargetGroup:
		for _, w := range p.wrappers {
			if w.InGroup(id) {
				out = append(out, w)
			}
		}
	default:
		return nil, fmt.Errorf("%q: %w", tt, ErrInvalidTarget)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%s %q: %w", tt, id, ErrDeviceNotFound)
	}
	return out, nil
}

// ApplyOptionsTo merges opts into the filter settings of every wrapper
// matching the target. No device I/O happens. It returns the number of
// wrappers matched.
func (p *Pool) ApplyOptionsTo(tt TargetType, id string, opts filter.Options) (int, error) {
	wrappers, err := p.Resolve(tt, id)
	if err != nil {
		return 0, err
	}

	for _, w := range wrappers {
		n := w.mergeOptions(opts)
		p.logger.Debug("filter options applied",
			"channel", w.Channel,
			"target", string(tt),
			"target_id", id,
			"filters_updated", n,
		)
	}
	return len(wrappers), nil
}
