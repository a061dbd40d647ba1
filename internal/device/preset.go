package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxBatchExecutionTime is the hard limit for a single preset batch.
const maxBatchExecutionTime = 30 * time.Second

// BatchFailure records one device that did not accept a preset.
type BatchFailure struct {
	Channel int    `json:"channel"`
	Alias   string `json:"alias"`
	Error   string `json:"error"`
}

// BatchResult summarises a preset applied to a class.
type BatchResult struct {
	ID         string         `json:"id"`
	Class      string         `json:"class"`
	PresetID   string         `json:"presetId"`
	Source     string         `json:"source,omitempty"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failures   []BatchFailure `json:"failures,omitempty"`
	DurationMS int64          `json:"durationMs"`
}

// Preset returns a configured preset.
func (p *Pool) Preset(id string) (Preset, bool) {
	preset, ok := p.presets[id]
	return preset, ok
}

// ApplyPresetToClass applies a preset to every wrapper of className
// concurrently. One device failing never aborts the others; failures are
// reported in the result.
//
// Parameters:
//   - ctx: Context for the device dispatches
//   - className: Device class to target
//   - presetID: Key in the presets section of the device inventory
//   - source: Who triggered the batch (api, websocket), for logging
//   - suspend: Pause periodic filters on the matched devices
//   - resume: Restart periodic filters on the matched devices
//
// Returns:
//   - *BatchResult: Batch ID, per-device outcome counts and failures
//   - error: ErrPresetNotFound or ErrDeviceNotFound if nothing can be applied
func (p *Pool) ApplyPresetToClass(ctx context.Context, className, presetID, source string, suspend, resume bool) (*BatchResult, error) {
	preset, ok := p.presets[presetID]
	if !ok {
		return nil, fmt.Errorf("preset %q: %w", presetID, ErrPresetNotFound)
	}
	wrappers, err := p.Resolve(TargetClass, className)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, maxBatchExecutionTime)
	defer cancel()

	started := p.now()
	result := &BatchResult{
		ID:       uuid.NewString(),
		Class:    className,
		PresetID: presetID,
		Source:   source,
		Total:    len(wrappers),
	}

	p.logger.Info("preset batch started",
		"batch_id", result.ID,
		"class", className,
		"preset", presetID,
		"source", source,
		"devices", len(wrappers),
	)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, w := range wrappers {
		wg.Add(1)
		go func(w *Wrapper) {
			defer wg.Done()

			if err := p.applyPreset(ctx, w, preset, suspend, resume); err != nil {
				mu.Lock()
				result.Failures = append(result.Failures, BatchFailure{
					Channel: w.Channel,
					Alias:   w.Alias,
					Error:   err.Error(),
				})
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Channel < result.Failures[j].Channel
	})
	result.Succeeded = result.Total - len(result.Failures)
	result.DurationMS = p.now().Sub(started).Milliseconds()

	p.logger.Info("preset batch complete",
		"batch_id", result.ID,
		"class", className,
		"preset", presetID,
		"succeeded", result.Succeeded,
		"failed", len(result.Failures),
		"duration_ms", result.DurationMS,
	)
	return result, nil
}

func (p *Pool) applyPreset(ctx context.Context, w *Wrapper, preset Preset, suspend, resume bool) error {
	if !preset.Options.IsEmpty() {
		w.mergeOptions(preset.Options)
	}
	switch {
	case suspend:
		w.setPeriodicSuspended(true)
	case resume:
		w.setPeriodicSuspended(false)
	}

	cmd := preset.Command
	if cmd.IsEmpty() {
		return nil
	}

	if w.Kind.IsLight() && hasLightParams(cmd) {
		return p.SetLightState(ctx, w.Channel, cmd)
	}
	if on, ok := cmd.PowerState(); ok {
		return p.SetPowerState(ctx, w.Channel, on)
	}
	p.logger.Debug("preset command has nothing for this device",
		"channel", w.Channel,
		"command", cmd.String(),
	)
	return nil
}

// PresetIDs returns configured preset IDs, sorted.
func (p *Pool) PresetIDs() []string {
	ids := make([]string, 0, len(p.presets))
	for id := range p.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

