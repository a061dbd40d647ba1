package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
)

// Logger defines the logging interface used by the Pool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const (
	defaultDispatchTimeout  = 3 * time.Second
	defaultTelemetryTimeout = 2 * time.Second
	defaultEventBuffer      = 256

	// maxCouplingDepth bounds switch coupling: a switch event may drive its
	// targets, but the targets' own transitions never couple further.
	maxCouplingDepth = 1
)

// PoolOptions configures a Pool. Zero values select defaults.
type PoolOptions struct {
	Logger           Logger
	Telemetry        TelemetrySink
	Broadcaster      Broadcaster
	Metrics          *Metrics
	DispatchTimeout  time.Duration
	TelemetryTimeout time.Duration
	// PeriodicInterval enables periodic filters when positive.
	PeriodicInterval time.Duration
	EventBuffer      int
	Now              func() time.Time
}

type pollHandle struct {
	cancel    context.CancelFunc
	transport Transport
}

// Pool owns every configured Wrapper, their poll loops and the dispatch API.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Pool struct {
	pipeline  *filter.Pipeline
	wrappers  []*Wrapper
	byChannel map[int]*Wrapper
	byID      map[string]*Wrapper
	presets   map[string]Preset

	logger           Logger
	telemetry        TelemetrySink
	hub              Broadcaster
	metrics          *Metrics
	dispatchTimeout  time.Duration
	telemetryTimeout time.Duration
	periodicInterval time.Duration
	now              func() time.Time

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	polls  map[int]pollHandle
	closed bool

	pollWG   sync.WaitGroup
	notifyWG sync.WaitGroup
}

// NewPool creates a wrapper for every configured device. All wrappers start
// unbound and offline.
//
// Parameters:
//   - cfg: Device inventory, validated before use
//   - pipeline: Filter pipeline run on every power-on and light command (may be nil)
//   - opts: Collaborators and timeouts; zero values select defaults
//
// Returns:
//   - *Pool: Pool ready for RegisterFromDiscovery and Run
//   - error: ErrInvalidConfig if the inventory is invalid
func NewPool(cfg *Config, pipeline *filter.Pipeline, opts PoolOptions) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		pipeline:         pipeline,
		byChannel:        make(map[int]*Wrapper, len(cfg.Devices)),
		byID:             make(map[string]*Wrapper, len(cfg.Devices)),
		presets:          make(map[string]Preset, len(cfg.Presets)),
		logger:           opts.Logger,
		telemetry:        opts.Telemetry,
		hub:              opts.Broadcaster,
		metrics:          opts.Metrics,
		dispatchTimeout:  opts.DispatchTimeout,
		telemetryTimeout: opts.TelemetryTimeout,
		periodicInterval: opts.PeriodicInterval,
		now:              opts.Now,
		polls:            make(map[int]pollHandle),
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.dispatchTimeout <= 0 {
		p.dispatchTimeout = defaultDispatchTimeout
	}
	if p.telemetryTimeout <= 0 {
		p.telemetryTimeout = defaultTelemetryTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	p.events = make(chan Event, buf)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for _, dc := range cfg.Devices {
		w := newWrapper(dc, cfg.PollInterval(dc.SubType))
		p.wrappers = append(p.wrappers, w)
		p.byChannel[w.Channel] = w
		p.byID[w.ID] = w
	}
	for id, preset := range cfg.Presets {
		p.presets[id] = preset
	}
	p.metrics.setOnline(0)

	return p, nil
}

// GetByChannel returns the wrapper for ch, or nil if ch is not configured.
func (p *Pool) GetByChannel(ch int) *Wrapper {
	return p.byChannel[ch]
}

// GetByID returns the wrapper for a physical device ID, or nil.
func (p *Pool) GetByID(id string) *Wrapper {
	return p.byID[id]
}

// Wrappers returns every wrapper in configuration order.
func (p *Pool) Wrappers() []*Wrapper {
	return append([]*Wrapper(nil), p.wrappers...)
}

// Snapshots returns the current view of every wrapper in configuration order.
func (p *Pool) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(p.wrappers))
	for _, w := range p.wrappers {
		out = append(out, w.Snapshot())
	}
	return out
}

// Snapshot returns the current view of ch.
func (p *Pool) Snapshot(ch int) (Snapshot, error) {
	w := p.GetByChannel(ch)
	if w == nil {
		return Snapshot{}, fmt.Errorf("channel %d: %w", ch, ErrDeviceNotFound)
	}
	return w.Snapshot(), nil
}

// Stats summarises pool health.
type Stats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// Stats returns device counts.
func (p *Pool) Stats() Stats {
	s := Stats{Total: len(p.wrappers)}
	for _, w := range p.wrappers {
		if w.IsOnline() {
			s.Online++
		}
	}
	s.Offline = s.Total - s.Online
	return s
}

// RegisterFromDiscovery binds a discovered device to its configured channel.
//
// It performs the following:
//  1. Looks up the wrapper by the transport's device ID
//  2. Stops the poll loop of a previously bound transport, if any
//  3. Binds t and marks the wrapper online (telemetry + broadcast)
//  4. Starts a poll loop at the wrapper's subtype interval
//
// Registering the transport that is already bound is a no-op. Devices without
// a configured channel are logged and ignored.
//
// Parameters:
//   - t: Transport for the discovered device
//
// Returns:
//   - *Wrapper: The bound wrapper
//   - error: ErrNotConfigured for unknown devices, or an error if the pool is closed
func (p *Pool) RegisterFromDiscovery(t Transport) (*Wrapper, error) {
	id := t.DeviceID()
	w := p.byID[id]
	if w == nil {
		p.logger.Info("discovered device has no channel, ignoring", "device_id", id)
		return nil, fmt.Errorf("device %q: %w", id, ErrNotConfigured)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("registering %q: pool closed", id)
	}
	if prev, ok := p.polls[w.Channel]; ok {
		if prev.transport == t {
			p.mu.Unlock()
			return w, nil
		}
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.polls[w.Channel] = pollHandle{cancel: cancel, transport: t}
	p.pollWG.Add(1)
	p.mu.Unlock()

	if w.bind(t, p.now()) {
		p.wentOnline(w)
	}

	p.logger.Info("device bound",
		"channel", w.Channel,
		"alias", w.Alias,
		"device_id", id,
		"subtype", w.Kind.String(),
		"poll_interval", w.PollInterval.String(),
	)

	go p.pollLoop(ctx, w, t)
	return w, nil
}

// pollLoop polls t immediately and then every w.PollInterval until ctx ends.
func (p *Pool) pollLoop(ctx context.Context, w *Wrapper, t Transport) {
	defer p.pollWG.Done()

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		p.pollOnce(ctx, w, t)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) pollOnce(ctx context.Context, w *Wrapper, t Transport) {
	pctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	status, err := t.Poll(pctx)
	cancel()

	ev := Event{Type: EventStatus, Channel: w.Channel, Status: status, transport: t}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		ev = Event{Type: EventPollFailed, Channel: w.Channel, Err: err, transport: t}
	}

	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

// Events exposes the queue so transports can push unsolicited reports.
func (p *Pool) Events() chan<- Event {
	return p.events
}

// Run consumes device events and, when configured, re-applies periodic
// filters. It returns when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var tick <-chan time.Time
	if p.periodicInterval > 0 {
		ticker := time.NewTicker(p.periodicInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			p.HandleEvent(ctx, ev)
		case <-tick:
			p.ApplyPeriodicFilters(ctx)
		}
	}
}

// HandleEvent applies a state report to its wrapper and fires the
// resulting notifications and switch coupling.
func (p *Pool) HandleEvent(ctx context.Context, ev Event) {
	p.handle(ctx, ev, 0)
}

func (p *Pool) handle(ctx context.Context, ev Event, depth int) {
	w := p.byChannel[ev.Channel]
	if w == nil {
		p.logger.Warn("event for unknown channel", "channel", ev.Channel)
		return
	}
	if ev.transport != nil && !p.currentTransport(w.Channel, ev.transport) {
		return
	}

	switch ev.Type {
	case EventPollFailed:
		p.metrics.pollFailed(w.Kind.String())
		if w.unbind() {
			p.logger.Warn("device poll failed, marking offline",
				"channel", w.Channel,
				"alias", w.Alias,
				"error", ev.Err,
			)
			p.wentOffline(w)
		}

	case EventStatus:
		if ev.transport != nil && w.boundTransport() == nil {
			if w.bind(ev.transport, p.now()) {
				p.logger.Info("device back online", "channel", w.Channel, "alias", w.Alias)
				p.wentOnline(w)
			}
		}

		powerChanged, lightChanged := w.record(ev.Status, p.now())
		if powerChanged {
			name := EventPowerOff
			if ev.Status.On {
				name = EventPowerOn
			}
			p.notify(w, name)
		}
		if lightChanged {
			p.notify(w, EventLightState)
		}
		if powerChanged || lightChanged {
			p.broadcast(w)
		}
		if powerChanged && len(w.SwitchTargets)+len(w.SwitchTargetsOff) > 0 {
			p.couple(ctx, w, ev.Status.On, depth)
		}

	default:
		p.logger.Warn("unknown event type", "channel", ev.Channel, "type", int(ev.Type))
	}
}

func (p *Pool) currentTransport(ch int, t Transport) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.polls[ch]
	return !ok || h.transport == t
}

// couple drives a switch's targets after it reported a transition.
func (p *Pool) couple(ctx context.Context, sw *Wrapper, on bool, depth int) {
	if depth >= maxCouplingDepth {
		p.logger.Warn("switch coupling depth exceeded, not cascading",
			"channel", sw.Channel,
			"depth", depth,
		)
		return
	}

	p.logger.Debug("switch coupling",
		"channel", sw.Channel,
		"on", on,
		"targets", sw.SwitchTargets,
		"targets_off", sw.SwitchTargetsOff,
	)

	for _, ch := range sw.SwitchTargets {
		if err := p.setPower(ctx, ch, on, depth+1); err != nil {
			p.logger.Warn("switch target dispatch failed", "switch", sw.Channel, "channel", ch, "error", err)
		}
	}
	for _, ch := range sw.SwitchTargetsOff {
		if err := p.setPower(ctx, ch, !on, depth+1); err != nil {
			p.logger.Warn("switch target dispatch failed", "switch", sw.Channel, "channel", ch, "error", err)
		}
	}
}

func (p *Pool) wentOnline(w *Wrapper) {
	p.metrics.setOnline(p.Stats().Online)
	p.notify(w, EventOnline)
	p.broadcast(w)
}

func (p *Pool) wentOffline(w *Wrapper) {
	p.metrics.setOnline(p.Stats().Online)
	p.notify(w, EventOffline)
	p.broadcast(w)
}

// notify sends a telemetry event without waiting for it.
func (p *Pool) notify(w *Wrapper, name string) {
	if p.telemetry == nil {
		return
	}
	ev := TelemetryEvent{Name: name, Channel: w.Channel, Alias: w.Alias, Time: p.now()}

	p.notifyWG.Add(1)
	go func() {
		defer p.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.telemetryTimeout)
		defer cancel()
		if err := p.telemetry.Notify(ctx, ev); err != nil {
			p.metrics.telemetryDrop()
			p.logger.Warn("telemetry notification failed",
				"event", ev.Name,
				"channel", ev.Channel,
				"error", err,
			)
		}
	}()
}

func (p *Pool) broadcast(w *Wrapper) {
	if p.hub == nil {
		return
	}
	p.hub.Broadcast(BroadcastChannel, w.Snapshot())
}

// Close stops every poll loop and waits for in-flight telemetry.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.pollWG.Wait()
	p.notifyWG.Wait()
}
