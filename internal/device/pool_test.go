package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/subtype"
)

type powerCall struct {
	on bool
}

type fakeTransport struct {
	id string

	mu       sync.Mutex
	power    []powerCall
	sends    []powerCall
	light    []command.Command
	status   Status
	pollErr  error
	sendErr  error
	pollHits int
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id}
}

func (f *fakeTransport) DeviceID() string { return f.id }

func (f *fakeTransport) SetPowerState(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.power = append(f.power, powerCall{on: on})
	f.sends = append(f.sends, powerCall{on: on})
	return nil
}

func (f *fakeTransport) SetLightState(_ context.Context, cmd command.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.light = append(f.light, cmd)
	on, ok := cmd.PowerState()
	f.sends = append(f.sends, powerCall{on: on || !ok})
	return nil
}

func (f *fakeTransport) Poll(context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollHits++
	return f.status, f.pollErr
}

func (f *fakeTransport) powerCalls() []powerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]powerCall(nil), f.power...)
}

// dispatches returns every command sent, power or light, as its power state.
func (f *fakeTransport) dispatches() []powerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]powerCall(nil), f.sends...)
}

func (f *fakeTransport) lightCalls() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Command(nil), f.light...)
}

func (f *fakeTransport) setPollErr(err error) {
	f.mu.Lock()
	f.pollErr = err
	f.mu.Unlock()
}

type fakeSink struct {
	mu     sync.Mutex
	events []TelemetryEvent
	err    error
}

func (s *fakeSink) Notify(_ context.Context, ev TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *fakeSink) names(ch int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.Channel == ch {
			out = append(out, ev.Name)
		}
	}
	return out
}

type fakeHub struct {
	mu    sync.Mutex
	count int
}

func (h *fakeHub) Broadcast(channel string, _ any) {
	if channel != BroadcastChannel {
		return
	}
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
}

type fixedNight float64

func (f fixedNight) NightPercent(_, _ solar.Pair) float64 { return float64(f) }

type nopFlags struct{}

func (nopFlags) Refresh(string) bool                { return false }
func (nopFlags) Lookup(string, string) (any, bool) { return nil, false }

func testConfig() *Config {
	return &Config{
		Devices: []DeviceConfig{
			{Alias: "Hall Switch", Channel: 1, ID: "SW-1", SubType: subtype.Switch, SwitchTargets: []int{5}, SwitchTargetsOff: []int{4}},
			{Alias: "Fan", Channel: 4, ID: "PLUG-4", SubType: subtype.Plug, Class: "upstairs", Groups: []string{"fans"}},
			{Alias: "Desk Lamp", Channel: 5, ID: "BULB-5", SubType: subtype.Bulb, Class: "upstairs",
				Filters: []filter.Spec{{Plugin: filter.NaturalLightName, Periodic: true}}},
			{Alias: "Shelf Strip", Channel: 6, ID: "STRIP-6", SubType: subtype.LEDStrip},
		},
		Presets: map[string]Preset{
			"evening": {Command: command.New().With(command.OnOff, 1).With(command.Brightness, 40)},
			"allOff":  {Command: command.New().With(command.OnOff, 0)},
		},
	}
}

type testPool struct {
	*Pool
	sink       *fakeSink
	hub        *fakeHub
	transports map[int]*fakeTransport
}

func newTestPool(t *testing.T, night float64) *testPool {
	t.Helper()

	reg := filter.NewDefaultRegistry(fixedNight(night), nopFlags{})
	sink := &fakeSink{}
	hub := &fakeHub{}
	pool, err := NewPool(testConfig(), filter.NewPipeline(reg), PoolOptions{
		Telemetry:       sink,
		Broadcaster:     hub,
		Metrics:         NewMetrics(prometheus.NewRegistry()),
		DispatchTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(pool.Close)

	return &testPool{Pool: pool, sink: sink, hub: hub, transports: make(map[int]*fakeTransport)}
}

func (tp *testPool) bind(t *testing.T, ch int) *fakeTransport {
	t.Helper()
	w := tp.GetByChannel(ch)
	if w == nil {
		t.Fatalf("channel %d not configured", ch)
	}
	ft := newFakeTransport(w.ID)
	if _, err := tp.RegisterFromDiscovery(ft); err != nil {
		t.Fatalf("RegisterFromDiscovery(%s) error = %v", w.ID, err)
	}
	tp.transports[ch] = ft
	return ft
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewPool_AllWrappersStartOffline(t *testing.T) {
	tp := newTestPool(t, 0)

	for _, w := range tp.Wrappers() {
		if w.IsOnline() {
			t.Errorf("channel %d online before discovery", w.Channel)
		}
	}
	if s := tp.Stats(); s.Total != 4 || s.Online != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestNewPool_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Devices = append(cfg.Devices, DeviceConfig{Channel: 4, ID: "DUP", SubType: subtype.Plug})

	if _, err := NewPool(cfg, nil, PoolOptions{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewPool() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewPool(nil, nil, PoolOptions{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewPool(nil) error = %v, want ErrInvalidConfig", err)
	}
}

func TestGetByChannel_UnknownIsNil(t *testing.T) {
	tp := newTestPool(t, 0)

	for _, ch := range []int{0, 2, 99, -1} {
		if w := tp.GetByChannel(ch); w != nil {
			t.Errorf("GetByChannel(%d) = %v, want nil", ch, w)
		}
	}
	if w := tp.GetByChannel(5); w == nil || w.Alias != "Desk Lamp" {
		t.Errorf("GetByChannel(5) = %v", w)
	}
}

func TestRegisterFromDiscovery(t *testing.T) {
	tp := newTestPool(t, 0)

	tp.bind(t, 4)
	w := tp.GetByChannel(4)
	if !w.IsOnline() {
		t.Error("wrapper should be online after discovery")
	}
	if w.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", w.PollInterval)
	}

	waitFor(t, "online telemetry", func() bool {
		names := tp.sink.names(4)
		return len(names) > 0 && names[0] == EventOnline
	})
}

func TestRegisterFromDiscovery_Unconfigured(t *testing.T) {
	tp := newTestPool(t, 0)

	_, err := tp.RegisterFromDiscovery(newFakeTransport("STRANGER"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestSetPowerState_Errors(t *testing.T) {
	tp := newTestPool(t, 0)
	ctx := context.Background()

	if err := tp.SetPowerState(ctx, 99, true); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("unknown channel error = %v, want ErrDeviceNotFound", err)
	}
	if err := tp.SetPowerState(ctx, 4, true); !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("unbound channel error = %v, want ErrDeviceOffline", err)
	}
}

func TestSetPowerState_Plug(t *testing.T) {
	tp := newTestPool(t, 0)
	ft := tp.bind(t, 4)

	if err := tp.SetPowerState(context.Background(), 4, true); err != nil {
		t.Fatalf("SetPowerState() error = %v", err)
	}

	calls := ft.powerCalls()
	if len(calls) != 1 || !calls[0].on {
		t.Fatalf("power calls = %+v, want one on", calls)
	}
	w := tp.GetByChannel(4)
	if on, ok := w.PowerState(); !ok || !on {
		t.Errorf("PowerState() = %v, %v", on, ok)
	}
	last, ok := w.LastCommand()
	if !ok {
		t.Fatal("last command not recorded")
	}
	if ch, _ := last.Channel(); ch != 4 {
		t.Errorf("last command channel = %d, want 4", ch)
	}
	waitFor(t, "power-on telemetry", func() bool {
		for _, n := range tp.sink.names(4) {
			if n == EventPowerOn {
				return true
			}
		}
		return false
	})
}

// blockingSink holds every notification until release is closed.
type blockingSink struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
	err     error
}

func (s *blockingSink) Notify(ctx context.Context, _ TelemetryEvent) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return s.err
}

func TestSetPowerState_SlowTelemetryDoesNotDelayDispatch(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"slow sink", nil},
		{"slow failing sink", errors.New("lifelog unreachable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const dispatchTimeout = 500 * time.Millisecond
			sink := &blockingSink{release: make(chan struct{}), started: make(chan struct{}), err: tt.err}
			reg := filter.NewDefaultRegistry(fixedNight(0), nopFlags{})
			pool, err := NewPool(testConfig(), filter.NewPipeline(reg), PoolOptions{
				Telemetry:        sink,
				DispatchTimeout:  dispatchTimeout,
				TelemetryTimeout: 10 * time.Second,
			})
			if err != nil {
				t.Fatalf("NewPool() error = %v", err)
			}
			t.Cleanup(pool.Close)
			t.Cleanup(func() { close(sink.release) })

			ft := newFakeTransport("PLUG-4")
			if _, err := pool.RegisterFromDiscovery(ft); err != nil {
				t.Fatalf("RegisterFromDiscovery() error = %v", err)
			}

			done := make(chan error, 1)
			start := time.Now()
			go func() { done <- pool.SetPowerState(context.Background(), 4, true) }()

			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("SetPowerState() error = %v", err)
				}
			case <-time.After(dispatchTimeout):
				t.Fatal("SetPowerState() blocked on telemetry")
			}
			if elapsed := time.Since(start); elapsed >= dispatchTimeout {
				t.Errorf("SetPowerState() took %v, want under %v", elapsed, dispatchTimeout)
			}

			select {
			case <-sink.started:
			case <-time.After(2 * time.Second):
				t.Fatal("telemetry was never sent")
			}
			if calls := ft.powerCalls(); len(calls) != 1 || !calls[0].on {
				t.Errorf("power calls = %+v, want one on", calls)
			}
		})
	}
}

func TestSetPowerState_BulbRunsFilters(t *testing.T) {
	tp := newTestPool(t, 1)
	ft := tp.bind(t, 5)

	if err := tp.SetPowerState(context.Background(), 5, true); err != nil {
		t.Fatalf("SetPowerState() error = %v", err)
	}

	calls := ft.lightCalls()
	if len(calls) != 1 {
		t.Fatalf("light calls = %d, want 1 (filters add color_temp)", len(calls))
	}
	if v, _ := calls[0].Get(command.ColorTemp); v != 2700 {
		t.Errorf("color_temp = %v, want 2700", v)
	}
	if on, ok := calls[0].PowerState(); !ok || !on {
		t.Errorf("on_off = %v/%v, want on", on, ok)
	}
	if len(ft.powerCalls()) != 0 {
		t.Error("power call should not be sent when filters produce a light command")
	}
}

func TestSetPowerState_OffSkipsFilters(t *testing.T) {
	tp := newTestPool(t, 1)
	ft := tp.bind(t, 5)

	if err := tp.SetPowerState(context.Background(), 5, false); err != nil {
		t.Fatalf("SetPowerState() error = %v", err)
	}
	if calls := ft.powerCalls(); len(calls) != 1 || calls[0].on {
		t.Errorf("power calls = %+v, want one off", calls)
	}
}

func TestSetPowerState_TransportFailureMarksOffline(t *testing.T) {
	tp := newTestPool(t, 0)
	ft := tp.bind(t, 4)
	ft.mu.Lock()
	ft.sendErr = errors.New("connection reset")
	ft.mu.Unlock()

	err := tp.SetPowerState(context.Background(), 4, true)
	if !errors.Is(err, ErrDeviceTimeout) {
		t.Fatalf("error = %v, want ErrDeviceTimeout", err)
	}
	if tp.GetByChannel(4).IsOnline() {
		t.Error("wrapper should be offline after transport failure")
	}
	if err := tp.SetPowerState(context.Background(), 4, true); !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("second dispatch error = %v, want ErrDeviceOffline", err)
	}

	// The poll loop still owns the transport; a good poll rebinds it.
	tp.HandleEvent(context.Background(), Event{Type: EventStatus, Channel: 4, Status: Status{On: true}, transport: ft})
	if !tp.GetByChannel(4).IsOnline() {
		t.Error("wrapper should be online again after a successful poll")
	}
}

func TestPollFailure_MarksOffline(t *testing.T) {
	tp := newTestPool(t, 0)
	ft := newFakeTransport("PLUG-4")
	ft.setPollErr(errors.New("no route to host"))
	if _, err := tp.RegisterFromDiscovery(ft); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tp.Run(ctx)

	// The immediate poll in the loop fails.
	waitFor(t, "wrapper offline", func() bool { return !tp.GetByChannel(4).IsOnline() })

	if err := tp.SetPowerState(context.Background(), 4, true); !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("SetPowerState() error = %v, want ErrDeviceOffline", err)
	}
	waitFor(t, "offline telemetry", func() bool {
		for _, n := range tp.sink.names(4) {
			if n == EventOffline {
				return true
			}
		}
		return false
	})
}

func TestSwitchCoupling(t *testing.T) {
	tp := newTestPool(t, 0)
	tp.bind(t, 1)
	target := tp.bind(t, 5)
	targetOff := tp.bind(t, 4)
	ctx := context.Background()

	tp.HandleEvent(ctx, Event{Type: EventStatus, Channel: 1, Status: Status{On: true}})

	on := target.dispatches()
	off := targetOff.dispatches()
	if len(on) != 1 || !on[0].on {
		t.Errorf("channel 5 calls = %+v, want exactly one on", on)
	}
	if len(off) != 1 || off[0].on {
		t.Errorf("channel 4 calls = %+v, want exactly one off", off)
	}

	// Repeating the same state is not a transition.
	tp.HandleEvent(ctx, Event{Type: EventStatus, Channel: 1, Status: Status{On: true}})
	if n := len(target.dispatches()) + len(targetOff.dispatches()); n != 2 {
		t.Errorf("dispatches after repeat = %d, want 2", n)
	}

	tp.HandleEvent(ctx, Event{Type: EventStatus, Channel: 1, Status: Status{On: false}})
	on = target.dispatches()
	off = targetOff.dispatches()
	if len(on) != 2 || on[1].on {
		t.Errorf("channel 5 calls = %+v, want second call off", on)
	}
	if len(off) != 2 || !off[1].on {
		t.Errorf("channel 4 calls = %+v, want second call on", off)
	}
}

func TestSwitchCoupling_DepthGuard(t *testing.T) {
	tp := newTestPool(t, 0)
	tp.bind(t, 1)
	target := tp.bind(t, 5)

	tp.handle(context.Background(), Event{Type: EventStatus, Channel: 1, Status: Status{On: true}}, maxCouplingDepth)

	if n := len(target.dispatches()); n != 0 {
		t.Errorf("dispatches = %d, want 0 beyond max depth", n)
	}
}

func TestSwitchCoupling_OfflineTargetDoesNotBlockOthers(t *testing.T) {
	tp := newTestPool(t, 0)
	tp.bind(t, 1)
	targetOff := tp.bind(t, 4)

	tp.HandleEvent(context.Background(), Event{Type: EventStatus, Channel: 1, Status: Status{On: true}})

	if calls := targetOff.dispatches(); len(calls) != 1 || calls[0].on {
		t.Errorf("channel 4 calls = %+v, want one off", calls)
	}
}

func TestSetLightState(t *testing.T) {
	tp := newTestPool(t, 0)
	ft := tp.bind(t, 6)
	tp.bind(t, 4)
	ctx := context.Background()

	cmd := command.FromValues(map[string]string{"brightness": "80", "hue": "abc"})
	if err := tp.SetLightState(ctx, 6, cmd); err != nil {
		t.Fatalf("SetLightState() error = %v", err)
	}

	calls := ft.lightCalls()
	if len(calls) != 1 {
		t.Fatalf("light calls = %d, want 1", len(calls))
	}
	if calls[0].Has(command.Hue) {
		t.Error("NaN hue should be stripped before dispatch")
	}
	if v, _ := calls[0].Get(command.Brightness); v != 80 {
		t.Errorf("brightness = %v, want 80", v)
	}

	if err := tp.SetLightState(ctx, 4, cmd); !errors.Is(err, ErrNotLight) {
		t.Errorf("plug error = %v, want ErrNotLight", err)
	}
	if err := tp.SetLightState(ctx, 42, cmd); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("unknown error = %v, want ErrDeviceNotFound", err)
	}

	snap, err := tp.Snapshot(6)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.LightState["brightness"] != 80 {
		t.Errorf("snapshot light = %v", snap.LightState)
	}
}

func TestApplyOptionsTo(t *testing.T) {
	tp := newTestPool(t, 0)
	ap := 0.25

	n, err := tp.ApplyOptionsTo(TargetClass, "upstairs", filter.Options{ApplyPartially: &ap})
	if err != nil {
		t.Fatalf("ApplyOptionsTo() error = %v", err)
	}
	if n != 2 {
		t.Errorf("matched = %d, want 2", n)
	}
	filters := tp.GetByChannel(5).Filters()
	if filters[0].ApplyPartially == nil || *filters[0].ApplyPartially != 0.25 {
		t.Errorf("applyPartially = %v, want 0.25", filters[0].ApplyPartially)
	}

	if n, err := tp.ApplyOptionsTo(TargetChannel, "5", filter.Options{}); err != nil || n != 1 {
		t.Errorf("channel target = %d, %v", n, err)
	}
	if n, err := tp.ApplyOptionsTo(TargetGroup, "fans", filter.Options{}); err != nil || n != 1 {
		t.Errorf("group target = %d, %v", n, err)
	}

	tests := []struct {
		tt   TargetType
		id   string
		want error
	}{
		{TargetClass, "basement", ErrDeviceNotFound},
		{TargetChannel, "x", ErrDeviceNotFound},
		{TargetChannel, "77", ErrDeviceNotFound},
		{TargetType("room"), "a", ErrInvalidTarget},
	}
	for _, tt := range tests {
		if _, err := tp.ApplyOptionsTo(tt.tt, tt.id, filter.Options{}); !errors.Is(err, tt.want) {
			t.Errorf("ApplyOptionsTo(%s, %s) error = %v, want %v", tt.tt, tt.id, err, tt.want)
		}
	}
}

func TestApplyOptionsTo_DoesNotShareSettings(t *testing.T) {
	tp := newTestPool(t, 0)
	ap := 0.5
	if _, err := tp.ApplyOptionsTo(TargetChannel, "5", filter.Options{ApplyPartially: &ap}); err != nil {
		t.Fatal(err)
	}
	ap = 0.9

	got := tp.GetByChannel(5).Filters()[0].ApplyPartially
	if got == nil || *got != 0.5 {
		t.Errorf("applyPartially = %v, want 0.5", got)
	}
}

func TestApplyPresetToClass_IsolatesFailures(t *testing.T) {
	tp := newTestPool(t, 0)
	tp.bind(t, 5)
	// channel 4 stays unbound and fails with ErrDeviceOffline

	res, err := tp.ApplyPresetToClass(context.Background(), "upstairs", "evening", "test", true, false)
	if err != nil {
		t.Fatalf("ApplyPresetToClass() error = %v", err)
	}
	if res.Total != 2 || res.Succeeded != 1 || len(res.Failures) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Failures[0].Channel != 4 {
		t.Errorf("failed channel = %d, want 4", res.Failures[0].Channel)
	}
	if res.ID == "" {
		t.Error("batch ID should be set")
	}

	lamp := tp.transports[5].lightCalls()
	if len(lamp) != 1 {
		t.Fatalf("lamp light calls = %d, want 1", len(lamp))
	}
	if v, _ := lamp[0].Get(command.Brightness); v != 40 {
		t.Errorf("brightness = %v, want 40", v)
	}
	if !tp.GetByChannel(5).PeriodicSuspended() || !tp.GetByChannel(4).PeriodicSuspended() {
		t.Error("periodic filters should be suspended on every class member")
	}

	if _, err := tp.ApplyPresetToClass(context.Background(), "upstairs", "evening", "test", false, true); err != nil {
		t.Fatal(err)
	}
	if tp.GetByChannel(5).PeriodicSuspended() {
		t.Error("periodic filters should resume")
	}
}

func TestApplyPresetToClass_Errors(t *testing.T) {
	tp := newTestPool(t, 0)
	ctx := context.Background()

	if _, err := tp.ApplyPresetToClass(ctx, "upstairs", "nope", "", false, false); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("error = %v, want ErrPresetNotFound", err)
	}
	if _, err := tp.ApplyPresetToClass(ctx, "garage", "allOff", "", false, false); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestApplyPeriodicFilters(t *testing.T) {
	tp := newTestPool(t, 1)
	ft := tp.bind(t, 5)
	ctx := context.Background()

	// Off lights are left alone.
	if n := tp.ApplyPeriodicFilters(ctx); n != 0 {
		t.Errorf("updated = %d while off, want 0", n)
	}

	tp.HandleEvent(ctx, Event{Type: EventStatus, Channel: 5, Status: Status{
		On:    true,
		Light: command.New().With(command.Brightness, 60).With(command.ColorTemp, 6500),
	}})

	if n := tp.ApplyPeriodicFilters(ctx); n != 1 {
		t.Fatalf("updated = %d, want 1", n)
	}
	calls := ft.lightCalls()
	if v, _ := calls[len(calls)-1].Get(command.ColorTemp); v != 2700 {
		t.Errorf("color_temp = %v, want 2700", v)
	}

	// Already at the night value: nothing to send.
	if n := tp.ApplyPeriodicFilters(ctx); n != 0 {
		t.Errorf("updated = %d on second pass, want 0", n)
	}

	tp.GetByChannel(5).setPeriodicSuspended(true)
	tp.HandleEvent(ctx, Event{Type: EventStatus, Channel: 5, Status: Status{
		On:    true,
		Light: command.New().With(command.ColorTemp, 6500),
	}})
	if n := tp.ApplyPeriodicFilters(ctx); n != 0 {
		t.Errorf("updated = %d while suspended, want 0", n)
	}
}

func TestApplyPeriodicFilters_PartialBlendIsStable(t *testing.T) {
	tp := newTestPool(t, 1)
	ft := tp.bind(t, 5)
	ctx := context.Background()
	half := 0.5

	if _, err := tp.ApplyOptionsTo(TargetChannel, "5", filter.Options{ApplyPartially: &half}); err != nil {
		t.Fatalf("ApplyOptionsTo() error = %v", err)
	}
	tp.HandleEvent(ctx, Event{Type: EventStatus, Channel: 5, Status: Status{
		On:    true,
		Light: command.New().With(command.ColorTemp, 6500),
	}})

	w := tp.GetByChannel(5)
	for tick := 1; tick <= 5; tick++ {
		tp.ApplyPeriodicFilters(ctx)
		// 6500 + (2700-6500)*0.5
		if v, _ := w.lightState().Get(command.ColorTemp); v != 4600 {
			t.Fatalf("tick %d: color_temp = %v, want 4600", tick, v)
		}
	}
	if n := len(ft.lightCalls()); n != 1 {
		t.Errorf("light calls = %d, want 1", n)
	}

	// A user request becomes the new starting point.
	if err := tp.SetLightState(ctx, 5, command.New().With(command.ColorTemp, 6000)); err != nil {
		t.Fatalf("SetLightState() error = %v", err)
	}
	for tick := 1; tick <= 3; tick++ {
		if n := tp.ApplyPeriodicFilters(ctx); n != 0 {
			t.Errorf("tick %d: updated = %d, want 0", tick, n)
		}
		if v, _ := w.lightState().Get(command.ColorTemp); v != 4350 {
			t.Fatalf("tick %d: color_temp = %v, want 4350", tick, v)
		}
	}
}

func TestHandleEvent_BroadcastsSnapshots(t *testing.T) {
	tp := newTestPool(t, 0)
	tp.bind(t, 4)

	tp.hub.mu.Lock()
	before := tp.hub.count
	tp.hub.mu.Unlock()

	tp.HandleEvent(context.Background(), Event{Type: EventStatus, Channel: 4, Status: Status{On: true}})

	tp.hub.mu.Lock()
	defer tp.hub.mu.Unlock()
	if tp.hub.count <= before {
		t.Error("expected a snapshot broadcast on power transition")
	}
}

func TestHandleEvent_IgnoresStaleTransport(t *testing.T) {
	tp := newTestPool(t, 0)
	old := tp.bind(t, 4)
	tp.bind(t, 4)

	tp.HandleEvent(context.Background(), Event{Type: EventPollFailed, Channel: 4, Err: errors.New("x"), transport: old})
	if !tp.GetByChannel(4).IsOnline() {
		t.Error("event from a replaced transport must not unbind the device")
	}
}

func TestSnapshots(t *testing.T) {
	tp := newTestPool(t, 0)
	snaps := tp.Snapshots()
	if len(snaps) != 4 {
		t.Fatalf("snapshots = %d, want 4", len(snaps))
	}
	if snaps[0].Channel != 1 || snaps[0].SubType != "switch" {
		t.Errorf("first snapshot = %+v", snaps[0])
	}
	if snaps[2].Filters[0] != filter.NaturalLightName {
		t.Errorf("filters = %v", snaps[2].Filters)
	}
	if _, err := tp.Snapshot(99); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Snapshot(99) error = %v", err)
	}
}
