package filter

import (
	"testing"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/subtype"
)

type fixedClock struct {
	pct   float64
	calls int
}

func (c *fixedClock) NightPercent(_, _ solar.Pair) float64 {
	c.calls++
	return c.pct
}

type fakeFlags struct {
	values    map[string]map[string]any
	refreshed []string
}

func (f *fakeFlags) Refresh(url string) bool {
	f.refreshed = append(f.refreshed, url)
	return true
}

func (f *fakeFlags) Lookup(url, name string) (any, bool) {
	v, ok := f.values[url][name]
	return v, ok
}

type panicPlugin struct{}

func (panicPlugin) Name() string { return "explode" }
func (panicPlugin) Apply(*Context, command.Command, Target, *Registry) command.Command {
	panic("boom")
}

type addPlugin struct {
	name  string
	param command.Param
	delta float64
}

func (p addPlugin) Name() string { return p.name }
func (p addPlugin) Apply(_ *Context, cmd command.Command, _ Target, _ *Registry) command.Command {
	v, _ := cmd.Get(p.param)
	return cmd.With(p.param, v+p.delta)
}

func ptr(f float64) *float64 { return &f }

var bulb = Target{Channel: 7, Alias: "Desk", Kind: subtype.Bulb}

func TestRun_AppliesInOrder(t *testing.T) {
	reg := NewRegistry(
		addPlugin{name: "a", param: command.Brightness, delta: 10},
		addPlugin{name: "b", param: command.Brightness, delta: 5},
	)
	in := command.New().With(command.Brightness, 50)

	out := Run([]string{"a", "b", "a"}, nil, in, bulb, reg)

	if got, _ := out.Get(command.Brightness); got != 75 {
		t.Errorf("brightness = %v, want 75", got)
	}
	if got, _ := in.Get(command.Brightness); got != 50 {
		t.Errorf("input mutated: brightness = %v", got)
	}
}

func TestRun_UnknownPluginPassesThrough(t *testing.T) {
	reg := NewRegistry()
	in := command.New().With(command.OnOff, 1)

	out := Run([]string{"doesNotExist"}, &Context{}, in, bulb, reg)
	if !out.Equal(in) {
		t.Errorf("Run() = %s, want %s", out, in)
	}
}

func TestRun_RecoversFromPanic(t *testing.T) {
	reg := NewRegistry(panicPlugin{}, addPlugin{name: "a", param: command.Brightness, delta: 1})
	in := command.New().With(command.Brightness, 10)

	out := Run([]string{"explode", "a"}, &Context{}, in, bulb, reg)
	if got, _ := out.Get(command.Brightness); got != 11 {
		t.Errorf("brightness = %v, want 11", got)
	}
}

func TestSunEvents_NoStateDataIsNoop(t *testing.T) {
	clock := &fixedClock{pct: 1}
	reg := NewRegistry(NewSunEvents(clock))
	in := command.New().With(command.ColorTemp, 5000)

	out := Run([]string{SunEventsName}, &Context{}, in, bulb, reg)
	if !out.Equal(in) {
		t.Errorf("Run() = %s, want unchanged %s", out, in)
	}
	if clock.calls != 0 {
		t.Errorf("clock consulted %d times, want 0", clock.calls)
	}
}

func TestSunEvents_ScalesStateData(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want float64
	}{
		{"day", 0, 6500},
		{"night", 1, 2700},
		{"halfway", 0.5, 4600},
		{"rounded", 0.3333, 5233},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(NewSunEvents(&fixedClock{pct: tt.pct}))
			fctx := &Context{StateData: map[command.Param]StateValue{
				command.ColorTemp: {Value: 6500, AltValue: 2700},
			}}

			out := Run([]string{SunEventsName}, fctx, command.New(), bulb, reg)
			if got, _ := out.Get(command.ColorTemp); got != tt.want {
				t.Errorf("color_temp = %v, want %v", got, tt.want)
			}
		})
	}
}

func naturalLightRegistry(pct float64, flagValues map[string]map[string]any) (*Registry, *fakeFlags) {
	ff := &fakeFlags{values: flagValues}
	return NewDefaultRegistry(&fixedClock{pct: pct}, ff), ff
}

func TestNaturalLight_BulbAtNight(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	pipe := NewPipeline(reg)
	in := command.New().With(command.OnOff, 1).With(command.Brightness, 80)

	out := pipe.Apply([]Spec{{Plugin: NaturalLightName}}, in, bulb)

	if got, _ := out.Get(command.ColorTemp); got != 2700 {
		t.Errorf("color_temp = %v, want 2700", got)
	}
	if got, _ := out.Get(command.Brightness); got != 80 {
		t.Errorf("brightness = %v, want 80 untouched", got)
	}
}

func TestNaturalLight_SettingsOverrideProfile(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	spec := Spec{
		Plugin: NaturalLightName,
		Settings: Settings{
			Night: map[command.Param]float64{command.ColorTemp: 2000},
		},
	}

	out := NewPipeline(reg).Apply([]Spec{spec}, command.New(), bulb)
	if got, _ := out.Get(command.ColorTemp); got != 2000 {
		t.Errorf("color_temp = %v, want 2000", got)
	}
}

func TestNaturalLight_LEDStripGetsSentinel(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	strip := Target{Channel: 3, Kind: subtype.LEDStrip}

	out := NewPipeline(reg).Apply([]Spec{{Plugin: NaturalLightName}}, command.New(), strip)

	want := map[command.Param]float64{
		command.ColorTemp:  0,
		command.Hue:        30,
		command.Saturation: 90,
	}
	for p, w := range want {
		if got, ok := out.Get(p); !ok || got != w {
			t.Errorf("%s = %v (set=%v), want %v", p, got, ok, w)
		}
	}
}

func TestNaturalLight_PassThrough(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		in     command.Command
	}{
		{
			name:   "ignore default",
			target: bulb,
			in:     command.New().With(command.IgnoreDefault, 1).With(command.ColorTemp, 4000),
		},
		{
			name:   "plug has no natural light",
			target: Target{Channel: 2, Kind: subtype.Plug},
			in:     command.New().With(command.OnOff, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := naturalLightRegistry(1, nil)
			out := NewPipeline(reg).Apply([]Spec{{Plugin: NaturalLightName}}, tt.in, tt.target)
			if !out.Equal(tt.in) {
				t.Errorf("Apply() = %s, want unchanged %s", out, tt.in)
			}
		})
	}
}

func TestNaturalLight_RestrictionVeto(t *testing.T) {
	const url = "http://flags.local/flags"
	tests := []struct {
		name     string
		flag     any
		blocking any
		vetoed   bool
	}{
		{"bool match", true, true, true},
		{"bool mismatch", false, true, false},
		{"number types differ", float64(1), 1, true},
		{"string match", "away", "away", true},
		{"string mismatch", "home", "away", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, ff := naturalLightRegistry(1, map[string]map[string]any{
				url: {"daylightOverride": tt.flag},
			})
			spec := Spec{
				Plugin: NaturalLightName,
				Settings: Settings{
					URL: url,
					Restrictions: []Restriction{
						{Type: ExternalFlagsName, Flag: "daylightOverride", BlockingState: tt.blocking},
					},
				},
			}
			in := command.New().With(command.OnOff, 1)

			out := NewPipeline(reg).Apply([]Spec{spec}, in, bulb)

			if tt.vetoed && !out.Equal(in) {
				t.Errorf("Apply() = %s, want original %s", out, in)
			}
			if !tt.vetoed && !out.Has(command.ColorTemp) {
				t.Errorf("Apply() = %s, want color_temp set", out)
			}
			if len(ff.refreshed) == 0 || ff.refreshed[0] != url {
				t.Errorf("refreshed = %v, want %s", ff.refreshed, url)
			}
		})
	}
}

func TestRun_VetoedNaturalLightLeavesNoStateForSunEvents(t *testing.T) {
	const url = "http://flags.local/flags"
	reg, _ := naturalLightRegistry(1, map[string]map[string]any{
		url: {"away": true},
	})
	fctx := &Context{Settings: Settings{
		URL: url,
		Restrictions: []Restriction{
			{Type: ExternalFlagsName, Flag: "away", BlockingState: true},
		},
	}}
	in := command.New().With(command.OnOff, 1)

	out := Run([]string{NaturalLightName, SunEventsName}, fctx, in, bulb, reg)

	if !out.Equal(in) {
		t.Errorf("Run() = %s, want original %s", out, in)
	}
	if len(fctx.StateData) != 0 {
		t.Errorf("StateData = %v, want empty after veto", fctx.StateData)
	}
}

func TestRun_ZeroApplyPartiallyLeavesNoStateForSunEvents(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	fctx := &Context{ApplyPartially: ptr(0)}
	in := command.New().With(command.ColorTemp, 6000)

	out := Run([]string{NaturalLightName, SunEventsName}, fctx, in, bulb, reg)

	if !out.Equal(in) {
		t.Errorf("Run() = %s, want original %s", out, in)
	}
}

func TestNaturalLight_UnknownFlagDoesNotVeto(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	spec := Spec{
		Plugin: NaturalLightName,
		Settings: Settings{Restrictions: []Restriction{
			{Type: ExternalFlagsName, URL: "http://flags.local", Flag: "x", BlockingState: true},
		}},
	}

	out := NewPipeline(reg).Apply([]Spec{spec}, command.New(), bulb)
	if !out.Has(command.ColorTemp) {
		t.Errorf("Apply() = %s, want color_temp set", out)
	}
}

func TestNaturalLight_MissingExternalFlagsFailsOpen(t *testing.T) {
	reg := NewRegistry(NewSunEvents(&fixedClock{pct: 1}), NewNaturalLight())
	spec := Spec{
		Plugin: NaturalLightName,
		Settings: Settings{Restrictions: []Restriction{
			{Type: ExternalFlagsName, URL: "http://flags.local", Flag: "x", BlockingState: true},
		}},
	}

	out := NewPipeline(reg).Apply([]Spec{spec}, command.New(), bulb)
	if got, _ := out.Get(command.ColorTemp); got != 2700 {
		t.Errorf("color_temp = %v, want 2700", got)
	}
}

func TestNaturalLight_MissingSunEventsPassesThrough(t *testing.T) {
	reg := NewRegistry(NewNaturalLight())
	in := command.New().With(command.OnOff, 1)

	out := NewPipeline(reg).Apply([]Spec{{Plugin: NaturalLightName}}, in, bulb)
	if !out.Equal(in) {
		t.Errorf("Apply() = %s, want unchanged %s", out, in)
	}
}

func TestNaturalLight_ApplyPartially(t *testing.T) {
	in := command.New().With(command.ColorTemp, 6000)

	tests := []struct {
		name string
		ap   *float64
		want float64
	}{
		{"nil is full", nil, 2700},
		{"one is full", ptr(1), 2700},
		{"above one is full", ptr(1.5), 2700},
		{"zero keeps input", ptr(0), 6000},
		{"negative keeps input", ptr(-1), 6000},
		{"half blends from input", ptr(0.5), 4350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := naturalLightRegistry(1, nil)
			spec := Spec{Plugin: NaturalLightName, ApplyPartially: tt.ap}

			out := NewPipeline(reg).Apply([]Spec{spec}, in, bulb)
			if got, _ := out.Get(command.ColorTemp); got != tt.want {
				t.Errorf("color_temp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNaturalLight_ApplyPartiallyWithoutInputStartsFromDay(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	spec := Spec{Plugin: NaturalLightName, ApplyPartially: ptr(0.25)}

	out := NewPipeline(reg).Apply([]Spec{spec}, command.New(), bulb)
	// 6500 + (2700-6500)*0.25
	if got, _ := out.Get(command.ColorTemp); got != 5550 {
		t.Errorf("color_temp = %v, want 5550", got)
	}
}

func TestExternalFlags_PassesThroughAndRefreshes(t *testing.T) {
	ff := &fakeFlags{}
	reg := NewRegistry(NewExternalFlags(ff))
	spec := Spec{Plugin: ExternalFlagsName, Settings: Settings{URL: "http://flags.local"}}
	in := command.New().With(command.OnOff, 0)

	out := NewPipeline(reg).Apply([]Spec{spec}, in, bulb)
	if !out.Equal(in) {
		t.Errorf("Apply() = %s, want unchanged", out)
	}
	if len(ff.refreshed) != 1 {
		t.Errorf("refresh count = %d, want 1", len(ff.refreshed))
	}
}

func TestSchedule_PassesThrough(t *testing.T) {
	reg := NewRegistry(NewSchedule())
	in := command.New().With(command.Brightness, 40)

	out := NewPipeline(reg).Apply([]Spec{{Plugin: ScheduleName}}, in, bulb)
	if !out.Equal(in) {
		t.Errorf("Apply() = %s, want unchanged", out)
	}
}

func TestPipeline_ApplyPeriodic(t *testing.T) {
	reg := NewRegistry(
		addPlugin{name: "a", param: command.Brightness, delta: 1},
		addPlugin{name: "b", param: command.Brightness, delta: 10},
	)
	specs := []Spec{{Plugin: "a"}, {Plugin: "b", Periodic: true}}

	out := NewPipeline(reg).ApplyPeriodic(specs, command.New(), bulb)
	if got, _ := out.Get(command.Brightness); got != 10 {
		t.Errorf("brightness = %v, want 10", got)
	}
	if !HasPeriodic(specs) || HasPeriodic(specs[:1]) {
		t.Error("HasPeriodic mismatch")
	}
}

func TestPipeline_ContextNotShared(t *testing.T) {
	reg, _ := naturalLightRegistry(1, nil)
	specs := []Spec{{Plugin: NaturalLightName}, {Plugin: SunEventsName}}
	in := command.New().With(command.ColorTemp, 5000)

	out := NewPipeline(reg).Apply(specs, in, bulb)
	// sunEvents runs with a fresh context and no state data, so it keeps
	// naturalLight's result.
	if got, _ := out.Get(command.ColorTemp); got != 2700 {
		t.Errorf("color_temp = %v, want 2700", got)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewDefaultRegistry(&fixedClock{}, &fakeFlags{})
	got := reg.Names()
	want := []string{ExternalFlagsName, NaturalLightName, ScheduleName, SunEventsName}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
