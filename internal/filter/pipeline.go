package filter

import (
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// Run folds cmd through the named plugins in order, sharing fctx between
// them. Unknown plugins are skipped and a panicking plugin leaves the
// command as it was before that plugin.
func Run(chain []string, fctx *Context, cmd command.Command, target Target, reg *Registry) command.Command {
	if fctx == nil {
		fctx = &Context{}
	}
	out := cmd
	for _, name := range chain {
		plugin, ok := reg.Lookup(name)
		if !ok {
			logger(reg).Warn("filter plugin not registered, passing through",
				"plugin", name,
				"channel", target.Channel,
			)
			continue
		}
		out = applySafely(plugin, fctx, out, target, reg)
	}
	return out
}

func applySafely(plugin Plugin, fctx *Context, cmd command.Command, target Target, reg *Registry) (result command.Command) {
	defer func() {
		if r := recover(); r != nil {
			logger(reg).Error("filter plugin panicked, passing through",
				"plugin", plugin.Name(),
				"channel", target.Channel,
				"panic", r,
			)
			result = cmd
		}
	}()
	return plugin.Apply(fctx, cmd, target, reg)
}

func logger(reg *Registry) Logger {
	if reg == nil {
		return noopLogger{}
	}
	return reg.Logger()
}

// Pipeline runs a device's configured filter specs.
type Pipeline struct {
	reg *Registry
}

// NewPipeline creates a pipeline resolving plugins from reg.
func NewPipeline(reg *Registry) *Pipeline {
	return &Pipeline{reg: reg}
}

// Registry returns the pipeline's plugin registry.
func (p *Pipeline) Registry() *Registry {
	return p.reg
}

// Apply runs every spec in order. Each spec gets a fresh Context built from
// its own settings, so scratch data never leaks between filters.
func (p *Pipeline) Apply(specs []Spec, cmd command.Command, target Target) command.Command {
	out := cmd
	for _, spec := range specs {
		out = p.ApplyOne(spec, out, target)
	}
	return out
}

// ApplyPeriodic runs only the periodic specs.
func (p *Pipeline) ApplyPeriodic(specs []Spec, cmd command.Command, target Target) command.Command {
	out := cmd
	for _, spec := range specs {
		if spec.Periodic {
			out = p.ApplyOne(spec, out, target)
		}
	}
	return out
}

// ApplyOne runs a single spec.
func (p *Pipeline) ApplyOne(spec Spec, cmd command.Command, target Target) command.Command {
	fctx := &Context{
		Settings:       spec.Settings.Clone(),
		ApplyPartially: spec.ApplyPartially,
	}
	return Run([]string{spec.Plugin}, fctx, cmd, target, p.reg)
}

// HasPeriodic reports whether any spec is periodic.
func HasPeriodic(specs []Spec) bool {
	for _, s := range specs {
		if s.Periodic {
			return true
		}
	}
	return false
}
