package filter

import (
	"sort"
	"sync"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// Plugin rewrites a command for one device. Implementations must return a
// command (possibly the input unchanged) and must not fail because an
// optional dependency is missing.
type Plugin interface {
	Name() string
	Apply(fctx *Context, cmd command.Command, target Target, reg *Registry) command.Command
}

// Logger is the logging surface the pipeline and plugins need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps plugin names to instances. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	logger  Logger
}

// NewRegistry creates a registry holding plugins.
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{
		plugins: make(map[string]Plugin, len(plugins)),
		logger:  noopLogger{},
	}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// SetLogger sets the logger shared by the pipeline and plugins.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Logger returns the registry's logger.
func (r *Registry) Logger() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Register adds or replaces a plugin under its Name.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	r.plugins[p.Name()] = p
	r.mu.Unlock()
}

// Lookup returns the plugin registered as name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
