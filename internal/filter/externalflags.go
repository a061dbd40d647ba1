package filter

import (
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
)

// FlagCache is the cache surface externalFlags needs. *flags.Cache satisfies it.
type FlagCache interface {
	Refresh(url string) bool
	Lookup(url, name string) (any, bool)
}

// ExternalFlags keeps flag sources fresh and answers restriction queries.
// It never blocks on the network.
type ExternalFlags struct {
	cache FlagCache
}

// NewExternalFlags creates the externalFlags plugin.
func NewExternalFlags(cache FlagCache) *ExternalFlags {
	return &ExternalFlags{cache: cache}
}

// Name implements Plugin.
func (e *ExternalFlags) Name() string { return ExternalFlagsName }

// Apply refreshes the configured source in the background and passes the
// command through.
func (e *ExternalFlags) Apply(fctx *Context, cmd command.Command, _ Target, _ *Registry) command.Command {
	if fctx != nil && fctx.Settings.URL != "" {
		e.cache.Refresh(fctx.Settings.URL)
	}
	return cmd
}

// CheckFlagStateOnURL returns the cached value of flag at url and schedules
// a refresh. ok is false if the flag has never been fetched.
func (e *ExternalFlags) CheckFlagStateOnURL(url, flag string) (any, bool) {
	if url == "" {
		return nil, false
	}
	e.cache.Refresh(url)
	return e.cache.Lookup(url, flag)
}
