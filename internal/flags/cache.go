package flags

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Logger is the logging surface the cache needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

const defaultFetchTimeout = 5 * time.Second

// Entry is the last successful fetch for one URL.
type Entry struct {
	Flags     map[string]any
	FetchedAt time.Time
}

// Cache memoises flag sets per URL.
//
// Thread Safety:
//   - Lookup and Get take the read lock and never touch the network
//   - Entries are replaced wholesale under the write lock, so readers never
//     observe a partially written flag set
//   - Concurrent refreshes of the same URL collapse into one fetch
type Cache struct {
	source       Source
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       Logger

	mu       sync.RWMutex
	entries  map[string]Entry
	inflight map[string]bool

	group singleflight.Group
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long an entry is fresh. Refresh skips fresh entries;
// a zero TTL refreshes on every call.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFetchTimeout bounds each background fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(l Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCache creates a cache backed by source.
func NewCache(source Source, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		source:       source,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       noopLogger{},
		entries:      make(map[string]Entry),
		inflight:     make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup answers from the cache only. ok is false when url was never
// fetched or the flag is absent.
func (c *Cache) Lookup(url, name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	v, ok := entry.Flags[name]
	return v, ok
}

// Get returns a copy of the entry for url.
func (c *Cache) Get(url string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	flags := make(map[string]any, len(entry.Flags))
	for k, v := range entry.Flags {
		flags[k] = v
	}
	return Entry{Flags: flags, FetchedAt: entry.FetchedAt}, true
}

// Refresh starts a background fetch for url unless the entry is still
// fresh or a fetch is already running. It never blocks on the network.
//
// Concurrent refreshes of one URL share a single request. A failed fetch
// keeps the previous entry.
//
// Parameters:
//   - url: Flag source to fetch
//
// Returns:
//   - bool: true if a fetch was started
func (c *Cache) Refresh(url string) bool {
	if url == "" || c.ctx.Err() != nil {
		return false
	}

	c.mu.Lock()
	if c.inflight[url] || c.freshLocked(url) {
		c.mu.Unlock()
		return false
	}
	c.inflight[url] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, url)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
		defer cancel()
		if err := c.fetch(ctx, url); err != nil {
			c.logger.Warn("flag refresh failed", "url", url, "error", err)
		}
	}()
	return true
}

// RefreshSync fetches url and waits for the result.
func (c *Cache) RefreshSync(ctx context.Context, url string) error {
	return c.fetch(ctx, url)
}

func (c *Cache) fetch(ctx context.Context, url string) error {
	_, err, _ := c.group.Do(url, func() (any, error) {
		flags, err := c.source.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		c.store(url, flags)
		return nil, nil
	})
	return err
}

func (c *Cache) store(url string, flags map[string]any) {
	owned := make(map[string]any, len(flags))
	for k, v := range flags {
		owned[k] = v
	}
	entry := Entry{Flags: owned, FetchedAt: c.now()}

	c.mu.Lock()
	c.entries[url] = entry
	c.mu.Unlock()

	c.logger.Debug("flags refreshed", "url", url, "count", len(owned))
}

func (c *Cache) freshLocked(url string) bool {
	if c.ttl <= 0 {
		return false
	}
	entry, ok := c.entries[url]
	return ok && c.now().Sub(entry.FetchedAt) < c.ttl
}

// Wait blocks until every background refresh has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight fetches and waits for them to return.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}
