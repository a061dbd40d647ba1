package flags

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSource serves canned flag sets and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	flags   map[string]map[string]any
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, url string) (map[string]any, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.flags[url], nil
}

func (f *fakeSource) set(url string, flags map[string]any) {
	f.mu.Lock()
	f.flags[url] = flags
	f.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const flagURL = "http://flags.local/state"

func TestCache_LookupBeforeFetch(t *testing.T) {
	c := NewCache(&fakeSource{flags: map[string]map[string]any{}})
	defer c.Close()

	if v, ok := c.Lookup(flagURL, "sleeping"); ok || v != nil {
		t.Errorf("Lookup() = %v, %v; want nil, false", v, ok)
	}
}

func TestCache_RefreshPopulatesInBackground(t *testing.T) {
	src := &fakeSource{flags: map[string]map[string]any{flagURL: {"sleeping": true}}}
	c := NewCache(src)
	defer c.Close()

	if !c.Refresh(flagURL) {
		t.Fatal("Refresh() should start a fetch")
	}
	c.Wait()

	v, ok := c.Lookup(flagURL, "sleeping")
	if !ok || v != true {
		t.Errorf("Lookup() = %v, %v; want true, true", v, ok)
	}
}

func TestCache_RefreshDoesNotBlock(t *testing.T) {
	src := &fakeSource{flags: map[string]map[string]any{flagURL: {"x": 1.0}}, release: make(chan struct{})}
	c := NewCache(src)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		c.Refresh(flagURL)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Refresh() blocked on a pending fetch")
	}

	if _, ok := c.Lookup(flagURL, "x"); ok {
		t.Error("value visible before fetch resolved")
	}
	if c.Refresh(flagURL) {
		t.Error("second Refresh() should not start while one is in flight")
	}

	close(src.release)
	c.Wait()

	if _, ok := c.Lookup(flagURL, "x"); !ok {
		t.Error("value missing after fetch resolved")
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	src := &fakeSource{flags: map[string]map[string]any{flagURL: {"mode": "away"}}}
	c := NewCache(src, WithTTL(time.Minute), WithClock(clock.Now))
	defer c.Close()

	if err := c.RefreshSync(context.Background(), flagURL); err != nil {
		t.Fatalf("RefreshSync() error = %v", err)
	}

	clock.Advance(30 * time.Second)
	if c.Refresh(flagURL) {
		t.Error("fresh entry should not be refetched")
	}

	src.set(flagURL, map[string]any{"mode": "home"})
	clock.Advance(31 * time.Second)
	if !c.Refresh(flagURL) {
		t.Fatal("stale entry should be refetched")
	}
	c.Wait()

	if v, _ := c.Lookup(flagURL, "mode"); v != "home" {
		t.Errorf("mode = %v, want home", v)
	}
	entry, _ := c.Get(flagURL)
	if !entry.FetchedAt.Equal(clock.Now()) {
		t.Errorf("FetchedAt = %v, want %v", entry.FetchedAt, clock.Now())
	}
}

func TestCache_FailedRefreshKeepsStaleEntry(t *testing.T) {
	src := &fakeSource{flags: map[string]map[string]any{flagURL: {"sleeping": false}}}
	c := NewCache(src)
	defer c.Close()

	if err := c.RefreshSync(context.Background(), flagURL); err != nil {
		t.Fatalf("RefreshSync() error = %v", err)
	}

	src.mu.Lock()
	src.err = errors.New("connection refused")
	src.mu.Unlock()

	c.Refresh(flagURL)
	c.Wait()

	if v, ok := c.Lookup(flagURL, "sleeping"); !ok || v != false {
		t.Errorf("Lookup() = %v, %v; want stale false", v, ok)
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	src := &fakeSource{flags: map[string]map[string]any{flagURL: {"a": 1.0}}}
	c := NewCache(src)
	defer c.Close()
	_ = c.RefreshSync(context.Background(), flagURL)

	entry, _ := c.Get(flagURL)
	entry.Flags["a"] = 2.0

	if v, _ := c.Lookup(flagURL, "a"); v != 1.0 {
		t.Errorf("cache mutated through Get: a = %v", v)
	}
}

func TestCache_RefreshAfterClose(t *testing.T) {
	c := NewCache(&fakeSource{flags: map[string]map[string]any{}})
	c.Close()

	if c.Refresh(flagURL) {
		t.Error("Refresh() after Close should not start a fetch")
	}
	if c.Refresh("") {
		t.Error("Refresh(\"\") should not start a fetch")
	}
}
