// Package dircache memoizes complete directory listings keyed by the
// directory's document id. Entries never expire; they are replaced only by
// an explicit invalidation followed by a fresh fill.
package dircache

import (
	"log/slog"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// Cache holds directory snapshots. Each key carries a generation number
// bumped by Invalidate; a fill that began under an older generation is
// discarded at commit time, so an invalidation is never undone by a fetch
// that was already in flight. Safe for concurrent use.
type Cache struct {
	entries *gocache.Cache
	logger  *slog.Logger

	mu       sync.Mutex
	gens     map[string]uint64
	inflight map[string]uint64 // key -> generation of the running fill
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		entries:  gocache.New(gocache.NoExpiration, 0),
		logger:   logger,
		gens:     make(map[string]uint64),
		inflight: make(map[string]uint64),
	}
}

// Get returns the snapshot for key. The returned slice is shared and must
// not be modified.
func (c *Cache) Get(key string) ([]alipan.Item, bool) {
	v, ok := c.entries.Get(key)
	metrics.RecordCacheLookup(ok)

	if !ok {
		return nil, false
	}

	items, _ := v.([]alipan.Item)

	return items, true
}

// Put stores a snapshot unconditionally.
func (c *Cache) Put(key string, items []alipan.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Set(key, items, gocache.NoExpiration)
	metrics.SetCacheEntries(c.entries.ItemCount())
}

// Invalidate drops the snapshot for key and orphans any fill in flight for
// it, so the next query re-fetches.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[key]++
	delete(c.inflight, key)
	c.entries.Delete(key)

	metrics.RecordCacheInvalidation()
	metrics.SetCacheEntries(c.entries.ItemCount())
	c.logger.Debug("directory cache invalidated", slog.String("key", key))
}

// Flush drops every snapshot and orphans every fill in flight.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.liveKeysLocked()
	for k := range c.gens {
		keys[k] = struct{}{}
	}

	for k := range keys {
		c.gens[k]++
	}

	clear(c.inflight)
	c.entries.Flush()
	metrics.SetCacheEntries(0)
}

// Keys returns every key that is cached or has a fill in flight, in no
// particular order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.liveKeysLocked()

	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}

	return keys
}

func (c *Cache) liveKeysLocked() map[string]struct{} {
	keys := make(map[string]struct{}, len(c.inflight))

	for k := range c.inflight {
		keys[k] = struct{}{}
	}

	for k := range c.entries.Items() {
		keys[k] = struct{}{}
	}

	return keys
}

// Len returns the number of cached directories.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}

// Fill is a pending population of one key.
type Fill struct {
	c   *Cache
	key string
	gen uint64
}

// BeginFill registers a fill for key. It returns false when a fill for the
// key's current generation is already running, in which case the caller
// should not start another fetch.
func (c *Cache) BeginFill(key string) (*Fill, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gens[key]
	if running, ok := c.inflight[key]; ok && running == gen {
		return nil, false
	}

	c.inflight[key] = gen

	return &Fill{c: c, key: key, gen: gen}, true
}

// Commit stores items if no invalidation happened since BeginFill and
// reports whether it did.
func (f *Fill) Commit(items []alipan.Item) bool {
	c := f.c

	c.mu.Lock()
	defer c.mu.Unlock()

	f.releaseLocked()

	if c.gens[f.key] != f.gen {
		c.logger.Debug("discarding stale directory fill", slog.String("key", f.key))

		return false
	}

	c.entries.Set(f.key, items, gocache.NoExpiration)
	metrics.SetCacheEntries(c.entries.ItemCount())

	return true
}

// Abort releases the fill without storing anything.
func (f *Fill) Abort() {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.releaseLocked()
}

func (f *Fill) releaseLocked() {
	if running, ok := f.c.inflight[f.key]; ok && running == f.gen {
		delete(f.c.inflight, f.key)
	}
}
