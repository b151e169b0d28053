// Package cache holds the in-process view-model cache that sits in front of
// the store for aggregated pages (homepage, video galleries).
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
)

// Logical keys shared by readers and the invalidation dispatcher.
const (
	KeyHomepage = "homepage"
	KeyGallery  = "gallery"
)

// SectionKey is the cache key of a section listing.
func SectionKey(section string) string { return "section:" + section }

// PlaylistKey is the cache key of a playlist's video gallery.
func PlaylistKey(playlistID string) string { return "videos:" + playlistID }

// VideoKey is the cache key of a single video view.
func VideoKey(videoID string) string { return "video:" + videoID }

// ViewCache is a bounded TTL cache. Ristretto does not enumerate keys, so the
// cache keeps its own index to support prefix invalidation. The index follows
// ristretto's evictions, rejections and expirations through callbacks.
type ViewCache struct {
	cache *ristretto.Cache[string, entry]
	ttl   time.Duration

	mu   sync.Mutex
	gen  uint64
	keys map[string]uint64
}

// entry carries its key so callbacks, which only see hashes, can update the
// index. gen tells a stale callback apart from a newer write of the same key.
type entry struct {
	key   string
	gen   uint64
	value any
}

// New creates a ViewCache sized by cfg.
func New(cfg config.CacheConfig) (*ViewCache, error) {
	numCounters := cfg.NumCounters
	if numCounters <= 0 {
		numCounters = 100_000
	}
	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = 64 << 20
	}

	v := &ViewCache{ttl: cfg.TTL, keys: make(map[string]uint64)}
	c, err := ristretto.NewCache(&ristretto.Config[string, entry]{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            func(item *ristretto.Item[entry]) { v.forget(item.Value) },
		OnReject:           func(item *ristretto.Item[entry]) { v.forget(item.Value) },
	})
	if err != nil {
		return nil, fmt.Errorf("create view cache: %w", err)
	}
	v.cache = c

	return v, nil
}

// Get returns the cached value for key.
func (v *ViewCache) Get(key string) (any, bool) {
	e, ok := v.cache.Get(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set stores value with the given cost. Writes are applied asynchronously.
func (v *ViewCache) Set(key string, value any, cost int64) bool {
	v.mu.Lock()
	v.gen++
	e := entry{key: key, gen: v.gen, value: value}
	v.keys[key] = e.gen
	v.mu.Unlock()

	var ok bool
	if v.ttl > 0 {
		ok = v.cache.SetWithTTL(key, e, cost, v.ttl)
	} else {
		ok = v.cache.Set(key, e, cost)
	}
	if !ok {
		v.forget(e)
	}
	return ok
}

// forget drops e from the index unless the key was written again since.
func (v *ViewCache) forget(e entry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen, ok := v.keys[e.key]; ok && gen == e.gen {
		delete(v.keys, e.key)
	}
}

// Len returns the number of indexed keys.
func (v *ViewCache) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.keys)
}

// Wait blocks until pending writes are applied.
func (v *ViewCache) Wait() {
	v.cache.Wait()
}

// Invalidate deletes keys. Keys ending in ":" are treated as prefixes. It
// returns how many indexed keys were dropped.
func (v *ViewCache) Invalidate(keys ...string) int {
	var doomed []string
	dropped := 0

	v.mu.Lock()
	for _, key := range keys {
		if strings.HasSuffix(key, ":") {
			for k := range v.keys {
				if strings.HasPrefix(k, key) {
					doomed = append(doomed, k)
					delete(v.keys, k)
					dropped++
				}
			}
			continue
		}
		if _, ok := v.keys[key]; ok {
			delete(v.keys, key)
			dropped++
		}
		// Deleted even when unindexed, a Set may still be in flight.
		doomed = append(doomed, key)
	}
	v.mu.Unlock()

	// Callbacks take v.mu from ristretto's goroutine, so deletes run unlocked.
	for _, k := range doomed {
		v.cache.Del(k)
	}
	return dropped
}

// Clear drops every entry.
func (v *ViewCache) Clear() {
	v.cache.Clear()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = make(map[string]uint64)
}

// Close stops the cache's background goroutines.
func (v *ViewCache) Close() {
	v.cache.Close()
}
