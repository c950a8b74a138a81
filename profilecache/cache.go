// Package profilecache holds the bound profile-provider cache: {profile
// AST, map AST, provider JSON, service selector, security config,
// cache-expiry}, keyed by hash(profile-id, profile-version,
// provider-name, map-variant, map-revision). Concurrent misses on the
// same key coalesce to a single bind, and entries past expiry are
// re-bound lazily in the background while the stale entry keeps serving
// callers — per §3/§5. Grounded on the cache/coalesce shape of the
// teacher's NewApiCrawler config load, generalized from a one-shot
// load into a keyed, expiring, background-refreshed cache, and on
// r3e-network-service_layer's resilience package for the
// singleflight-style coalescing idiom.
package profilecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Key identifies one bound profile-provider.
type Key struct {
	ProfileID      string
	ProfileVersion string
	ProviderName   string
	MapVariant     string
	MapRevision    string
}

// Hash renders the cache key's deterministic hash, used as the cache's
// internal lookup key and matched against changed file names by the
// fsnotify invalidation.
func (k Key) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", k.ProfileID, k.ProfileVersion, k.ProviderName, k.MapVariant, k.MapRevision)
	return hex.EncodeToString(h.Sum(nil))
}

// BoundProfileProvider is the cached artifact: everything a use-case
// perform needs to run without touching the registry again.
type BoundProfileProvider struct {
	ProfileAST     any
	MapAST         any
	ProviderJSON   any
	ServiceSelector map[string]string
	SecurityConfig  any
	ExpiresAt       time.Time
}

// Loader produces a fresh BoundProfileProvider for Key, e.g. by calling
// the registry client and the injected FileSystem/parser collaborators.
type Loader func(ctx context.Context, key Key) (*BoundProfileProvider, error)

type entry struct {
	value   *BoundProfileProvider
	loading chan struct{} // closed when an in-flight load completes
}

// Cache is a read-mostly, single-writer-on-miss bound profile-provider
// cache. Concurrent misses for the same key coalesce onto one Loader
// call; expired entries keep serving while a background refresh runs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	load    Loader
	now     func() time.Time

	watcher *fsnotify.Watcher
}

// New constructs a Cache backed by load. If cacheDir is non-empty, the
// cache also watches it with fsnotify: a write, removal or rename of a
// file whose name contains an entry's key hash drops that entry. The
// cache writes no files itself, and a file named only by profile name
// and version matches no entry.
func New(load Loader, cacheDir string) (*Cache, error) {
	c := &Cache{
		entries: map[string]*entry{},
		load:    load,
		now:     time.Now,
	}
	if cacheDir == "" {
		return c, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(cacheDir); err != nil {
		w.Close()
		return nil, err
	}
	c.watcher = w
	go c.watchLoop()
	return c, nil
}

func (c *Cache) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.invalidateByPath(ev.Name)
			}
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// invalidateByPath drops every cached entry whose key hash appears in
// the changed file's name.
func (c *Cache) invalidateByPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash := range c.entries {
		if len(path) >= len(hash) && containsSubstring(path, hash) {
			delete(c.entries, hash)
		}
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// Close stops the filesystem watcher, if any.
func (c *Cache) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// Get returns the bound profile-provider for key, loading it on first
// use. Concurrent Get calls for the same key block on one in-flight
// Loader call rather than issuing duplicate binds. An expired entry is
// still returned to the caller immediately, with a fresh bind kicked off
// in the background for the next caller.
func (c *Cache) Get(ctx context.Context, key Key) (*BoundProfileProvider, error) {
	hash := key.Hash()

	c.mu.Lock()
	e, ok := c.entries[hash]
	if ok && e.value != nil {
		stale := c.now().After(e.value.ExpiresAt)
		if !stale {
			c.mu.Unlock()
			return e.value, nil
		}
		// Serve stale, refresh in background (at most one refresh at a
		// time per key).
		if e.loading == nil {
			e.loading = make(chan struct{})
			go c.refresh(key, hash, e)
		}
		stolenValue := e.value
		c.mu.Unlock()
		return stolenValue, nil
	}
	// No entry yet, or an earlier load failed and left no value and no
	// load in flight: load now.
	if !ok || e.loading == nil {
		e = &entry{loading: make(chan struct{})}
		c.entries[hash] = e
		c.mu.Unlock()
		return c.loadAndStore(ctx, key, hash, e)
	}
	// A load is already in flight for this key: wait for it.
	loading := e.loading
	c.mu.Unlock()
	<-loading

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[hash].value == nil {
		return nil, fmt.Errorf("bound profile-provider load failed for key %s", hash)
	}
	return c.entries[hash].value, nil
}

func (c *Cache) loadAndStore(ctx context.Context, key Key, hash string, e *entry) (*BoundProfileProvider, error) {
	v, err := c.load(ctx, key)
	c.mu.Lock()
	if err == nil {
		e.value = v
	}
	close(e.loading)
	e.loading = nil
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Cache) refresh(key Key, hash string, e *entry) {
	v, err := c.load(context.Background(), key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		e.value = v
	}
	if e.loading != nil {
		close(e.loading)
		e.loading = nil
	}
}
