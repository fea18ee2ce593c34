// Package clientcache keeps reusable admin-client handles keyed by router admin
// address. Entries live for a fixed lifetime counted from creation; a periodic
// Sweep evicts expired entries and Invalidate evicts one immediately. The cache
// owns every handle it stores and is the only place that closes them.
package clientcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

// DefaultMaxLifetime is used when Options.MaxLifetime is not set.
const DefaultMaxLifetime = 15 * time.Second

// Eviction reasons, also used as metric labels.
const (
	ReasonExpired     = "expired"
	ReasonInvalidated = "invalidated"
	ReasonReplaced    = "replaced"
	ReasonCleanup     = "cleanup"
)

var (
	// ErrInvalidArgument classifies invalid constructor or call arguments.
	ErrInvalidArgument = errors.New("client cache invalid argument")
	// ErrCreate classifies factory failures surfaced by GetOrCreate.
	ErrCreate = errors.New("client cache create failed")
)

// Factory builds a new handle for key. It is invoked at most once per key at a
// time, no matter how many callers miss concurrently.
type Factory[T io.Closer] func(ctx context.Context, key string) (T, error)

// Options configures a Cache.
type Options struct {
	// Name labels the cache in logs and metrics.
	Name        string
	MaxLifetime time.Duration
	// Now overrides the clock, mostly for tests.
	Now    func() time.Time
	Logger logger.Logger
}

func (o *Options) normalize() {
	if strings.TrimSpace(o.Name) == "" {
		o.Name = "admin-clients"
	}
	if o.MaxLifetime <= 0 {
		o.MaxLifetime = DefaultMaxLifetime
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
}

type entry[T io.Closer] struct {
	client    T
	createdAt time.Time
}

// Cache is a concurrency-safe TTL cache of closable handles.
type Cache[T io.Closer] struct {
	factory Factory[T]
	opts    Options
	log     logger.Logger

	mu      sync.Mutex
	entries map[string]*entry[T]
	flight  singleflight.Group
}

// New creates a cache that builds missing handles with factory.
func New[T io.Closer](factory Factory[T], opts Options) (*Cache[T], error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: factory is required", ErrInvalidArgument)
	}
	opts.normalize()
	return &Cache[T]{
		factory: factory,
		opts:    opts,
		log:     opts.Logger.With("cache", opts.Name),
		entries: make(map[string]*entry[T]),
	}, nil
}

// MaxLifetime returns the effective entry lifetime.
func (c *Cache[T]) MaxLifetime() time.Duration {
	return c.opts.MaxLifetime
}

// Add stores a pre-built handle under key. A handle already cached for key is
// replaced and closed.
func (c *Cache[T]) Add(key string, client T) {
	c.mu.Lock()
	previous, existed := c.entries[key]
	c.entries[key] = &entry[T]{client: client, createdAt: c.opts.Now()}
	size := len(c.entries)
	c.mu.Unlock()

	setCacheEntries(c.opts.Name, size)
	if existed {
		c.release(key, previous.client, ReasonReplaced)
	}
}

// GetOrCreate returns the handle cached for key, creating it on a miss.
// Concurrent misses for the same key share one factory call. The shared call
// ignores caller cancellation so one caller giving up does not fail the others.
// A factory error is returned to every waiter and leaves the key absent.
func (c *Cache[T]) GetOrCreate(ctx context.Context, key string) (T, error) {
	var zero T
	if strings.TrimSpace(key) == "" {
		return zero, fmt.Errorf("%w: key is required", ErrInvalidArgument)
	}
	if client, ok := c.lookup(key); ok {
		return client, nil
	}

	resultCh := c.flight.DoChan(key, func() (interface{}, error) {
		if client, ok := c.lookup(key); ok {
			return client, nil
		}
		client, err := c.factory(context.WithoutCancel(ctx), key)
		if err != nil {
			recordCacheCreate(c.opts.Name, "error")
			return nil, fmt.Errorf("%w for %s: %w", ErrCreate, key, err)
		}
		recordCacheCreate(c.opts.Name, "success")
		return c.store(key, client), nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Get returns the cached handle without creating one.
func (c *Cache[T]) Get(key string) (T, bool) {
	return c.lookup(key)
}

// Invalidate removes and closes the handle cached for key. It is a no-op when
// the key is absent.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	current, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	size := len(c.entries)
	c.mu.Unlock()

	if !ok {
		return
	}
	setCacheEntries(c.opts.Name, size)
	c.release(key, current.client, ReasonInvalidated)
}

// Sweep evicts and closes every entry older than the configured lifetime and
// returns how many were evicted.
func (c *Cache[T]) Sweep() int {
	now := c.opts.Now()
	expired := make(map[string]T)

	c.mu.Lock()
	for key, current := range c.entries {
		if now.Sub(current.createdAt) > c.opts.MaxLifetime {
			expired[key] = current.client
			delete(c.entries, key)
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	setCacheEntries(c.opts.Name, size)
	for key, client := range expired {
		c.release(key, client, ReasonExpired)
	}
	if len(expired) > 0 {
		c.log.Debug("client cache sweep evicted expired entries", "evicted", len(expired), "remaining", size)
	}
	return len(expired)
}

// CleanUp evicts and closes every entry.
func (c *Cache[T]) CleanUp() int {
	c.mu.Lock()
	all := c.entries
	c.entries = make(map[string]*entry[T])
	c.mu.Unlock()

	setCacheEntries(c.opts.Name, 0)
	for key, current := range all {
		c.release(key, current.client, ReasonCleanup)
	}
	return len(all)
}

// Len returns the number of cached handles.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached keys in lexical order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	return current.client, true
}

// store keeps the first handle that lands for key. A handle added through Add
// while the factory was running wins, and the freshly built one is closed.
func (c *Cache[T]) store(key string, client T) T {
	c.mu.Lock()
	if current, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.release(key, client, ReasonReplaced)
		return current.client
	}
	c.entries[key] = &entry[T]{client: client, createdAt: c.opts.Now()}
	size := len(c.entries)
	c.mu.Unlock()

	setCacheEntries(c.opts.Name, size)
	return client
}

func (c *Cache[T]) release(key string, client T, reason string) {
	recordCacheEviction(c.opts.Name, reason)
	if err := client.Close(); err != nil {
		c.log.Warn("failed to close cached client", "key", key, "reason", reason, "error", err)
	}
}
