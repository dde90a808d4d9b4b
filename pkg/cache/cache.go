// Package cache provides the tagged, TTL-bound entity cache that sits
// between the stores and the remote store client. It guarantees at most one
// in-flight fetch per key, supports batch invalidation by tag, and lets a
// waiter abandon a shared fetch without cancelling it for everyone else.
package cache

import (
	"context"
	stdErrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
)

// Tag labels a cache entry with the entity or entity-class it mirrors.
// Invalidation is batched by tag rather than by key.
type Tag string

type entry[T any] struct {
	value     T
	tags      map[Tag]struct{}
	fetchedAt time.Time
	ttl       time.Duration
	// expired marks the entry as a forced miss after tag invalidation.
	// The value is kept so UseCacheIfPresent semantics stay cheap to reason
	// about: an invalidated entry is never served, a merely stale one can be.
	expired bool
}

func (e *entry[T]) fresh(now time.Time) bool {
	return !e.expired && now.Sub(e.fetchedAt) < e.ttl
}

// Options configure a cache instance. One instance per logical session is
// expected; entries are never shared across users.
type Options struct {
	// MaxEntries bounds the map size, zero means unbounded. When exceeded,
	// invalidated entries are dropped first, then the oldest fetches.
	MaxEntries int
}

// Cache is a generic tag-indexed cache over one value type.
type Cache[T any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[T]
	group      singleflight.Group
	maxEntries int
	now        func() time.Time
}

func New[T any](opts Options) *Cache[T] {
	return &Cache[T]{
		entries:    make(map[string]*entry[T]),
		maxEntries: opts.MaxEntries,
		now:        time.Now,
	}
}

// GetOptions tune a single Get call.
type GetOptions struct {
	// ForceRefresh skips the freshness check and always goes to the fetch
	// path. It still joins an in-flight fetch instead of starting a second.
	ForceRefresh bool
	// UseCacheIfPresent serves a stale (but not invalidated) entry instead
	// of refetching.
	UseCacheIfPresent bool
}

// FetchFunc resolves a cache miss. Beyond the value it may return extra tags
// only known once the data is in hand, e.g. one tag per fetched record; they
// are unioned with the tags passed to Get.
type FetchFunc[T any] func(ctx context.Context) (T, []Tag, error)

// Get returns the cached value when fresh, otherwise resolves it through
// fetch. Concurrent callers for the same key share a single fetch; each
// waiter honors its own context without cancelling the fetch for the rest.
// A failed fetch caches nothing and every waiter receives the classified
// error.
func (c *Cache[T]) Get(ctx context.Context, key string, tags []Tag, ttl time.Duration, fetch FetchFunc[T], opts GetOptions) (T, error) {
	var zero T

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !opts.ForceRefresh {
		if e.fresh(c.now()) {
			value := e.value
			c.mu.Unlock()
			return value, nil
		}
		if opts.UseCacheIfPresent && !e.expired {
			value := e.value
			c.mu.Unlock()
			return value, nil
		}
	}
	c.mu.Unlock()

	// The fetch outlives any individual waiter: a cancelled caller must not
	// tear it down for the others, and a late result must still populate the
	// cache (last fetch wins on value).
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		value, extra, err := fetch(fetchCtx)
		if err != nil {
			return nil, pkgerrors.Classify(err)
		}
		c.store(key, value, append(append([]Tag(nil), tags...), extra...), ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		if stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, pkgerrors.Wrap(pkgerrors.KindNetwork, ctx.Err(), "cache fetch timed out")
		}
		return zero, pkgerrors.Wrap(pkgerrors.KindUnknown, ctx.Err(), "cache fetch abandoned")
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, pkgerrors.New(pkgerrors.KindUnknown, "cache fetch returned unexpected type")
		}
		return value, nil
	}
}

// Put writes a value directly, used for optimistic updates. The cache does
// not version entries; the caller owns capturing a rollback value before
// mutating.
func (c *Cache[T]) Put(key string, value T, tags []Tag, ttl time.Duration) {
	c.store(key, value, tags, ttl)
}

// Invalidate expires every entry whose tag set intersects the given tags.
// Synchronous and idempotent; the next Get for an expired entry refetches.
func (c *Cache[T]) Invalidate(tags ...Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		for _, tag := range tags {
			if _, ok := e.tags[tag]; ok {
				e.expired = true
				break
			}
		}
	}
}

// Len reports the number of resident entries, expired ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) store(key string, value T, tags []Tag, ttl time.Duration) {
	tagSet := make(map[Tag]struct{}, len(tags))
	for _, tag := range tags {
		tagSet[tag] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[T]{
		value:     value,
		tags:      tagSet,
		fetchedAt: c.now(),
		ttl:       ttl,
	}
	c.evictLocked(key)
}

func (c *Cache[T]) evictLocked(keep string) {
	if c.maxEntries <= 0 {
		return
	}
	for len(c.entries) > c.maxEntries {
		victim := ""
		var victimAt time.Time
		for key, e := range c.entries {
			if key == keep {
				continue
			}
			if e.expired {
				victim = key
				break
			}
			if victim == "" || e.fetchedAt.Before(victimAt) {
				victim = key
				victimAt = e.fetchedAt
			}
		}
		if victim == "" {
			return
		}
		delete(c.entries, victim)
	}
}
