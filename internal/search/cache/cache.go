package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// Store persists finalized results for a limited time.
type Store interface {
	// Get returns the result under key and whether it was present.
	Get(ctx context.Context, key string) (*types.Result, bool, error)
	// Set stores result under key for ttl.
	Set(ctx context.Context, key string, result *types.Result, ttl time.Duration) error
	// Close releases the store's resources.
	Close() error
}

// Cache serves batch results from a Store and collapses concurrent fetches
// for the same key into one.
type Cache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a new Cache with the specified TTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Key generates a cache key from a search query.
func Key(q types.LogicalQuery) string {
	return fmt.Sprintf("search:%d:%s:%s:%d", q.SkiSite, q.FromDate, q.ToDate, q.GroupSize)
}

// GetOrFetch retrieves from cache or executes the fetch function.
// Returns the result and a boolean indicating if it was a cache hit.
// Store failures are logged and treated as misses.
//
// Concurrent callers for the same key share one fetch, so fetch receives a
// context that keeps ctx's values but is not cancelled when ctx is. A caller
// whose ctx ends stops waiting without aborting the fetch for the others.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (*types.Result, error)) (*types.Result, bool, error) {
	result, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	} else if ok {
		return result, true, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		result, err := fetch(shared)
		if err != nil || result == nil {
			return result, err
		}
		if err := c.store.Set(shared, key, result, c.ttl); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		result, _ := res.Val.(*types.Result)
		return result, false, nil
	case <-ctx.Done():
		return nil, false, context.Cause(ctx)
	}
}
