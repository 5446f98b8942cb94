package probe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached memoizes probe results in memory, keyed by path, size and
// modification time, so a long-running process does not re-probe a file
// that has not changed. Failures are not cached.
type Cached struct {
	inner Prober
	cache *expirable.LRU[string, *Result]
}

// NewCached wraps inner with an LRU of at most size entries that expire after ttl.
func NewCached(inner Prober, size int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: expirable.NewLRU[string, *Result](size, nil, ttl),
	}
}

// Probe returns a memoized result when the file is unchanged since it was last probed.
func (c *Cached) Probe(ctx context.Context, path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return c.inner.Probe(ctx, path)
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}

	result, err := c.inner.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// Len returns the number of memoized results.
func (c *Cached) Len() int {
	return c.cache.Len()
}
