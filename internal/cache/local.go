package cache

import (
	"context"
	"sync/atomic"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	gocache "github.com/patrickmn/go-cache"
)

// localTier wraps go-cache. Expired entries are treated as absent and
// evicted by the janitor; this tier cannot fail.
type localTier struct {
	c      *gocache.Cache
	hits   int64
	misses int64
}

func newLocalTier(defaultTTL time.Duration) *localTier {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &localTier{
		c: gocache.New(defaultTTL, 10*time.Minute),
	}
}

func (l *localTier) Get(_ context.Context, key string) (string, error) {
	v, ok := l.c.Get(key)
	if !ok {
		atomic.AddInt64(&l.misses, 1)
		return "", ErrNotFound
	}
	s, ok := v.(string)
	if !ok {
		atomic.AddInt64(&l.misses, 1)
		return "", ErrNotFound
	}
	atomic.AddInt64(&l.hits, 1)
	return s, nil
}

func (l *localTier) Set(_ context.Context, key, value string, ttl time.Duration) error {
	l.c.Set(key, value, ttl)
	return nil
}

func (l *localTier) Delete(_ context.Context, key string) error {
	l.c.Delete(key)
	return nil
}

func (l *localTier) Clear(_ context.Context, pattern string) (int, error) {
	if pattern == "" || pattern == "*" {
		n := l.c.ItemCount()
		l.c.Flush()
		return n, nil
	}
	var removed int
	for key := range l.c.Items() {
		if wildcard.Match(pattern, key) {
			l.c.Delete(key)
			removed++
		}
	}
	return removed, nil
}

func (l *localTier) Stats(_ context.Context) TierStats {
	return TierStats{
		Driver:    "memory",
		Keys:      int64(l.c.ItemCount()),
		Hits:      atomic.LoadInt64(&l.hits),
		Misses:    atomic.LoadInt64(&l.misses),
		Available: true,
	}
}
