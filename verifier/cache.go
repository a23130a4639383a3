package verifier

import (
	"context"
	"time"

	"github.com/andrewreder/toolfi/go-api/ttlcache"
)

// Cache binds transaction references to verified payments. PutIfAbsent is a
// compare-and-set: the first payment stored for a reference wins and is
// returned to every later writer.
type Cache interface {
	Get(ctx context.Context, ref string) (Payment, bool, error)
	PutIfAbsent(ctx context.Context, ref string, p Payment) (Payment, error)
}

// MemoryCache is a process-local Cache bounded by TTL and entry count. When
// full, the oldest verification is dropped.
type MemoryCache struct {
	now     func() time.Time
	entries *ttlcache.Cache[string, Payment]
}

// NewMemoryCache returns a cache keeping entries for ttl, at most maxEntries
// at a time. Zero values disable the corresponding bound.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	c := &MemoryCache{now: time.Now}
	c.entries = ttlcache.New[string, Payment](ttl, maxEntries, ttlcache.WithClock(func() time.Time { return c.now() }))
	return c
}

func (c *MemoryCache) Get(_ context.Context, ref string) (Payment, bool, error) {
	p, ok := c.entries.Get(ref)
	return p, ok, nil
}

func (c *MemoryCache) PutIfAbsent(_ context.Context, ref string, p Payment) (Payment, error) {
	held, _ := c.entries.PutIfAbsent(ref, p)
	return held, nil
}

// Len reports the number of stored entries, expired ones not yet swept
// included.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
