// Package ttlcache is a size-bounded map whose entries expire a fixed TTL
// after they are written.
package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// Cache keeps entries in write order. With one TTL for every entry, write
// order is also expiry order, so sweeping and eviction only touch the front
// of the list.
type Cache[K comparable, V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	order *list.List
	items map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns a cache keeping entries for ttl, at most maxEntries at a
// time. Zero disables the corresponding bound.
func New[K comparable, V any](ttl time.Duration, maxEntries int, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        o.now,
		order:      list.New(),
		items:      make(map[K]*list.Element),
	}
}

// Get returns the live value stored under key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.remove(el)
		var zero V
		return zero, false
	}
	return e.value, true
}

// PutIfAbsent stores value unless a live value exists under key. It returns
// the value held after the call and whether value was the one stored.
func (c *Cache[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		if !c.expired(e) {
			return e.value, false
		}
		c.remove(el)
	}
	c.insert(key, value)
	return value, true
}

// Set stores value under key, replacing any previous value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	c.insert(key, value)
}

// Len reports the number of stored entries, expired ones not yet swept
// included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.items)
}

func (c *Cache[K, V]) insert(key K, value V) {
	c.sweep()
	if c.maxEntries > 0 {
		for c.order.Len() >= c.maxEntries {
			c.remove(c.order.Front())
		}
	}
	e := &entry[K, V]{key: key, value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.items[key] = c.order.PushBack(e)
}

// sweep drops expired entries from the front.
func (c *Cache[K, V]) sweep() {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if !c.expired(el.Value.(*entry[K, V])) {
			return
		}
		c.remove(el)
	}
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

func (c *Cache[K, V]) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
