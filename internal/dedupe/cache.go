// ABOUTME: TTL and size bounded cache of recently seen platform message ids
// ABOUTME: Insertion-ordered list gives O(1) eviction of the oldest key

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used when the configuration leaves them unset.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 100_000
	cleanupInterval   = time.Minute
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers keys for ttl, holding at most maxSize of them.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its background cleanup. Non-positive
// arguments select the defaults.
func New(ttl time.Duration, maxSize int) *Cache {
	return newCache(ttl, maxSize, time.Now, cleanupInterval)
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time, interval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	go c.cleanup(interval)
	return c
}

// Key builds the cache key for a platform message.
func Key(channel, platformMessageID string) string {
	return channel + ":" + platformMessageID
}

// Seen reports whether key was recorded within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && c.now().Sub(e.seenAt) < c.ttl
}

// SeenOrRecord reports whether key is a duplicate; if it is not, it is recorded.
// The check and the insert happen under one lock.
func (c *Cache) SeenOrRecord(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && c.now().Sub(e.seenAt) < c.ttl {
		return true
	}
	c.recordLocked(key)
	return false
}

// Record marks key as seen now.
func (c *Cache) Record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(key)
}

// Forget removes key so the next delivery is processed.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// Len returns the number of keys held, expired ones included until cleanup.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) recordLocked(key string) {
	now := c.now()

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
}

func (c *Cache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.done:
			return
		}
	}
}

// purgeExpired drops expired keys. Keys are in insertion order, so it stops at
// the first live one.
func (c *Cache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		e := c.seen[key]
		if e == nil || now.Sub(e.seenAt) < c.ttl {
			break
		}
		c.order.Remove(front)
		delete(c.seen, key)
		removed++
	}
	return removed
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
