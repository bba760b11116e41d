// Package rcache implements the bounded result cache: LRU or MRU
// eviction, TTL expiry, and hit/miss/eviction statistics (spec §4.8).
package rcache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Strategy selects which entry is evicted under size pressure.
type Strategy string

const (
	// LRU evicts the least-recently-accessed entry.
	LRU Strategy = "lru"
	// MRU evicts the most-recently-accessed entry.
	MRU Strategy = "mru"
)

// Config bounds one Cache instance.
type Config struct {
	MaxSize  int
	TTLMs    int64
	Strategy Strategy
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxSize: 1000, TTLMs: 5 * 60 * 1000, Strategy: LRU}
}

// Fingerprint derives a cache key from a query string (used as given) and an
// options fingerprint (typically a stable serialization of SearchOptions),
// matching the teacher's fastHash64 string-keying convention.
func Fingerprint(query, optionsFingerprint string) string {
	h := xxhash.Sum64String(query + "\x00" + optionsFingerprint)
	return strconv.FormatUint(h, 16)
}

type entry[V any] struct {
	key          string
	value        V
	created      int64
	lastAccessed int64
	accessCount  int
	prev, next   *entry[V]
}

// Cache is a single bounded map keyed by (query, options) fingerprint, with
// LRU or MRU eviction and TTL expiry. Per spec §5's single-threaded
// cooperative model this is not sharded, unlike the teacher's concurrent
// LRUCache; the mutex guards against accidental concurrent use rather than
// expected contention.
type Cache[V any] struct {
	mu   sync.Mutex
	cfg  Config
	data map[string]*entry[V]
	head *entry[V] // most-recently-used
	tail *entry[V] // least-recently-used

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New returns an empty Cache. A zero Config.MaxSize/TTLMs/Strategy falls
// back to DefaultConfig's values.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.TTLMs <= 0 {
		cfg.TTLMs = DefaultConfig().TTLMs
	}
	if cfg.Strategy == "" {
		cfg.Strategy = DefaultConfig().Strategy
	}
	return &Cache[V]{cfg: cfg, data: make(map[string]*entry[V])}
}

// Get returns the cached value for key, or false if absent or expired. A
// hit moves the entry to the MRU position and increments its access count.
func (c *Cache[V]) Get(key string, nowMs int64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if c.cfg.TTLMs > 0 && nowMs-e.created > c.cfg.TTLMs {
		c.removeLocked(e)
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	e.lastAccessed = nowMs
	e.accessCount++
	c.moveToFront(e)
	c.hits.Add(1)
	return e.value, true
}

// Set inserts or replaces key's value, evicting one entry first if the
// cache is at capacity.
func (c *Cache[V]) Set(key string, value V, nowMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.data[key]; ok {
		e.value = value
		e.created = nowMs
		e.lastAccessed = nowMs
		c.moveToFront(e)
		return
	}

	if len(c.data) >= c.cfg.MaxSize {
		c.evictOneLocked()
	}

	e := &entry[V]{key: key, value: value, created: nowMs, lastAccessed: nowMs}
	c.data[key] = e
	c.addToFront(e)
}

// Clear drops every entry and resets statistics.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*entry[V])
	c.head, c.tail = nil, nil
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Prune removes every entry whose TTL has expired as of nowMs, returning
// the count removed.
func (c *Cache[V]) Prune(nowMs int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.TTLMs <= 0 {
		return 0
	}
	removed := 0
	for _, e := range c.snapshotEntriesLocked() {
		if nowMs-e.created > c.cfg.TTLMs {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Stats returns current hit/miss/eviction counters and size.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	size := len(c.data)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
	}
}

// Analyze returns each cached key's access count, for diagnostics.
func (c *Cache[V]) Analyze() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.data))
	for k, e := range c.data {
		out[k] = e.accessCount
	}
	return out
}

func (c *Cache[V]) snapshotEntriesLocked() []*entry[V] {
	out := make([]*entry[V], 0, len(c.data))
	for _, e := range c.data {
		out = append(out, e)
	}
	return out
}

// evictOneLocked drops one entry per the configured strategy: LRU drops
// the tail (least-recently-used); MRU drops the head (most-recently-used).
func (c *Cache[V]) evictOneLocked() {
	var victim *entry[V]
	switch c.cfg.Strategy {
	case MRU:
		victim = c.head
	default:
		victim = c.tail
	}
	if victim == nil {
		return
	}
	c.removeLocked(victim)
	c.evictions.Add(1)
}

func (c *Cache[V]) removeLocked(e *entry[V]) {
	delete(c.data, e.key)
	c.unlink(e)
}

func (c *Cache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache[V]) addToFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[V]) moveToFront(e *entry[V]) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}
