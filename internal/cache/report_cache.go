// Package cache holds computed report views for a short TTL. Any write to
// sites, tasks or users invalidates the whole cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

type ReportCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	generation uint64
	now        func() time.Time
}

func NewReportCache[V any](config Config) *ReportCache[V] {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 500
	}
	return &ReportCache[V]{
		entries:    make(map[string]entry[V]),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *ReportCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

func (c *ReportCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value)
}

// Generation changes on every Invalidate. Read it before computing a value
// and pass it to SetIfCurrent.
func (c *ReportCache[V]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetIfCurrent stores value only if no Invalidate ran since generation was
// read, so a page computed from data older than a write is never cached.
func (c *ReportCache[V]) SetIfCurrent(key string, value V, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.store(key, value)
	return true
}

func (c *ReportCache[V]) store(key string, value V) {
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = entry[V]{value: value, createdAt: now, expiresAt: now.Add(c.ttl)}
}

// Invalidate drops every entry.
func (c *ReportCache[V]) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.generation++
	c.mu.Unlock()
}

func (c *ReportCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Key normalizes query parts into a stable cache key.
func Key(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(strings.ToLower(part)))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "||")))
	return hex.EncodeToString(sum[:])
}

func (c *ReportCache[V]) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key       string
		createdAt time.Time
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, item := range c.entries {
		pairs = append(pairs, pair{key: key, createdAt: item.createdAt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].createdAt.Before(pairs[j].createdAt)
	})
	delete(c.entries, pairs[0].key)
}
