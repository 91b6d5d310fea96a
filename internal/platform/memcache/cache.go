package memcache

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 15 * time.Minute
)

type entry struct {
	data   any
	expiry time.Time
}

// Cache is a process-local key/value store with per-entry expiry and a bounded
// number of entries. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Cache)

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		maxEntries: DefaultMaxEntries,
		defaultTTL: DefaultTTL,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key using the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key until now+ttl. When the cache is at
// capacity, expired and then the oldest entries are dropped first.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.cleanupLocked()
	}

	c.entries[key] = entry{data: value, expiry: c.now().Add(ttl)}
	c.logger.Debug("cache set", "key", key, "ttl", ttl, "size", len(c.entries))
}

// Get returns the value stored under key. Expired entries are removed and
// reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.logger.Debug("cache miss", "key", key)
		return nil, false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		c.logger.Debug("cache expired", "key", key)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return e.data, true
}

// GetAs is Get with a type assertion. A value of another type is a miss.
func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		return false
	}
	return true
}

func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.logger.Debug("cache delete", "key", key)
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.logger.Info("cache cleared", "removed", n)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cleanupLocked must be called with c.mu held. Eviction goes by expiry, not
// by access order.
func (c *Cache) cleanupLocked() {
	now := c.now()
	expired := 0
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
			expired++
		}
	}

	if len(c.entries) < c.maxEntries {
		c.logger.Debug("cache cleanup", "expired", expired)
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := c.entries[keys[i]].expiry, c.entries[keys[j]].expiry
		if ei.Equal(ej) {
			return keys[i] < keys[j]
		}
		return ei.Before(ej)
	})

	n := c.maxEntries / 5
	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		delete(c.entries, k)
	}
	c.logger.Info("cache cleanup", "expired", expired, "oldest", n)
}

// Stats describes capacity usage.
type Stats struct {
	Size           int     `json:"size"`
	MaxSize        int     `json:"max_size"`
	Usage          float64 `json:"usage"`
	UsageFormatted string  `json:"usage_formatted"`
}

type DetailedStats struct {
	Stats
	ValidEntries   int `json:"valid_entries"`
	ExpiredEntries int `json:"expired_entries"`
	TotalEntries   int `json:"total_entries"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *Cache) statsLocked() Stats {
	usage := float64(len(c.entries)) / float64(c.maxEntries) * 100
	return Stats{
		Size:           len(c.entries),
		MaxSize:        c.maxEntries,
		Usage:          usage,
		UsageFormatted: fmt.Sprintf("%d%%", int(math.Round(usage))),
	}
}

// DetailedStats counts valid and expired entries without evicting anything.
func (c *Cache) DetailedStats() DetailedStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var valid, expired int
	for _, e := range c.entries {
		if now.After(e.expiry) {
			expired++
		} else {
			valid++
		}
	}
	return DetailedStats{
		Stats:          c.statsLocked(),
		ValidEntries:   valid,
		ExpiredEntries: expired,
		TotalEntries:   len(c.entries),
	}
}
