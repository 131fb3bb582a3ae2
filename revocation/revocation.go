// Package revocation provides a bounded, time-evicting set of credentials
// that must be rejected even while structurally valid, for example after
// an explicit logout.
//
// Entries carry the expiry of the credential they revoke: once that time
// passes the credential is harmless on its own and the entry can go.
// Eviction at capacity therefore removes the entry with the nearest
// expiry — "soonest to become harmless" — rather than the least recently
// used one. Expired entries are dropped both lazily on read and by a
// periodic background sweep.
package revocation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chimerakang/authsession-go/metrics"
)

// Cache is safe for concurrent use by multiple logical callers.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]time.Time // key → expiry
	capacity int

	sweepInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures the Cache.
type Option func(*Cache)

// WithSweepInterval sets how often the background sweep runs.
// Default: 1 minute.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithLogger sets a structured logger for sweep diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a revocation cache holding at most capacity entries and
// starts the background sweeper. Close stops the sweeper.
func New(capacity int, opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]time.Time),
		capacity:      capacity,
		sweepInterval: 1 * time.Minute,
		logger:        slog.Default(),
		metrics:       metrics.New(false),
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c
}

// Add records key as revoked until expiresAt. Adding an already-expired
// entry is a no-op. When the cache is full, the entry with the nearest
// expiry is evicted first.
func (c *Cache) Add(key string, expiresAt time.Time) {
	if key == "" || !expiresAt.After(c.now()) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.capacity > 0 && len(c.entries) >= c.capacity {
		c.evictNearest()
	}
	c.entries[key] = expiresAt
	c.metrics.SetRevocationEntries(float64(len(c.entries)))
}

// Has reports whether key is currently revoked. An entry whose expiry has
// passed is removed on the spot, even if the sweep has not run yet.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := c.entries[key]
	if !ok {
		c.metrics.RecordRevocationMiss()
		return false
	}
	if !expiresAt.After(c.now()) {
		delete(c.entries, key)
		c.metrics.SetRevocationEntries(float64(len(c.entries)))
		c.metrics.RecordRevocationMiss()
		return false
	}
	c.metrics.RecordRevocationHit()
	return true
}

// Len returns the number of entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]time.Time)
	c.metrics.SetRevocationEntries(0)
}

// Close stops the background sweeper. The cache remains usable.
func (c *Cache) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.wg.Wait()
	return nil
}

// evictNearest removes the entry with the smallest expiry.
// Caller holds c.mu.
func (c *Cache) evictNearest() {
	var victim string
	var nearest time.Time
	for key, expiresAt := range c.entries {
		if victim == "" || expiresAt.Before(nearest) {
			victim = key
			nearest = expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.metrics.RecordRevocationEviction()
	}
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := c.sweep()
			if removed > 0 {
				c.logger.Debug("revocation sweep removed expired entries", "removed", removed)
			}
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired entry and returns how many were dropped.
func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, expiresAt := range c.entries {
		if !expiresAt.After(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.metrics.SetRevocationEntries(float64(len(c.entries)))
	}
	return removed
}
