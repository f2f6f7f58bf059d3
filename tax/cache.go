package tax

import (
	"sync"
	"time"
)

// =============================================================================
// RESULT CACHE - Short-lived memo of executed calculations
// =============================================================================

// DefaultCacheTTL bounds how long a cached result may lag behind newly
// appended reference data.
const DefaultCacheTTL = 5 * time.Minute

// CachedResult is what a later identical request reuses: the snapshot the
// result was computed from and the result itself.
type CachedResult struct {
	SourceID CalculationID
	Input    CalculationInput
	Result   ExecutionResult
}

func (v CachedResult) clone() CachedResult {
	return CachedResult{SourceID: v.SourceID, Input: v.Input.Clone(), Result: v.Result.Clone()}
}

type cacheEntry struct {
	value   CachedResult
	expires time.Time
}

// ResultCache maps fingerprints to results. Values are copied in and out,
// and entries expire lazily on read with no background sweeper. Safe for
// concurrent use; racing Puts for one fingerprint are harmless because equal
// inputs give equal results.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewResultCache returns a cache with the given TTL. A non-positive TTL
// disables caching.
func NewResultCache(ttl time.Duration, now func() time.Time) *ResultCache {
	if now == nil {
		now = time.Now
	}
	return &ResultCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func (c *ResultCache) Enabled() bool { return c != nil && c.ttl > 0 }

func (c *ResultCache) Get(fingerprint string) (CachedResult, bool) {
	if !c.Enabled() {
		return CachedResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return CachedResult{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, fingerprint)
		return CachedResult{}, false
	}
	return e.value.clone(), true
}

func (c *ResultCache) Put(fingerprint string, v CachedResult) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = cacheEntry{value: v.clone(), expires: c.now().Add(c.ttl)}
}

// Purge drops every entry. Called after reference data is reloaded.
func (c *ResultCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len counts entries, expired ones included until they are next read.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
