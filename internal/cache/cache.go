package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/swyrknt/korudelta/internal/chain"
)

// DefaultMaintenanceInterval is how often RunMaintenance sweeps Hot's
// probationary segment when the caller doesn't specify an interval.
const DefaultMaintenanceInterval = 5 * time.Minute

// FullKey identifies a value independent of which tier holds it.
type FullKey struct {
	Namespace string
	Key       string
}

// Default tier sizes: Warm >= 4*Hot, Cold >= 4*Warm.
const (
	DefaultHotSize  = 1024
	DefaultWarmSize = 4096
	DefaultColdSize = 16384
)

// Config sizes the three tiers. Zero fields fall back to the defaults.
type Config struct {
	HotSize  int
	WarmSize int
	ColdSize int
}

func (c Config) withDefaults() Config {
	if c.HotSize <= 0 {
		c.HotSize = DefaultHotSize
	}
	if c.WarmSize <= 0 {
		c.WarmSize = DefaultWarmSize
	}
	if c.ColdSize <= 0 {
		c.ColdSize = DefaultColdSize
	}
	return c
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	HotHits    uint64
	WarmHits   uint64
	ColdHits   uint64
	Misses     uint64
	Promotions uint64
	Evictions  uint64
}

type counters struct {
	hotHits    atomic.Uint64
	warmHits   atomic.Uint64
	coldHits   atomic.Uint64
	misses     atomic.Uint64
	promotions atomic.Uint64
	evictions  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		HotHits:    c.hotHits.Load(),
		WarmHits:   c.warmHits.Load(),
		ColdHits:   c.coldHits.Load(),
		Misses:     c.misses.Load(),
		Promotions: c.promotions.Load(),
		Evictions:  c.evictions.Load(),
	}
}

// Cache is the Hot/Warm/Cold tiered cache.
type Cache struct {
	hot   *hotTier
	warm  *lru.Cache[FullKey, chain.Versioned]
	cold  *coldTier
	stats counters
}

// New constructs a Cache with the given tier sizes.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()

	c := &Cache{
		hot:  newHotTier(cfg.HotSize),
		cold: newColdTier(cfg.ColdSize),
	}

	// Entries golang-lru/v2 evicts from Warm cascade into Cold rather
	// than being dropped, following the Hot->Warm->Cold->drop order.
	warm, err := lru.NewWithEvict[FullKey, chain.Versioned](cfg.WarmSize, func(fk FullKey, v chain.Versioned) {
		c.cold.put(fk, v)
		c.stats.evictions.Add(1)
	})
	if err != nil {
		// Only returns an error for a non-positive size, which
		// withDefaults has already ruled out.
		panic(err)
	}
	c.warm = warm
	return c
}

// Get probes Hot, then Warm, then Cold, promoting to Hot on any
// non-Hot hit. The caller is responsible for falling through to the
// version chain store on a full miss and calling Put to populate the
// cache with the result.
func (c *Cache) Get(ns, key string) (chain.Versioned, bool) {
	fk := FullKey{Namespace: ns, Key: key}

	if v, ok := c.hot.get(fk); ok {
		c.stats.hotHits.Add(1)
		return v, true
	}

	if v, ok := c.warm.Get(fk); ok {
		c.stats.warmHits.Add(1)
		c.promoteToHot(fk, v)
		return v, true
	}

	if v, ok := c.cold.get(fk); ok {
		c.stats.coldHits.Add(1)
		c.promoteToHot(fk, v)
		return v, true
	}

	c.stats.misses.Add(1)
	return chain.Versioned{}, false
}

// Put writes through to Hot only. An entry pushed out of Hot by a new
// insertion cascades into Warm; entries evicted from Warm cascade into
// Cold; entries evicted from Cold are dropped. A probationary entry
// displaced when a repeat access promotes another entry into a full
// protected segment is dropped rather than cascaded into Warm.
func (c *Cache) Put(ns, key string, v chain.Versioned) {
	fk := FullKey{Namespace: ns, Key: key}
	if evicted, ok := c.hot.put(fk, v); ok {
		c.cascadeFromHot(evicted.key, evicted.value)
	}
}

// Invalidate removes (ns, key) from every tier, used when a key is
// deleted or overwritten out from under the cache.
func (c *Cache) Invalidate(ns, key string) {
	fk := FullKey{Namespace: ns, Key: key}
	c.hot.remove(fk)
	c.warm.Remove(fk)
	c.cold.remove(fk)
}

// Stats returns a snapshot of the cache's hit/miss/promotion counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// RunMaintenance runs a periodic consolidation rhythm that proactively
// demotes Hot's idle probationary entries into Warm, ahead of reactive
// size-pressure eviction, running on its own interval independent of
// write pressure. A caller that never invokes RunMaintenance still gets
// exactly the reactive eviction Put and Get already perform.
//
// RunMaintenance blocks until ctx is cancelled; run it in its own
// goroutine.
func (c *Cache) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.consolidate()
		}
	}
}

// consolidate demotes Hot's idle probationary entries into Warm,
// relieving size pressure before Hot actually overflows.
func (c *Cache) consolidate() {
	for _, evicted := range c.hot.demoteIdleProbation() {
		c.cascadeFromHot(evicted.key, evicted.value)
		c.stats.evictions.Add(1)
	}
}

func (c *Cache) promoteToHot(fk FullKey, v chain.Versioned) {
	if evicted, ok := c.hot.put(fk, v); ok {
		c.cascadeFromHot(evicted.key, evicted.value)
	}
	c.stats.promotions.Add(1)
}

// cascadeFromHot pushes an entry evicted from Hot into Warm. If that
// insertion itself evicts a Warm entry, the OnEvict callback installed
// in New pushes it further down into Cold.
func (c *Cache) cascadeFromHot(fk FullKey, v chain.Versioned) {
	c.warm.Add(fk, v)
}

// hotEntry is a Hot-tier record plus its position in the recency list
// of whichever segment currently owns it.
type hotEntry struct {
	key       FullKey
	value     chain.Versioned
	hits      int
	protected bool
	listElem  *list.Element
}

type evictedEntry struct {
	key   FullKey
	value chain.Versioned
}

// hotTier is a hand-rolled segmented LRU: a protected segment (four
// fifths of the capacity) for entries that have been hit more than
// once, and a probationary segment (the remaining capacity) for
// everything else. New entries enter probationary; a second hit on a
// probationary entry promotes it to protected, demoting protected's own
// LRU victim back down if protected is full.
type hotTier struct {
	mu sync.Mutex

	capacity             int
	protectedCapacity    int
	probationaryCapacity int

	entries map[FullKey]*hotEntry

	protected *list.List // MRU at Front
	probation *list.List
}

func newHotTier(capacity int) *hotTier {
	if capacity < 2 {
		capacity = 2
	}
	protectedCap := capacity * 4 / 5
	if protectedCap < 1 {
		protectedCap = 1
	}
	return &hotTier{
		capacity:             capacity,
		protectedCapacity:    protectedCap,
		probationaryCapacity: capacity - protectedCap,
		entries:              make(map[FullKey]*hotEntry),
		protected:            list.New(),
		probation:            list.New(),
	}
}

func (h *hotTier) get(fk FullKey) (chain.Versioned, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[fk]
	if !ok {
		return chain.Versioned{}, false
	}
	e.hits++
	h.touch(e)
	return e.value, true
}

// touch moves e to the MRU end of its segment, promoting it from
// probationary to protected on its second-or-later hit.
func (h *hotTier) touch(e *hotEntry) {
	if e.protected {
		h.protected.MoveToFront(e.listElem)
		return
	}

	if e.hits < 2 {
		h.probation.MoveToFront(e.listElem)
		return
	}

	h.probation.Remove(e.listElem)
	e.protected = true

	if h.protected.Len() >= h.protectedCapacity {
		h.demoteOldest()
	}
	e.listElem = h.protected.PushFront(e)
}

// demoteOldest moves protected's LRU entry down into probationary,
// evicting probationary's own LRU entry if that segment is now over
// capacity. The entry evicted here is dropped from the cache; it is not
// cascaded into Warm.
func (h *hotTier) demoteOldest() {
	back := h.protected.Back()
	if back == nil {
		return
	}
	victim := back.Value.(*hotEntry)
	h.protected.Remove(back)
	victim.protected = false
	victim.listElem = h.probation.PushFront(victim)

	if h.probation.Len() > h.probationaryCapacity {
		h.evictProbationOldest()
	}
}

func (h *hotTier) evictProbationOldest() *hotEntry {
	back := h.probation.Back()
	if back == nil {
		return nil
	}
	victim := back.Value.(*hotEntry)
	h.probation.Remove(back)
	delete(h.entries, victim.key)
	return victim
}

// put inserts or updates fk, returning the entry cascaded out of the
// tier entirely (if any) so the caller can push it down to Warm.
func (h *hotTier) put(fk FullKey, v chain.Versioned) (evictedEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[fk]; ok {
		e.value = v
		e.hits++
		h.touch(e)
		return evictedEntry{}, false
	}

	e := &hotEntry{key: fk, value: v}
	h.entries[fk] = e
	e.listElem = h.probation.PushFront(e)

	if h.probation.Len() > h.probationaryCapacity {
		if victim := h.evictProbationOldest(); victim != nil {
			return evictedEntry{key: victim.key, value: victim.value}, true
		}
	}
	return evictedEntry{}, false
}

// demoteIdleProbation evicts every probationary entry past the most
// recently used half of the segment, returning them for the caller to
// cascade into Warm. Protected entries (hit more than once) are left
// alone: the proactive sweep only targets the half of probationary
// that hasn't earned a second look recently.
func (h *hotTier) demoteIdleProbation() []evictedEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	keep := h.probationaryCapacity / 2
	var out []evictedEntry
	for h.probation.Len() > keep {
		back := h.probation.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*hotEntry)
		h.probation.Remove(back)
		delete(h.entries, victim.key)
		out = append(out, evictedEntry{key: victim.key, value: victim.value})
	}
	return out
}

func (h *hotTier) remove(fk FullKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[fk]
	if !ok {
		return
	}
	if e.protected {
		h.protected.Remove(e.listElem)
	} else {
		h.probation.Remove(e.listElem)
	}
	delete(h.entries, fk)
}

// coldTier is a bounded map with random eviction: the tier's job is
// only to remember slightly more than nothing.
type coldTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[FullKey]chain.Versioned
}

func newColdTier(capacity int) *coldTier {
	if capacity < 1 {
		capacity = 1
	}
	return &coldTier{
		capacity: capacity,
		entries:  make(map[FullKey]chain.Versioned),
	}
}

func (c *coldTier) get(fk FullKey) (chain.Versioned, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[fk]
	return v, ok
}

func (c *coldTier) put(fk FullKey, v chain.Versioned) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fk]; !exists && len(c.entries) >= c.capacity {
		c.evictRandom()
	}
	c.entries[fk] = v
}

func (c *coldTier) remove(fk FullKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fk)
}

// evictRandom drops one arbitrary entry. Go map iteration order is
// already randomized per-process, so the first key visited serves as
// the random victim without a separate RNG draw over the key set.
func (c *coldTier) evictRandom() {
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}
