// Package cache implements the three-tier Hot/Warm/Cold cache that sits
// in front of the version chain store.
//
// # Overview
//
// Three tiers of decreasing temperature, each fronting the next:
//
//	┌──────────┐  miss   ┌───────────┐  miss   ┌───────────┐  miss
//	│   Hot    │ ──────> │   Warm    │ ──────> │   Cold    │ ──────> chain.Store
//	│ segmented│         │  golang-  │         │  bounded  │
//	│   LRU    │ <────── │ lru/v2    │ <────── │ map, rand │
//	│ (hand-   │ promote │ (library) │ promote │  evict    │
//	│  rolled) │         │           │         │           │
//	└──────────┘         └───────────┘         └───────────┘
//
// Hot is hand-rolled as a segmented LRU (probationary + protected
// segments, after the classic SLRU design) because it needs a
// recency-plus-reuse eviction signal a generic LRU cannot express:
// an entry only earns the protected segment, and its resistance to
// eviction, after a second access. Warm is an exact fit for
// github.com/hashicorp/golang-lru/v2 — "bigger and lazier than Hot" is
// plain LRU, so the library is used unmodified. Cold is a bounded map
// with random eviction: the cheapest policy for a tier whose entire
// job is "remember slightly more than nothing, without unbounded
// growth."
//
// # Lock ordering
//
// Any operation that must touch more than one tier (none currently do
// — each tier's lock is independent) must acquire Hot before Warm
// before Cold, matching the store-wide ordering discipline so the
// cache never contributes to a cross-component deadlock.
//
// # Statistics
//
// Hit/miss/promotion counters are atomic, so Stats never contends with
// the tiers' own locks.
package cache
