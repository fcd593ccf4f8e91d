// Package chain implements the per-(namespace,key) append-only version
// chain that sits directly above the distinction engine.
//
// # Overview
//
// Generalizes a flat map[string][]byte store into a namespaced store of
// ordered version chains: instead of one value per key, every key holds
// the full history of values ever written, each linked to its
// predecessor's write_id.
//
//	┌─────────────────────────────────────┐
//	│               STORE                  │
//	├─────────────────────────────────────┤
//	│  namespace "users"                   │
//	│    key "alice" -> keyChain           │
//	│      tail (atomic) -> v3             │
//	│      v3.previous == v2.write_id      │
//	│      v2.previous == v1.write_id      │
//	│    key "bob"   -> keyChain           │
//	│  namespace "sessions"                │
//	│    ...                               │
//	└─────────────────────────────────────┘
//
// # Concurrency
//
// The chain tail is published by an atomic pointer swap, so reads never
// block on writers. Appends to the same key are
// serialized by a per-key mutex held only for the O(1) link-and-swap
// step — no I/O and no other lock is held while that mutex is held.
// Writes to different keys, even within the same namespace, proceed
// without contention.
//
// # Ordering
//
// Within one key, writes are totally ordered by write_id (see
// internal/writeid). List operations over a namespace's keys are served
// from a github.com/google/btree ordered index rather than a
// sort-on-every-call scan.
package chain
