// Package distinction implements the content-addressed immutable node
// graph that every other subsystem in KoruDelta builds on.
//
// # Overview
//
// A Distinction is the atomic unit of the causal graph: an immutable,
// content-addressed node. Two distinctions with identical content always
// share one id (content addressing), and a distinction is never mutated
// after creation. There are exactly two primordial distinctions, d0
// ("void") and d1 ("identity"), created once when an Engine is
// constructed; every other distinction in the graph is reachable by
// synthesis from some ancestry rooted at those two.
//
//	┌─────────────────────────────────────┐
//	│               ENGINE                 │
//	├─────────────────────────────────────┤
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Distinction table            │  │
//	│  │   - id -> Distinction           │  │
//	│  │   - sharded map, CAS insert     │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Relationship table           │  │
//	│  │   - (left,right) -> child id    │  │
//	│  │   - one entry per unique pair   │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	└─────────────────────────────────────┘
//
// # Synthesis
//
// synthesize(a, b) is a pure function of its inputs: the same ordered
// pair of parent ids always produces the same child id, across processes
// and across runs, because the child id is derived from a collision
// resistant hash of the parents' ids (see hashBytes). If the pair has already
// been synthesised, the existing child is returned and no new
// relationship is recorded; synthesis is thread-safe with at-most-once
// insertion per unique ordered pair.
//
// # Concurrency model
//
// Reads never block on other reads, and insertion
// uses a small set of striped mutexes (one per hash-derived shard of the
// id space) rather than one global lock, so concurrent synthesis of
// unrelated pairs does not serialize. Within one shard, insertion is a
// check-then-insert performed under that shard's mutex, which is
// equivalent to a compare-and-swap for the purposes of "at most one
// inserter wins" — the loser simply receives back the winner's node.
//
// # Failure modes
//
// None are surfaced to callers for valid inputs: synthesize and leaf
// cannot fail given in-memory-representable byte slices. Allocation
// exhaustion is fatal to the host process, as it is for any Go program.
package distinction
