// Package causal implements the orchestration layer binding the
// distinction engine, the version chain store, the tiered cache, and the
// change stream behind one put/get/history/delete API.
//
// # Overview
//
// The same "own every subsystem, expose one narrow surface" shape a
// cluster coordinator uses for its HTTP handlers binds in-process
// subsystems behind a Go API instead:
//
//	┌─────────────────────────────────────────────┐
//	│                   Store                      │
//	│                                               │
//	│   put(ns,key,v):                              │
//	│     1. d_value := engine.Leaf(encode(v))      │
//	│     2. root' := engine.Synthesize(root, d_value)│
//	│     3. write_id := gen.Next()                 │
//	│     4. chain.Put(...) -> Versioned            │
//	│     5. cache.Put(...); stream.Publish(...)     │
//	│                                               │
//	│   get/history/delete mirror chain semantics,   │
//	│   probing cache before falling through.        │
//	└─────────────────────────────────────────────┘
//
// Every namespace has its own causal root distinction, advanced by
// synthesising the prior root with each newly written leaf. This root is
// exposed for a reconciliation/cluster layer to use as a cheap
// per-namespace digest.
//
// # Persistence
//
// When a data directory is configured, every committed write is also
// appended to a per-namespace on-disk log (gob-encoded records of
// write_id, key, value, previous write_id) before the change event is
// published. Startup replays every namespace's log in append order,
// inserting each record at its write_id position, to rebuild the
// in-memory chain. A storage error on append rolls the whole
// write back: no chain mutation, no cache write, no change event.
package causal
