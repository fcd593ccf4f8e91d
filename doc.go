// Package korudelta is an embedded, versioned, causal-history
// key-value store with an integrated explainable vector index.
//
// # Overview
//
// A DB binds four subsystems behind one API:
//
//	┌────────────────────────────────────────────────┐
//	│                        DB                        │
//	│                                                  │
//	│  Put/Get/Delete/History  -> internal/causal.Store │
//	│  Embed/GetEmbed/DeleteEmbed/EmbedSearch           │
//	│                          -> internal/snsw.Index   │
//	│                                                  │
//	│  causal.Store itself binds the content-addressed │
//	│  distinction engine, the per-key version chain,  │
//	│  the tiered Hot/Warm/Cold cache, and the change  │
//	│  stream.                                         │
//	└────────────────────────────────────────────────┘
//
// Every value, whether written through Put or indirectly through Embed,
// lives in the same version chain: an Embed call stores its vector's
// (data, model, content_hash) triple as an ordinary structured value,
// so history, delete, and the change stream all apply to embeddings
// without special cases. The SNSW graph is keyed separately by content
// hash so that two (ns,key) writes embedding the same vector — the same
// input re-embedded, or two keys that happen to share a value — link to
// one graph node instead of two, matching the index's own
// content-addressed deduplication.
//
// # Persistence
//
// With Config.DataDir set, every Put is durably appended to a
// per-namespace on-disk log before it becomes visible, and Close writes
// an SNSW checkpoint capturing the graph's nodes and edges. Open replays
// the log (rebuilding every version chain) and then loads the
// checkpoint if present; whether or not one was found, every namespace's
// current values are scanned once more so any value shaped like an
// embedding is (re)inserted into the graph — a cheap no-op when the
// checkpoint already restored it, and the only way the graph gets
// rebuilt when it did not.
package korudelta
