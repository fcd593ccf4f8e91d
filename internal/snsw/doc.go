// Package snsw implements the Synthesis-Navigable Small World index: a
// hierarchical small-world graph for approximate nearest-neighbour
// search over embedding vectors, with explainable results and
// automatic deduplication by content hash.
//
// # Overview
//
//	insert:  hash(v) dedup -> assign layer (exp decay) -> greedy descend
//	         -> per-layer beam search + diversity pruning -> link
//
//	search:  Hot cache -> Warm-Fast (greedy, ef_search_fast)
//	           -> confidence >= fast_threshold? return
//	           -> Warm-Thorough (ef_search_thorough)
//	             -> confidence >= thorough_threshold? return
//	             -> Cold exact scan
//
// # Concurrency
//
// Each Node guards its own neighbour lists with a sync.RWMutex.
// Insertion's edge-linking step acquires the locks of every node it
// touches in ascending node-id order, so no two concurrent insertions
// can deadlock on a shared pair of neighbours. Per-layer candidate
// search during construction has no such ordering constraint — each
// layer's search is read-only and independent of the others given a
// shared starting point — so it runs concurrently via
// golang.org/x/sync/errgroup; only the subsequent edge mutation is
// serialized under the lock-ordering discipline.
//
// # Content addressing
//
// A vector's identity is hex(xxhash.Sum64(quantize(data) ++ model)):
// github.com/cespare/xxhash/v2 gives a fast, well-distributed,
// non-cryptographic hash appropriate here, unlike the SHA-256 used for
// the distinction graph's content addressing — collision resistance
// against adversarial input is not a requirement for vector
// deduplication, only even distribution across near-duplicate floats.
package snsw
