// Package reconcile implements the peer-reconciliation kit: a Merkle
// tree over a set of distinction ids for efficient diffing, and a
// Bloom filter exchange for cheap "do you have this" probing before a
// full diff is worth the bandwidth.
//
// # Merkle tree
//
// Ids are sorted for a deterministic shape, padded to a power of two,
// and folded bottom-up with the Empty+Empty=0 / Empty+X=X / X+Empty=X
// collapse rule so a tree with fewer leaves than its sibling still
// compares cleanly against a larger one. Node hashes use
// crypto/sha256, the same choice and for the same reason as the
// distinction engine: the reconciliation protocol's correctness rests
// on collision resistance, so this is not a place to reach for a
// faster non-cryptographic hash.
//
// # Bloom filter
//
// Wraps github.com/holiman/bloomfilter/v2, sized from
// (expectedN, targetFPR) with the textbook
// m = -n·ln(p)/ln(2)², k = (m/n)·ln(2) formulas; the library does the
// bit array and double-hashing, and github.com/cespare/xxhash/v2
// supplies the single 64-bit digest per item, adapted to the
// hash.Hash64 interface the library's Add/Contains consume.
//
// Exchange holds the local id set alongside the local filter it was
// built from, so FindMissingRemote can answer "which of my ids does the
// remote filter claim not to have."
package reconcile
