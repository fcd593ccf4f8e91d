package distinction

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/swyrknt/korudelta/internal/kerr"
)

// numShards controls the striping of both the node table and the
// relationship table. A power of two keeps the modulo a cheap mask.
const numShards = 32

// Distinction is an immutable, content-addressed node in the causal
// graph. Equal content always yields an equal ID (see Engine.Leaf and
// Engine.Synthesize); a Distinction is never mutated after creation.
type Distinction struct {
	// ID is a hex-encoded SHA-256 digest of the node's constituent
	// content: the serialised value for a leaf, or the ordered pair of
	// parent ids for a synthesised node.
	ID string
	// CreatedAt is a monotonic logical counter assigned by the owning
	// Engine at insertion time, used only for observability and relative
	// ordering within one process — it is not part of content addressing.
	CreatedAt uint64
}

type nodeShard struct {
	mu    sync.RWMutex
	nodes map[string]Distinction
}

type relShard struct {
	mu   sync.Mutex
	rels map[string]string // "leftID\x00rightID" -> childID
}

// Engine is the content-addressed distinction graph: a set of immutable
// nodes plus the directed edges (parent_left, parent_right) -> child
// recorded by synthesis.
//
// Engine is safe for concurrent use from any goroutine. See doc.go for
// the sharding and locking discipline.
type Engine struct {
	nodeShards [numShards]*nodeShard
	relShards  [numShards]*relShard

	logicalClock      atomic.Uint64
	distinctionCount  atomic.Uint64
	relationshipCount atomic.Int64

	d0 Distinction
	d1 Distinction
}

// NewEngine constructs an Engine with its two primordial distinctions,
// d0 ("void") and d1 ("identity"), already created.
func NewEngine() *Engine {
	e := &Engine{}
	for i := range e.nodeShards {
		e.nodeShards[i] = &nodeShard{nodes: make(map[string]Distinction)}
	}
	for i := range e.relShards {
		e.relShards[i] = &relShard{rels: make(map[string]string)}
	}

	e.d0 = e.Leaf([]byte("\x00koru:void"))
	e.d1 = e.Leaf([]byte("\x01koru:identity"))
	return e
}

// D0 returns the primordial "void" distinction.
func (e *Engine) D0() Distinction { return e.d0 }

// D1 returns the primordial "identity" distinction.
func (e *Engine) D1() Distinction { return e.d1 }

// Leaf brings external content into the field, returning the distinction
// whose id is a hash of bytes. Repeated calls with equal content return
// the identical distinction (content addressing).
func (e *Engine) Leaf(data []byte) Distinction {
	id := hashBytes(data)
	shard := e.nodeShards[shardIndex(id)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if existing, ok := shard.nodes[id]; ok {
		return existing
	}

	d := Distinction{ID: id, CreatedAt: e.logicalClock.Add(1)}
	shard.nodes[id] = d
	e.distinctionCount.Add(1)
	return d
}

// Synthesize combines two distinctions into a third: c = a ⊕ b. The
// child id is H(a.ID ∥ b.ID), order-sensitive, so Synthesize(a, b) and
// Synthesize(b, a) generally produce different children. If this exact
// ordered pair has already been synthesised, the existing child is
// returned and no new relationship is recorded.
//
// Synthesize is a pure function of its inputs and is safe for concurrent
// calls: at most one new distinction and relationship is ever created
// per unique ordered pair.
func (e *Engine) Synthesize(a, b Distinction) Distinction {
	pairKey := a.ID + "\x00" + b.ID
	shard := e.relShards[shardIndex(pairKey)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if childID, ok := shard.rels[pairKey]; ok {
		child := e.lookupNode(childID)
		if child.ID == "" {
			// A recorded relationship always has its child in the node
			// table; reaching here means that invariant broke.
			kerr.DebugFatal(kerr.New(kerr.EngineError, "relationship for pair references missing child %s", childID))
			child = e.insertNode(childID)
		}
		return child
	}

	childID := hashBytes([]byte(pairKey))
	child := e.insertNode(childID)

	shard.rels[pairKey] = childID
	e.relationshipCount.Add(1)
	return child
}

// insertNode inserts a distinction with the given id if absent, returning
// whichever distinction now occupies that id. Used by Synthesize, which
// has already committed to a specific id and only needs the CreatedAt
// bookkeeping done exactly once.
func (e *Engine) insertNode(id string) Distinction {
	shard := e.nodeShards[shardIndex(id)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if existing, ok := shard.nodes[id]; ok {
		return existing
	}

	d := Distinction{ID: id, CreatedAt: e.logicalClock.Add(1)}
	shard.nodes[id] = d
	e.distinctionCount.Add(1)
	return d
}

// lookupNode returns the distinction for id, which must already exist
// (the caller only reaches here via an already-recorded relationship).
func (e *Engine) lookupNode(id string) Distinction {
	shard := e.nodeShards[shardIndex(id)]
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return shard.nodes[id]
}

// DistinctionCount returns the total number of distinct distinctions
// created by this engine, for observability.
func (e *Engine) DistinctionCount() uint64 {
	return e.distinctionCount.Load()
}

// RelationshipCount returns the total number of unique synthesis edges
// recorded by this engine, for observability.
func (e *Engine) RelationshipCount() int64 {
	return e.relationshipCount.Load()
}

// hashBytes computes the hex-encoded SHA-256 digest of data. SHA-256 is
// used deliberately here rather than a faster non-cryptographic hash
// from the retrieval pack: content addressing is a correctness property
// (two different contents must not collide into the same id), so the
// standard library's audited implementation is the right tool, not an
// optimization target. See DESIGN.md.
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// shardIndex maps a key to one of numShards stripes using FNV-1a, the
// same hash a sharded key-value store typically uses for ownership
// routing.
func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}
