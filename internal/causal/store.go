package causal

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/swyrknt/korudelta/internal/cache"
	"github.com/swyrknt/korudelta/internal/chain"
	"github.com/swyrknt/korudelta/internal/changestream"
	"github.com/swyrknt/korudelta/internal/distinction"
	"github.com/swyrknt/korudelta/internal/kerr"
	"github.com/swyrknt/korudelta/internal/writeid"
)

// numRootShards stripes the per-namespace causal-root table, the same
// "shard the lock, not just the map" idea internal/distinction uses for
// its node and relationship tables.
const numRootShards = 16

// Config configures a Store.
type Config struct {
	Cache          cache.Config
	StreamCapacity int
	// DataDir, if non-empty, enables append-only persistence: every
	// committed write is logged here before it is visible to readers.
	// An empty DataDir means in-memory only.
	DataDir string
}

// Stats is a point-in-time snapshot of storage-wide counters.
type Stats struct {
	KeyCount          int
	VersionCount      uint64
	DistinctionCount  uint64
	RelationshipCount int64
}

type rootShard struct {
	mu    sync.Mutex
	roots map[string]distinction.Distinction
}

// Store orchestrates the distinction engine, version chain, tiered
// cache, and change stream behind a five-step put pipeline.
type Store struct {
	engine *distinction.Engine
	handle distinction.Handle
	chain  *chain.Store
	cache  *cache.Cache
	stream *changestream.Stream
	wal    *persister // nil when DataDir is empty

	roots [numRootShards]*rootShard

	versionCount atomic.Uint64
}

// Open constructs a Store. If cfg.DataDir is set, any previously
// persisted log is replayed before Open returns.
func Open(cfg Config) (*Store, error) {
	engine := distinction.NewEngine()

	s := &Store{
		engine: engine,
		handle: distinction.NewHandle(engine),
		cache:  cache.New(cfg.Cache),
		stream: changestream.New(cfg.StreamCapacity),
	}
	for i := range s.roots {
		s.roots[i] = &rootShard{roots: make(map[string]distinction.Distinction)}
	}

	if cfg.DataDir != "" {
		wal, err := openPersister(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s.wal = wal

		// The node-id component of every write_id survives restarts of
		// the same data directory, so ids issued before and after a
		// reopen are attributable to the same node.
		nodeID, err := wal.loadOrCreateNodeID()
		if err != nil {
			return nil, err
		}
		s.chain = chain.NewStoreWithGenerator(writeid.NewGeneratorWithNodeID(nodeID))

		if err := s.replay(); err != nil {
			return nil, err
		}
	} else {
		s.chain = chain.NewStore()
	}

	return s, nil
}

// Close stops the change stream and releases any open persistence
// handles. A Store with no DataDir configured has no persistence
// handles to release.
func (s *Store) Close() error {
	s.stream.Close()
	if s.wal == nil {
		return nil
	}
	return s.wal.close()
}

// Put runs the five-step pipeline: canonicalise the value
// into a leaf distinction, advance the namespace's causal root,
// allocate a write_id, append (durably, if persistence is configured),
// write through the cache, and publish a change event.
func (s *Store) Put(ns, key string, value any, metadata map[string]any) (chain.Versioned, error) {
	encoded, tombstone, err := encodeValue(value)
	if err != nil {
		return chain.Versioned{}, err
	}

	// Re-decode the canonical encoding rather than storing the caller's
	// original Go value: this guarantees a key's value has the same
	// representation (map[string]any / []any / float64 / string / bool
	// / nil) whether it was just written or reconstructed by replaying
	// the persisted log.
	canonical, err := decodeValue(encoded, tombstone)
	if err != nil {
		return chain.Versioned{}, err
	}

	s.advanceRoot(ns, s.handle.Leaf(encoded))

	id, err := s.chain.Generator().Next()
	if err != nil {
		return chain.Versioned{}, kerr.New(kerr.TimeError, "write-id generation failed: %v", err)
	}

	if s.wal != nil {
		previous := s.previousWriteID(ns, key)
		if err := s.wal.append(ns, key, id, encoded, previous, tombstone); err != nil {
			// No chain mutation, no cache write, no change event has
			// happened yet, so rolling back the write is simply "don't
			// proceed".
			return chain.Versioned{}, err
		}
	}

	v, err := s.chain.PutWithID(ns, key, id, canonical, metadata)
	if err != nil {
		return chain.Versioned{}, err
	}
	s.versionCount.Add(1)

	// Almost always v itself, but a previously applied replicated write
	// with a larger id may still own the tail.
	if tail, terr := s.chain.Get(ns, key); terr == nil {
		s.cache.Put(ns, key, tail)
	}
	s.stream.Publish(changestream.Event{
		Namespace: ns,
		Key:       key,
		WriteID:   id,
		Value:     canonical,
		Kind:      kindFor(tombstone),
	})

	return v, nil
}

// ApplyRemote commits a write replicated from a peer node under its
// originating write_id, converging concurrent writes to the one with
// the larger id regardless of arrival order. A nil value is a
// replicated delete, recorded as a tombstone the same way a local
// Delete is.
func (s *Store) ApplyRemote(ns, key string, id writeid.WriteID, value any) (chain.Versioned, error) {
	if value == nil {
		value = chain.Tombstone
	}
	encoded, tombstone, err := encodeValue(value)
	if err != nil {
		return chain.Versioned{}, err
	}
	canonical, err := decodeValue(encoded, tombstone)
	if err != nil {
		return chain.Versioned{}, err
	}

	s.advanceRoot(ns, s.handle.Leaf(encoded))

	if s.wal != nil {
		previous := s.previousWriteID(ns, key)
		if err := s.wal.append(ns, key, id, encoded, previous, tombstone); err != nil {
			return chain.Versioned{}, err
		}
	}

	v, err := s.chain.ApplyRemote(ns, key, id, canonical, nil)
	if err != nil {
		return chain.Versioned{}, err
	}
	s.versionCount.Add(1)

	// The applied write may have landed mid-chain; the cache always
	// tracks the tail, whichever version that now is.
	if tail, err := s.chain.Get(ns, key); err == nil {
		s.cache.Put(ns, key, tail)
	}
	s.stream.Publish(changestream.Event{
		Namespace: ns,
		Key:       key,
		WriteID:   id,
		Value:     canonical,
		Kind:      kindFor(tombstone),
	})

	return v, nil
}

// Delete tombstones (ns, key): a Put of the delete marker, recorded as
// a new version rather than a removal of history.
func (s *Store) Delete(ns, key string) (chain.Versioned, error) {
	return s.Put(ns, key, chain.Tombstone, nil)
}

// Get probes the cache before falling through to the version chain,
// promoting a chain hit into Hot on the way out.
func (s *Store) Get(ns, key string) (chain.Versioned, error) {
	if v, ok := s.cache.Get(ns, key); ok {
		return v, nil
	}
	v, err := s.chain.Get(ns, key)
	if err != nil {
		return chain.Versioned{}, err
	}
	s.cache.Put(ns, key, v)
	return v, nil
}

// History returns the full chain for (ns, key) in descending write_id
// order, or an empty slice for an unknown key.
func (s *Store) History(ns, key string) []chain.Versioned {
	return s.chain.History(ns, key)
}

// Contains reports whether (ns, key) has at least one version.
func (s *Store) Contains(ns, key string) bool {
	return s.chain.Contains(ns, key)
}

// ListKeys returns every key with at least one version in ns.
func (s *Store) ListKeys(ns string) []string {
	return s.chain.ListKeys(ns)
}

// ListNamespaces returns every namespace that has ever received a write.
func (s *Store) ListNamespaces() []string {
	return s.chain.ListNamespaces()
}

// Subscribe registers a new change-stream subscriber.
func (s *Store) Subscribe() (<-chan changestream.Event, func()) {
	return s.stream.Subscribe()
}

// CacheStats exposes the tiered cache's hit/miss/promotion counters.
func (s *Store) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Cache exposes the underlying tiered cache, for components (such as
// the root façade's maintenance loop) that need to drive it directly.
func (s *Store) Cache() *cache.Cache {
	return s.cache
}

// Engine exposes the underlying distinction engine's handle, for
// components (such as the SNSW vector index) that need to bring
// external content into the same causal graph.
func (s *Store) Engine() distinction.Handle {
	return s.handle
}

// Stats aggregates storage-wide counts.
func (s *Store) Stats() Stats {
	keyCount := 0
	for _, ns := range s.chain.ListNamespaces() {
		keyCount += len(s.chain.ListKeys(ns))
	}
	dist, rel := s.handle.Stats()
	return Stats{
		KeyCount:          keyCount,
		VersionCount:      s.versionCount.Load(),
		DistinctionCount:  dist,
		RelationshipCount: rel,
	}
}

// NamespaceRoot returns the current causal root distinction for ns
// (d0 if the namespace has never been written to), exposed for the
// out-of-scope reconciliation/cluster layer to use as a cheap
// per-namespace digest.
func (s *Store) NamespaceRoot(ns string) distinction.Distinction {
	shard := s.roots[rootShardIndex(ns)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if root, ok := shard.roots[ns]; ok {
		return root
	}
	return s.handle.D0()
}

// advanceRoot synthesises ns's current causal root with leaf and
// stores the result as the new root: each put synthesises the prior
// root with the new leaf to advance a local causal root per namespace.
func (s *Store) advanceRoot(ns string, leaf distinction.Distinction) distinction.Distinction {
	shard := s.roots[rootShardIndex(ns)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	current, ok := shard.roots[ns]
	if !ok {
		current = s.handle.D0()
	}
	next := s.handle.Synthesize(current, leaf)
	shard.roots[ns] = next
	return next
}

func (s *Store) previousWriteID(ns, key string) *writeid.WriteID {
	tail, err := s.chain.Get(ns, key)
	if err != nil {
		return nil
	}
	wid := tail.WriteID
	return &wid
}

func (s *Store) replay() error {
	namespaces, err := s.wal.namespaces()
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		if err := s.wal.replayNamespace(ns, func(rec record) error {
			value, err := decodeValue(rec.Value, rec.Tombstone)
			if err != nil {
				return err
			}
			s.advanceRoot(ns, s.handle.Leaf(rec.Value))
			// ApplyRemote rather than a blind append: the log holds
			// replicated writes in arrival order, not write_id order,
			// and insert-in-order rebuilds the same converged chain
			// either way. The cache stays cold; it warms on first read.
			if _, err := s.chain.ApplyRemote(ns, rec.Key, rec.WriteID, value, nil); err != nil {
				return err
			}
			// Only this node's own replayed ids advance the generator:
			// a peer's clock being ahead of ours must not block local
			// writes behind a spurious regression error.
			if rec.WriteID.NodeID == s.chain.Generator().NodeID() {
				s.chain.Generator().Observe(rec.WriteID)
			}
			s.versionCount.Add(1)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func kindFor(tombstone bool) changestream.EventKind {
	if tombstone {
		return changestream.Delete
	}
	return changestream.Put
}

// encodeValue canonicalises value into bytes suitable for content
// addressing. encoding/json is used deliberately: Go's json.Marshal
// sorts map keys before encoding, giving two structurally equal values
// an identical byte representation regardless of map iteration order,
// which is exactly what content addressing needs and what a
// non-canonical encoder (gob, msgpack without canonical mode) does not
// guarantee.
func encodeValue(value any) (data []byte, tombstone bool, err error) {
	if chain.IsTombstone(value) {
		return []byte("null"), true, nil
	}
	data, err = json.Marshal(value)
	if err != nil {
		return nil, false, kerr.New(kerr.InvalidData, "value is not serialisable: %v", err)
	}
	return data, false, nil
}

func decodeValue(data []byte, tombstone bool) (any, error) {
	if tombstone {
		return chain.Tombstone, nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, kerr.New(kerr.SerializationError, "decode persisted value: %v", err)
	}
	return value, nil
}

func rootShardIndex(ns string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ns))
	return int(h.Sum32() % numRootShards)
}
