package chain

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"golang.org/x/exp/slices"

	"github.com/swyrknt/korudelta/internal/kerr"
	"github.com/swyrknt/korudelta/internal/writeid"
)

// Tombstone is the sentinel value recorded by a delete: a versioned
// record whose Value is Tombstone represents deletion without removing
// history.
var Tombstone = struct{ tombstone bool }{tombstone: true}

// IsTombstone reports whether v is the delete marker.
func IsTombstone(v any) bool {
	_, ok := v.(struct{ tombstone bool })
	return ok
}

// Versioned pairs a value with the write_id that committed it and a
// pointer to its predecessor, if any.
type Versioned struct {
	WriteID   writeid.WriteID
	Value     any
	Previous  *writeid.WriteID
	CreatedAt time.Time
	Metadata  map[string]any
}

// keyChain is the append-only history for a single (namespace, key).
type keyChain struct {
	mu       sync.Mutex // serializes append-and-swap
	versions []Versioned
	tail     atomic.Pointer[Versioned] // lock-free publication of the latest version
}

// history returns a copy of the chain in descending write_id order.
func (kc *keyChain) history() []Versioned {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	out := make([]Versioned, len(kc.versions))
	for i, v := range kc.versions {
		out[len(kc.versions)-1-i] = v
	}
	return out
}

// namespaceChains holds every key's chain for one namespace, plus an
// ordered index of its keys for List operations.
type namespaceChains struct {
	mu    sync.RWMutex
	keys  map[string]*keyChain
	index *btree.BTreeG[string]
}

func newNamespaceChains() *namespaceChains {
	return &namespaceChains{
		keys:  make(map[string]*keyChain),
		index: btree.NewG[string](32, func(a, b string) bool { return a < b }),
	}
}

// getOrCreate returns the keyChain for key, creating it if absent.
func (n *namespaceChains) getOrCreate(key string) *keyChain {
	n.mu.RLock()
	kc, ok := n.keys[key]
	n.mu.RUnlock()
	if ok {
		return kc
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if kc, ok = n.keys[key]; ok {
		return kc
	}
	kc = &keyChain{}
	n.keys[key] = kc
	n.index.ReplaceOrInsert(key)
	return kc
}

func (n *namespaceChains) get(key string) (*keyChain, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	kc, ok := n.keys[key]
	return kc, ok
}

func (n *namespaceChains) listKeys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, n.index.Len())
	n.index.Ascend(func(k string) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Store is the multi-namespace version chain store.
//
// Store is safe for concurrent use: per-key appends are serialized by
// that key's own mutex; reads of the current tail never block on
// writers.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*namespaceChains
	gen        *writeid.Generator
}

// NewStore creates an empty Store with its own write-id generator.
func NewStore() *Store {
	return &Store{
		namespaces: make(map[string]*namespaceChains),
		gen:        writeid.NewGenerator(),
	}
}

// NewStoreWithGenerator creates a Store sharing an externally owned
// write-id generator, for callers (such as the causal storage façade)
// that need one generator shared across multiple internal stores.
func NewStoreWithGenerator(gen *writeid.Generator) *Store {
	return &Store{
		namespaces: make(map[string]*namespaceChains),
		gen:        gen,
	}
}

func (s *Store) namespace(ns string) *namespaceChains {
	s.mu.RLock()
	n, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if ok {
		return n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok = s.namespaces[ns]; ok {
		return n
	}
	n = newNamespaceChains()
	s.namespaces[ns] = n
	return n
}

// Put allocates the next write_id, links it to the current tail (if
// any), and appends the new version atomically.
func (s *Store) Put(ns, key string, value any, metadata map[string]any) (Versioned, error) {
	id, err := s.gen.Next()
	if err != nil {
		return Versioned{}, kerr.New(kerr.TimeError, "write-id generation failed: %v", err)
	}
	return s.PutWithID(ns, key, id, value, metadata)
}

// PutWithID appends a version using a caller-supplied write_id instead
// of allocating one from this store's generator. Used by the causal
// storage façade, which must allocate (and durably log) a write_id
// before committing the append, so the append itself can never fail
// after the id has already been promised to a caller.
//
// PutWithID shares ApplyRemote's insert-in-order path: a locally
// allocated id normally lands at the tail in O(1), but if a replicated
// write with a larger id has already been applied to this key (a peer's
// clock running ahead), the local write slots in behind it instead of
// breaking the chain's ascending write_id order.
func (s *Store) PutWithID(ns, key string, id writeid.WriteID, value any, metadata map[string]any) (Versioned, error) {
	return s.ApplyRemote(ns, key, id, value, metadata)
}

// ApplyRemote inserts a version replicated from another node, keeping
// the chain ordered by ascending write_id. Concurrent writes to the
// same key converge regardless of arrival order: the tail is always
// the version with the maximal write_id. Applying a write_id the chain
// already holds is a no-op returning the existing version, so a
// gossip layer may deliver the same write more than once.
func (s *Store) ApplyRemote(ns, key string, id writeid.WriteID, value any, metadata map[string]any) (Versioned, error) {
	kc := s.namespace(ns).getOrCreate(key)

	kc.mu.Lock()
	defer kc.mu.Unlock()

	// Walk back from the tail to the insertion point; a replicated
	// write is usually newer than everything already present.
	pos := len(kc.versions)
	for pos > 0 {
		at := kc.versions[pos-1].WriteID
		if at == id {
			return kc.versions[pos-1], nil
		}
		if at.Less(id) {
			break
		}
		pos--
	}

	v := Versioned{
		WriteID:   id,
		Value:     value,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}
	if pos > 0 {
		wid := kc.versions[pos-1].WriteID
		v.Previous = &wid
	}

	kc.versions = append(kc.versions, Versioned{})
	copy(kc.versions[pos+1:], kc.versions[pos:])
	kc.versions[pos] = v

	// Relink the successor, if the write landed mid-chain.
	if pos+1 < len(kc.versions) {
		wid := id
		kc.versions[pos+1].Previous = &wid
	}

	tail := kc.versions[len(kc.versions)-1]
	kc.tail.Store(&tail)
	return v, nil
}

// Get returns the current tail of (ns, key)'s chain.
func (s *Store) Get(ns, key string) (Versioned, error) {
	n := s.namespace(ns)
	kc, ok := n.get(key)
	if !ok {
		return Versioned{}, kerr.New(kerr.KeyNotFound, "namespace %q key %q", ns, key)
	}
	tail := kc.tail.Load()
	if tail == nil {
		return Versioned{}, kerr.New(kerr.KeyNotFound, "namespace %q key %q", ns, key)
	}
	return *tail, nil
}

// History returns the full chain for (ns, key) in descending write_id
// order. Returns an empty slice (never an error) for an unknown key.
func (s *Store) History(ns, key string) []Versioned {
	n := s.namespace(ns)
	kc, ok := n.get(key)
	if !ok {
		return []Versioned{}
	}
	return kc.history()
}

// Contains reports whether (ns, key) has at least one version.
func (s *Store) Contains(ns, key string) bool {
	n := s.namespace(ns)
	kc, ok := n.get(key)
	if !ok {
		return false
	}
	return kc.tail.Load() != nil
}

// ListKeys returns every key with at least one version in ns, in
// ascending lexicographic order.
func (s *Store) ListKeys(ns string) []string {
	s.mu.RLock()
	n, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if !ok {
		return []string{}
	}
	return n.listKeys()
}

// ListNamespaces returns every namespace that has ever received a
// write, in ascending lexicographic order.
func (s *Store) ListNamespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

// Generator returns the write-id generator backing this store, so a
// caller composing multiple chain.Store instances (one per persisted
// namespace shard, say) can share a single monotonic source.
func (s *Store) Generator() *writeid.Generator {
	return s.gen
}
