package korudelta

import (
	"context"
	"sync"
	"time"

	"github.com/swyrknt/korudelta/internal/cache"
	"github.com/swyrknt/korudelta/internal/causal"
	"github.com/swyrknt/korudelta/internal/chain"
	"github.com/swyrknt/korudelta/internal/snsw"
)

// Config configures a DB. The zero Config is valid: in-memory only,
// default tier sizes, default SNSW parameters, maintenance disabled.
type Config struct {
	// DataDir enables append-only persistence and an SNSW checkpoint
	// when non-empty; empty means in-memory only.
	DataDir string
	Cache   cache.Config
	SNSW    snsw.Config
	// StreamCapacity bounds each change-stream subscriber's channel.
	StreamCapacity int
	// MaintenanceInterval, if positive, runs the tiered cache's
	// background consolidation rhythm at that period. Zero disables it.
	MaintenanceInterval time.Duration
}

// DB is the embedded, versioned, causal-history key-value store with
// its integrated explainable vector index: the single public surface
// binding the distinction engine, version chain, tiered cache, change
// stream, and SNSW index behind one API.
type DB struct {
	store   *causal.Store
	index   *snsw.Index
	dataDir string
	cancel  context.CancelFunc

	membershipMu sync.Mutex
	membership   map[string]map[string]int // content hash -> namespace -> refcount
}

// Open constructs a DB. If cfg.DataDir is set, any previously persisted
// log and SNSW checkpoint are replayed/loaded before Open returns; if no
// checkpoint is present, the graph is rebuilt from the embedding values
// the log replay surfaces.
func Open(cfg Config) (*DB, error) {
	store, err := causal.Open(causal.Config{
		DataDir:        cfg.DataDir,
		Cache:          cfg.Cache,
		StreamCapacity: cfg.StreamCapacity,
	})
	if err != nil {
		return nil, err
	}

	db := &DB{
		store:      store,
		index:      snsw.New(cfg.SNSW),
		dataDir:    cfg.DataDir,
		membership: make(map[string]map[string]int),
	}

	if cfg.DataDir != "" {
		if _, err := loadCheckpoint(cfg.DataDir, db.index); err != nil {
			store.Close()
			return nil, err
		}
		// Always reconcile against the replayed values: this both
		// rebuilds the graph from scratch when no checkpoint exists and
		// repopulates the (ns,key) namespace-membership index the
		// checkpoint itself doesn't carry. Re-inserting a vector whose
		// node the checkpoint already restored is a cheap no-op (Insert
		// dedupes by content hash before doing any graph work).
		if err := db.scanAndIndexEmbeddings(); err != nil {
			store.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	db.cancel = cancel
	if cfg.MaintenanceInterval > 0 {
		go store.Cache().RunMaintenance(ctx, cfg.MaintenanceInterval)
	}

	return db, nil
}

// Close stops background maintenance, persists an SNSW checkpoint (if a
// data directory is configured), and releases persistence handles.
func (db *DB) Close() error {
	db.cancel()
	if db.dataDir != "" {
		if err := saveCheckpoint(db.dataDir, db.index); err != nil {
			return err
		}
	}
	return db.store.Close()
}

// Put canonicalises value and commits a new version for (ns, key).
func (db *DB) Put(ns, key string, value any) (Versioned, error) {
	return db.store.Put(ns, key, value, nil)
}

// PutWithMetadata is Put with caller-supplied metadata attached to the
// new version.
func (db *DB) PutWithMetadata(ns, key string, value any, metadata map[string]any) (Versioned, error) {
	return db.store.Put(ns, key, value, metadata)
}

// ApplyRemote commits a write replicated from a peer node under its
// originating write id, for a gossip layer relaying another node's
// change events. Concurrent writes to the same key converge to the one
// with the larger write id regardless of arrival order; redelivery of
// an already-applied write id is a no-op. A nil value applies a
// replicated delete.
func (db *DB) ApplyRemote(ns, key string, id WriteID, value any) (Versioned, error) {
	v, err := db.store.ApplyRemote(ns, key, id, value)
	if err != nil {
		return Versioned{}, err
	}
	return externalize(v), nil
}

// Get returns the current version of (ns, key). A deleted key's value
// is the null marker, i.e. Value == nil.
func (db *DB) Get(ns, key string) (Versioned, error) {
	v, err := db.store.Get(ns, key)
	if err != nil {
		return Versioned{}, err
	}
	return externalize(v), nil
}

// Delete tombstones (ns, key): a Put of the null marker, recorded as a
// new version rather than a removal of history.
func (db *DB) Delete(ns, key string) (Versioned, error) {
	v, err := db.store.Delete(ns, key)
	if err != nil {
		return Versioned{}, err
	}
	return externalize(v), nil
}

// History returns every version of (ns, key) in descending write_id
// order, or an empty slice for an unknown key.
func (db *DB) History(ns, key string) []Versioned {
	hist := db.store.History(ns, key)
	out := make([]Versioned, len(hist))
	for i, v := range hist {
		out[i] = externalize(v)
	}
	return out
}

// externalize swaps the internal tombstone sentinel for a literal nil,
// so callers outside internal/chain see a deleted version's value as
// null rather than as an opaque marker type.
func externalize(v Versioned) Versioned {
	if chain.IsTombstone(v.Value) {
		v.Value = nil
	}
	return v
}

// Contains reports whether (ns, key) has at least one version.
func (db *DB) Contains(ns, key string) bool {
	return db.store.Contains(ns, key)
}

// ListKeys returns every key with at least one version in ns.
func (db *DB) ListKeys(ns string) []string {
	return db.store.ListKeys(ns)
}

// ListNamespaces returns every namespace that has ever received a
// write.
func (db *DB) ListNamespaces() []string {
	return db.store.ListNamespaces()
}

// Stats aggregates storage-wide counts.
func (db *DB) Stats() Stats {
	return db.store.Stats()
}

// Subscribe registers a new change-stream subscriber, returning its
// event channel and an unsubscribe function the caller must invoke when
// done with it. A delete event's Value is the null marker, matching Get
// and History's externalised view of a tombstone.
func (db *DB) Subscribe() (<-chan ChangeEvent, func()) {
	events, unsubscribe := db.store.Subscribe()
	out := make(chan ChangeEvent, cap(events))
	go func() {
		defer close(out)
		for ev := range events {
			if chain.IsTombstone(ev.Value) {
				ev.Value = nil
			}
			out <- ev
		}
	}()
	return out, unsubscribe
}

// CacheStats exposes the tiered cache's hit/miss/promotion counters.
func (db *DB) CacheStats() cache.Stats {
	return db.store.CacheStats()
}
