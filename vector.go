package korudelta

import (
	"errors"

	"github.com/swyrknt/korudelta/internal/chain"
	"github.com/swyrknt/korudelta/internal/snsw"
)

// Vector is an embedding with the model that produced it, as stored
// under a (namespace, key) by Embed.
type Vector = snsw.Vector

// Result is one ranked EmbedSearch match, explaining why it matched
// (SynthesisPath, FactorScores) as well as how confident the search is
// in the rank (Tier, Confidence).
type Result = snsw.Result

// Tier identifies which stage of the adaptive search state machine
// produced a Result.
type Tier = snsw.Tier

const (
	TierHot          = snsw.TierHot
	TierWarmFast     = snsw.TierWarmFast
	TierWarmThorough = snsw.TierWarmThorough
	TierCold         = snsw.TierCold
)

// EmbedSearchOptions configures EmbedSearch. Zero value: top 10 results,
// no threshold, no model filter, adaptive tier selection.
type EmbedSearchOptions struct {
	TopK int
	// Threshold, if set, drops any result whose cosine similarity to
	// the query is below it. Scores range over [-1, 1], so a zero
	// Threshold means "no worse than orthogonal".
	Threshold *float64
	// ModelFilter, if non-empty, restricts results to vectors embedded
	// with that model.
	ModelFilter string
	// Tier, if set, forces the search to run at exactly that tier
	// instead of following the adaptive Hot -> Warm-Fast ->
	// Warm-Thorough -> Cold state machine.
	Tier *Tier
}

// Embed stores vector data under (ns, key) and inserts it into the SNSW
// index keyed by content hash. Versioning of embeddings is the same as
// for any other value: repeated Embed calls on the same key produce
// distinct versions, while the underlying SNSW node is shared whenever
// the (data, model) pair repeats.
func (db *DB) Embed(ns, key string, data []float32, model string, metadata map[string]any) (Versioned, error) {
	node, _, err := db.index.Insert(snsw.Vector{Data: data, Model: model})
	if err != nil {
		return Versioned{}, err
	}

	v, err := db.store.Put(ns, key, vectorToValue(snsw.Vector{Data: data, Model: model, ContentHash: node.ID}), metadata)
	if err != nil {
		return Versioned{}, err
	}
	db.incrementMembership(node.ID, ns)
	return v, nil
}

// GetEmbed returns the vector currently stored under (ns, key), or nil
// if the key has no version, has been deleted, or does not hold a
// vector.
func (db *DB) GetEmbed(ns, key string) (*Vector, error) {
	v, err := db.store.Get(ns, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if chain.IsTombstone(v.Value) {
		return nil, nil
	}
	vec, ok := valueToVector(v.Value)
	if !ok {
		return nil, nil
	}
	return &vec, nil
}

// DeleteEmbed removes the (ns, key) -> node mapping by tombstoning the
// key; the SNSW node itself persists as long as any other key still
// maps to it, since the graph never deletes nodes.
func (db *DB) DeleteEmbed(ns, key string) (Versioned, error) {
	existing, err := db.store.Get(ns, key)
	if err == nil && !chain.IsTombstone(existing.Value) {
		if vec, ok := valueToVector(existing.Value); ok {
			db.decrementMembership(vec.ContentHash, ns)
		}
	}
	return db.store.Delete(ns, key)
}

// EmbedSearch runs a top-k explainable nearest-neighbour search over
// every embedded vector. A nil ns searches across every namespace; a
// non-nil ns restricts results to vectors with at least one (ns, key)
// mapping in that namespace.
func (db *DB) EmbedSearch(ns *string, query []float32, opts EmbedSearchOptions) ([]Result, error) {
	k := opts.TopK
	if k <= 0 {
		k = 10
	}

	var (
		results []Result
		err     error
	)
	if opts.Tier != nil {
		results, err = db.index.SearchTier(snsw.Vector{Data: query}, k, *opts.Tier)
	} else {
		results, err = db.index.Search(snsw.Vector{Data: query}, k)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		if ns != nil && !db.memberOfNamespace(r.Node.ID, *ns) {
			continue
		}
		if opts.ModelFilter != "" && r.Node.Vector.Model != opts.ModelFilter {
			continue
		}
		if opts.Threshold != nil && r.Score < *opts.Threshold {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (db *DB) incrementMembership(contentHash, ns string) {
	db.membershipMu.Lock()
	defer db.membershipMu.Unlock()
	nsCounts, ok := db.membership[contentHash]
	if !ok {
		nsCounts = make(map[string]int)
		db.membership[contentHash] = nsCounts
	}
	nsCounts[ns]++
}

func (db *DB) decrementMembership(contentHash, ns string) {
	db.membershipMu.Lock()
	defer db.membershipMu.Unlock()
	nsCounts, ok := db.membership[contentHash]
	if !ok {
		return
	}
	nsCounts[ns]--
	if nsCounts[ns] <= 0 {
		delete(nsCounts, ns)
	}
	if len(nsCounts) == 0 {
		delete(db.membership, contentHash)
	}
}

func (db *DB) memberOfNamespace(contentHash, ns string) bool {
	db.membershipMu.Lock()
	defer db.membershipMu.Unlock()
	nsCounts, ok := db.membership[contentHash]
	if !ok {
		return false
	}
	return nsCounts[ns] > 0
}

// scanAndIndexEmbeddings walks every namespace's current values,
// re-inserting anything shaped like a vector into the SNSW index and
// recording its namespace membership. Called once at Open when
// persistence is configured, after the causal store has replayed its
// log.
func (db *DB) scanAndIndexEmbeddings() error {
	for _, ns := range db.store.ListNamespaces() {
		for _, key := range db.store.ListKeys(ns) {
			v, err := db.store.Get(ns, key)
			if err != nil || chain.IsTombstone(v.Value) {
				continue
			}
			vec, ok := valueToVector(v.Value)
			if !ok {
				continue
			}
			node, _, err := db.index.Insert(vec)
			if err != nil {
				// Persisted vector no longer validates (e.g. non-finite
				// components written by an old version of the encoder);
				// skip it rather than fail startup over one bad record.
				continue
			}
			db.incrementMembership(node.ID, ns)
		}
	}
	return nil
}

// vectorToValue renders a vector as the structured-data shape Put
// canonicalises, so a replayed value round-trips back into the same
// Vector via valueToVector.
func vectorToValue(v snsw.Vector) map[string]any {
	data := make([]any, len(v.Data))
	for i, f := range v.Data {
		data[i] = float64(f)
	}
	return map[string]any{
		"data":         data,
		"model":        v.Model,
		"content_hash": v.ContentHash,
	}
}

// valueToVector recognises the shape vectorToValue produces, returning
// false for any value (including ordinary application data that merely
// happens to be a map) that isn't one.
func valueToVector(value any) (snsw.Vector, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return snsw.Vector{}, false
	}
	rawData, ok := m["data"]
	if !ok {
		return snsw.Vector{}, false
	}
	arr, ok := rawData.([]any)
	if !ok || len(arr) == 0 {
		return snsw.Vector{}, false
	}
	model, _ := m["model"].(string)
	contentHash, _ := m["content_hash"].(string)

	data := make([]float32, len(arr))
	for i, el := range arr {
		f, ok := el.(float64)
		if !ok {
			return snsw.Vector{}, false
		}
		data[i] = float32(f)
	}
	return snsw.Vector{Data: data, Model: model, ContentHash: contentHash}, true
}
