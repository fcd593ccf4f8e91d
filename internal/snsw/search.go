package snsw

import (
	"math"
	"sort"
)

// Tier identifies which stage of the search state machine produced a
// Result.
type Tier int

const (
	TierHot Tier = iota
	TierWarmFast
	TierWarmThorough
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarmFast:
		return "warm-fast"
	case TierWarmThorough:
		return "warm-thorough"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// FactorScores breaks a result's overall score down into the
// components used for explanation only; they are implementation
// defined but stable for a given input.
type FactorScores struct {
	GeometricProximity float64
	Semantic           float64
	CausalDepth        float64
	Composite          float64
}

// Result is one ranked match, carrying enough to explain why it
// matched as well as how confident the search is in the rank.
type Result struct {
	Node *Node
	// Score is the cosine similarity between the query and this
	// node's vector, in [-1, 1].
	Score         float64
	SynthesisPath []string
	FactorScores  FactorScores
	Tier          Tier
	Confidence    float64
}

type cacheKey struct {
	contentHash string
	k           int
}

type cacheEntry struct {
	results    []Result
	generation uint64
}

const verificationSampleRate = 0.2
const thresholdStep = 0.01

// Search runs the Hot -> Warm-Fast -> Warm-Thorough -> Cold state
// machine and returns up to k results, ranked by descending score.
func (idx *Index) Search(q Vector, k int) ([]Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}

	idx.dimMu.Lock()
	dim := idx.dimension
	idx.dimMu.Unlock()
	q = q.withContentHash()
	if dim != 0 && len(q.Data) != dim {
		return []Result{}, nil
	}

	if cached, ok := idx.cacheLookup(q.ContentHash, k); ok {
		out := make([]Result, len(cached))
		copy(out, cached)
		for i := range out {
			out[i].Tier = TierHot
		}
		return out, nil
	}

	idx.mu.RLock()
	entryID := idx.entryPoint
	topLayer := idx.topLayer
	empty := len(idx.nodes) == 0
	idx.mu.RUnlock()
	if empty {
		return []Result{}, nil
	}
	entry := idx.lookup(entryID)

	fastCandidates := idx.tieredSearch(q, entry, topLayer, idx.efSearchFast)
	fastResults := idx.toResults(q, fastCandidates, k, TierWarmFast)

	fastConfidence, verified := idx.estimateConfidence(q, fastResults, entry, topLayer, idx.efSearchThorough)
	applyConfidence(fastResults, fastConfidence)
	if verified {
		idx.updateThreshold(&idx.fastThreshold, fastConfidence >= idx.targetRecall)
	}

	if fastConfidence >= idx.getThreshold(&idx.fastThreshold) {
		idx.cacheStore(q.ContentHash, k, fastResults)
		return fastResults, nil
	}

	thoroughCandidates := idx.tieredSearch(q, entry, topLayer, idx.efSearchThorough)
	thoroughResults := idx.toResults(q, thoroughCandidates, k, TierWarmThorough)

	thoroughConfidence, tVerified := idx.estimateColdConfidence(q, thoroughResults, k)
	applyConfidence(thoroughResults, thoroughConfidence)
	if tVerified {
		idx.updateThreshold(&idx.thoroughThreshold, thoroughConfidence >= idx.targetRecall)
	}

	if thoroughConfidence >= idx.getThreshold(&idx.thoroughThreshold) {
		idx.cacheStore(q.ContentHash, k, thoroughResults)
		return thoroughResults, nil
	}

	coldResults := idx.coldScan(q, k)
	for i := range coldResults {
		coldResults[i].Confidence = 1.0
	}
	idx.cacheStore(q.ContentHash, k, coldResults)
	return coldResults, nil
}

func applyConfidence(results []Result, c float64) {
	for i := range results {
		results[i].Confidence = c
	}
}

func (idx *Index) getThreshold(threshold *float64) float64 {
	idx.thresholdMu.Lock()
	defer idx.thresholdMu.Unlock()
	return *threshold
}

func (idx *Index) updateThreshold(threshold *float64, recallMet bool) {
	idx.thresholdMu.Lock()
	defer idx.thresholdMu.Unlock()
	if recallMet {
		*threshold = clamp01(*threshold - thresholdStep)
	} else {
		*threshold = clamp01(*threshold + thresholdStep)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SearchTier bypasses the adaptive Hot -> Warm-Fast -> Warm-Thorough ->
// Cold state machine and runs exactly the requested tier, for callers
// (EmbedSearch's Tier option) that want a specific latency/recall
// tradeoff rather than Search's self-tuning default.
func (idx *Index) SearchTier(q Vector, k int, tier Tier) ([]Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}

	idx.dimMu.Lock()
	dim := idx.dimension
	idx.dimMu.Unlock()
	q = q.withContentHash()
	if dim != 0 && len(q.Data) != dim {
		return []Result{}, nil
	}

	if tier == TierHot {
		if cached, ok := idx.cacheLookup(q.ContentHash, k); ok {
			out := make([]Result, len(cached))
			copy(out, cached)
			for i := range out {
				out[i].Tier = TierHot
			}
			return out, nil
		}
		return []Result{}, nil
	}
	if tier == TierCold {
		return idx.coldScan(q, k), nil
	}

	idx.mu.RLock()
	entryID := idx.entryPoint
	topLayer := idx.topLayer
	empty := len(idx.nodes) == 0
	idx.mu.RUnlock()
	if empty {
		return []Result{}, nil
	}
	entry := idx.lookup(entryID)

	ef := idx.efSearchFast
	if tier == TierWarmThorough {
		ef = idx.efSearchThorough
	}
	candidates := idx.tieredSearch(q, entry, topLayer, ef)
	return idx.toResults(q, candidates, k, tier), nil
}

// tieredSearch greedily descends to layer 0 from entry and runs a
// single beam search there with the given width.
func (idx *Index) tieredSearch(q Vector, entry *Node, topLayer, ef int) []scored {
	if entry == nil {
		return nil
	}
	current, _ := idx.greedyDescend(q, entry, topLayer, 0)
	return idx.searchLayer(q, current, 0, ef)
}

func (idx *Index) toResults(q Vector, candidates []scored, k int, tier Tier) []Result {
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		path := append([]string{}, idx.synthesisPathFor(q, c)...)
		out[i] = Result{
			Node:          c.node,
			Score:         c.score,
			SynthesisPath: path,
			FactorScores:  computeFactorScores(q, c, len(path)),
			Tier:          tier,
		}
	}
	return out
}

// synthesisPathFor reconstructs the path a descent from the current
// entry point takes to reach c, for explanation purposes.
func (idx *Index) synthesisPathFor(q Vector, c scored) []string {
	idx.mu.RLock()
	entryID := idx.entryPoint
	topLayer := idx.topLayer
	idx.mu.RUnlock()

	entry := idx.lookup(entryID)
	if entry == nil {
		return []string{c.id}
	}
	_, path := idx.greedyDescend(q, entry, topLayer, 0)
	if len(path) == 0 || path[len(path)-1] != c.id {
		path = append(path, c.id)
	}
	return path
}

func computeFactorScores(q Vector, c scored, pathLen int) FactorScores {
	geometric := proximity(c.score)
	semantic := euclideanProximity(q.Data, c.node.Vector.Data)
	causal := 1 / float64(1+pathLen)
	composite := 0.5*geometric + 0.3*semantic + 0.2*causal
	return FactorScores{
		GeometricProximity: geometric,
		Semantic:           semantic,
		CausalDepth:        causal,
		Composite:          composite,
	}
}

func euclideanProximity(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}

// estimateConfidence estimates how well the fast tier's results would
// hold up against the thorough tier. With probability
// verificationSampleRate it actually runs the thorough search and
// measures true top-k overlap (verified=true); otherwise it falls
// back to a cheap proxy based on average result proximity.
func (idx *Index) estimateConfidence(q Vector, fastResults []Result, entry *Node, topLayer, ef int) (float64, bool) {
	if !idx.sample() {
		return averageProximity(fastResults), false
	}
	thoroughCandidates := idx.tieredSearch(q, entry, topLayer, ef)
	thoroughIDs := topIDs(thoroughCandidates, len(fastResults))
	return jaccard(resultIDs(fastResults), thoroughIDs), true
}

// estimateColdConfidence is the thorough-tier analogue, verifying
// against an exact cold scan.
func (idx *Index) estimateColdConfidence(q Vector, thoroughResults []Result, k int) (float64, bool) {
	if !idx.sample() {
		return averageProximity(thoroughResults), false
	}
	cold := idx.coldScan(q, k)
	return jaccard(resultIDs(thoroughResults), resultIDs(cold)), true
}

func (idx *Index) sample() bool {
	idx.rngMu.Lock()
	defer idx.rngMu.Unlock()
	return idx.rng.Float64() < verificationSampleRate
}

// averageProximity folds the results' cosine scores through proximity
// so the confidence proxy stays in [0, 1], comparable against the
// adaptive thresholds.
func averageProximity(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += proximity(r.Score)
	}
	return sum / float64(len(results))
}

func resultIDs(results []Result) map[string]bool {
	out := make(map[string]bool, len(results))
	for _, r := range results {
		out[r.Node.ID] = true
	}
	return out
}

func topIDs(candidates []scored, k int) map[string]bool {
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		out[c.id] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for id := range a {
		if b[id] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// coldScan does an exact linear scan over every node, used as the
// final tier and as ground truth for confidence verification.
func (idx *Index) coldScan(q Vector, k int) []Result {
	idx.mu.RLock()
	all := make([]*Node, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		all = append(all, n)
	}
	idx.mu.RUnlock()

	candidates := make([]scored, 0, len(all))
	for _, n := range all {
		candidates = append(candidates, scored{id: n.ID, node: n, score: cosineSimilarity(q.Data, n.Vector.Data)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{
			Node:          c.node,
			Score:         c.score,
			SynthesisPath: []string{c.id},
			FactorScores:  computeFactorScores(q, c, 0),
			Tier:          TierCold,
		}
	}
	return out
}

func (idx *Index) cacheLookup(contentHash string, k int) ([]Result, bool) {
	idx.cacheMu.Lock()
	defer idx.cacheMu.Unlock()

	key := cacheKey{contentHash: contentHash, k: k}
	entry, ok := idx.cache[key]
	if !ok {
		return nil, false
	}
	if idx.generation.Load()-entry.generation >= idx.cacheGenerationDelta {
		delete(idx.cache, key)
		return nil, false
	}
	return entry.results, true
}

func (idx *Index) cacheStore(contentHash string, k int, results []Result) {
	idx.cacheMu.Lock()
	defer idx.cacheMu.Unlock()
	idx.cache[cacheKey{contentHash: contentHash, k: k}] = cacheEntry{
		results:    results,
		generation: idx.generation.Load(),
	}
}
