package snsw

import (
	"cmp"
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Config sizes an Index. Zero fields fall back to the documented
// defaults.
type Config struct {
	M                    int
	EfConstruction       int
	EfSearchFast         int
	EfSearchThorough     int
	TargetRecall         float64
	CacheGenerationDelta uint64
}

func (c Config) withDefaults() Config {
	if c.M <= 0 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearchFast <= 0 {
		c.EfSearchFast = 50
	}
	if c.EfSearchThorough <= 0 {
		c.EfSearchThorough = 200
	}
	if c.TargetRecall <= 0 {
		c.TargetRecall = 0.9
	}
	if c.CacheGenerationDelta == 0 {
		c.CacheGenerationDelta = 100
	}
	return c
}

// Index is the SNSW graph: a registry of Nodes plus the bookkeeping
// needed for insertion, layered search, adaptive thresholds, and an
// exact-match result cache.
type Index struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	entryPoint string
	topLayer   int

	dimMu     sync.Mutex
	dimension int

	m                int
	efConstruction   int
	efSearchFast     int
	efSearchThorough int
	targetRecall     float64

	thresholdMu       sync.Mutex
	fastThreshold     float64
	thoroughThreshold float64

	generation atomic.Uint64

	rngMu sync.Mutex
	rng   *rand.Rand

	cacheMu              sync.Mutex
	cache                map[cacheKey]cacheEntry
	cacheGenerationDelta uint64
}

// New constructs an empty Index.
func New(cfg Config) *Index {
	cfg = cfg.withDefaults()
	return &Index{
		nodes:                make(map[string]*Node),
		m:                    cfg.M,
		efConstruction:       cfg.EfConstruction,
		efSearchFast:         cfg.EfSearchFast,
		efSearchThorough:     cfg.EfSearchThorough,
		targetRecall:         cfg.TargetRecall,
		fastThreshold:        0.8,
		thoroughThreshold:    0.95,
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:                make(map[cacheKey]cacheEntry),
		cacheGenerationDelta: cfg.CacheGenerationDelta,
	}
}

// NodeSnapshot is a gob-encodable copy of one Node, used to persist and
// restore the graph across restarts without repeating layer assignment
// and linking for every vector.
type NodeSnapshot struct {
	ID               string
	Vector           Vector
	Layer            int
	Neighbours       [][]string
	InsertGeneration uint64
}

// Snapshot captures the current graph for persistence.
func (idx *Index) Snapshot() (nodes []NodeSnapshot, entryPoint string, topLayer int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	nodes = make([]NodeSnapshot, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		n.mu.RLock()
		nodes = append(nodes, NodeSnapshot{
			ID:               n.ID,
			Vector:           n.Vector,
			Layer:            n.Layer,
			Neighbours:       append([][]string(nil), n.Neighbours...),
			InsertGeneration: n.InsertGeneration,
		})
		n.mu.RUnlock()
	}
	return nodes, idx.entryPoint, idx.topLayer
}

// Restore replaces the graph with a previously captured Snapshot,
// loading a checkpoint instead of reinserting every vector (and
// repeating layer assignment and beam search) from scratch.
func (idx *Index) Restore(nodes []NodeSnapshot, entryPoint string, topLayer int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nodes = make(map[string]*Node, len(nodes))
	var maxGeneration uint64
	var dim int
	for _, snap := range nodes {
		idx.nodes[snap.ID] = &Node{
			ID:               snap.ID,
			Vector:           snap.Vector,
			Layer:            snap.Layer,
			Neighbours:       snap.Neighbours,
			InsertGeneration: snap.InsertGeneration,
		}
		if snap.InsertGeneration > maxGeneration {
			maxGeneration = snap.InsertGeneration
		}
		if dim == 0 {
			dim = len(snap.Vector.Data)
		}
	}
	idx.entryPoint = entryPoint
	idx.topLayer = topLayer
	idx.generation.Store(maxGeneration)

	idx.dimMu.Lock()
	idx.dimension = dim
	idx.dimMu.Unlock()
}

// Len returns the number of distinct nodes (content hashes) in the
// graph.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

func (idx *Index) lookup(id string) *Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nodes[id]
}

// Insert deduplicates v by content hash and, if new, links it into
// the graph. The bool return reports whether a new node was created.
func (idx *Index) Insert(v Vector) (*Node, bool, error) {
	if err := v.validate(); err != nil {
		return nil, false, err
	}
	v = v.withContentHash()

	if existing := idx.lookup(v.ContentHash); existing != nil {
		return existing, false, nil
	}

	idx.dimMu.Lock()
	if idx.dimension == 0 {
		idx.dimension = len(v.Data)
	}
	idx.dimMu.Unlock()

	layer := idx.assignLayer()
	node := newNode(v, layer, idx.generation.Add(1))

	idx.mu.Lock()
	if existing, ok := idx.nodes[v.ContentHash]; ok {
		idx.mu.Unlock()
		return existing, false, nil
	}
	if idx.entryPoint == "" {
		idx.nodes[v.ContentHash] = node
		idx.entryPoint = node.ID
		idx.topLayer = layer
		idx.mu.Unlock()
		return node, true, nil
	}
	entry := idx.nodes[idx.entryPoint]
	topLayer := idx.topLayer
	idx.nodes[v.ContentHash] = node
	idx.mu.Unlock()

	descended := entry
	if layer < topLayer {
		descended, _ = idx.greedyDescend(v, entry, topLayer, layer)
	}

	lowest := layer
	if topLayer < lowest {
		lowest = topLayer
	}

	layers := make([]int, 0, lowest+1)
	for l := lowest; l >= 0; l-- {
		layers = append(layers, l)
	}

	candidatesByLayer := make([][]scored, len(layers))
	g, _ := errgroup.WithContext(context.Background())
	for i, l := range layers {
		i, l := i, l
		g.Go(func() error {
			candidatesByLayer[i] = idx.searchLayer(v, descended, l, idx.efConstruction)
			return nil
		})
	}
	_ = g.Wait()

	for i, l := range layers {
		selected := selectByDiversity(v, candidatesByLayer[i], idx.m)
		idx.linkBidirectional(node, l, selected)
	}

	idx.mu.Lock()
	if layer > idx.topLayer {
		idx.entryPoint = node.ID
		idx.topLayer = layer
	}
	idx.mu.Unlock()

	return node, true, nil
}

// assignLayer draws the exponentially-decaying layer assignment
// ell = floor(-ln(U) * m_L), m_L = 1/ln(M).
func (idx *Index) assignLayer() int {
	idx.rngMu.Lock()
	u := idx.rng.Float64()
	idx.rngMu.Unlock()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	mL := 1.0 / math.Log(float64(idx.m))
	return int(math.Floor(-math.Log(u) * mL))
}

// greedyDescend walks from "from" at fromLayer down to toLayer+1,
// always stepping to the best-scoring neighbour (beam-1) until no
// neighbour improves on the current node. It returns the final node
// and the ordered list of node ids visited, for use as a synthesis
// path prefix.
func (idx *Index) greedyDescend(q Vector, from *Node, fromLayer, toLayer int) (*Node, []string) {
	current := from
	currentScore := cosineSimilarity(q.Data, current.Vector.Data)
	path := []string{current.ID}

	for layer := fromLayer; layer > toLayer; layer-- {
		improved := true
		for improved {
			improved = false
			for _, nid := range current.neighboursAt(layer) {
				neighbour := idx.lookup(nid)
				if neighbour == nil {
					continue
				}
				s := cosineSimilarity(q.Data, neighbour.Vector.Data)
				if s > currentScore {
					current = neighbour
					currentScore = s
					improved = true
					path = append(path, current.ID)
				}
			}
		}
	}
	return current, path
}

// searchLayer runs a beam search of width ef over "layer" starting
// from start, returning up to ef candidates sorted by descending
// score.
func (idx *Index) searchLayer(q Vector, start *Node, layer, ef int) []scored {
	if start == nil {
		return nil
	}

	startScore := cosineSimilarity(q.Data, start.Vector.Data)
	visited := map[string]bool{start.ID: true}

	front := &frontier{{id: start.ID, node: start, score: startScore}}
	best := &candidateQueue{{id: start.ID, node: start, score: startScore}}

	for front.Len() > 0 {
		top := (*front)[0]
		if best.Len() >= ef && top.score < (*best)[0].score {
			break
		}
		popFrontier(front)

		for _, nid := range top.node.neighboursAt(layer) {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			neighbour := idx.lookup(nid)
			if neighbour == nil {
				continue
			}
			s := cosineSimilarity(q.Data, neighbour.Vector.Data)
			item := scored{id: nid, node: neighbour, score: s}
			pushFrontier(front, item)
			pushCandidate(best, item)
			if best.Len() > ef {
				popCandidate(best)
			}
		}
	}

	n := best.Len()
	ascending := make([]scored, n)
	for i := 0; i < n; i++ {
		ascending[i] = popCandidate(best)
	}
	out := make([]scored, n)
	for i, v := range ascending {
		out[n-1-i] = v
	}
	return out
}

// selectByDiversity keeps up to m candidates, preferring ones that add
// a new direction: a candidate is kept only if it scores higher
// against q than against every already-selected neighbour (i.e. it is
// not redundant with what's already been chosen). Remaining slots, if
// any, are filled with the closest leftover candidates.
func selectByDiversity(q Vector, candidates []scored, m int) []*Node {
	selected := make([]*Node, 0, m)
	chosen := make(map[string]bool, m)

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if cosineSimilarity(c.node.Vector.Data, s.Vector.Data) >= c.score {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c.node)
			chosen[c.node.ID] = true
		}
	}

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		if !chosen[c.node.ID] {
			selected = append(selected, c.node)
			chosen[c.node.ID] = true
		}
	}

	return selected
}

// linkBidirectional adds node as a neighbour of each entry in
// neighbours at layer, and vice versa, pruning any neighbour whose
// degree would exceed M. All touched nodes are locked in ascending id
// order for the duration of the update, matching the ordering
// discipline used everywhere else a caller must hold more than one
// node's lock at once.
func (idx *Index) linkBidirectional(node *Node, layer int, neighbours []*Node) {
	all := append([]*Node{node}, neighbours...)
	slices.SortFunc(all, func(a, b *Node) int { return strings.Compare(a.ID, b.ID) })

	for _, n := range all {
		n.mu.Lock()
		defer n.mu.Unlock()
	}

	ids := make([]string, len(neighbours))
	for i, nb := range neighbours {
		ids[i] = nb.ID
	}
	node.setNeighboursAt(layer, ids)

	for _, nb := range neighbours {
		for layer >= len(nb.Neighbours) {
			nb.Neighbours = append(nb.Neighbours, nil)
		}
		merged := append(append([]string{}, nb.Neighbours[layer]...), node.ID)
		if len(merged) > idx.m {
			merged = idx.pruneNeighbours(nb, merged)
		}
		nb.Neighbours[layer] = merged
	}
}

// pruneNeighbours re-applies the diversity heuristic to an
// over-capacity neighbour list, called with the owning node's lock
// already held.
func (idx *Index) pruneNeighbours(owner *Node, ids []string) []string {
	candidates := make([]scored, 0, len(ids))
	for _, id := range ids {
		n := idx.lookup(id)
		if n == nil {
			continue
		}
		candidates = append(candidates, scored{id: id, node: n, score: cosineSimilarity(owner.Vector.Data, n.Vector.Data)})
	}
	slices.SortFunc(candidates, func(a, b scored) int { return cmp.Compare(b.score, a.score) })

	selected := selectByDiversity(owner.Vector, candidates, idx.m)
	out := make([]string, len(selected))
	for i, s := range selected {
		out[i] = s.ID
	}
	return out
}
