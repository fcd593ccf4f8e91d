package snsw

import "sync"

// Node is one vertex of the small-world graph: an embedding plus its
// per-layer neighbour lists. Neighbours[L] holds up to M node ids at
// layer L, in the order they were selected or linked; the lists are not
// sorted by distance.
type Node struct {
	mu sync.RWMutex

	ID               string
	Vector           Vector
	Layer            int
	Neighbours       [][]string
	InsertGeneration uint64
}

func newNode(v Vector, layer int, generation uint64) *Node {
	return &Node{
		ID:               v.ContentHash,
		Vector:           v,
		Layer:            layer,
		Neighbours:       make([][]string, layer+1),
		InsertGeneration: generation,
	}
}

// neighboursAt returns a copy of the node's neighbour list at layer,
// safe to range over without holding the node's lock.
func (n *Node) neighboursAt(layer int) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if layer >= len(n.Neighbours) {
		return nil
	}
	out := make([]string, len(n.Neighbours[layer]))
	copy(out, n.Neighbours[layer])
	return out
}

// setNeighboursAt replaces the node's neighbour list at layer. Callers
// must already hold n.mu (via the ascending-id locking discipline in
// index.go) for the duration of a multi-node edge update.
func (n *Node) setNeighboursAt(layer int, ids []string) {
	for layer >= len(n.Neighbours) {
		n.Neighbours = append(n.Neighbours, nil)
	}
	n.Neighbours[layer] = ids
}
