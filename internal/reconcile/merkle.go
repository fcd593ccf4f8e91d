package reconcile

import (
	"context"
	"crypto/sha256"
	"sort"

	"golang.org/x/sync/errgroup"
)

type nodeKind int

const (
	nodeEmpty nodeKind = iota
	nodeLeaf
	nodeBranch
)

type merkleNode struct {
	kind  nodeKind
	id    string // set only for nodeLeaf
	hash  [32]byte
	left  *merkleNode
	right *merkleNode
}

// MerkleTree is an immutable Merkle tree over a set of distinction
// ids, used to find exactly which ids two peers disagree on without
// transferring the full id set.
type MerkleTree struct {
	root *merkleNode
	size int
}

// EmptyMerkleTree returns the tree over the empty set.
func EmptyMerkleTree() *MerkleTree {
	return &MerkleTree{root: &merkleNode{kind: nodeEmpty}}
}

// NewMerkleTree builds a tree from ids. ids are sorted internally so
// that two calls with the same set, in any order, produce the same
// tree shape and root hash.
func NewMerkleTree(ids []string) *MerkleTree {
	if len(ids) == 0 {
		return EmptyMerkleTree()
	}

	sorted := append([]string{}, ids...)
	sort.Strings(sorted)

	leaves := make([]*merkleNode, len(sorted))
	for i, id := range sorted {
		leaves[i] = &merkleNode{kind: nodeLeaf, id: id, hash: hashLeaf(id)}
	}

	return &MerkleTree{root: buildTree(leaves), size: len(sorted)}
}

// RootHash returns the tree's root hash. Two trees built from equal
// id sets always have equal root hashes.
func (t *MerkleTree) RootHash() [32]byte {
	return t.root.hash
}

// Size returns the number of ids the tree was built from; duplicates
// passed to NewMerkleTree are counted, not merged.
func (t *MerkleTree) Size() int {
	return t.size
}

// IsEmpty reports whether the tree holds no ids.
func (t *MerkleTree) IsEmpty() bool {
	return t.size == 0
}

// Distinctions returns every id in the tree, in sorted order.
func (t *MerkleTree) Distinctions() []string {
	var out []string
	collectIDs(t.root, func(id string) { out = append(out, id) })
	return out
}

// Diff returns the ids present in t but not in other.
func (t *MerkleTree) Diff(other *MerkleTree) map[string]struct{} {
	missing := make(map[string]struct{})
	diffNodes(t.root, other.root, missing)
	if len(missing) == 0 {
		return missing
	}

	// The structural walk over-approximates when the two trees pad to
	// different widths (subtrees stop lining up leaf-for-leaf), so the
	// candidates are filtered against other's actual id set to make the
	// result exact.
	present := make(map[string]struct{}, other.size)
	collectIDs(other.root, func(id string) { present[id] = struct{}{} })
	for id := range missing {
		if _, ok := present[id]; ok {
			delete(missing, id)
		}
	}
	return missing
}

// DiffAgainstPeers compares local against each of peers concurrently,
// returning one diff map per peer in the same order. This
// generalizes Diff (which only ever compares two trees) for a gossip
// layer reconciling against several peers in one round; it has no
// networking dependency of its own, so a caller owns dispatch and
// only supplies the peer digests it already collected.
func DiffAgainstPeers(local *MerkleTree, peers []*MerkleTree) []map[string]struct{} {
	results := make([]map[string]struct{}, len(peers))
	g, _ := errgroup.WithContext(context.Background())
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			results[i] = local.Diff(peer)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func hashLeaf(id string) [32]byte {
	return sha256.Sum256([]byte(id))
}

func hashChildren(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func buildTree(nodes []*merkleNode) *merkleNode {
	if len(nodes) == 0 {
		return &merkleNode{kind: nodeEmpty}
	}
	if len(nodes) == 1 {
		return nodes[0]
	}

	size := 1
	for size < len(nodes) {
		size <<= 1
	}
	for len(nodes) < size {
		nodes = append(nodes, &merkleNode{kind: nodeEmpty})
	}

	level := nodes
	for len(level) > 1 {
		next := make([]*merkleNode, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			l, r := level[i], level[i+1]
			next = append(next, &merkleNode{kind: nodeBranch, hash: combine(l, r), left: l, right: r})
		}
		level = next
	}
	return level[0]
}

// combine applies the Empty+Empty=0 / Empty+X=X / X+Empty=X collapse
// rule so a lopsided tree (one side padded with Empty) still hashes
// identically to a tree that never needed padding on that side.
func combine(l, r *merkleNode) [32]byte {
	switch {
	case l.kind == nodeEmpty && r.kind == nodeEmpty:
		return [32]byte{}
	case l.kind == nodeEmpty:
		return r.hash
	case r.kind == nodeEmpty:
		return l.hash
	default:
		return hashChildren(l.hash, r.hash)
	}
}

func diffNodes(a, b *merkleNode, missing map[string]struct{}) {
	if a.hash == b.hash {
		return
	}

	switch {
	case a.kind == nodeLeaf && b.kind == nodeLeaf:
		if a.id != b.id {
			missing[a.id] = struct{}{}
		}
	case a.kind == nodeLeaf:
		missing[a.id] = struct{}{}
	case a.kind == nodeBranch && b.kind == nodeBranch:
		diffNodes(a.left, b.left, missing)
		diffNodes(a.right, b.right, missing)
	case a.kind == nodeBranch && b.kind == nodeEmpty:
		collectIDs(a, func(id string) { missing[id] = struct{}{} })
	default:
		collectIDs(a, func(id string) { missing[id] = struct{}{} })
	}
}

func collectIDs(n *merkleNode, visit func(string)) {
	switch n.kind {
	case nodeLeaf:
		visit(n.id)
	case nodeBranch:
		collectIDs(n.left, visit)
		collectIDs(n.right, visit)
	}
}
