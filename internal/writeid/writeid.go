package writeid

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WriteID is a totally-ordered identifier assigned at commit time.
//
// Comparison is lexicographic over (Timestamp, NodeID, Counter): two
// WriteIDs from different nodes compare deterministically even though
// neither node coordinated with the other before issuing them.
type WriteID struct {
	// Timestamp is UnixNano at issue time. Monotonic per generator: a
	// generator never issues a WriteID with a Timestamp lower than its
	// previously issued one.
	Timestamp int64

	// NodeID identifies the generator instance that issued this id.
	// Derived once per generator from a random UUID, not from any
	// network identity, so it is stable across restarts only if the
	// caller persists and restores it (see Generator.NodeID).
	NodeID uint32

	// Counter disambiguates multiple writes issued by the same node in
	// the same nanosecond tick. Resets to zero whenever Timestamp
	// advances.
	Counter uint32
}

// Less reports whether w sorts strictly before o.
func (w WriteID) Less(o WriteID) bool {
	if w.Timestamp != o.Timestamp {
		return w.Timestamp < o.Timestamp
	}
	if w.NodeID != o.NodeID {
		return w.NodeID < o.NodeID
	}
	return w.Counter < o.Counter
}

// String renders a WriteID as a sortable, fixed-width string, suitable
// for use as a map key or an on-disk record field.
func (w WriteID) String() string {
	return fmt.Sprintf("%020d-%010d-%010d", w.Timestamp, w.NodeID, w.Counter)
}

// IsZero reports whether w is the zero value (never issued).
func (w WriteID) IsZero() bool {
	return w.Timestamp == 0 && w.NodeID == 0 && w.Counter == 0
}

// ErrClockRegression is returned when the system clock reports a time
// before a previously issued WriteID's timestamp.
var ErrClockRegression = fmt.Errorf("writeid: clock regression detected")

// Generator issues monotonically increasing WriteIDs for one node.
//
// A Generator is safe for concurrent use: Next is internally
// serialized by a mutex, matching the "per-key mutex held only for the
// O(1) link step" discipline the causal storage layer uses elsewhere —
// here the "key" is the generator itself since write_id allocation is
// node-global, not per-key.
type Generator struct {
	mu     sync.Mutex
	nodeID uint32
	lastTS int64
	lastCt uint32
	now    func() int64
}

// NewGenerator creates a Generator with a random node id, suitable for a
// node that has no persisted identity yet.
func NewGenerator() *Generator {
	return NewGeneratorWithNodeID(deriveNodeID())
}

// NewGeneratorWithNodeID creates a Generator with an explicit node id,
// for a node restoring a previously persisted identity.
func NewGeneratorWithNodeID(nodeID uint32) *Generator {
	return &Generator{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixNano() },
	}
}

// deriveNodeID derives a stable-for-the-process node id from a random
// UUID's first four bytes. Good enough to make concurrent generators on
// distinct nodes collide only with UUID-collision probability.
func deriveNodeID() uint32 {
	id := uuid.New()
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}

// RandomNodeID derives a fresh node id, for a caller that wants to mint
// an identity to persist before constructing its first Generator.
func RandomNodeID() uint32 {
	return deriveNodeID()
}

// NodeID returns this generator's node identifier.
func (g *Generator) NodeID() uint32 {
	return g.nodeID
}

// Observe advances the generator past id, so ids issued after a log
// replay never sort below ids already committed. If the wall clock has
// regressed below an observed timestamp, the next call to Next reports
// it as a clock regression rather than issuing an id that would sort
// before the replayed history.
func (g *Generator) Observe(id WriteID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id.Timestamp > g.lastTS || (id.Timestamp == g.lastTS && id.Counter > g.lastCt) {
		g.lastTS = id.Timestamp
		g.lastCt = id.Counter
	}
}

// Next allocates the next WriteID, guaranteeing it sorts strictly after
// every WriteID this generator has previously issued.
//
// Returns ErrClockRegression if the wall clock has moved backwards past
// the last issued timestamp; callers should surface this as the
// time-error kind rather than retry silently.
func (g *Generator) Next() (WriteID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTS {
		return WriteID{}, ErrClockRegression
	}
	if ts == g.lastTS {
		g.lastCt++
	} else {
		g.lastTS = ts
		g.lastCt = 0
	}

	return WriteID{Timestamp: g.lastTS, NodeID: g.nodeID, Counter: g.lastCt}, nil
}
