package distinction

// Handle is a cheap-to-copy reference to a shared Engine, handed to
// higher-level components (the version chain, the causal storage façade,
// the SNSW index) instead of the Engine itself.
//
// The split matters for one reason: it keeps ownership acyclic.
// Components hold a Handle to the engine; the engine never holds a
// pointer back to any component.
type Handle struct {
	engine *Engine
}

// NewHandle wraps an existing Engine in a Handle.
func NewHandle(e *Engine) Handle {
	return Handle{engine: e}
}

// Synthesize delegates to the underlying Engine.
func (h Handle) Synthesize(a, b Distinction) Distinction { return h.engine.Synthesize(a, b) }

// Leaf delegates to the underlying Engine.
func (h Handle) Leaf(data []byte) Distinction { return h.engine.Leaf(data) }

// D0 delegates to the underlying Engine.
func (h Handle) D0() Distinction { return h.engine.D0() }

// D1 delegates to the underlying Engine.
func (h Handle) D1() Distinction { return h.engine.D1() }

// Stats delegates to the underlying Engine's counters.
func (h Handle) Stats() (distinctions uint64, relationships int64) {
	return h.engine.DistinctionCount(), h.engine.RelationshipCount()
}
