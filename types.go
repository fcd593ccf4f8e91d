package korudelta

import (
	"github.com/swyrknt/korudelta/internal/causal"
	"github.com/swyrknt/korudelta/internal/changestream"
	"github.com/swyrknt/korudelta/internal/chain"
	"github.com/swyrknt/korudelta/internal/writeid"
)

// Versioned pairs a value with the write_id that committed it, its
// optional previous write_id, and its metadata.
type Versioned = chain.Versioned

// WriteID is the totally-ordered (timestamp, node-id, counter)
// identifier stamped on every committed version, comparable across
// nodes without coordination.
type WriteID = writeid.WriteID

// ChangeEvent describes one committed write, delivered to a Subscribe
// channel in commit order.
type ChangeEvent = changestream.Event

// EventKind classifies a ChangeEvent.
type EventKind = changestream.EventKind

const (
	EventPut     = changestream.Put
	EventDelete  = changestream.Delete
	EventDropped = changestream.Dropped
)

// Stats aggregates storage-wide counts: keys with at least one version
// (deleted keys included), total versions ever
// committed, and the size of the underlying distinction graph.
type Stats = causal.Stats

// FullKey identifies a (namespace, key) pair.
type FullKey struct {
	Namespace string
	Key       string
}
