// Package changestream implements the bounded, lossy, per-subscriber
// broadcast of write events fanned out after every causal storage
// write.
//
// # Back pressure
//
// Publish never blocks on a slow subscriber. Each subscriber owns a
// bounded channel (default capacity 256); if it is full when an event
// is published, the oldest undelivered entry in that channel is
// discarded and a synthetic Event with Kind = Dropped is queued at the
// back, so the subscriber observes the marker after draining the
// entries still queued ahead of it. The publisher's throughput is
// therefore independent of the slowest subscriber.
//
// # Ordering
//
// A single goroutine owns the publish loop for a Stream, so every
// subscriber observes events (and drop markers) in the same relative
// order, even though individual subscribers may not observe the same
// set of events.
package changestream
