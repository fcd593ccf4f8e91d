// Package writeid generates the totally-ordered identifiers that stamp
// every versioned write in KoruDelta.
//
// # Overview
//
// A write_id must satisfy two properties at once:
//
//   - Within one node, writes to the same key are totally ordered and the
//     order matches program order for a single caller.
//   - Across nodes, two writes racing on the same key converge to a single
//     winner on exchange, without any coordination at write time.
//
// A pure counter gives the first property but not the second: two nodes
// each counting from zero collide immediately. A wall-clock timestamp
// alone gives the second property only as long as clocks never regress or
// tie. KoruDelta resolves this the way the original design's source
// comments describe it: a (timestamp, node-id, counter) tuple, compared
// lexicographically in that order. Node-id breaks ties between
// simultaneous writers on two machines; the per-node counter breaks ties
// between two writes issued by the same node inside one clock tick.
//
// # Clock regression
//
// The generator watches its own previous timestamp. If the wall clock
// ever reports a time strictly before the last-issued write_id's
// timestamp, that is reported as a time-error (see the root package's
// error kinds) rather than silently issuing a duplicate or
// out-of-order id.
package writeid
