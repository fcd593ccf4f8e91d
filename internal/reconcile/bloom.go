package reconcile

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/swyrknt/korudelta/internal/kerr"
)

// BloomFilter is a space-efficient, no-false-negative probabilistic
// set membership test over distinction ids.
type BloomFilter struct {
	filter *bloomfilter.Filter
}

// NewBloomFilter sizes a filter for expectedN items at targetFPR
// false-positive probability using m = -n*ln(p)/ln(2)^2,
// k = (m/n)*ln(2).
func NewBloomFilter(expectedN int, targetFPR float64) (*BloomFilter, error) {
	n := float64(expectedN)
	if n < 1 {
		n = 1
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	m := uint64(math.Ceil(-n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)))
	if m < 1 {
		m = 1
	}
	k := uint64(math.Ceil((float64(m) / n) * math.Ln2))
	if k < 1 {
		k = 1
	}

	f, err := bloomfilter.New(m, k)
	if err != nil {
		return nil, kerr.New(kerr.StorageError, "bloom filter sizing m=%d k=%d: %v", m, k, err)
	}
	return &BloomFilter{filter: f}, nil
}

// digest64 adapts a precomputed xxhash sum to the hash.Hash64
// interface bloomfilter.Filter's Add/Contains consume. Only Sum64 is
// ever called.
type digest64 uint64

func (d digest64) Sum64() uint64             { return uint64(d) }
func (d digest64) Write([]byte) (int, error) { panic("not implemented") }
func (d digest64) Sum([]byte) []byte         { panic("not implemented") }
func (d digest64) Reset()                    { panic("not implemented") }
func (d digest64) Size() int                 { panic("not implemented") }
func (d digest64) BlockSize() int            { panic("not implemented") }

// Insert adds id to the filter.
func (b *BloomFilter) Insert(id string) {
	b.filter.Add(digest64(xxhash.Sum64String(id)))
}

// MightContain reports whether id may be in the set. false is a
// definite answer (no false negatives); true may be a false positive.
func (b *BloomFilter) MightContain(id string) bool {
	return b.filter.Contains(digest64(xxhash.Sum64String(id)))
}

// Exchange drives a two-way Bloom filter reconciliation: build a
// local filter over our ids, receive the peer's filter, and find
// which of our ids the peer's filter claims not to have.
type Exchange struct {
	local    *BloomFilter
	localIDs map[string]struct{}
	remote   *BloomFilter
}

// NewExchange builds a local filter over ids, sized for
// expectedCount items at fpRate.
func NewExchange(ids []string, expectedCount int, fpRate float64) (*Exchange, error) {
	local, err := NewBloomFilter(expectedCount, fpRate)
	if err != nil {
		return nil, err
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		local.Insert(id)
		idSet[id] = struct{}{}
	}

	return &Exchange{local: local, localIDs: idSet}, nil
}

// ReceiveRemote records the peer's filter for comparison.
func (e *Exchange) ReceiveRemote(remote *BloomFilter) {
	e.remote = remote
}

// LocalFilter returns the filter to send to the peer.
func (e *Exchange) LocalFilter() *BloomFilter {
	return e.local
}

// FindMissingRemote returns, in sorted order, the ids we hold that
// the remote filter declares absent — the ids worth actually sending.
// Returns nil if no remote filter has been received yet.
func (e *Exchange) FindMissingRemote() []string {
	if e.remote == nil {
		return nil
	}

	missing := make([]string, 0, len(e.localIDs))
	for id := range e.localIDs {
		if !e.remote.MightContain(id) {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
