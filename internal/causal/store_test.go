package causal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/swyrknt/korudelta/internal/chain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newStore(t)

	v, err := s.Put("ns", "k", map[string]any{"v": float64(1)}, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("ns", "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.WriteID != v.WriteID {
		t.Fatalf("expected write id %v, got %v", v.WriteID, got.WriteID)
	}
}

func TestVersioningHistory(t *testing.T) {
	s := newStore(t)

	s.Put("ns", "k", map[string]any{"v": float64(1)}, nil)
	s.Put("ns", "k", map[string]any{"v": float64(2)}, nil)

	hist := s.History("ns", "k")
	if len(hist) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(hist))
	}
	tail, head := hist[0], hist[1]
	if tail.Previous == nil || *tail.Previous != head.WriteID {
		t.Fatal("expected tail.previous_version == head.write_id")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s := newStore(t)
	s.Put("a", "k", "x", nil)
	s.Put("b", "k", "y", nil)

	va, err := s.Get("a", "k")
	if err != nil || va.Value != "x" {
		t.Fatalf("expected a/k == x, got %v err=%v", va.Value, err)
	}
	vb, err := s.Get("b", "k")
	if err != nil || vb.Value != "y" {
		t.Fatalf("expected b/k == y, got %v err=%v", vb.Value, err)
	}
}

func TestDeleteThenGet(t *testing.T) {
	s := newStore(t)
	s.Put("ns", "k", "hello", nil)
	s.Delete("ns", "k")

	got, err := s.Get("ns", "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !chain.IsTombstone(got.Value) {
		t.Fatalf("expected tombstone after delete, got %v", got.Value)
	}

	hist := s.History("ns", "k")
	if len(hist) != 2 {
		t.Fatalf("expected history to retain prior versions, got %d entries", len(hist))
	}
}

func TestGetUnknownKeyFails(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get("ns", "ghost"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestInvalidValueRejected(t *testing.T) {
	s := newStore(t)
	// Channels cannot be json-encoded.
	if _, err := s.Put("ns", "k", make(chan int), nil); err == nil {
		t.Fatal("expected InvalidData error for non-serialisable value")
	}
}

func TestCacheCoherence(t *testing.T) {
	s := newStore(t)
	s.Put("ns", "k", "v1", nil)

	// First Get promotes into Hot; subsequent reads should agree with
	// the chain's own view.
	s.Get("ns", "k")

	cached, ok := s.Cache().Get("ns", "k")
	if !ok {
		t.Fatal("expected cache hit after Get")
	}
	chained, err := s.chain.Get("ns", "k")
	if err != nil {
		t.Fatalf("chain.Get: %v", err)
	}
	if cached.Value != chained.Value {
		t.Fatalf("cache/chain disagree: %v != %v", cached.Value, chained.Value)
	}
}

func TestNamespaceRootAdvancesOnPut(t *testing.T) {
	s := newStore(t)
	root0 := s.NamespaceRoot("ns")
	s.Put("ns", "k", "v", nil)
	root1 := s.NamespaceRoot("ns")

	if root0.ID == root1.ID {
		t.Fatal("expected namespace root to advance after a write")
	}
}

func TestSubscribePublishesPutEvent(t *testing.T) {
	s := newStore(t)
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Put("ns", "k", "v", nil)

	ev := <-events
	if ev.Namespace != "ns" || ev.Key != "k" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestStatsAggregation(t *testing.T) {
	s := newStore(t)
	s.Put("ns", "a", 1, nil)
	s.Put("ns", "b", 2, nil)
	s.Put("ns", "a", 3, nil)

	stats := s.Stats()
	if stats.KeyCount != 2 {
		t.Fatalf("expected 2 keys, got %d", stats.KeyCount)
	}
	if stats.VersionCount != 3 {
		t.Fatalf("expected 3 versions, got %d", stats.VersionCount)
	}
	if stats.DistinctionCount == 0 {
		t.Fatal("expected nonzero distinction count")
	}
}

func TestPersistenceReplay(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Put("ns", "k", map[string]any{"v": float64(1)}, nil)
	s1.Put("ns", "k", map[string]any{"v": float64(2)}, nil)
	s1.Delete("ns", "other")
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get("ns", "k")
	if err != nil {
		t.Fatalf("Get after replay: %v", err)
	}
	m, ok := got.Value.(map[string]any)
	if !ok || m["v"] != float64(2) {
		t.Fatalf("expected replayed value {v:2}, got %v", got.Value)
	}

	hist := s2.History("ns", "k")
	if len(hist) != 2 {
		t.Fatalf("expected 2 replayed versions, got %d", len(hist))
	}

	other, err := s2.Get("ns", "other")
	if err != nil || !chain.IsTombstone(other.Value) {
		t.Fatalf("expected replayed tombstone, got %v err=%v", other.Value, err)
	}
}

func TestPersistenceNodeIDStableAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v1, err := s1.Put("ns", "k", "v", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	v2, err := s2.Put("ns", "k", "v2", nil)
	if err != nil {
		t.Fatalf("Put after reopen: %v", err)
	}
	if v1.WriteID.NodeID != v2.WriteID.NodeID {
		t.Fatalf("expected the persisted node id to survive reopen, got %d then %d",
			v1.WriteID.NodeID, v2.WriteID.NodeID)
	}
	if !v1.WriteID.Less(v2.WriteID) {
		t.Fatal("expected write ids to stay monotonic across reopen")
	}
}

func TestPersistenceUnicodeNamespace(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Put("日本語 ns", "key", "v", nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	logs := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			logs++
		}
	}
	if logs != 1 {
		t.Fatalf("expected 1 log file, got %d", logs)
	}

	s2, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Get("日本語 ns", "key"); err != nil {
		t.Fatalf("expected replayed unicode namespace to round-trip: %v", err)
	}
}
