package cache

import (
	"context"
	"testing"
	"time"

	"github.com/swyrknt/korudelta/internal/chain"
)

func versioned(value any) chain.Versioned {
	return chain.Versioned{Value: value}
}

func TestPutThenGetHitsHot(t *testing.T) {
	c := New(Config{HotSize: 4, WarmSize: 16, ColdSize: 64})
	c.Put("users", "alice", versioned("v1"))

	v, ok := c.Get("users", "alice")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.Value != "v1" {
		t.Fatalf("expected v1, got %v", v.Value)
	}
	if c.Stats().HotHits != 1 {
		t.Fatalf("expected 1 hot hit, got %d", c.Stats().HotHits)
	}
}

func TestGetMissReportsMiss(t *testing.T) {
	c := New(Config{})
	if _, ok := c.Get("users", "ghost"); ok {
		t.Fatal("expected miss")
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", c.Stats().Misses)
	}
}

func TestHotOverflowCascadesToWarm(t *testing.T) {
	c := New(Config{HotSize: 2, WarmSize: 16, ColdSize: 64})
	c.Put("ns", "a", versioned(1))
	c.Put("ns", "b", versioned(2))
	c.Put("ns", "c", versioned(3)) // should evict probationary LRU from hot into warm

	// One of a/b/c must have cascaded down; a full miss across all
	// tiers would be a bug, so every key must still resolve somewhere.
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get("ns", k); !ok {
			t.Fatalf("expected %s to be found in some tier", k)
		}
	}
}

func TestPromotionOnWarmHit(t *testing.T) {
	c := New(Config{HotSize: 2, WarmSize: 16, ColdSize: 64})
	c.Put("ns", "a", versioned(1))
	c.Put("ns", "b", versioned(2))
	c.Put("ns", "c", versioned(3)) // evicts one of a/b from hot into warm

	before := c.Stats().Promotions
	// Touch everything; any warm hit should record a promotion.
	c.Get("ns", "a")
	c.Get("ns", "b")
	c.Get("ns", "c")
	after := c.Stats().Promotions

	if after <= before {
		t.Fatal("expected at least one promotion from a non-hot tier")
	}
}

func TestInvalidateRemovesFromAllTiers(t *testing.T) {
	c := New(Config{HotSize: 4, WarmSize: 16, ColdSize: 64})
	c.Put("ns", "a", versioned(1))
	c.Invalidate("ns", "a")

	if _, ok := c.Get("ns", "a"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestSegmentedLRUPromotesOnSecondHit(t *testing.T) {
	c := New(Config{HotSize: 4, WarmSize: 16, ColdSize: 64})
	c.Put("ns", "a", versioned(1))

	// The first hit leaves a probationary; the second promotes it to
	// protected.
	for i := 0; i < 2; i++ {
		if _, ok := c.Get("ns", "a"); !ok {
			t.Fatal("expected hit")
		}
	}

	// Fill hot beyond capacity with fresh probationary entries; a's
	// protected status should keep it resident.
	for i := 0; i < 10; i++ {
		c.Put("ns", string(rune('b'+i)), versioned(i))
	}

	if _, ok := c.Get("ns", "a"); !ok {
		t.Fatal("expected protected entry to survive probationary churn")
	}
}

func TestConsolidateDemotesIdleProbationaryEntries(t *testing.T) {
	// Protected takes four fifths of Hot, so HotSize 40 leaves exactly 8
	// probationary slots.
	c := New(Config{HotSize: 40, WarmSize: 16, ColdSize: 64})
	for i := 0; i < 8; i++ {
		c.Put("ns", string(rune('a'+i)), versioned(i))
	}

	before := len(c.hot.entries)
	if before != 8 {
		t.Fatalf("expected 8 probationary entries before consolidation, got %d", before)
	}

	c.consolidate()

	if len(c.hot.entries) >= before {
		t.Fatal("expected consolidation to demote some idle probationary entries")
	}
}

func TestRunMaintenanceStopsOnCancel(t *testing.T) {
	c := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.RunMaintenance(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunMaintenance to return promptly after cancellation")
	}
}

func TestColdTierBoundedSize(t *testing.T) {
	cold := newColdTier(4)
	for i := 0; i < 20; i++ {
		cold.put(FullKey{Namespace: "ns", Key: string(rune('a' + i))}, versioned(i))
	}
	if len(cold.entries) > 4 {
		t.Fatalf("expected cold tier to stay bounded at 4, got %d", len(cold.entries))
	}
}
