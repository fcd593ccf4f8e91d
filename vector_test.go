package korudelta

import (
	"os"
	"testing"
)

func TestEmbedThenGetEmbedRoundTrip(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	data := []float32{1, 0, 0}
	if _, err := db.Embed("docs", "a", data, "test-model", nil); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	vec, err := db.GetEmbed("docs", "a")
	if err != nil {
		t.Fatalf("GetEmbed: %v", err)
	}
	if vec == nil {
		t.Fatal("expected a vector, got nil")
	}
	if vec.Model != "test-model" || len(vec.Data) != 3 {
		t.Fatalf("unexpected vector: %+v", vec)
	}
}

func TestGetEmbedOnPlainValueReturnsNil(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Put("ns", "k", map[string]any{"not": "a vector"})
	vec, err := db.GetEmbed("ns", "k")
	if err != nil {
		t.Fatalf("GetEmbed: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil for a non-vector value, got %+v", vec)
	}
}

func TestGetEmbedOnUnknownKeyReturnsNil(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	vec, err := db.GetEmbed("ns", "ghost")
	if err != nil {
		t.Fatalf("GetEmbed: %v", err)
	}
	if vec != nil {
		t.Fatal("expected nil for unknown key")
	}
}

func TestEmbedDeduplicatesSharedNode(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	data := []float32{0, 1, 0}
	db.Embed("docs", "a", data, "m", nil)
	db.Embed("docs", "b", data, "m", nil)

	results, err := db.EmbedSearch(nil, []float32{0, 1, 0}, EmbedSearchOptions{TopK: 5})
	if err != nil {
		t.Fatalf("EmbedSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one shared node across both keys, got %d results", len(results))
	}
}

func TestDeleteEmbedRemovesMappingButKeepsNode(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	data := []float32{1, 1, 0}
	db.Embed("docs", "a", data, "m", nil)
	db.Embed("docs", "b", data, "m", nil)

	if _, err := db.DeleteEmbed("docs", "a"); err != nil {
		t.Fatalf("DeleteEmbed: %v", err)
	}

	vec, err := db.GetEmbed("docs", "a")
	if err != nil {
		t.Fatalf("GetEmbed: %v", err)
	}
	if vec != nil {
		t.Fatal("expected nil vector after DeleteEmbed")
	}

	results, err := db.EmbedSearch(nil, []float32{1, 1, 0}, EmbedSearchOptions{TopK: 5})
	if err != nil {
		t.Fatalf("EmbedSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatal("expected the shared node to persist because b still maps to it")
	}
}

func TestEmbedSearchFiltersByNamespace(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Embed("ns-a", "k1", []float32{1, 0}, "m", nil)
	db.Embed("ns-b", "k2", []float32{0, 1}, "m", nil)

	ns := "ns-a"
	results, err := db.EmbedSearch(&ns, []float32{1, 0}, EmbedSearchOptions{TopK: 5})
	if err != nil {
		t.Fatalf("EmbedSearch: %v", err)
	}
	for _, r := range results {
		if r.Node.Vector.Model != "m" {
			t.Fatalf("unexpected result: %+v", r)
		}
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result restricted to ns-a, got %d", len(results))
	}
}

func TestEmbedSearchFiltersByModel(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Embed("ns", "k1", []float32{1, 0}, "model-a", nil)
	db.Embed("ns", "k2", []float32{1, 0.01}, "model-b", nil)

	results, err := db.EmbedSearch(nil, []float32{1, 0}, EmbedSearchOptions{TopK: 5, ModelFilter: "model-a"})
	if err != nil {
		t.Fatalf("EmbedSearch: %v", err)
	}
	for _, r := range results {
		if r.Node.Vector.Model != "model-a" {
			t.Fatalf("expected only model-a results, got %+v", r)
		}
	}
}

func TestEmbedSearchForcedTier(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Embed("ns", "k1", []float32{1, 0, 0}, "m", nil)

	tier := TierCold
	results, err := db.EmbedSearch(nil, []float32{1, 0, 0}, EmbedSearchOptions{TopK: 5, Tier: &tier})
	if err != nil {
		t.Fatalf("EmbedSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result from a forced cold scan, got %d", len(results))
	}
	if results[0].Tier != TierCold {
		t.Fatalf("expected TierCold, got %v", results[0].Tier)
	}
}

func TestEmbedPersistsAndRebuildsGraphWithoutCheckpoint(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data := []float32{1, 2, 3}
	if _, err := db1.Embed("docs", "a", data, "m", nil); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	// Close writes a checkpoint file; remove it so the next Open has to
	// take the rebuild-from-values path.
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.Remove(checkpointPath(dir)); err != nil {
		t.Fatalf("remove checkpoint: %v", err)
	}

	db2, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	vec, err := db2.GetEmbed("docs", "a")
	if err != nil {
		t.Fatalf("GetEmbed after reopen: %v", err)
	}
	if vec == nil {
		t.Fatal("expected embedding to survive persistence and reopen")
	}

	results, err := db2.EmbedSearch(nil, data, EmbedSearchOptions{TopK: 1})
	if err != nil {
		t.Fatalf("EmbedSearch after reopen: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the reopened graph to find the persisted vector, got %d results", len(results))
	}
}
