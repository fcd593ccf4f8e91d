package korudelta

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	db, err := Open(Config{})
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Put("users", "alice", map[string]any{"name": "Alice"})
	require.NoError(t, err)

	got, err := db.Get("users", "alice")
	require.NoError(t, err)
	assert.Equal(t, v.WriteID, got.WriteID)
}

func TestGetUnknownKeyReturnsKeyNotFound(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	_, err := db.Get("ns", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDeleteThenGetReturnsNull(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Put("ns", "k", "hello")
	_, err := db.Delete("ns", "k")
	require.NoError(t, err)

	got, err := db.Get("ns", "k")
	require.NoError(t, err)
	assert.Nil(t, got.Value)

	hist := db.History("ns", "k")
	assert.Len(t, hist, 2)
}

func TestVersioningHistory(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Put("ns", "k", map[string]any{"v": 1})
	db.Put("ns", "k", map[string]any{"v": 2})

	hist := db.History("ns", "k")
	require.Len(t, hist, 2)
	tail, head := hist[0], hist[1]
	require.NotNil(t, tail.Previous)
	assert.Equal(t, head.WriteID, *tail.Previous)
}

func TestStatsAggregation(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	db.Put("ns", "a", 1)
	db.Put("ns", "b", 2)
	db.Put("ns", "a", 3)

	stats := db.Stats()
	assert.Equal(t, 2, stats.KeyCount)
	assert.EqualValues(t, 3, stats.VersionCount)
}

func TestSubscribePublishesEventsWithExternalisedTombstone(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	events, unsubscribe := db.Subscribe()
	defer unsubscribe()

	db.Put("ns", "k", "v")
	putEvent := <-events
	assert.Equal(t, "ns", putEvent.Namespace)
	assert.Equal(t, "k", putEvent.Key)
	assert.Equal(t, EventPut, putEvent.Kind)

	db.Delete("ns", "k")
	delEvent := <-events
	assert.Equal(t, EventDelete, delEvent.Kind)
	assert.Nil(t, delEvent.Value)
}

func TestBoundaryValuesRoundTripExactly(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	// Values are given in their canonical structured-data forms (the
	// shapes Get returns after canonicalisation), so equality is exact.
	cases := []struct {
		name  string
		value any
	}{
		{"empty string", ""},
		{"empty object", map[string]any{}},
		{"empty array", []any{}},
		{"null", nil},
		{"zero", float64(0)},
		{"false", false},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := fmt.Sprintf("k%d", i)
			_, err := db.Put("boundary", key, tc.value)
			require.NoError(t, err)

			got, err := db.Get("boundary", key)
			require.NoError(t, err)
			assert.Equal(t, tc.value, got.Value)
		})
	}
}

func TestUnicodeAndWhitespaceKeysAcceptedVerbatim(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	keys := []string{
		"日本語 キー",
		" leading space",
		"trailing space ",
		"tab\there",
		"new\nline",
		"emoji 🔑",
	}
	for i, key := range keys {
		_, err := db.Put("ns", key, i)
		require.NoError(t, err)
	}

	for i, key := range keys {
		require.True(t, db.Contains("ns", key), "Contains(%q)", key)
		got, err := db.Get("ns", key)
		require.NoError(t, err)
		assert.Equal(t, float64(i), got.Value)
	}

	listed := db.ListKeys("ns")
	assert.Len(t, listed, len(keys))
	for _, key := range keys {
		assert.Contains(t, listed, key)
	}
}

func TestLargeValueRoundTrip(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	large := strings.Repeat("korudelta ", 16<<10) // ~160 KB
	require.GreaterOrEqual(t, len(large), 100<<10)

	_, err := db.Put("ns", "big", large)
	require.NoError(t, err)

	got, err := db.Get("ns", "big")
	require.NoError(t, err)
	assert.Equal(t, large, got.Value)
}

func TestManyKeysPerNamespacePreserveInvariants(t *testing.T) {
	db, _ := Open(Config{})
	defer db.Close()

	const n = 10_000
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%05d", i)
		_, err := db.Put("bulk", key, float64(i))
		require.NoError(t, err)
		_, err = db.Put("bulk", key, float64(i+1))
		require.NoError(t, err)
	}

	require.Len(t, db.ListKeys("bulk"), n)

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%05d", i)
		got, err := db.Get("bulk", key)
		require.NoError(t, err)
		require.Equal(t, float64(i+1), got.Value, "key %s", key)

		hist := db.History("bulk", key)
		require.Len(t, hist, 2, "key %s", key)
		require.NotNil(t, hist[0].Previous, "key %s", key)
		require.Equal(t, hist[1].WriteID, *hist[0].Previous, "key %s", key)
		require.True(t, hist[1].WriteID.Less(hist[0].WriteID), "key %s", key)
	}
}

func TestReplicaExchangeConverges(t *testing.T) {
	nodeA, _ := Open(Config{})
	defer nodeA.Close()
	nodeB, _ := Open(Config{})
	defer nodeB.Close()

	// Concurrent writes to the same key on two nodes, then a full
	// exchange of both writes in opposite orders.
	va, err := nodeA.Put("n", "k", "A")
	require.NoError(t, err)
	vb, err := nodeB.Put("n", "k", "B")
	require.NoError(t, err)

	_, err = nodeA.ApplyRemote("n", "k", vb.WriteID, vb.Value)
	require.NoError(t, err)
	_, err = nodeB.ApplyRemote("n", "k", va.WriteID, va.Value)
	require.NoError(t, err)

	gotA, err := nodeA.Get("n", "k")
	require.NoError(t, err)
	gotB, err := nodeB.Get("n", "k")
	require.NoError(t, err)

	assert.Equal(t, gotA.WriteID, gotB.WriteID)
	assert.Equal(t, gotA.Value, gotB.Value)

	// The winner is the maximal write id, on both nodes.
	winner := va
	if va.WriteID.Less(vb.WriteID) {
		winner = vb
	}
	assert.Equal(t, winner.WriteID, gotA.WriteID)
}

func TestPersistenceReplayAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(Config{DataDir: dir})
	require.NoError(t, err)
	db1.Put("ns", "k", map[string]any{"v": 1})
	db1.Put("ns", "k", map[string]any{"v": 2})
	require.NoError(t, db1.Close())

	db2, err := Open(Config{DataDir: dir})
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get("ns", "k")
	require.NoError(t, err)
	m, ok := got.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), m["v"])

	hist := db2.History("ns", "k")
	assert.Len(t, hist, 2)
}
