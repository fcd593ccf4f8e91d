package snsw

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/swyrknt/korudelta/internal/kerr"
)

// Vector is an embedding with the model that produced it. ContentHash
// is derived, not supplied: two Vectors with equal (Model, quantised
// Data) always produce the same ContentHash and therefore share one
// Node.
type Vector struct {
	Data        []float32
	Model       string
	ContentHash string
}

// quantizeScale controls how aggressively near-duplicate floats are
// folded together before hashing. 1e4 keeps four decimal digits of
// precision, enough to treat floating-point noise from re-embedding
// the same input as an exact duplicate.
const quantizeScale = 1e4

// validate rejects vectors with non-finite components before they
// touch the graph.
func (v Vector) validate() error {
	if len(v.Data) == 0 {
		return kerr.New(kerr.InvalidData, "embedding vector has no components")
	}
	for i, f := range v.Data {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return kerr.New(kerr.InvalidData, "embedding vector component %d is not finite", i)
		}
	}
	return nil
}

// withContentHash returns a copy of v with ContentHash populated.
func (v Vector) withContentHash() Vector {
	v.ContentHash = computeContentHash(v.Data, v.Model)
	return v
}

func computeContentHash(data []float32, model string) string {
	h := xxhash.New()
	buf := make([]byte, 8)
	for _, f := range data {
		q := int64(math.Round(float64(f) * quantizeScale))
		binary.LittleEndian.PutUint64(buf, uint64(q))
		_, _ = h.Write(buf)
	}
	_, _ = h.Write([]byte(model))
	sum := h.Sum64()

	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, sum)
	return hex.EncodeToString(out)
}

// cosineSimilarity returns the cosine similarity of a and b, in
// [-1, 1], assuming equal length (the caller is responsible for the
// dimension check). This is the scale search results report their
// score on.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// proximity maps a cosine similarity from [-1, 1] into [0, 1], for the
// confidence and factor-score math that needs a bounded non-negative
// scale. Never reported as a result's score.
func proximity(cos float64) float64 {
	return (cos + 1) / 2
}
