// Package recognition implements the face matching and adaptive training
// engine: hybrid similarity scoring, the match threshold policy, the
// recency-deduplication window and the online reference-embedding trainer.
package recognition

import (
	"errors"
	"math"
)

// EmbeddingDim is the fixed dimension of face embeddings produced by the
// external extraction service (dlib-style 128-value descriptors).
const EmbeddingDim = 128

// ErrDimensionMismatch is returned when a vector's length differs from
// EmbeddingDim or from its comparison partner.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value in [-1, 1] where 1 means identical direction.
// Returns 0 for empty, mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / math.Sqrt(normA*normB)
	// Clamp to [-1, 1] to handle floating point errors
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ManhattanDistance computes the L1 (cityblock) distance between two vectors.
func ManhattanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// Mean computes the element-wise arithmetic mean of the given vectors.
// All vectors must share the same length. Returns nil for an empty input.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	acc := make([]float64, dim)
	for _, v := range vectors {
		for i := range v {
			acc[i] += float64(v[i])
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i := range acc {
		mean[i] = float32(acc[i] / n)
	}
	return mean
}
