package recognition

import "fmt"

// MatchThreshold is the fixed qualification threshold for the hybrid score.
// An identity qualifies as a match iff its score is strictly above it.
const MatchThreshold = 0.75

// Hybrid score weights. Fixed constants, not configurable: the threshold
// above is calibrated against exactly this combination.
const (
	cosineWeight    = 0.6
	euclideanWeight = 0.2
	manhattanWeight = 0.2
)

// HybridScore computes the composite similarity score between a probe
// embedding and a candidate reference embedding:
//
//	score = 0.6*cos + 0.2*(1/(1+euclidean)) + 0.2*(1/(1+manhattan))
//
// The inverse-distance terms bound the Euclidean and Manhattan contributions
// to (0, 1], so direction similarity dominates while large magnitude
// differences still lower the score. Identical vectors score exactly 1.0.
//
// Both vectors must be exactly EmbeddingDim long; otherwise
// ErrDimensionMismatch is returned.
func HybridScore(probe, candidate []float32) (float64, error) {
	if len(probe) != EmbeddingDim || len(candidate) != EmbeddingDim {
		return 0, fmt.Errorf("%w: probe has %d values, candidate has %d, want %d",
			ErrDimensionMismatch, len(probe), len(candidate), EmbeddingDim)
	}

	cos := CosineSimilarity(probe, candidate)
	euc := EuclideanDistance(probe, candidate)
	man := ManhattanDistance(probe, candidate)

	return cosineWeight*cos + euclideanWeight/(1+euc) + manhattanWeight/(1+man), nil
}
