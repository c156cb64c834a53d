package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the HNSW graph.
const hnswMaxNeighbors = 16

// Neighbor is one approximate nearest neighbor result.
type Neighbor struct {
	IdentityID string
	// Similarity is cosine similarity in [-1, 1], higher is closer.
	Similarity float64
}

// IdentityIndex is an in-memory approximate nearest neighbor index over
// identity reference embeddings. It backs duplicate-enrollment checks and the
// similar-identities lookup; the authoritative data stays in the identity
// repository and the index is rebuilt from it at startup.
type IdentityIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	present map[string]struct{}
}

// NewIdentityIndex creates an empty index.
func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{
		present: make(map[string]struct{}),
	}
}

func newIdentityGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given identities. Identities
// without a reference embedding are skipped.
func (idx *IdentityIndex) Build(identities []Identity) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	g := newIdentityGraph()
	idx.present = make(map[string]struct{}, len(identities))
	for i := range identities {
		identity := &identities[i]
		if !identity.Trained() {
			continue
		}
		g.Add(hnsw.MakeNode(identity.ID, identity.Embedding))
		idx.present[identity.ID] = struct{}{}
	}
	idx.graph = g
}

// Upsert adds or replaces an identity's embedding in the index. Re-adding an
// existing key updates the stored vector.
func (idx *IdentityIndex) Upsert(identityID string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph == nil {
		idx.graph = newIdentityGraph()
	}
	idx.graph.Add(hnsw.MakeNode(identityID, embedding))
	idx.present[identityID] = struct{}{}
}

// Delete removes an identity from the index. The graph has no true deletion;
// deleted keys are filtered out of search results instead.
func (idx *IdentityIndex) Delete(identityID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.present, identityID)
}

// Search returns up to k indexed identities closest to the query embedding,
// most similar first.
func (idx *IdentityIndex) Search(query []float32, k int) ([]Neighbor, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil {
		return nil, errors.New("identity index not initialized")
	}

	// Over-fetch to compensate for tombstoned entries.
	overfetch := k
	if gap := idx.graph.Len() - len(idx.present); gap > 0 {
		overfetch += gap
	}
	nodes := idx.graph.Search(query, overfetch)

	neighbors := make([]Neighbor, 0, k)
	for _, n := range nodes {
		if _, ok := idx.present[n.Key]; !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			IdentityID: n.Key,
			Similarity: 1 - float64(hnsw.CosineDistance(query, n.Value)),
		})
		if len(neighbors) == k {
			break
		}
	}
	return neighbors, nil
}

// Count returns the number of searchable identities in the index.
func (idx *IdentityIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.present)
}
