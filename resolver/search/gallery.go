package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/trinetra-vision/trinetra/common/event"
)

// galleryMaxNeighbors is the HNSW M parameter.
const galleryMaxNeighbors = 16

// Gallery is an in-process HNSW similarity index keyed by customer ID.
// It backs local mode, the cli gallery loader, and tests. Safe for
// concurrent use.
type Gallery struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	vectors map[string][]float32
	vip     map[string]bool
}

// NewGallery builds an empty gallery.
func NewGallery() *Gallery {
	g := hnsw.NewGraph[string]()
	g.M = galleryMaxNeighbors
	g.Ml = 1.0 / float64(galleryMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return &Gallery{
		graph:   g,
		vectors: make(map[string][]float32),
		vip:     make(map[string]bool),
	}
}

// Add registers or replaces a customer's gallery embedding.
func (g *Gallery) Add(customerID string, vector []float32, vip bool) error {
	if len(vector) != event.EmbeddingDim {
		return fmt.Errorf("search: gallery vector for %s has dim %d, want %d",
			customerID, len(vector), event.EmbeddingDim)
	}
	if !event.IsUnitNorm(vector) {
		return fmt.Errorf("search: gallery vector for %s is not unit-norm", customerID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graph.Add(hnsw.MakeNode(customerID, vector))
	g.vectors[customerID] = vector
	g.vip[customerID] = vip
	return nil
}

// Len returns the number of gallery identities.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vectors)
}

// TopK implements Searcher. ef is accepted for interface parity; the
// in-process graph searches with its build-time parameters.
func (g *Gallery) TopK(ctx context.Context, vector []float32, k, ef int) ([]Match, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.vectors) == 0 {
		return nil, nil
	}

	neighbors := g.graph.Search(vector, k)
	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		stored, ok := g.vectors[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{
			CustomerID: n.Key,
			Score:      event.Cosine(vector, stored),
			VIP:        g.vip[n.Key],
		})
	}
	return matches, nil
}

// UpdateVector implements Searcher.
func (g *Gallery) UpdateVector(ctx context.Context, customerID string, vector []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.vectors[customerID]; !ok {
		return fmt.Errorf("search: unknown customer %s", customerID)
	}
	g.graph.Add(hnsw.MakeNode(customerID, vector))
	g.vectors[customerID] = vector
	return nil
}

// Vector returns the stored embedding for a customer, or nil.
func (g *Gallery) Vector(customerID string) []float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.vectors[customerID]
}
