// Package search abstracts the similarity gallery: top-k cosine lookup
// over L2-normalized 512-d face embeddings plus the EMA writeback used
// to keep gallery vectors current. Backends: a Qdrant HTTP client for
// production and an in-process HNSW gallery for local mode and tests.
package search

import "context"

// Match is one gallery candidate, cosine score descending.
type Match struct {
	CustomerID string
	Score      float64
	// VIP mirrors the gallery payload flag.
	VIP bool
}

// Searcher is the similarity backend contract. ef is the HNSW search
// breadth; larger values trade latency for recall.
type Searcher interface {
	TopK(ctx context.Context, vector []float32, k, ef int) ([]Match, error)
	UpdateVector(ctx context.Context, customerID string, vector []float32) error
}
