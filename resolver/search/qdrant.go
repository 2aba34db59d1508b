package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Qdrant is a minimal HTTP client for the points search and upsert
// endpoints. Point IDs are UUIDv5 of the customer ID so upserts are
// idempotent; the customer ID itself travels in the payload.
type Qdrant struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// customerNamespace seeds the customer-id -> point-id UUID derivation.
var customerNamespace = uuid.MustParse("7a3c9d52-1f24-4b5e-9c1a-3f8de2a41c00")

type searchRequest struct {
	Vector      []float32    `json:"vector"`
	Limit       int          `json:"limit"`
	Params      searchParams `json:"params"`
	WithPayload bool         `json:"with_payload"`
}

type searchParams struct {
	HnswEF int `json:"hnsw_ef"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

type scoredPoint struct {
	Score   float64      `json:"score"`
	Payload pointPayload `json:"payload"`
}

type pointPayload struct {
	CustomerID string `json:"customer_id"`
	VIP        bool   `json:"vip"`
}

type upsertRequest struct {
	Points []upsertPoint `json:"points"`
}

type upsertPoint struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

type vectorUpdateRequest struct {
	Points []vectorUpdatePoint `json:"points"`
}

type vectorUpdatePoint struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// NewQdrant builds a client for one collection.
func NewQdrant(baseURL, collection string, timeout time.Duration) *Qdrant {
	return &Qdrant{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// TopK implements Searcher against POST /collections/{c}/points/search.
func (q *Qdrant) TopK(ctx context.Context, vector []float32, k, ef int) ([]Match, error) {
	req := searchRequest{
		Vector:      vector,
		Limit:       k,
		Params:      searchParams{HnswEF: ef},
		WithPayload: true,
	}
	var resp searchResponse
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		if p.Payload.CustomerID == "" {
			continue
		}
		matches = append(matches, Match{
			CustomerID: p.Payload.CustomerID,
			Score:      p.Score,
			VIP:        p.Payload.VIP,
		})
	}
	return matches, nil
}

// UpdateVector implements Searcher against the vectors-only update
// endpoint, which leaves the payload (and its VIP flag) intact.
func (q *Qdrant) UpdateVector(ctx context.Context, customerID string, vector []float32) error {
	req := vectorUpdateRequest{
		Points: []vectorUpdatePoint{{
			ID:     uuid.NewSHA1(customerNamespace, []byte(customerID)).String(),
			Vector: vector,
		}},
	}
	path := fmt.Sprintf("/collections/%s/points/vectors?wait=true", q.collection)
	return q.do(ctx, http.MethodPut, path, req, nil)
}

// Upsert writes one gallery point.
func (q *Qdrant) Upsert(ctx context.Context, customerID string, vector []float32, vip bool) error {
	req := upsertRequest{
		Points: []upsertPoint{{
			ID:      uuid.NewSHA1(customerNamespace, []byte(customerID)).String(),
			Vector:  vector,
			Payload: pointPayload{CustomerID: customerID, VIP: vip},
		}},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	return q.do(ctx, http.MethodPut, path, req, nil)
}

// Ping verifies the backend is reachable and the collection exists.
func (q *Qdrant) Ping(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", q.collection)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("search: build request: %w", err)
	}
	resp, err := q.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("search: ping: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search: collection %s returned %d", q.collection, resp.StatusCode)
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist. A 409
// from a concurrent create is treated as success.
func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", q.collection)
	err := q.do(ctx, http.MethodPut, path, body, nil)
	if err == nil {
		return nil
	}
	if pingErr := q.Ping(ctx); pingErr == nil {
		return nil
	}
	return err
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("search: marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("search: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("search: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search: %s %s returned %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("search: decode response: %w", err)
	}
	return nil
}
