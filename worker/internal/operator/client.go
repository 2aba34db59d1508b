package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the HTTP model server. It implements both Detector
// and Embedder; the server hosts both models behind one endpoint pair.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type detectRequest struct {
	// Frames are base64 JPEG bytes; encoding/json handles []byte natively.
	Frames [][]byte `json:"frames"`
}

type detectResponse struct {
	Results [][]detectionDTO `json:"results"`
}

type detectionDTO struct {
	BBox     [4]float64 `json:"bbox"`
	Conf     float64    `json:"conf"`
	FaceJPEG []byte     `json:"face_jpeg,omitempty"`
}

type embedRequest struct {
	Crops [][]byte `json:"crops"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewClient builds a model server client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Detect implements Detector against POST /v1/detect.
func (c *Client) Detect(ctx context.Context, frames [][]byte) ([][]RawDetection, error) {
	var resp detectResponse
	if err := c.post(ctx, "/v1/detect", detectRequest{Frames: frames}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(frames) {
		return nil, fmt.Errorf("operator: detect returned %d results for %d frames",
			len(resp.Results), len(frames))
	}
	out := make([][]RawDetection, len(resp.Results))
	for i, dets := range resp.Results {
		out[i] = make([]RawDetection, len(dets))
		for j, d := range dets {
			out[i][j] = RawDetection{BBox: d.BBox, Conf: d.Conf, FaceJPEG: d.FaceJPEG}
		}
	}
	return out, nil
}

// Embed implements Embedder against POST /v1/embed.
func (c *Client) Embed(ctx context.Context, crops [][]byte) ([][]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/v1/embed", embedRequest{Crops: crops}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(crops) {
		return nil, fmt.Errorf("operator: embed returned %d embeddings for %d crops",
			len(resp.Embeddings), len(crops))
	}
	return resp.Embeddings, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("operator: marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("operator: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("operator: send request: %w", err)
	}
	defer resp.Body.Close()

	// The model server reports accelerator memory exhaustion as 507.
	if resp.StatusCode == http.StatusInsufficientStorage {
		io.Copy(io.Discard, resp.Body)
		return ErrOOM
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("operator: %s returned %d: %s", path, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("operator: decode response: %w", err)
	}
	return nil
}
