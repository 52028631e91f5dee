// Package huggingface embeds text with the Hugging Face Inference
// feature-extraction pipeline.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"docqa/internal/retry"
)

const (
	// DefaultBaseURL is the serverless inference root; the model path is appended.
	DefaultBaseURL = "https://router.huggingface.co/hf-inference/models"

	// DefaultModel matches the embedding model the original app used.
	DefaultModel = "BAAI/bge-small-en-v1.5"
)

// Client calls the feature-extraction endpoint of a hosted sentence-embedding model.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int

	mu        sync.Mutex
	dimension int
}

// Config configures the feature-extraction client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	// MaxRetries is the number of extra attempts on 429, 5xx and transport errors.
	MaxRetries int
}

// NewClient creates a client. The API key is optional for public endpoints.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "huggingface:" + c.model }

// Prepare is a no-op; the model is hosted.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the vector size seen on the first successful call.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// Embed returns the sentence embedding for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/pipeline/feature-extraction", c.baseURL, c.model)

	var payload []byte
	err = retry.Do(ctx, c.maxRetries, func() error {
		payload, err = c.post(ctx, url, body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface embeddings failed: %w", err)
	}

	vec, err := decodeEmbedding(payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(vec)
	}
	c.mu.Unlock()
	return vec, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{
			Code:       resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("huggingface returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}
	return payload, nil
}

// decodeEmbedding accepts a pooled vector ([d]), a single-row batch ([[d]]) or
// token embeddings ([[t][d]] or [t][d]) which are mean-pooled.
func decodeEmbedding(payload []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(payload, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}
	var rows [][]float32
	if err := json.Unmarshal(payload, &rows); err == nil && len(rows) > 0 {
		if len(rows) == 1 {
			return rows[0], nil
		}
		return meanPool(rows)
	}
	var batch [][][]float32
	if err := json.Unmarshal(payload, &batch); err == nil && len(batch) > 0 {
		return meanPool(batch[0])
	}
	return nil, errors.New("no embedding returned")
}

func meanPool(rows [][]float32) ([]float32, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("no embedding returned")
	}
	out := make([]float32, len(rows[0]))
	for _, r := range rows {
		if len(r) != len(out) {
			return nil, fmt.Errorf("ragged token embeddings: %d vs %d", len(r), len(out))
		}
		for i, v := range r {
			out[i] += v
		}
	}
	n := float32(len(rows))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}
