// Package embeddings integrates the external embedding service behind the
// minimal "texts in, vectors out" contract the embeddings syncer consumes.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the embedding service over HTTP+JSON.
type Client struct {
	baseURL   string
	batchSize int
	client    *http.Client
	log       zerolog.Logger
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Error   string      `json:"error"`
}

// NewClient creates an embedding client. batchSize is the provider-declared
// maximum number of texts per call.
func NewClient(baseURL string, batchSize int, log zerolog.Logger) *Client {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Client{
		baseURL:   baseURL,
		batchSize: batchSize,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log.With().Str("client", "embeddings").Logger(),
	}
}

// MaxBatchSize returns the provider's declared batch ceiling.
func (c *Client) MaxBatchSize() int { return c.batchSize }

// Embed converts texts to vectors, one vector per input in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embed service error: %s", out.Error)
	}
	if len(out.Vectors) != len(texts) {
		return nil, fmt.Errorf("embed service returned %d vectors for %d texts", len(out.Vectors), len(texts))
	}
	return out.Vectors, nil
}
