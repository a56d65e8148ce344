package openai

import (
	"context"
	"fmt"
	"time"
)

// Embedder adapts Client to the single-text embedding provider used by the
// embedding cache. Each call gets its own timeout.
type Embedder struct {
	client  *Client
	timeout time.Duration
}

// NewEmbedder creates an Embedder. A non-positive timeout disables the per-call limit.
func NewEmbedder(client *Client, timeout time.Duration) *Embedder {
	return &Embedder{client: client, timeout: timeout}
}

// Embed returns the embedding of text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vectors, err := e.client.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// Dimensions returns the vector length requested from the provider
func (e *Embedder) Dimensions() int {
	return e.client.dimensions
}
