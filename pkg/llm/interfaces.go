// Package llm provides the OpenAI-compatible embedding client used to turn
// column text and free-text questions into vectors.
package llm

import (
	"context"
)

// EmbeddingClient defines the embedding operations the catalog needs.
// Use this interface for dependency injection to enable mocking in tests.
type EmbeddingClient interface {
	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// CreateEmbeddings generates embeddings for multiple inputs. The result
	// is index-aligned with inputs.
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure Client implements EmbeddingClient at compile time.
var _ EmbeddingClient = (*Client)(nil)
