package llm

import (
	"context"
	"sync/atomic"
)

// MockEmbeddingClient is a configurable mock for testing embedding callers.
// Set the function fields to control behavior in tests. It is safe for
// concurrent use as long as the function fields are.
type MockEmbeddingClient struct {
	// CreateEmbeddingFunc is called when CreateEmbedding is invoked.
	// If nil, CreateEmbeddingsFunc is used with a single input.
	CreateEmbeddingFunc func(ctx context.Context, input string) ([]float32, error)

	// CreateEmbeddingsFunc is called when CreateEmbeddings is invoked.
	// If nil, returns one empty vector per input and nil error.
	CreateEmbeddingsFunc func(ctx context.Context, inputs []string) ([][]float32, error)

	// Model is returned by GetModel. Defaults to "mock-embedding-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	createEmbeddingCalls  atomic.Int64
	createEmbeddingsCalls atomic.Int64
}

var _ EmbeddingClient = (*MockEmbeddingClient)(nil)

// NewMockEmbeddingClient creates a new mock with sensible defaults.
func NewMockEmbeddingClient() *MockEmbeddingClient {
	return &MockEmbeddingClient{
		Model:    "mock-embedding-model",
		Endpoint: "http://mock-endpoint",
	}
}

// CreateEmbedding implements EmbeddingClient.
func (m *MockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.createEmbeddingCalls.Add(1)
	if m.CreateEmbeddingFunc != nil {
		return m.CreateEmbeddingFunc(ctx, input)
	}
	if m.CreateEmbeddingsFunc != nil {
		out, err := m.CreateEmbeddingsFunc(ctx, []string{input})
		if err != nil || len(out) == 0 {
			return nil, err
		}
		return out[0], nil
	}
	return nil, nil
}

// CreateEmbeddings implements EmbeddingClient.
func (m *MockEmbeddingClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	m.createEmbeddingsCalls.Add(1)
	if m.CreateEmbeddingsFunc != nil {
		return m.CreateEmbeddingsFunc(ctx, inputs)
	}
	return make([][]float32, len(inputs)), nil
}

// GetModel implements EmbeddingClient.
func (m *MockEmbeddingClient) GetModel() string {
	return m.Model
}

// GetEndpoint implements EmbeddingClient.
func (m *MockEmbeddingClient) GetEndpoint() string {
	return m.Endpoint
}

// CreateEmbeddingCalls returns how many times CreateEmbedding was called.
func (m *MockEmbeddingClient) CreateEmbeddingCalls() int {
	return int(m.createEmbeddingCalls.Load())
}

// CreateEmbeddingsCalls returns how many times CreateEmbeddings was called.
func (m *MockEmbeddingClient) CreateEmbeddingsCalls() int {
	return int(m.createEmbeddingsCalls.Load())
}
