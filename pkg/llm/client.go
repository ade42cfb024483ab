package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
)

// Client provides access to OpenAI-compatible embedding endpoints.
type Client struct {
	client   *openai.Client
	endpoint string
	model    string
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

// Config holds configuration for creating an embedding client.
type Config struct {
	Endpoint string // Base URL, e.g., "https://api.openai.com/v1"
	Model    string // Model name, e.g., "text-embedding-3-small"
	APIKey   string // Optional for local endpoints
	Breaker  CircuitBreakerConfig
}

// NewClient creates a new OpenAI-compatible embedding client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	breaker := cfg.Breaker
	if breaker.Threshold < 1 {
		breaker = DefaultCircuitBreakerConfig()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		breaker:  NewCircuitBreaker(breaker),
		logger:   logger.Named("llm"),
	}, nil
}

// NewClientFromConfig creates a client from the embedding section of the
// application configuration.
func NewClientFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (*Client, error) {
	return NewClient(&Config{
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}, logger)
}

// CreateEmbedding generates an embedding vector for the input text.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	embeddings, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, NewErrorWithContext(ErrorTypeUnknown, "no embedding in response", false, nil, c.model, c.endpoint, 0)
	}
	return embeddings[0], nil
}

// CreateEmbeddings generates embeddings for multiple inputs, ordered like inputs.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	if allowed, err := c.breaker.Allow(); !allowed {
		return nil, NewErrorWithContext(ErrorTypeEndpoint, "embedding provider unavailable", false, err, c.model, c.endpoint, 0)
	}

	c.logger.Debug("Embedding request",
		zap.String("model", c.model),
		zap.Int("inputs", len(inputs)))

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: inputs,
	})
	if err != nil {
		llmErr := c.parseError(err)
		// Only transport-level failures count against the provider
		if llmErr.Retryable {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
		c.logger.Warn("Embedding request failed",
			zap.String("model", c.model),
			zap.Int("inputs", len(inputs)),
			zap.String("error_type", string(llmErr.Type)),
			zap.Bool("retryable", llmErr.Retryable),
			zap.String("error", logging.SanitizeError(llmErr)))
		return nil, llmErr
	}
	c.breaker.RecordSuccess()

	embeddings := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, NewErrorWithContext(ErrorTypeUnknown,
				fmt.Sprintf("embedding index %d out of range for %d inputs", d.Index, len(inputs)),
				false, nil, c.model, c.endpoint, 0)
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, NewErrorWithContext(ErrorTypeUnknown,
				fmt.Sprintf("no embedding returned for input %d", i),
				false, nil, c.model, c.endpoint, 0)
		}
	}

	c.logger.Debug("Embedding response",
		zap.Int("embeddings", len(embeddings)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Duration("elapsed", time.Since(start)))

	return embeddings, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// BreakerState reports the provider circuit state.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

// parseError categorizes OpenAI API errors using the structured Error type.
func (c *Client) parseError(err error) *Error {
	llmErr := ClassifyError(err)
	if llmErr.Model == "" {
		llmErr.Model = c.model
	}
	if llmErr.Endpoint == "" {
		llmErr.Endpoint = c.endpoint
	}
	return llmErr
}
