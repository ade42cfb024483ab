package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/llm"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
	"github.com/ekaya-inc/ekaya-catalog/pkg/retry"
)

// ColumnEmbeddingService produces column vectors through an embedding
// provider and loads them into an EmbeddingStore.
type ColumnEmbeddingService struct {
	catalog     *catalog.Catalog
	store       *EmbeddingStore
	client      llm.EmbeddingClient
	workerPool  *llm.WorkerPool
	batchSize   int
	retryConfig *retry.Config
	logger      *zap.Logger
}

// NewColumnEmbeddingService creates the embedding adapter.
func NewColumnEmbeddingService(
	cat *catalog.Catalog,
	store *EmbeddingStore,
	client llm.EmbeddingClient,
	cfg config.EmbeddingConfig,
	logger *zap.Logger,
) *ColumnEmbeddingService {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 32
	}
	return &ColumnEmbeddingService{
		catalog:    cat,
		store:      store,
		client:     client,
		workerPool: llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.MaxConcurrent}, logger),
		batchSize:  batchSize,
		retryConfig: &retry.Config{
			MaxRetries:       3,
			InitialDelay:     500 * time.Millisecond,
			MaxDelay:         10 * time.Second,
			Multiplier:       2.0,
			JitterFactor:     0.1,
			MaxSameErrorType: 3,
		},
		logger: logger.Named("column-embedding"),
	}
}

// SetRetryConfig overrides the provider retry policy.
func (s *ColumnEmbeddingService) SetRetryConfig(cfg *retry.Config) {
	s.retryConfig = cfg
}

// EmbedColumnsResult summarizes one embedding run.
type EmbedColumnsResult struct {
	Requested int
	Stored    int
	// Warnings lists vectors refused for a dimension mismatch.
	Warnings []*DimensionWarning
	// BatchesFailed maps batch id to error message.
	BatchesFailed map[string]string
	DurationMs    int64
}

type embeddingBatch struct {
	refs  []models.ColumnRef
	texts []string
}

// EmbedColumns embeds refs (every catalog column when refs is empty) and
// stores the results. Failed batches and dimension mismatches are reported in
// the result; only an unknown column ref is an error.
func (s *ColumnEmbeddingService) EmbedColumns(ctx context.Context, refs []models.ColumnRef) (*EmbedColumnsResult, error) {
	startTime := time.Now()
	if len(refs) == 0 {
		refs = s.catalog.ColumnRefs()
	}

	result := &EmbedColumnsResult{
		Requested:     len(refs),
		BatchesFailed: make(map[string]string),
	}
	if len(refs) == 0 {
		return result, nil
	}

	var batches []embeddingBatch
	current := embeddingBatch{}
	for _, ref := range refs {
		text, err := s.columnText(ref)
		if err != nil {
			return nil, err
		}
		current.refs = append(current.refs, ref)
		current.texts = append(current.texts, text)
		if len(current.refs) == s.batchSize {
			batches = append(batches, current)
			current = embeddingBatch{}
		}
	}
	if len(current.refs) > 0 {
		batches = append(batches, current)
	}

	workItems := make([]llm.WorkItem[[][]float32], 0, len(batches))
	for i, batch := range batches {
		batch := batch
		workItems = append(workItems, llm.WorkItem[[][]float32]{
			ID: fmt.Sprintf("batch-%d", i),
			Execute: func(ctx context.Context) ([][]float32, error) {
				return s.embedBatch(ctx, batch.texts)
			},
		})
	}

	batchResults := llm.Process(ctx, s.workerPool, workItems, func(completed, total int) {
		s.logger.Debug("Embedding progress",
			zap.Int("completed", completed),
			zap.Int("total", total))
	})

	for i, r := range batchResults {
		if r.Err != nil {
			s.logger.Error("Embedding batch failed",
				zap.String("batch", r.ID),
				zap.Int("columns", len(batches[i].refs)),
				zap.String("error", logging.SanitizeError(r.Err)))
			result.BatchesFailed[r.ID] = logging.SanitizeError(r.Err)
			continue
		}
		for j, ref := range batches[i].refs {
			err := s.store.Put(ref, r.Result[j])
			var warning *DimensionWarning
			switch {
			case err == nil:
				result.Stored++
			case errors.As(err, &warning):
				s.logger.Warn("Discarding embedding with unexpected dimension",
					zap.String("column", ref.String()),
					zap.Int("expected", warning.Expected),
					zap.Int("actual", warning.Actual))
				result.Warnings = append(result.Warnings, warning)
			default:
				return nil, fmt.Errorf("store embedding for %s: %w", ref, err)
			}
		}
	}

	result.DurationMs = time.Since(startTime).Milliseconds()
	s.logger.Info("Column embeddings updated",
		zap.Int("requested", result.Requested),
		zap.Int("stored", result.Stored),
		zap.Int("dimension_mismatches", len(result.Warnings)),
		zap.Int("failed_batches", len(result.BatchesFailed)),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

// EmbedMissing embeds only catalog columns that have no stored vector.
func (s *ColumnEmbeddingService) EmbedMissing(ctx context.Context) (*EmbedColumnsResult, error) {
	var missing []models.ColumnRef
	for _, ref := range s.catalog.ColumnRefs() {
		if _, ok := s.store.Get(ref); !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return &EmbedColumnsResult{BatchesFailed: make(map[string]string)}, nil
	}
	return s.EmbedColumns(ctx, missing)
}

// EmbedQuery embeds free text for a similarity query.
func (s *ColumnEmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) != s.store.Dimension() {
		return nil, fmt.Errorf("query embedding has %d dimensions, expected %d: %w",
			len(vectors[0]), s.store.Dimension(), apperrors.ErrDimensionMismatch)
	}
	return vectors[0], nil
}

func (s *ColumnEmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := retry.DoWithResultIfRetryable(ctx, s.retryConfig, func() ([][]float32, error) {
		v, err := s.client.CreateEmbeddings(ctx, texts)
		if err != nil {
			classified := llm.ClassifyError(err)
			if classified.Retryable {
				s.logger.Warn("Embedding call failed, retrying",
					zap.Int("inputs", len(texts)),
					zap.String("error_type", string(classified.Type)))
			}
			return nil, classified
		}
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (s *ColumnEmbeddingService) columnText(ref models.ColumnRef) (string, error) {
	col, ok := s.catalog.Column(ref)
	if !ok {
		return "", fmt.Errorf("column %s: %w", ref, apperrors.ErrNotFound)
	}
	description, _ := s.catalog.Description(ref)
	return ColumnText(ref.Object, col, description), nil
}

// ColumnText renders the text embedded for a column, e.g.
// "customer email (varchar): Primary contact address". The object name is
// singularized and identifiers are split into lower-case words.
func ColumnText(object string, col *models.Column, description string) string {
	if idx := strings.LastIndex(object, "."); idx >= 0 {
		object = object[idx+1:]
	}
	entity := identifierWords(object)
	if n := len(entity); n > 0 {
		entity[n-1] = inflection.Singular(entity[n-1])
	}

	var b strings.Builder
	b.WriteString(strings.Join(entity, " "))
	if words := identifierWords(col.Name); len(words) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(words, " "))
	}
	if col.DataType != "" {
		b.WriteString(" (")
		b.WriteString(strings.ToLower(col.DataType))
		b.WriteString(")")
	}
	if description = strings.TrimSpace(description); description != "" {
		b.WriteString(": ")
		b.WriteString(description)
	}
	return b.String()
}

func identifierWords(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})
}
