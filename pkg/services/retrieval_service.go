package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// IndexView runs fn against the current index while holding it stable.
// Implementations return apperrors.ErrIndexNotBuilt before the first build.
type IndexView interface {
	ViewIndex(fn func(IndexBuildResult) error) error
}

// QueryEmbedder turns free text into a query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RetrievalService answers "top-k similar columns" queries, returning only
// columns whose description can be reused.
type RetrievalService struct {
	catalog  *catalog.Catalog
	store    *EmbeddingStore
	indexes  IndexView
	embedder QueryEmbedder
	defaultK int
	logger   *zap.Logger
}

// NewRetrievalService creates a retrieval service. embedder may be nil, in
// which case FindSimilarToText is unavailable.
func NewRetrievalService(
	cat *catalog.Catalog,
	store *EmbeddingStore,
	indexes IndexView,
	embedder QueryEmbedder,
	defaultK int,
	logger *zap.Logger,
) *RetrievalService {
	if defaultK < 1 {
		defaultK = 5
	}
	return &RetrievalService{
		catalog:  cat,
		store:    store,
		indexes:  indexes,
		embedder: embedder,
		defaultK: defaultK,
		logger:   logger.Named("retrieval"),
	}
}

// FindSimilarToColumn returns up to k documented columns closest to ref's
// stored embedding. ref itself is never returned.
func (s *RetrievalService) FindSimilarToColumn(ctx context.Context, ref models.ColumnRef, k int) ([]models.SimilarColumn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.catalog.HasColumn(ref) {
		return nil, fmt.Errorf("column %s: %w", ref, apperrors.ErrNotFound)
	}
	query, ok := s.store.Get(ref)
	if !ok {
		return nil, fmt.Errorf("embedding for column %s: %w", ref, apperrors.ErrNotFound)
	}
	return s.find(query, k, &ref)
}

// FindSimilarToVector returns up to k documented columns closest to query.
func (s *RetrievalService) FindSimilarToVector(ctx context.Context, query []float32, k int) ([]models.SimilarColumn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.find(query, k, nil)
}

// FindSimilarToText embeds text and runs a vector query.
func (s *RetrievalService) FindSimilarToText(ctx context.Context, text string, k int) ([]models.SimilarColumn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query text is empty: %w", apperrors.ErrInvalidArgument)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("no query embedder configured: %w", apperrors.ErrInvalidArgument)
	}
	query, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.FindSimilarToVector(ctx, query, k)
}

func (s *RetrievalService) find(query []float32, k int, self *models.ColumnRef) ([]models.SimilarColumn, error) {
	if k <= 0 {
		k = s.defaultK
	}

	var results []models.SimilarColumn
	err := s.indexes.ViewIndex(func(built IndexBuildResult) error {
		if built.Empty || built.Index == nil {
			if len(query) != s.store.Dimension() {
				return fmt.Errorf("query has %d dimensions, expected %d: %w",
					len(query), s.store.Dimension(), apperrors.ErrDimensionMismatch)
			}
			return nil
		}

		// One extra candidate covers the query column occupying the first slot
		candidates, err := built.Index.Search(query, k+1)
		if err != nil {
			return err
		}
		results = s.collect(candidates, k, self)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Similarity query",
		zap.Int("k", k),
		zap.Bool("column_query", self != nil),
		zap.Int("results", len(results)))
	return results, nil
}

// collect applies self-exclusion and the description filter, stopping at k.
func (s *RetrievalService) collect(candidates []Neighbor, k int, self *models.ColumnRef) []models.SimilarColumn {
	results := make([]models.SimilarColumn, 0, k)
	for _, c := range candidates {
		if len(results) == k {
			break
		}
		if self != nil && c.Ref == *self {
			continue
		}
		description, ok := s.catalog.Description(c.Ref)
		if !ok {
			continue
		}
		similar := models.SimilarColumn{
			Ref:         c.Ref,
			Description: description,
			Distance:    c.Distance,
		}
		if ann, ok := s.catalog.Annotation(c.Ref); ok {
			similar.Role = ann.Role
			similar.Importance = ann.Importance
		}
		results = append(results, similar)
	}
	return results
}
