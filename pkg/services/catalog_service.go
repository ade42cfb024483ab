package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// classification is the cached output of normalize + classify for one catalog version.
type classification struct {
	normalized *models.NormalizedConstraints
	result     *models.ClassificationResult
}

// indexKey identifies the inputs of an index build.
type indexKey struct {
	catalogVersion   uint64
	embeddingVersion uint64
}

// RefreshResult summarizes one Refresh.
type RefreshResult struct {
	CatalogVersion       uint64
	EmbeddingVersion     uint64
	Report               models.NormalizationReport
	Classification       *models.ClassificationResult
	Index                IndexBuildResult
	ClassificationReused bool
	IndexReused          bool
	Duration             time.Duration
}

// CatalogService orchestrates normalization, classification and index builds
// over one catalog and embedding store. Refresh is a barrier: queries served
// through ViewIndex never observe a half-finished refresh.
type CatalogService struct {
	mu sync.RWMutex

	catalog    *catalog.Catalog
	store      *EmbeddingStore
	normalizer *ConstraintNormalizer
	classifier *RelationshipClassifier
	metric     Metric
	logger     *zap.Logger

	classifications SnapshotCache[uint64, classification]
	indexes         SnapshotCache[indexKey, IndexBuildResult]

	current    IndexBuildResult
	normalized *models.NormalizedConstraints
	refreshed  bool
}

// NewCatalogService wires the pipeline from configuration.
func NewCatalogService(cat *catalog.Catalog, store *EmbeddingStore, cfg *config.Config, logger *zap.Logger) (*CatalogService, error) {
	metric, err := ParseMetric(cfg.Similarity.Metric)
	if err != nil {
		return nil, err
	}
	if store.Dimension() != cfg.Embedding.Dimension {
		return nil, fmt.Errorf("embedding store dimension %d does not match configured %d: %w",
			store.Dimension(), cfg.Embedding.Dimension, apperrors.ErrDimensionMismatch)
	}
	return &CatalogService{
		catalog:    cat,
		store:      store,
		normalizer: NewConstraintNormalizer(cat, logger),
		classifier: NewRelationshipClassifier(cfg.Importance, logger),
		metric:     metric,
		logger:     logger.Named("catalog-service"),
	}, nil
}

// Catalog returns the underlying catalog.
func (s *CatalogService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Store returns the underlying embedding store.
func (s *CatalogService) Store() *EmbeddingStore {
	return s.store
}

// Refresh re-derives annotations and rebuilds the index. Classification is
// reused while the catalog version is unchanged; the index is reused while
// both the catalog and embedding versions are unchanged.
func (s *CatalogService) Refresh(ctx context.Context) (*RefreshResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	catalogVersion := s.catalog.Version()
	embeddingVersion := s.store.Version()

	classified, classReused, err := s.classifications.Get(catalogVersion, func() (classification, error) {
		normalized := s.normalizer.Normalize()
		return classification{
			normalized: normalized,
			result:     s.classifier.Classify(s.catalog, normalized),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("classify catalog: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := indexKey{catalogVersion: catalogVersion, embeddingVersion: embeddingVersion}
	built, indexReused, err := s.indexes.Get(key, func() (IndexBuildResult, error) {
		return BuildSimilarityIndex(s.catalog, s.store, s.metric, s.logger), nil
	})
	if err != nil {
		return nil, fmt.Errorf("build similarity index: %w", err)
	}

	// Nothing is published until both steps succeeded
	s.catalog.ApplyClassification(classified.result)
	s.current = built
	s.normalized = classified.normalized
	s.refreshed = true

	result := &RefreshResult{
		CatalogVersion:       catalogVersion,
		EmbeddingVersion:     embeddingVersion,
		Report:               classified.normalized.Report,
		Classification:       classified.result,
		Index:                built,
		ClassificationReused: classReused,
		IndexReused:          indexReused,
		Duration:             time.Since(start),
	}

	s.logger.Info("Catalog refreshed",
		zap.Uint64("catalog_version", catalogVersion),
		zap.Uint64("embedding_version", embeddingVersion),
		zap.Bool("classification_reused", classReused),
		zap.Bool("index_reused", indexReused),
		zap.Int("indexed", built.Indexed),
		zap.Int("skipped", built.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Invalidate forces the next Refresh to recompute everything.
func (s *CatalogService) Invalidate() {
	s.classifications.Invalidate()
	s.indexes.Invalidate()
}

// ViewIndex runs fn with the current index under a read lock.
func (s *CatalogService) ViewIndex(fn func(IndexBuildResult) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.refreshed {
		return apperrors.ErrIndexNotBuilt
	}
	return fn(s.current)
}

// Normalized returns the constraints produced by the last Refresh.
func (s *CatalogService) Normalized() (*models.NormalizedConstraints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.refreshed {
		return nil, apperrors.ErrNotRefreshed
	}
	return s.normalized, nil
}

// Connectivity analyzes how objects are linked by the last refreshed foreign keys.
func (s *CatalogService) Connectivity() (Connectivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.refreshed {
		return Connectivity{}, apperrors.ErrNotRefreshed
	}
	return BuildTableGraph(s.catalog, s.normalized).Analyze(), nil
}

// Retrieval returns a retrieval service reading through this service's index.
func (s *CatalogService) Retrieval(embedder QueryEmbedder, defaultK int) *RetrievalService {
	return NewRetrievalService(s.catalog, s.store, s, embedder, defaultK, s.logger)
}
