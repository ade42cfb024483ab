package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
	"github.com/ekaya-inc/ekaya-catalog/pkg/testhelpers"
)

// defaultImportance mirrors the env-default scoring parameters.
func defaultImportance() config.ImportanceConfig {
	return config.ImportanceConfig{
		PKFKScore:                5,
		PKScore:                  3,
		FKScore:                  2,
		NormalScore:              0,
		HighReferenceThreshold:   5,
		MediumReferenceThreshold: 2,
		HighReferenceBonus:       3,
		MediumReferenceBonus:     2,
		LowReferenceBonus:        1,
		MaximaCutoff:             5,
		AltaCutoff:               3,
		MediaCutoff:              1,
	}
}

func testConfig(dimension int, metric string) *config.Config {
	return &config.Config{
		Embedding:  config.EmbeddingConfig{Dimension: dimension, MaxConcurrent: 2, BatchSize: 2},
		Similarity: config.SimilarityConfig{Metric: metric, DefaultK: 5},
		Importance: defaultImportance(),
	}
}

// loadSales builds the sales fixture catalog and an embedding store holding its vectors.
func loadSales(t *testing.T) (*catalog.Catalog, *EmbeddingStore) {
	t.Helper()
	fixture := testhelpers.MustLoadSchemaFixture(t, "sales.yaml")
	cat := fixture.MustCatalog(t)
	store := NewEmbeddingStore(fixture.Dimension)
	vectors, err := fixture.Vectors()
	require.NoError(t, err)
	for ref, v := range vectors {
		require.NoError(t, store.Put(ref, v))
	}
	return cat, store
}

// newTestCatalog registers tables given as name -> column names.
func newTestCatalog(t *testing.T, tables map[string][]string) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	for name, columns := range tables {
		obj := &models.SchemaObject{Name: name, Kind: models.ObjectKindTable}
		for i, col := range columns {
			obj.Columns = append(obj.Columns, &models.Column{Name: col, DataType: "integer", OrdinalPosition: i + 1})
		}
		require.NoError(t, cat.AddObject(obj))
	}
	return cat
}

func ref(object, column string) models.ColumnRef {
	return models.ColumnRef{Object: object, Column: column}
}

func normalizeAndClassify(t *testing.T, cat *catalog.Catalog) (*models.NormalizedConstraints, *models.ClassificationResult) {
	t.Helper()
	normalized := NewConstraintNormalizer(cat, zap.NewNop()).Normalize()
	result := NewRelationshipClassifier(defaultImportance(), zap.NewNop()).Classify(cat, normalized)
	return normalized, result
}
