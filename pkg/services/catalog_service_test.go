package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

func newSalesService(t *testing.T) *CatalogService {
	t.Helper()
	cat, store := loadSales(t)
	svc, err := NewCatalogService(cat, store, testConfig(4, "l2"), zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewCatalogService_Validation(t *testing.T) {
	cat, store := loadSales(t)

	_, err := NewCatalogService(cat, store, testConfig(8, "l2"), zap.NewNop())
	assert.True(t, errors.Is(err, apperrors.ErrDimensionMismatch))

	_, err = NewCatalogService(cat, store, testConfig(4, "hamming"), zap.NewNop())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestCatalogService_NotRefreshed(t *testing.T) {
	svc := newSalesService(t)

	_, err := svc.Normalized()
	assert.True(t, errors.Is(err, apperrors.ErrNotRefreshed))
	_, err = svc.Connectivity()
	assert.True(t, errors.Is(err, apperrors.ErrNotRefreshed))
	err = svc.ViewIndex(func(IndexBuildResult) error { return nil })
	assert.True(t, errors.Is(err, apperrors.ErrIndexNotBuilt))

	_, ok := svc.Catalog().Annotation(ref("ORDERS", "ID"))
	assert.False(t, ok)
}

func TestCatalogService_Refresh(t *testing.T) {
	svc := newSalesService(t)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, result.ClassificationReused)
	assert.False(t, result.IndexReused)
	assert.Equal(t, 7, result.Index.Indexed)
	assert.Equal(t, 1, result.Report.MergedConstraintNames)
	assert.Equal(t, []string{"ORDER_ITEMS"}, result.Classification.JunctionTables())

	ann, ok := svc.Catalog().Annotation(ref("ORDER_ITEMS", "ORDER_ID"))
	require.True(t, ok)
	assert.Equal(t, models.RolePKFK, ann.Role)

	normalized, err := svc.Normalized()
	require.NoError(t, err)
	assert.Len(t, normalized.ForeignKeys, 6)

	connectivity, err := svc.Connectivity()
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSTOMER_SUMMARY"}, connectivity.Islands)
}

func TestCatalogService_ReusesUnchangedSnapshots(t *testing.T) {
	svc := newSalesService(t)
	ctx := context.Background()

	first, err := svc.Refresh(ctx)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, second.ClassificationReused)
	assert.True(t, second.IndexReused)
	assert.Same(t, first.Classification, second.Classification)

	// A new embedding only rebuilds the index
	require.NoError(t, svc.Store().Put(ref("REGIONS", "NAME"), []float32{0, 0, 0, 2}))
	third, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, third.ClassificationReused)
	assert.False(t, third.IndexReused)
	assert.Equal(t, 8, third.Index.Indexed)

	// A catalog change rebuilds both
	require.NoError(t, svc.Catalog().SetDescription(ref("REGIONS", "NAME"), "Sales region label"))
	fourth, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, fourth.ClassificationReused)
	assert.False(t, fourth.IndexReused)

	svc.Invalidate()
	fifth, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, fifth.ClassificationReused)
	assert.False(t, fifth.IndexReused)
}

func TestCatalogService_NewKeysChangeClassification(t *testing.T) {
	svc := newSalesService(t)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	before, _ := svc.Catalog().Annotation(ref("CUSTOMER_SUMMARY", "CUSTOMER_ID"))
	assert.Equal(t, models.RoleNormal, before.Role)

	svc.Catalog().AddForeignKeySegments(models.ForeignKeySegment{
		SourceObject: "CUSTOMER_SUMMARY", ConstraintName: "FK_SUMMARY_CUSTOMER", SourceColumn: "CUSTOMER_ID",
		Position: 1, TargetObject: "CUSTOMERS", TargetColumn: "ID",
	})
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)

	after, _ := svc.Catalog().Annotation(ref("CUSTOMER_SUMMARY", "CUSTOMER_ID"))
	assert.Equal(t, models.RoleFK, after.Role)
	target, _ := svc.Catalog().Annotation(ref("CUSTOMERS", "ID"))
	assert.Equal(t, 2, target.InboundReferences)
}

func TestCatalogService_RefreshHonorsCancellation(t *testing.T) {
	svc := newSalesService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.Normalized()
	assert.True(t, errors.Is(err, apperrors.ErrNotRefreshed))
}

// cancelAfterContext reports cancellation once Err has been checked n times.
type cancelAfterContext struct {
	context.Context
	mu     sync.Mutex
	checks int
	n      int
}

func (c *cancelAfterContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	if c.checks > c.n {
		return context.Canceled
	}
	return nil
}

func TestCatalogService_CancelledRefreshPublishesNothing(t *testing.T) {
	svc := newSalesService(t)
	first, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	before, err := svc.Normalized()
	require.NoError(t, err)

	svc.Catalog().AddForeignKeySegments(models.ForeignKeySegment{
		SourceObject: "CUSTOMER_SUMMARY", ConstraintName: "FK_SUMMARY_CUSTOMER", SourceColumn: "CUSTOMER_ID",
		Position: 1, TargetObject: "CUSTOMERS", TargetColumn: "ID",
	})

	// Cancelled after classification, before the index is rebuilt
	ctx := &cancelAfterContext{Context: context.Background(), n: 1}
	_, err = svc.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Same(t, first.Classification, svc.Catalog().Classification())
	summary, _ := svc.Catalog().Annotation(ref("CUSTOMER_SUMMARY", "CUSTOMER_ID"))
	assert.Equal(t, models.RoleNormal, summary.Role)
	after, err := svc.Normalized()
	require.NoError(t, err)
	assert.Same(t, before, after)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, result.Classification, svc.Catalog().Classification())
	summary, _ = svc.Catalog().Annotation(ref("CUSTOMER_SUMMARY", "CUSTOMER_ID"))
	assert.Equal(t, models.RoleFK, summary.Role)
}

func TestCatalogService_QueriesDuringRefresh(t *testing.T) {
	svc := newSalesService(t)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	retrieval := svc.Retrieval(nil, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.Invalidate()
			if _, err := svc.Refresh(ctx); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			results, err := retrieval.FindSimilarToColumn(ctx, ref("CUSTOMERS", "EMAIL"), 3)
			if err != nil {
				errs <- err
				return
			}
			for _, r := range results {
				if r.Description == "" {
					errs <- errors.New("result without description")
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
