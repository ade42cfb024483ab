package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

func TestEmbeddingStore_PutAndGet(t *testing.T) {
	store := NewEmbeddingStore(3)
	email := ref("CUSTOMERS", "EMAIL")

	input := []float32{1, 2, 3}
	require.NoError(t, store.Put(email, input))
	input[0] = 99

	got, ok := store.Get(email)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got, "store keeps its own copy")

	got[1] = 42
	again, _ := store.Get(email)
	assert.Equal(t, []float32{1, 2, 3}, again, "callers get a copy")

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, uint64(1), store.Version())
}

func TestEmbeddingStore_RejectsWrongDimension(t *testing.T) {
	store := NewEmbeddingStore(3)
	email := ref("CUSTOMERS", "EMAIL")
	require.NoError(t, store.Put(email, []float32{1, 2, 3}))

	err := store.Put(email, []float32{1, 2})

	var warning *DimensionWarning
	require.True(t, errors.As(err, &warning))
	assert.Equal(t, 3, warning.Expected)
	assert.Equal(t, 2, warning.Actual)
	assert.Equal(t, email, warning.Ref)
	assert.True(t, errors.Is(err, apperrors.ErrDimensionMismatch))

	got, _ := store.Get(email)
	assert.Equal(t, []float32{1, 2, 3}, got, "previous vector is kept")
	assert.Equal(t, 1, store.Rejected())
	assert.Equal(t, uint64(1), store.Version(), "rejected puts do not bump the version")
}

func TestEmbeddingStore_RejectsEmptyRef(t *testing.T) {
	store := NewEmbeddingStore(1)
	err := store.Put(ref("", "EMAIL"), []float32{1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	assert.Zero(t, store.Len())
}

func TestEmbeddingStore_DeleteAndRefs(t *testing.T) {
	store := NewEmbeddingStore(1)
	require.NoError(t, store.Put(ref("B", "X"), []float32{1}))
	require.NoError(t, store.Put(ref("A", "Y"), []float32{2}))
	require.NoError(t, store.Put(ref("A", "X"), []float32{3}))

	assert.Equal(t, []models.ColumnRef{ref("A", "X"), ref("A", "Y"), ref("B", "X")}, store.Refs())

	assert.True(t, store.Delete(ref("A", "Y")))
	assert.False(t, store.Delete(ref("A", "Y")))
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, uint64(4), store.Version())
}
