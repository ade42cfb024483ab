package services

import (
	"fmt"
	"sync"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// DimensionWarning reports a vector that was not stored because its length
// differs from the store's dimension. It is a warning for the caller, not a
// failure of the batch.
type DimensionWarning struct {
	Ref      models.ColumnRef
	Expected int
	Actual   int
}

func (w *DimensionWarning) Error() string {
	return fmt.Sprintf("embedding for %s has %d dimensions, expected %d", w.Ref, w.Actual, w.Expected)
}

// Unwrap lets errors.Is match apperrors.ErrDimensionMismatch.
func (w *DimensionWarning) Unwrap() error {
	return apperrors.ErrDimensionMismatch
}

// EmbeddingStore maps columns to fixed-dimension vectors.
type EmbeddingStore struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[models.ColumnRef][]float32
	rejected  int
	version   uint64
}

// NewEmbeddingStore creates a store that only accepts vectors of length dimension.
func NewEmbeddingStore(dimension int) *EmbeddingStore {
	return &EmbeddingStore{
		dimension: dimension,
		vectors:   make(map[models.ColumnRef][]float32),
	}
}

// Dimension returns the expected vector length.
func (s *EmbeddingStore) Dimension() int {
	return s.dimension
}

// Put stores a copy of vector for ref, replacing any previous vector.
// A vector of the wrong length is counted and returned as *DimensionWarning;
// the previous vector for ref, if any, is kept.
func (s *EmbeddingStore) Put(ref models.ColumnRef, vector []float32) error {
	if ref.Object == "" || ref.Column == "" {
		return fmt.Errorf("column ref %q: %w", ref, apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vector) != s.dimension {
		s.rejected++
		return &DimensionWarning{Ref: ref, Expected: s.dimension, Actual: len(vector)}
	}

	cp := make([]float32, len(vector))
	copy(cp, vector)
	s.vectors[ref] = cp
	s.version++
	return nil
}

// Delete removes the vector for ref.
func (s *EmbeddingStore) Delete(ref models.ColumnRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vectors[ref]; !ok {
		return false
	}
	delete(s.vectors, ref)
	s.version++
	return true
}

// Get returns a copy of the vector for ref.
func (s *EmbeddingStore) Get(ref models.ColumnRef) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[ref]
	if !ok {
		return nil, false
	}
	cp := make([]float32, len(v))
	copy(cp, v)
	return cp, true
}

// Len returns the number of stored vectors.
func (s *EmbeddingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Rejected returns how many vectors were refused for a dimension mismatch.
func (s *EmbeddingStore) Rejected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// Version changes whenever a vector is added, replaced or deleted.
func (s *EmbeddingStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Refs returns the refs that have a vector, sorted.
func (s *EmbeddingStore) Refs() []models.ColumnRef {
	s.mu.RLock()
	refs := make([]models.ColumnRef, 0, len(s.vectors))
	for ref := range s.vectors {
		refs = append(refs, ref)
	}
	s.mu.RUnlock()
	models.SortColumnRefs(refs)
	return refs
}
