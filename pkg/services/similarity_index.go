package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// Metric selects the distance function of a SimilarityIndex.
// Smaller distances always mean more similar.
type Metric string

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
)

// ParseMetric parses a metric name. An empty name selects MetricL2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricL2:
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q: %w", s, apperrors.ErrInvalidArgument)
	}
}

// SimilarityIndex is an immutable nearest-neighbor index over column vectors.
// vectors holds the rows contiguously; row i belongs to refs[i].
type SimilarityIndex struct {
	dimension int
	metric    Metric
	vectors   []float32
	norms     []float64
	refs      []models.ColumnRef
	positions map[models.ColumnRef]int
}

// Neighbor is one search hit.
type Neighbor struct {
	Position int
	Ref      models.ColumnRef
	Distance float64
}

// IndexBuildResult describes a build. Index is nil when Empty is true.
type IndexBuildResult struct {
	Index   *SimilarityIndex
	Indexed int
	// Skipped counts catalog columns with a missing or wrong-length vector.
	Skipped int
	// Orphaned counts stored vectors whose column is not in the catalog.
	Orphaned int
	Empty    bool
}

// BuildSimilarityIndex indexes every catalog column that has a valid vector,
// objects by name and columns by ordinal position.
func BuildSimilarityIndex(cat *catalog.Catalog, store *EmbeddingStore, metric Metric, logger *zap.Logger) IndexBuildResult {
	logger = logger.Named("similarity-index")
	dim := store.Dimension()

	refs := cat.ColumnRefs()
	idx := &SimilarityIndex{
		dimension: dim,
		metric:    metric,
		positions: make(map[models.ColumnRef]int),
	}

	var skipped int
	inCatalog := make(map[models.ColumnRef]bool, len(refs))
	for _, ref := range refs {
		inCatalog[ref] = true
		vec, ok := store.Get(ref)
		if !ok {
			skipped++
			continue
		}
		// Unreachable through Put, which refuses wrong-length vectors. Kept
		// so a short row can never reach the flat vector buffer.
		if len(vec) != dim {
			logger.Warn("Skipping embedding with unexpected dimension",
				zap.String("column", ref.String()),
				zap.Int("expected", dim),
				zap.Int("actual", len(vec)))
			skipped++
			continue
		}
		idx.positions[ref] = len(idx.refs)
		idx.refs = append(idx.refs, ref)
		idx.vectors = append(idx.vectors, vec...)
		idx.norms = append(idx.norms, norm(vec))
	}

	var orphaned int
	for _, ref := range store.Refs() {
		if !inCatalog[ref] {
			orphaned++
		}
	}
	if orphaned > 0 {
		logger.Warn("Stored embeddings reference columns missing from the catalog",
			zap.Int("orphaned", orphaned))
	}

	result := IndexBuildResult{
		Indexed:  len(idx.refs),
		Skipped:  skipped,
		Orphaned: orphaned,
	}
	if len(idx.refs) == 0 {
		result.Empty = true
		logger.Info("No valid embeddings; similarity index is empty",
			zap.Int("skipped", skipped))
		return result
	}
	result.Index = idx

	logger.Info("Similarity index built",
		zap.Int("indexed", result.Indexed),
		zap.Int("skipped", skipped),
		zap.Int("dimension", dim),
		zap.String("metric", string(metric)))
	return result
}

// Len returns the number of indexed vectors.
func (x *SimilarityIndex) Len() int {
	return len(x.refs)
}

// Dimension returns the vector length.
func (x *SimilarityIndex) Dimension() int {
	return x.dimension
}

// Metric returns the distance function in use.
func (x *SimilarityIndex) Metric() Metric {
	return x.metric
}

// Position returns the row of ref.
func (x *SimilarityIndex) Position(ref models.ColumnRef) (int, bool) {
	pos, ok := x.positions[ref]
	return pos, ok
}

// RefAt returns the column stored at pos.
func (x *SimilarityIndex) RefAt(pos int) (models.ColumnRef, bool) {
	if pos < 0 || pos >= len(x.refs) {
		return models.ColumnRef{}, false
	}
	return x.refs[pos], true
}

// Vector returns a copy of the row at pos.
func (x *SimilarityIndex) Vector(pos int) ([]float32, bool) {
	if pos < 0 || pos >= len(x.refs) {
		return nil, false
	}
	cp := make([]float32, x.dimension)
	copy(cp, x.row(pos))
	return cp, true
}

func (x *SimilarityIndex) row(pos int) []float32 {
	return x.vectors[pos*x.dimension : (pos+1)*x.dimension]
}

// Search returns the n nearest rows to query ordered by ascending distance.
// Equal distances are ordered by position, so a larger n only appends.
func (x *SimilarityIndex) Search(query []float32, n int) ([]Neighbor, error) {
	if len(query) != x.dimension {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), x.dimension, apperrors.ErrDimensionMismatch)
	}
	if n <= 0 {
		return nil, nil
	}

	queryNorm := norm(query)
	all := make([]Neighbor, len(x.refs))
	for pos := range x.refs {
		all[pos] = Neighbor{
			Position: pos,
			Ref:      x.refs[pos],
			Distance: x.distance(query, queryNorm, pos),
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].Position < all[j].Position
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n], nil
}

func (x *SimilarityIndex) distance(query []float32, queryNorm float64, pos int) float64 {
	row := x.row(pos)
	switch x.metric {
	case MetricCosine:
		if queryNorm == 0 || x.norms[pos] == 0 {
			return 1
		}
		var dot float64
		for i := range row {
			dot += float64(query[i]) * float64(row[i])
		}
		return 1 - dot/(queryNorm*x.norms[pos])
	default:
		var sum float64
		for i := range row {
			d := float64(query[i]) - float64(row[i])
			sum += d * d
		}
		return sum
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
