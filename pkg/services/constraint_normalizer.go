package services

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// ConstraintNormalizer turns raw per-segment key rows into canonical,
// de-duplicated key definitions.
type ConstraintNormalizer struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewConstraintNormalizer creates a normalizer that validates segments against cat.
func NewConstraintNormalizer(cat *catalog.Catalog, logger *zap.Logger) *ConstraintNormalizer {
	return &ConstraintNormalizer{
		catalog: cat,
		logger:  logger.Named("constraint-normalizer"),
	}
}

// Normalize groups every raw segment held by the catalog.
func (n *ConstraintNormalizer) Normalize() *models.NormalizedConstraints {
	var report models.NormalizationReport
	pks := n.groupPrimaryKeys(n.catalog.PrimaryKeySegments(), &report)
	fks := n.groupForeignKeys(n.catalog.ForeignKeySegments(), &report)

	n.logger.Info("Constraints normalized",
		zap.Int("primary_keys", len(pks)),
		zap.Int("foreign_keys", len(fks)),
		zap.Int("skipped_pk_segments", report.SkippedPKSegments),
		zap.Int("skipped_fk_segments", report.SkippedFKSegments),
		zap.Int("dropped_foreign_keys", report.DroppedForeignKeys),
		zap.Int("merged_constraint_names", report.MergedConstraintNames),
		zap.Int("unresolved_foreign_keys", report.UnresolvedForeignKeys))

	return &models.NormalizedConstraints{
		PrimaryKeys: pks,
		ForeignKeys: fks,
		Report:      report,
	}
}

// GroupPrimaryKeys groups segments by object and orders them by position.
// Segments referencing unknown objects or columns are logged and skipped.
func (n *ConstraintNormalizer) GroupPrimaryKeys(segments []models.PrimaryKeySegment) map[string]*models.PrimaryKeyConstraint {
	var report models.NormalizationReport
	return n.groupPrimaryKeys(segments, &report)
}

// GroupForeignKeys groups segments by (source object, constraint name) first,
// so positional pairing survives, then merges groups sharing a KeySignature.
func (n *ConstraintNormalizer) GroupForeignKeys(segments []models.ForeignKeySegment) map[models.KeySignature]*models.ForeignKeyConstraint {
	var report models.NormalizationReport
	return n.groupForeignKeys(segments, &report)
}

func (n *ConstraintNormalizer) groupPrimaryKeys(segments []models.PrimaryKeySegment, report *models.NormalizationReport) map[string]*models.PrimaryKeyConstraint {
	report.PrimaryKeySegments += len(segments)

	byObject := make(map[string][]models.PrimaryKeySegment)
	for _, seg := range segments {
		if !n.catalog.HasObject(seg.Object) {
			n.logger.Warn("Skipping primary key segment for unknown object",
				zap.String("object", seg.Object),
				zap.String("column", seg.Column),
				zap.Int("position", seg.Position))
			report.SkippedPKSegments++
			continue
		}
		if !n.catalog.HasColumn(models.ColumnRef{Object: seg.Object, Column: seg.Column}) {
			n.logger.Warn("Skipping primary key segment for unknown column",
				zap.String("object", seg.Object),
				zap.String("column", seg.Column),
				zap.Int("position", seg.Position))
			report.SkippedPKSegments++
			continue
		}
		byObject[seg.Object] = append(byObject[seg.Object], seg)
	}

	result := make(map[string]*models.PrimaryKeyConstraint, len(byObject))
	for object, segs := range byObject {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].Position < segs[j].Position })

		pk := &models.PrimaryKeyConstraint{Object: object}
		seen := make(map[string]bool, len(segs))
		positions := make(map[int]string, len(segs))
		for _, seg := range segs {
			// Extraction queries joining several catalog views can repeat a row
			if seen[seg.Column] {
				n.logger.Warn("Skipping duplicate primary key segment",
					zap.String("object", object),
					zap.String("column", seg.Column),
					zap.Int("position", seg.Position))
				report.SkippedPKSegments++
				continue
			}
			if other, taken := positions[seg.Position]; taken {
				n.logger.Warn("Primary key segments share a position",
					zap.String("object", object),
					zap.String("column", seg.Column),
					zap.String("other_column", other),
					zap.Int("position", seg.Position))
			} else {
				positions[seg.Position] = seg.Column
			}
			seen[seg.Column] = true
			pk.Columns = append(pk.Columns, seg.Column)
		}
		result[object] = pk
	}

	return result
}

// fkGroupKey identifies one named constraint on one source object.
type fkGroupKey struct {
	sourceObject   string
	constraintName string
}

type fkGroup struct {
	segments []models.ForeignKeySegment
	invalid  bool
}

func (n *ConstraintNormalizer) groupForeignKeys(segments []models.ForeignKeySegment, report *models.NormalizationReport) map[models.KeySignature]*models.ForeignKeyConstraint {
	report.ForeignKeySegments += len(segments)

	groups := make(map[fkGroupKey]*fkGroup)
	var order []fkGroupKey
	for _, seg := range segments {
		if !n.catalog.HasObject(seg.SourceObject) {
			n.logger.Warn("Skipping foreign key segment for unknown source object",
				zap.String("object", seg.SourceObject),
				zap.String("constraint", seg.ConstraintName),
				zap.String("column", seg.SourceColumn),
				zap.Int("position", seg.Position))
			report.SkippedFKSegments++
			continue
		}

		key := fkGroupKey{sourceObject: seg.SourceObject, constraintName: seg.ConstraintName}
		g, ok := groups[key]
		if !ok {
			g = &fkGroup{}
			groups[key] = g
			order = append(order, key)
		}

		if !n.catalog.HasColumn(models.ColumnRef{Object: seg.SourceObject, Column: seg.SourceColumn}) {
			n.logger.Warn("Skipping foreign key segment for unknown source column",
				zap.String("object", seg.SourceObject),
				zap.String("constraint", seg.ConstraintName),
				zap.String("column", seg.SourceColumn),
				zap.Int("position", seg.Position))
			report.SkippedFKSegments++
			g.invalid = true
			continue
		}
		g.segments = append(g.segments, seg)
	}

	// Group by constraint name in name order so the surviving positional lists
	// of a merged signature are those of the lexicographically first name.
	sort.Slice(order, func(i, j int) bool {
		if order[i].sourceObject != order[j].sourceObject {
			return order[i].sourceObject < order[j].sourceObject
		}
		return order[i].constraintName < order[j].constraintName
	})

	result := make(map[models.KeySignature]*models.ForeignKeyConstraint)
	for _, key := range order {
		g := groups[key]
		if g.invalid || len(g.segments) == 0 {
			n.logger.Warn("Dropping foreign key with invalid segments",
				zap.String("object", key.sourceObject),
				zap.String("constraint", key.constraintName))
			report.DroppedForeignKeys++
			continue
		}

		fk, ok := n.buildForeignKey(key, g.segments, report)
		if !ok {
			report.DroppedForeignKeys++
			continue
		}

		if existing, found := result[fk.Signature]; found {
			existing.ConstraintNames = appendUnique(existing.ConstraintNames, key.constraintName)
			report.MergedConstraintNames++
			n.logger.Debug("Merged duplicate foreign key",
				zap.String("signature", fk.Signature.String()),
				zap.Strings("constraints", existing.ConstraintNames))
			continue
		}
		if !fk.TargetResolved {
			report.UnresolvedForeignKeys++
		}
		result[fk.Signature] = fk
	}

	return result
}

// buildForeignKey orders one constraint's segments by position and resolves its target.
// Repeated identical rows collapse to one; a position carrying two different
// column pairs drops the key.
func (n *ConstraintNormalizer) buildForeignKey(key fkGroupKey, segments []models.ForeignKeySegment, report *models.NormalizationReport) (*models.ForeignKeyConstraint, bool) {
	seen := make(map[models.ForeignKeySegment]bool, len(segments))
	segs := make([]models.ForeignKeySegment, 0, len(segments))
	for _, seg := range segments {
		if seen[seg] {
			n.logger.Warn("Skipping duplicate foreign key segment",
				zap.String("object", key.sourceObject),
				zap.String("constraint", key.constraintName),
				zap.String("column", seg.SourceColumn),
				zap.Int("position", seg.Position))
			report.SkippedFKSegments++
			continue
		}
		seen[seg] = true
		segs = append(segs, seg)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Position < segs[j].Position })

	targetObject := segs[0].TargetObject
	fk := &models.ForeignKeyConstraint{
		ConstraintNames: []string{key.constraintName},
		SourceObject:    key.sourceObject,
		TargetObject:    targetObject,
	}

	for i, seg := range segs {
		if i > 0 && seg.Position == segs[i-1].Position {
			n.logger.Warn("Dropping foreign key with duplicate segment position",
				zap.String("object", key.sourceObject),
				zap.String("constraint", key.constraintName),
				zap.Int("position", seg.Position))
			return nil, false
		}
		if seg.TargetObject != targetObject {
			n.logger.Warn("Dropping foreign key whose segments reference different targets",
				zap.String("object", key.sourceObject),
				zap.String("constraint", key.constraintName),
				zap.String("target", targetObject),
				zap.String("other_target", seg.TargetObject))
			return nil, false
		}
		if seg.TargetColumn == "" {
			n.logger.Warn("Dropping foreign key with missing target column",
				zap.String("object", key.sourceObject),
				zap.String("constraint", key.constraintName),
				zap.Int("position", seg.Position))
			return nil, false
		}
		fk.SourceColumns = append(fk.SourceColumns, seg.SourceColumn)
		fk.TargetColumns = append(fk.TargetColumns, seg.TargetColumn)
	}

	fk.TargetResolved = n.resolveTarget(fk)
	fk.Signature = models.NewKeySignature(fk.SourceObject, fk.SourceColumns, fk.TargetObject, fk.TargetColumns)
	return fk, true
}

func (n *ConstraintNormalizer) resolveTarget(fk *models.ForeignKeyConstraint) bool {
	if !n.catalog.HasObject(fk.TargetObject) {
		n.logger.Warn("Foreign key targets unknown object; retained but unresolved",
			zap.String("object", fk.SourceObject),
			zap.Strings("constraints", fk.ConstraintNames),
			zap.String("target", fk.TargetObject))
		return false
	}
	for _, col := range fk.TargetColumns {
		if !n.catalog.HasColumn(models.ColumnRef{Object: fk.TargetObject, Column: col}) {
			n.logger.Warn("Foreign key targets unknown column; retained but unresolved",
				zap.String("object", fk.SourceObject),
				zap.Strings("constraints", fk.ConstraintNames),
				zap.String("target", fk.TargetObject),
				zap.String("target_column", col))
			return false
		}
	}
	return true
}

func appendUnique(names []string, name string) []string {
	for _, existing := range names {
		if existing == name {
			return names
		}
	}
	names = append(names, name)
	sort.Strings(names)
	return names
}
