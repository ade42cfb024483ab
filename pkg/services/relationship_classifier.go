package services

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// RelationshipClassifier assigns column roles and importance levels and
// detects junction tables from normalized constraints.
type RelationshipClassifier struct {
	scoring config.ImportanceConfig
	logger  *zap.Logger
}

// NewRelationshipClassifier creates a classifier using the given scoring parameters.
func NewRelationshipClassifier(scoring config.ImportanceConfig, logger *zap.Logger) *RelationshipClassifier {
	return &RelationshipClassifier{
		scoring: scoring,
		logger:  logger.Named("relationship-classifier"),
	}
}

// columnFacts accumulates the constraint membership of one column during a pass.
// The role is derived from the flags only after every constraint has been seen,
// so the result does not depend on the order keys are visited in.
type columnFacts struct {
	inPK          bool
	compositePK   bool
	inSingleFK    bool
	inCompositeFK bool
	inbound       int
	references    []models.ColumnRef
}

func (f *columnFacts) addReference(target models.ColumnRef) {
	for _, existing := range f.references {
		if existing == target {
			return
		}
	}
	f.references = append(f.references, target)
}

func (f *columnFacts) role() models.ColumnRole {
	inFK := f.inSingleFK || f.inCompositeFK
	switch {
	case f.inPK && inFK:
		return models.RolePKFK
	case f.inPK && f.compositePK:
		return models.RolePKComposite
	case f.inPK:
		return models.RolePK
	case f.inSingleFK:
		return models.RoleFK
	case f.inCompositeFK:
		return models.RoleFKCompositePart
	default:
		return models.RoleNormal
	}
}

// Classify computes annotations for every column and object in cat. The
// returned result is complete and never modified afterwards.
func (c *RelationshipClassifier) Classify(cat *catalog.Catalog, normalized *models.NormalizedConstraints) *models.ClassificationResult {
	if normalized == nil {
		normalized = &models.NormalizedConstraints{}
	}

	objects := cat.Objects()
	facts := make(map[models.ColumnRef]*columnFacts)
	for _, obj := range objects {
		for _, col := range obj.Columns {
			facts[models.ColumnRef{Object: obj.Name, Column: col.Name}] = &columnFacts{}
		}
	}

	for object, pk := range normalized.PrimaryKeys {
		for _, col := range pk.Columns {
			f, ok := facts[models.ColumnRef{Object: object, Column: col}]
			if !ok {
				c.logger.Warn("Primary key column not found in catalog; skipping",
					zap.String("object", object),
					zap.String("column", col))
				continue
			}
			f.inPK = true
			f.compositePK = pk.IsComposite()
		}
	}

	fks := normalized.SortedForeignKeys()
	fkColumns := make(map[string]map[string]bool)
	for _, fk := range fks {
		if !fk.TargetResolved {
			c.logger.Debug("Ignoring unresolved foreign key",
				zap.String("signature", fk.Signature.String()),
				zap.Strings("constraints", fk.ConstraintNames))
			continue
		}
		if len(fk.SourceColumns) != len(fk.TargetColumns) {
			c.logger.Warn("Foreign key column count mismatch; skipping",
				zap.String("object", fk.SourceObject),
				zap.Strings("constraints", fk.ConstraintNames),
				zap.Int("source_columns", len(fk.SourceColumns)),
				zap.Int("target_columns", len(fk.TargetColumns)))
			continue
		}

		for _, pair := range fk.Pairs() {
			src, ok := facts[pair.Source]
			if !ok {
				c.logger.Warn("Foreign key column not found in catalog; skipping",
					zap.String("object", pair.Source.Object),
					zap.String("column", pair.Source.Column),
					zap.Strings("constraints", fk.ConstraintNames))
				continue
			}
			if fk.IsComposite() {
				src.inCompositeFK = true
			} else {
				src.inSingleFK = true
			}
			src.addReference(pair.Target)

			if fkColumns[fk.SourceObject] == nil {
				fkColumns[fk.SourceObject] = make(map[string]bool)
			}
			fkColumns[fk.SourceObject][pair.Source.Column] = true

			if target, ok := facts[pair.Target]; ok {
				target.inbound++
			}
		}
	}

	columns := make(map[models.ColumnRef]models.ColumnAnnotation, len(facts))
	roleCounts := make(map[models.ColumnRole]int)
	for ref, f := range facts {
		role := f.role()
		score := c.Score(role, f.inbound)
		columns[ref] = models.ColumnAnnotation{
			Ref:               ref,
			Role:              role,
			Importance:        c.Level(score),
			Score:             score,
			InboundReferences: f.inbound,
			References:        f.references,
		}
		roleCounts[role]++
	}

	objectAnnotations := make(map[string]models.ObjectAnnotation, len(objects))
	var junctions []string
	for _, obj := range objects {
		ann := models.ObjectAnnotation{Name: obj.Name}
		pk, hasPK := normalized.PrimaryKeys[obj.Name]
		if hasPK && len(pk.Columns) > 0 {
			ann.HasPrimaryKey = true
			ann.CompositePK = pk.IsComposite()
		}
		if ann.CompositePK && sameColumnSet(pk.Columns, fkColumns[obj.Name]) {
			ann.IsJunction = true
			for _, col := range pk.Columns {
				for _, target := range columns[models.ColumnRef{Object: obj.Name, Column: col}].References {
					ann.JunctionLinks = append(ann.JunctionLinks, models.JunctionLink{Column: col, Target: target})
				}
			}
			junctions = append(junctions, obj.Name)
		}
		objectAnnotations[obj.Name] = ann
	}

	c.logger.Info("Relationship classification complete",
		zap.Int("objects", len(objects)),
		zap.Int("columns", len(columns)),
		zap.Int("pk_fk", roleCounts[models.RolePKFK]),
		zap.Int("pk", roleCounts[models.RolePK]+roleCounts[models.RolePKComposite]),
		zap.Int("fk", roleCounts[models.RoleFK]+roleCounts[models.RoleFKCompositePart]),
		zap.Strings("junction_tables", junctions))

	LogConnectivity(BuildTableGraph(cat, normalized).Analyze(), c.logger)

	return models.NewClassificationResult(columns, objectAnnotations)
}

// Score returns the raw importance score for a role and inbound reference count.
func (c *RelationshipClassifier) Score(role models.ColumnRole, inbound int) int {
	var score int
	switch role {
	case models.RolePKFK:
		score = c.scoring.PKFKScore
	case models.RolePK, models.RolePKComposite:
		score = c.scoring.PKScore
	case models.RoleFK, models.RoleFKCompositePart:
		score = c.scoring.FKScore
	default:
		score = c.scoring.NormalScore
	}

	switch {
	case inbound >= c.scoring.HighReferenceThreshold:
		score += c.scoring.HighReferenceBonus
	case inbound >= c.scoring.MediumReferenceThreshold:
		score += c.scoring.MediumReferenceBonus
	case inbound >= 1:
		score += c.scoring.LowReferenceBonus
	}
	return score
}

// Level maps a raw score onto the ordinal importance scale. It is monotonic
// as long as the cutoffs are strictly decreasing, which config validation enforces.
func (c *RelationshipClassifier) Level(score int) models.ImportanceLevel {
	switch {
	case score >= c.scoring.MaximaCutoff:
		return models.ImportanceMaxima
	case score >= c.scoring.AltaCutoff:
		return models.ImportanceAlta
	case score >= c.scoring.MediaCutoff:
		return models.ImportanceMedia
	default:
		return models.ImportanceBaixa
	}
}

// sameColumnSet reports whether columns and set contain exactly the same names.
func sameColumnSet(columns []string, set map[string]bool) bool {
	if len(set) == 0 {
		return false
	}
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if !set[col] {
			return false
		}
		seen[col] = true
	}
	return len(seen) == len(set)
}
