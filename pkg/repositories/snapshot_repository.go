package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/database"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
	"github.com/ekaya-inc/ekaya-catalog/pkg/services"
)

// SnapshotRepository persists catalog snapshots in PostgreSQL.
type SnapshotRepository interface {
	// Save writes objects, columns, normalized constraints, the current
	// classification and all embeddings of catalog columns in one transaction.
	// A nil normalized set is computed from the catalog's raw segments.
	Save(ctx context.Context, cat *catalog.Catalog, normalized *models.NormalizedConstraints, store *services.EmbeddingStore) (uuid.UUID, error)

	// Load rebuilds the catalog and embedding store of a snapshot. Constraints
	// come back as raw segments; derived annotations are recomputed by the
	// next refresh.
	Load(ctx context.Context, id uuid.UUID) (*catalog.Catalog, *services.EmbeddingStore, error)

	// Latest returns the id of the most recently saved snapshot.
	Latest(ctx context.Context) (uuid.UUID, error)

	// Delete removes a snapshot and all of its rows.
	Delete(ctx context.Context, id uuid.UUID) error
}

type snapshotRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a SnapshotRepository backed by db.
func NewSnapshotRepository(db *database.DB, logger *zap.Logger) SnapshotRepository {
	return &snapshotRepository{db: db, logger: logger.Named("snapshot-repository")}
}

var _ SnapshotRepository = (*snapshotRepository)(nil)

// storedForeignKey is the JSONB shape of one normalized foreign key.
type storedForeignKey struct {
	ConstraintNames []string `json:"constraint_names"`
	SourceColumns   []string `json:"source_columns"`
	TargetObject    string   `json:"target_object"`
	TargetColumns   []string `json:"target_columns"`
	TargetResolved  bool     `json:"target_resolved"`
}

func (r *snapshotRepository) Save(ctx context.Context, cat *catalog.Catalog, normalized *models.NormalizedConstraints, store *services.EmbeddingStore) (uuid.UUID, error) {
	if cat == nil || store == nil {
		return uuid.Nil, fmt.Errorf("catalog and embedding store are required: %w", apperrors.ErrInvalidArgument)
	}
	startTime := time.Now()
	if normalized == nil {
		normalized = services.NewConstraintNormalizer(cat, r.logger).Normalize()
	}

	id := uuid.New()
	classification := cat.Classification()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO catalog_snapshots (id, catalog_version, embedding_dimension, created_at)
		VALUES ($1, $2, $3, $4)`,
		id, int64(cat.Version()), store.Dimension(), time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	objects := cat.Objects()
	batch := &pgx.Batch{}
	for _, obj := range objects {
		pkJSON, fkJSON, err := encodeConstraints(obj.Name, normalized)
		if err != nil {
			return uuid.Nil, err
		}
		ann, _ := classification.Object(obj.Name)
		links := ann.JunctionLinks
		if links == nil {
			links = []models.JunctionLink{}
		}
		linksJSON, err := json.Marshal(links)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to marshal junction links for %s: %w", obj.Name, err)
		}
		batch.Queue(`
			INSERT INTO catalog_objects (
				snapshot_id, name, kind, primary_key, foreign_keys,
				composite_pk, is_junction, junction_links
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, obj.Name, string(obj.Kind), pkJSON, fkJSON,
			ann.CompositePK, ann.IsJunction, linksJSON)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for _, obj := range objects {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return uuid.Nil, fmt.Errorf("failed to insert object %s: %w", obj.Name, err)
			}
		}
		if err := br.Close(); err != nil {
			return uuid.Nil, fmt.Errorf("failed to close object batch: %w", err)
		}
	}

	var columnRows [][]any
	for _, obj := range objects {
		for _, col := range obj.SortedColumns() {
			ref := models.ColumnRef{Object: obj.Name, Column: col.Name}
			var description *string
			if text, ok := cat.Description(ref); ok {
				description = &text
			}
			ann, ok := classification.Column(ref)
			if !ok {
				ann = models.ColumnAnnotation{Role: models.RoleNormal, Importance: models.ImportanceBaixa}
			}
			columnRows = append(columnRows, []any{
				id, obj.Name, col.Name, col.DataType, col.IsNullable, col.OrdinalPosition,
				description, ann.Role.String(), ann.Importance.String(), ann.Score, ann.InboundReferences,
			})
		}
	}
	if len(columnRows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"catalog_columns"},
			[]string{
				"snapshot_id", "object_name", "name", "data_type", "is_nullable", "ordinal_position",
				"description", "role", "importance", "importance_score", "inbound_references",
			},
			pgx.CopyFromRows(columnRows))
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to copy columns: %w", err)
		}
	}

	var embeddingRows [][]any
	orphaned := 0
	for _, ref := range store.Refs() {
		if !cat.HasColumn(ref) {
			orphaned++
			continue
		}
		vector, _ := store.Get(ref)
		embeddingRows = append(embeddingRows, []any{id, ref.Object, ref.Column, vector})
	}
	if len(embeddingRows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"catalog_column_embeddings"},
			[]string{"snapshot_id", "object_name", "column_name", "embedding"},
			pgx.CopyFromRows(embeddingRows))
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to copy embeddings: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	r.logger.Info("Saved catalog snapshot",
		zap.String("snapshot_id", id.String()),
		zap.Int("objects", len(objects)),
		zap.Int("columns", len(columnRows)),
		zap.Int("embeddings", len(embeddingRows)),
		zap.Int("orphaned_embeddings", orphaned),
		zap.Int64("duration_ms", time.Since(startTime).Milliseconds()))
	return id, nil
}

func encodeConstraints(object string, normalized *models.NormalizedConstraints) ([]byte, []byte, error) {
	pkColumns := []string{}
	if pk, ok := normalized.PrimaryKeys[object]; ok {
		pkColumns = pk.Columns
	}
	pkJSON, err := json.Marshal(pkColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal primary key for %s: %w", object, err)
	}

	fks := []storedForeignKey{}
	for _, fk := range normalized.ForeignKeysBySource(object) {
		fks = append(fks, storedForeignKey{
			ConstraintNames: fk.ConstraintNames,
			SourceColumns:   fk.SourceColumns,
			TargetObject:    fk.TargetObject,
			TargetColumns:   fk.TargetColumns,
			TargetResolved:  fk.TargetResolved,
		})
	}
	fkJSON, err := json.Marshal(fks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal foreign keys for %s: %w", object, err)
	}
	return pkJSON, fkJSON, nil
}

func (r *snapshotRepository) Load(ctx context.Context, id uuid.UUID) (*catalog.Catalog, *services.EmbeddingStore, error) {
	var dimension int
	err := r.db.QueryRow(ctx, `
		SELECT embedding_dimension FROM catalog_snapshots WHERE id = $1`, id).Scan(&dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("snapshot %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	columns, descriptions, err := r.loadColumns(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT name, kind, primary_key, foreign_keys
		FROM catalog_objects
		WHERE snapshot_id = $1
		ORDER BY name`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	cat := catalog.New()
	for rows.Next() {
		var name, kind string
		var pkJSON, fkJSON []byte
		if err := rows.Scan(&name, &kind, &pkJSON, &fkJSON); err != nil {
			return nil, nil, fmt.Errorf("failed to scan object: %w", err)
		}
		obj := &models.SchemaObject{Name: name, Kind: models.ObjectKind(kind), Columns: columns[name]}
		if err := cat.AddObject(obj); err != nil {
			return nil, nil, fmt.Errorf("failed to restore object %s: %w", name, err)
		}
		if err := restoreConstraints(cat, name, pkJSON, fkJSON); err != nil {
			return nil, nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating objects: %w", err)
	}

	for ref, text := range descriptions {
		if err := cat.SetDescription(ref, text); err != nil {
			return nil, nil, fmt.Errorf("failed to restore description for %s: %w", ref, err)
		}
	}

	store, err := r.loadEmbeddings(ctx, id, dimension)
	if err != nil {
		return nil, nil, err
	}

	r.logger.Debug("Loaded catalog snapshot",
		zap.String("snapshot_id", id.String()),
		zap.Int("objects", len(cat.Objects())),
		zap.Int("embeddings", store.Len()))
	return cat, store, nil
}

func (r *snapshotRepository) loadColumns(ctx context.Context, id uuid.UUID) (map[string][]*models.Column, map[models.ColumnRef]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_name, name, data_type, is_nullable, ordinal_position, description
		FROM catalog_columns
		WHERE snapshot_id = $1
		ORDER BY object_name, ordinal_position, name`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]*models.Column)
	descriptions := make(map[models.ColumnRef]string)
	for rows.Next() {
		var object string
		var description *string
		col := &models.Column{}
		if err := rows.Scan(&object, &col.Name, &col.DataType, &col.IsNullable, &col.OrdinalPosition, &description); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns[object] = append(columns[object], col)
		if description != nil {
			descriptions[models.ColumnRef{Object: object, Column: col.Name}] = *description
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return columns, descriptions, nil
}

// restoreConstraints re-expresses normalized keys as raw segments. Every
// constraint name of a merged foreign key gets its own segments so the next
// normalization restores the same name list.
func restoreConstraints(cat *catalog.Catalog, object string, pkJSON, fkJSON []byte) error {
	var pkColumns []string
	if err := json.Unmarshal(pkJSON, &pkColumns); err != nil {
		return fmt.Errorf("failed to unmarshal primary key for %s: %w", object, err)
	}
	pkSegments := make([]models.PrimaryKeySegment, 0, len(pkColumns))
	for i, col := range pkColumns {
		pkSegments = append(pkSegments, models.PrimaryKeySegment{Object: object, Column: col, Position: i + 1})
	}
	cat.AddPrimaryKeySegments(pkSegments...)

	var fks []storedForeignKey
	if err := json.Unmarshal(fkJSON, &fks); err != nil {
		return fmt.Errorf("failed to unmarshal foreign keys for %s: %w", object, err)
	}
	var fkSegments []models.ForeignKeySegment
	for _, fk := range fks {
		if len(fk.SourceColumns) != len(fk.TargetColumns) {
			return fmt.Errorf("stored foreign key on %s has %d source and %d target columns",
				object, len(fk.SourceColumns), len(fk.TargetColumns))
		}
		for _, name := range fk.ConstraintNames {
			for i := range fk.SourceColumns {
				fkSegments = append(fkSegments, models.ForeignKeySegment{
					SourceObject:   object,
					ConstraintName: name,
					SourceColumn:   fk.SourceColumns[i],
					Position:       i + 1,
					TargetObject:   fk.TargetObject,
					TargetColumn:   fk.TargetColumns[i],
				})
			}
		}
	}
	cat.AddForeignKeySegments(fkSegments...)
	return nil
}

func (r *snapshotRepository) loadEmbeddings(ctx context.Context, id uuid.UUID, dimension int) (*services.EmbeddingStore, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_name, column_name, embedding
		FROM catalog_column_embeddings
		WHERE snapshot_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	store := services.NewEmbeddingStore(dimension)
	for rows.Next() {
		var ref models.ColumnRef
		var vector []float32
		if err := rows.Scan(&ref.Object, &ref.Column, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if err := store.Put(ref, vector); err != nil {
			r.logger.Warn("Skipping stored embedding",
				zap.String("column", ref.String()),
				zap.Error(err))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}
	return store, nil
}

func (r *snapshotRepository) Latest(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT id FROM catalog_snapshots
		ORDER BY created_at DESC, catalog_version DESC
		LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("no snapshots saved: %w", apperrors.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return id, nil
}

func (r *snapshotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM catalog_snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
