// Package catalog holds the in-memory schema metadata repository: the objects
// and columns of one extraction snapshot, their raw key constraints, column
// descriptions, and the annotations derived from them.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// Catalog is safe for concurrent use. Readers never observe a partially
// applied classification: ApplyClassification swaps the result atomically.
type Catalog struct {
	mu sync.RWMutex

	objects      map[string]*models.SchemaObject
	pkSegments   []models.PrimaryKeySegment
	fkSegments   []models.ForeignKeySegment
	descriptions map[models.ColumnRef]string

	classification *models.ClassificationResult
	version        uint64
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		objects:      make(map[string]*models.SchemaObject),
		descriptions: make(map[models.ColumnRef]string),
	}
}

// Version changes whenever objects, constraints or descriptions change.
// Applying a classification does not change it.
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// AddObject registers an object. Names must be unique across the catalog and
// column names unique within the object.
func (c *Catalog) AddObject(obj *models.SchemaObject) error {
	if obj == nil || obj.Name == "" {
		return fmt.Errorf("object name is required: %w", apperrors.ErrInvalidArgument)
	}
	kind := obj.Kind
	if kind == "" {
		kind = models.ObjectKindTable
	}
	if !kind.IsValid() {
		return fmt.Errorf("object %s has unknown kind %q: %w", obj.Name, obj.Kind, apperrors.ErrInvalidArgument)
	}

	seen := make(map[string]bool, len(obj.Columns))
	cols := make([]*models.Column, 0, len(obj.Columns))
	for _, col := range obj.Columns {
		if col == nil || col.Name == "" {
			return fmt.Errorf("object %s has a column without a name: %w", obj.Name, apperrors.ErrInvalidArgument)
		}
		if seen[col.Name] {
			return fmt.Errorf("object %s has duplicate column %s: %w", obj.Name, col.Name, apperrors.ErrConflict)
		}
		seen[col.Name] = true
		cp := *col
		cols = append(cols, &cp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.objects[obj.Name]; exists {
		return fmt.Errorf("object %s already registered: %w", obj.Name, apperrors.ErrConflict)
	}
	c.objects[obj.Name] = &models.SchemaObject{Name: obj.Name, Kind: kind, Columns: cols}
	c.version++
	return nil
}

// Object returns a copy of the named object.
func (c *Catalog) Object(name string) (*models.SchemaObject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[name]
	if !ok {
		return nil, false
	}
	return copyObject(obj), true
}

// Objects returns copies of all objects ordered by name.
func (c *Catalog) Objects() []*models.SchemaObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.SchemaObject, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, copyObject(obj))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasObject reports whether the object exists.
func (c *Catalog) HasObject(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[name]
	return ok
}

// Column returns a copy of the referenced column.
func (c *Catalog) Column(ref models.ColumnRef) (*models.Column, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[ref.Object]
	if !ok {
		return nil, false
	}
	col := obj.Column(ref.Column)
	if col == nil {
		return nil, false
	}
	cp := *col
	return &cp, true
}

// HasColumn reports whether the referenced column exists.
func (c *Catalog) HasColumn(ref models.ColumnRef) bool {
	_, ok := c.Column(ref)
	return ok
}

// ColumnRefs returns every column ref, objects by name and columns by ordinal position.
func (c *Catalog) ColumnRefs() []models.ColumnRef {
	var refs []models.ColumnRef
	for _, obj := range c.Objects() {
		for _, col := range obj.SortedColumns() {
			refs = append(refs, models.ColumnRef{Object: obj.Name, Column: col.Name})
		}
	}
	return refs
}

// AddPrimaryKeySegments appends raw primary key rows. Validation happens
// during normalization, not here.
func (c *Catalog) AddPrimaryKeySegments(segments ...models.PrimaryKeySegment) {
	if len(segments) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pkSegments = append(c.pkSegments, segments...)
	c.version++
}

// AddForeignKeySegments appends raw foreign key rows.
func (c *Catalog) AddForeignKeySegments(segments ...models.ForeignKeySegment) {
	if len(segments) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fkSegments = append(c.fkSegments, segments...)
	c.version++
}

// PrimaryKeySegments returns a copy of the raw primary key rows.
func (c *Catalog) PrimaryKeySegments() []models.PrimaryKeySegment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.PrimaryKeySegment, len(c.pkSegments))
	copy(out, c.pkSegments)
	return out
}

// ForeignKeySegments returns a copy of the raw foreign key rows.
func (c *Catalog) ForeignKeySegments() []models.ForeignKeySegment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ForeignKeySegment, len(c.fkSegments))
	copy(out, c.fkSegments)
	return out
}

// SetDescription records the human-readable description of a column.
// An empty text clears it.
func (c *Catalog) SetDescription(ref models.ColumnRef, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[ref.Object]
	if !ok || obj.Column(ref.Column) == nil {
		return fmt.Errorf("column %s: %w", ref, apperrors.ErrNotFound)
	}
	if text == "" {
		delete(c.descriptions, ref)
	} else {
		c.descriptions[ref] = text
	}
	c.version++
	return nil
}

// Description returns the column description and whether it is usable,
// i.e. non-blank after trimming.
func (c *Catalog) Description(ref models.ColumnRef) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text := strings.TrimSpace(c.descriptions[ref])
	return text, text != ""
}

// ApplyClassification replaces the current annotation set.
func (c *Catalog) ApplyClassification(result *models.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classification = result
}

// Classification returns the last applied result, or nil.
func (c *Catalog) Classification() *models.ClassificationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classification
}

// Annotation returns the column annotation from the last applied classification.
func (c *Catalog) Annotation(ref models.ColumnRef) (models.ColumnAnnotation, bool) {
	return c.Classification().Column(ref)
}

// ObjectAnnotation returns the object annotation from the last applied classification.
func (c *Catalog) ObjectAnnotation(name string) (models.ObjectAnnotation, bool) {
	return c.Classification().Object(name)
}

func copyObject(obj *models.SchemaObject) *models.SchemaObject {
	cols := make([]*models.Column, len(obj.Columns))
	for i, col := range obj.Columns {
		cp := *col
		cols[i] = &cp
	}
	return &models.SchemaObject{Name: obj.Name, Kind: obj.Kind, Columns: cols}
}
