package models

import (
	"sort"
	"strings"
)

// ObjectKind distinguishes tables from views.
type ObjectKind string

const (
	ObjectKindTable ObjectKind = "table"
	ObjectKindView  ObjectKind = "view"
)

// IsValid reports whether k is a known object kind.
func (k ObjectKind) IsValid() bool {
	return k == ObjectKindTable || k == ObjectKindView
}

// SchemaObject represents a table or view captured by an extraction snapshot.
type SchemaObject struct {
	Name    string     `json:"name" yaml:"name"`
	Kind    ObjectKind `json:"kind" yaml:"kind"`
	Columns []*Column  `json:"columns" yaml:"columns"`
}

// Column represents a column of a SchemaObject.
type Column struct {
	Name            string `json:"name" yaml:"name"`
	DataType        string `json:"data_type" yaml:"data_type"`
	IsNullable      bool   `json:"is_nullable" yaml:"is_nullable"`
	OrdinalPosition int    `json:"ordinal_position" yaml:"ordinal_position"`
}

// Column returns the named column or nil.
func (o *SchemaObject) Column(name string) *Column {
	for _, c := range o.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// SortedColumns returns the columns ordered by ordinal position, then name.
func (o *SchemaObject) SortedColumns() []*Column {
	cols := make([]*Column, len(o.Columns))
	copy(cols, o.Columns)
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].OrdinalPosition != cols[j].OrdinalPosition {
			return cols[i].OrdinalPosition < cols[j].OrdinalPosition
		}
		return cols[i].Name < cols[j].Name
	})
	return cols
}

// ColumnRef identifies a column within the catalog.
type ColumnRef struct {
	Object string `json:"object" yaml:"object"`
	Column string `json:"column" yaml:"column"`
}

// String returns "OBJECT.COLUMN".
func (r ColumnRef) String() string {
	return r.Object + "." + r.Column
}

// IsZero reports whether the ref is unset.
func (r ColumnRef) IsZero() bool {
	return r.Object == "" && r.Column == ""
}

// Less orders refs by object, then column.
func (r ColumnRef) Less(other ColumnRef) bool {
	if r.Object != other.Object {
		return r.Object < other.Object
	}
	return r.Column < other.Column
}

// ParseColumnRef parses "OBJECT.COLUMN". The split happens on the last dot so
// schema-qualified object names ("sales.ORDERS.ID") keep their prefix.
func ParseColumnRef(s string) (ColumnRef, bool) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return ColumnRef{}, false
	}
	return ColumnRef{Object: s[:idx], Column: s[idx+1:]}, true
}

// SortColumnRefs sorts refs in place by object, then column.
func SortColumnRefs(refs []ColumnRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}

// ============================================================================
// Raw constraint segments (as produced by schema extraction)
// ============================================================================

// PrimaryKeySegment is one column of a primary key, one row per column.
type PrimaryKeySegment struct {
	Object   string `json:"object" yaml:"object"`
	Column   string `json:"column" yaml:"column"`
	Position int    `json:"position" yaml:"position"`
}

// ForeignKeySegment is one column pair of a foreign key constraint.
type ForeignKeySegment struct {
	SourceObject   string `json:"source_object" yaml:"source_object"`
	ConstraintName string `json:"constraint_name" yaml:"constraint_name"`
	SourceColumn   string `json:"source_column" yaml:"source_column"`
	Position       int    `json:"position" yaml:"position"`
	TargetObject   string `json:"target_object" yaml:"target_object"`
	TargetColumn   string `json:"target_column" yaml:"target_column"`
}
