package models

import (
	"sort"
	"strings"
)

// PrimaryKeyConstraint is the normalized primary key of one object.
// Columns are ordered by segment position.
type PrimaryKeyConstraint struct {
	Object  string   `json:"object"`
	Columns []string `json:"columns"`
}

// IsComposite reports whether the key spans more than one column.
func (pk *PrimaryKeyConstraint) IsComposite() bool {
	return len(pk.Columns) > 1
}

// Contains reports whether column is part of the key.
func (pk *PrimaryKeyConstraint) Contains(column string) bool {
	for _, c := range pk.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// signatureSep cannot appear in an identifier returned by a catalog query.
const signatureSep = "\x1f"

// KeySignature is the canonical identity of a foreign key: both column lists
// are sorted so constraints that differ only by name (or by segment order)
// compare equal. It is comparable and usable as a map key.
type KeySignature struct {
	SourceObject  string
	SourceColumns string
	TargetObject  string
	TargetColumns string
}

// NewKeySignature builds a signature from positional column lists.
func NewKeySignature(sourceObject string, sourceColumns []string, targetObject string, targetColumns []string) KeySignature {
	return KeySignature{
		SourceObject:  sourceObject,
		SourceColumns: joinSorted(sourceColumns),
		TargetObject:  targetObject,
		TargetColumns: joinSorted(targetColumns),
	}
}

func joinSorted(cols []string) string {
	sorted := make([]string, len(cols))
	copy(sorted, cols)
	sort.Strings(sorted)
	return strings.Join(sorted, signatureSep)
}

// String renders the signature for logs: "SRC(A,B)->TGT(X,Y)".
func (s KeySignature) String() string {
	return s.SourceObject + "(" + strings.ReplaceAll(s.SourceColumns, signatureSep, ",") + ")->" +
		s.TargetObject + "(" + strings.ReplaceAll(s.TargetColumns, signatureSep, ",") + ")"
}

// Less orders signatures deterministically.
func (s KeySignature) Less(other KeySignature) bool {
	if s.SourceObject != other.SourceObject {
		return s.SourceObject < other.SourceObject
	}
	if s.SourceColumns != other.SourceColumns {
		return s.SourceColumns < other.SourceColumns
	}
	if s.TargetObject != other.TargetObject {
		return s.TargetObject < other.TargetObject
	}
	return s.TargetColumns < other.TargetColumns
}

// ForeignKeyConstraint is a normalized, de-duplicated foreign key.
// SourceColumns[i] pairs with TargetColumns[i].
type ForeignKeyConstraint struct {
	Signature       KeySignature `json:"-"`
	ConstraintNames []string     `json:"constraint_names"`
	SourceObject    string       `json:"source_object"`
	SourceColumns   []string     `json:"source_columns"`
	TargetObject    string       `json:"target_object"`
	TargetColumns   []string     `json:"target_columns"`
	// TargetResolved is false when the target object or one of its columns
	// is missing from the catalog.
	TargetResolved bool `json:"target_resolved"`
}

// IsComposite reports whether the key spans more than one column.
func (fk *ForeignKeyConstraint) IsComposite() bool {
	return len(fk.SourceColumns) > 1
}

// Pairs returns the positional source -> target column pairs.
func (fk *ForeignKeyConstraint) Pairs() []ColumnPair {
	pairs := make([]ColumnPair, 0, len(fk.SourceColumns))
	for i := range fk.SourceColumns {
		pairs = append(pairs, ColumnPair{
			Source: ColumnRef{Object: fk.SourceObject, Column: fk.SourceColumns[i]},
			Target: ColumnRef{Object: fk.TargetObject, Column: fk.TargetColumns[i]},
		})
	}
	return pairs
}

// ColumnPair binds a source column to the target column it references.
type ColumnPair struct {
	Source ColumnRef `json:"source"`
	Target ColumnRef `json:"target"`
}

// NormalizationReport counts records skipped while normalizing constraints.
type NormalizationReport struct {
	PrimaryKeySegments    int `json:"primary_key_segments"`
	ForeignKeySegments    int `json:"foreign_key_segments"`
	SkippedPKSegments     int `json:"skipped_pk_segments"`
	SkippedFKSegments     int `json:"skipped_fk_segments"`
	DroppedForeignKeys    int `json:"dropped_foreign_keys"`
	MergedConstraintNames int `json:"merged_constraint_names"`
	UnresolvedForeignKeys int `json:"unresolved_foreign_keys"`
}

// NormalizedConstraints is the output of constraint normalization.
type NormalizedConstraints struct {
	PrimaryKeys map[string]*PrimaryKeyConstraint
	ForeignKeys map[KeySignature]*ForeignKeyConstraint
	Report      NormalizationReport
}

// SortedForeignKeys returns the foreign keys in signature order.
func (n *NormalizedConstraints) SortedForeignKeys() []*ForeignKeyConstraint {
	fks := make([]*ForeignKeyConstraint, 0, len(n.ForeignKeys))
	for _, fk := range n.ForeignKeys {
		fks = append(fks, fk)
	}
	sort.Slice(fks, func(i, j int) bool { return fks[i].Signature.Less(fks[j].Signature) })
	return fks
}

// ForeignKeysBySource returns the foreign keys declared on object, in signature order.
func (n *NormalizedConstraints) ForeignKeysBySource(object string) []*ForeignKeyConstraint {
	var fks []*ForeignKeyConstraint
	for _, fk := range n.SortedForeignKeys() {
		if fk.SourceObject == object {
			fks = append(fks, fk)
		}
	}
	return fks
}
