package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ColumnRole is the structural role of a column, derived from constraints.
type ColumnRole int

const (
	RoleNormal ColumnRole = iota
	RoleFK
	RoleFKCompositePart
	RolePK
	RolePKComposite
	RolePKFK
)

var roleNames = map[ColumnRole]string{
	RoleNormal:          "Normal",
	RoleFK:              "FK",
	RoleFKCompositePart: "FK-CompositePart",
	RolePK:              "PK",
	RolePKComposite:     "PK-Composite",
	RolePKFK:            "PK/FK",
}

// String returns the canonical role label.
func (r ColumnRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ColumnRole(%d)", int(r))
}

// IsPrimaryKey reports whether the role includes primary key membership.
func (r ColumnRole) IsPrimaryKey() bool {
	return r == RolePK || r == RolePKComposite || r == RolePKFK
}

// IsForeignKey reports whether the role includes foreign key membership.
func (r ColumnRole) IsForeignKey() bool {
	return r == RoleFK || r == RoleFKCompositePart || r == RolePKFK
}

// ParseColumnRole parses a canonical role label.
func ParseColumnRole(s string) (ColumnRole, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleNormal, fmt.Errorf("unknown column role %q", s)
}

// MarshalJSON encodes the role as its label.
func (r ColumnRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role label.
func (r *ColumnRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role, err := ParseColumnRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ImportanceLevel is the ordinal structural importance of a column.
// Levels compare with the usual integer operators: Baixa < Média < Alta < Máxima.
type ImportanceLevel int

const (
	ImportanceBaixa ImportanceLevel = iota
	ImportanceMedia
	ImportanceAlta
	ImportanceMaxima
)

var importanceNames = map[ImportanceLevel]string{
	ImportanceBaixa:  "Baixa",
	ImportanceMedia:  "Média",
	ImportanceAlta:   "Alta",
	ImportanceMaxima: "Máxima",
}

// String returns the level label.
func (l ImportanceLevel) String() string {
	if name, ok := importanceNames[l]; ok {
		return name
	}
	return fmt.Sprintf("ImportanceLevel(%d)", int(l))
}

// ParseImportanceLevel parses a level label.
func ParseImportanceLevel(s string) (ImportanceLevel, error) {
	for level, name := range importanceNames {
		if name == s {
			return level, nil
		}
	}
	return ImportanceBaixa, fmt.Errorf("unknown importance level %q", s)
}

// MarshalJSON encodes the level as its label.
func (l ImportanceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level label.
func (l *ImportanceLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseImportanceLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// ColumnAnnotation is the derived classification of one column.
type ColumnAnnotation struct {
	Ref        ColumnRef       `json:"ref"`
	Role       ColumnRole      `json:"role"`
	Importance ImportanceLevel `json:"importance"`
	Score      int             `json:"score"`
	// InboundReferences counts resolved foreign keys elsewhere that target this column.
	InboundReferences int `json:"inbound_references"`
	// References lists every resolved target of the foreign keys this column
	// belongs to, in signature order. Composite keys contribute the target
	// paired by segment position.
	References []ColumnRef `json:"references,omitempty"`
}

// PrimaryReference returns the first resolved target, if any.
func (a ColumnAnnotation) PrimaryReference() (ColumnRef, bool) {
	if len(a.References) == 0 {
		return ColumnRef{}, false
	}
	return a.References[0], true
}

// JunctionLink documents one primary key column of a junction table and the
// column it references.
type JunctionLink struct {
	Column string    `json:"column"`
	Target ColumnRef `json:"target"`
}

// ObjectAnnotation is the derived classification of one object.
type ObjectAnnotation struct {
	Name          string         `json:"name"`
	HasPrimaryKey bool           `json:"has_primary_key"`
	CompositePK   bool           `json:"composite_pk"`
	IsJunction    bool           `json:"is_junction"`
	JunctionLinks []JunctionLink `json:"junction_links,omitempty"`
}

// ClassificationResult is the immutable output of a classification pass.
// It is built once and never mutated afterwards.
type ClassificationResult struct {
	columns map[ColumnRef]ColumnAnnotation
	objects map[string]ObjectAnnotation
}

// NewClassificationResult wraps fully computed annotation maps.
func NewClassificationResult(columns map[ColumnRef]ColumnAnnotation, objects map[string]ObjectAnnotation) *ClassificationResult {
	return &ClassificationResult{columns: columns, objects: objects}
}

// Column returns the annotation for ref.
func (r *ClassificationResult) Column(ref ColumnRef) (ColumnAnnotation, bool) {
	if r == nil {
		return ColumnAnnotation{}, false
	}
	a, ok := r.columns[ref]
	return a, ok
}

// Object returns the annotation for the named object.
func (r *ClassificationResult) Object(name string) (ObjectAnnotation, bool) {
	if r == nil {
		return ObjectAnnotation{}, false
	}
	a, ok := r.objects[name]
	return a, ok
}

// Columns returns all column annotations ordered by ref.
func (r *ClassificationResult) Columns() []ColumnAnnotation {
	if r == nil {
		return nil
	}
	out := make([]ColumnAnnotation, 0, len(r.columns))
	for _, a := range r.columns {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Less(out[j].Ref) })
	return out
}

// Objects returns all object annotations ordered by name.
func (r *ClassificationResult) Objects() []ObjectAnnotation {
	if r == nil {
		return nil
	}
	out := make([]ObjectAnnotation, 0, len(r.objects))
	for _, a := range r.objects {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// JunctionTables returns the names of objects flagged as junction tables.
func (r *ClassificationResult) JunctionTables() []string {
	var names []string
	for _, o := range r.Objects() {
		if o.IsJunction {
			names = append(names, o.Name)
		}
	}
	return names
}

// Len returns the number of annotated columns.
func (r *ClassificationResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.columns)
}

// SimilarColumn is one entry of a similarity query result.
type SimilarColumn struct {
	Ref         ColumnRef       `json:"ref"`
	Description string          `json:"description"`
	Distance    float64         `json:"distance"`
	Role        ColumnRole      `json:"role"`
	Importance  ImportanceLevel `json:"importance"`
}
