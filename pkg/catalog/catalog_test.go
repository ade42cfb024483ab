package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

func customers() *models.SchemaObject {
	return &models.SchemaObject{
		Name: "CUSTOMERS",
		Columns: []*models.Column{
			{Name: "EMAIL", DataType: "varchar", OrdinalPosition: 2},
			{Name: "ID", DataType: "integer", OrdinalPosition: 1},
		},
	}
}

func TestCatalog_AddObject(t *testing.T) {
	c := New()
	require.NoError(t, c.AddObject(customers()))

	obj, ok := c.Object("CUSTOMERS")
	require.True(t, ok)
	assert.Equal(t, models.ObjectKindTable, obj.Kind, "kind defaults to table")
	assert.True(t, c.HasObject("CUSTOMERS"))
	assert.True(t, c.HasColumn(models.ColumnRef{Object: "CUSTOMERS", Column: "EMAIL"}))
	assert.False(t, c.HasColumn(models.ColumnRef{Object: "CUSTOMERS", Column: "PHONE"}))

	// Columns come back by ordinal position
	assert.Equal(t, []models.ColumnRef{
		{Object: "CUSTOMERS", Column: "ID"},
		{Object: "CUSTOMERS", Column: "EMAIL"},
	}, c.ColumnRefs())
}

func TestCatalog_AddObjectValidation(t *testing.T) {
	c := New()
	require.NoError(t, c.AddObject(customers()))

	err := c.AddObject(customers())
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	err = c.AddObject(&models.SchemaObject{Name: ""})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	err = c.AddObject(&models.SchemaObject{Name: "V", Kind: "materialized"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	err = c.AddObject(&models.SchemaObject{Name: "DUP", Columns: []*models.Column{{Name: "A"}, {Name: "A"}}})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.False(t, c.HasObject("DUP"))
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c := New()
	input := customers()
	require.NoError(t, c.AddObject(input))
	input.Columns[0].DataType = "text"

	obj, _ := c.Object("CUSTOMERS")
	assert.Equal(t, "varchar", obj.Column("EMAIL").DataType)

	obj.Columns[0].Name = "CHANGED"
	again, _ := c.Object("CUSTOMERS")
	assert.NotNil(t, again.Column("EMAIL"))
}

func TestCatalog_VersionTracksChanges(t *testing.T) {
	c := New()
	v0 := c.Version()

	require.NoError(t, c.AddObject(customers()))
	v1 := c.Version()
	assert.Greater(t, v1, v0)

	c.AddPrimaryKeySegments(models.PrimaryKeySegment{Object: "CUSTOMERS", Column: "ID", Position: 1})
	v2 := c.Version()
	assert.Greater(t, v2, v1)

	c.AddForeignKeySegments()
	assert.Equal(t, v2, c.Version(), "empty append is a no-op")

	require.NoError(t, c.SetDescription(models.ColumnRef{Object: "CUSTOMERS", Column: "EMAIL"}, "Contact email"))
	v3 := c.Version()
	assert.Greater(t, v3, v2)

	c.ApplyClassification(models.NewClassificationResult(nil, nil))
	assert.Equal(t, v3, c.Version(), "annotations are derived data")
}

func TestCatalog_Descriptions(t *testing.T) {
	c := New()
	require.NoError(t, c.AddObject(customers()))
	email := models.ColumnRef{Object: "CUSTOMERS", Column: "EMAIL"}

	_, ok := c.Description(email)
	assert.False(t, ok)

	require.NoError(t, c.SetDescription(email, "  Contact email  "))
	text, ok := c.Description(email)
	assert.True(t, ok)
	assert.Equal(t, "Contact email", text)

	require.NoError(t, c.SetDescription(email, "   "))
	_, ok = c.Description(email)
	assert.False(t, ok, "whitespace is not a usable description")

	require.NoError(t, c.SetDescription(email, ""))
	_, ok = c.Description(email)
	assert.False(t, ok)

	err := c.SetDescription(models.ColumnRef{Object: "CUSTOMERS", Column: "PHONE"}, "x")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCatalog_Segments(t *testing.T) {
	c := New()
	c.AddPrimaryKeySegments(models.PrimaryKeySegment{Object: "T", Column: "A", Position: 1})
	c.AddForeignKeySegments(models.ForeignKeySegment{SourceObject: "T", ConstraintName: "FK", SourceColumn: "A", Position: 1, TargetObject: "U", TargetColumn: "ID"})

	pks := c.PrimaryKeySegments()
	require.Len(t, pks, 1)
	pks[0].Column = "CHANGED"
	assert.Equal(t, "A", c.PrimaryKeySegments()[0].Column)

	assert.Len(t, c.ForeignKeySegments(), 1)
}

func TestCatalog_Annotations(t *testing.T) {
	c := New()
	require.NoError(t, c.AddObject(customers()))
	id := models.ColumnRef{Object: "CUSTOMERS", Column: "ID"}

	_, ok := c.Annotation(id)
	assert.False(t, ok)
	assert.Nil(t, c.Classification())

	c.ApplyClassification(models.NewClassificationResult(
		map[models.ColumnRef]models.ColumnAnnotation{
			id: {Ref: id, Role: models.RolePK, Importance: models.ImportanceAlta},
		},
		map[string]models.ObjectAnnotation{
			"CUSTOMERS": {Name: "CUSTOMERS", HasPrimaryKey: true},
		},
	))

	ann, ok := c.Annotation(id)
	require.True(t, ok)
	assert.Equal(t, models.RolePK, ann.Role)
	obj, ok := c.ObjectAnnotation("CUSTOMERS")
	require.True(t, ok)
	assert.True(t, obj.HasPrimaryKey)
}
