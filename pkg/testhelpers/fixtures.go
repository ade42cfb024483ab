package testhelpers

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// SchemaFixture is a YAML description of an extraction snapshot: objects,
// raw key segments, descriptions and column embeddings keyed "OBJECT.COLUMN".
type SchemaFixture struct {
	Dimension    int                        `yaml:"dimension"`
	Objects      []*models.SchemaObject     `yaml:"objects"`
	PrimaryKeys  []models.PrimaryKeySegment `yaml:"primary_keys"`
	ForeignKeys  []models.ForeignKeySegment `yaml:"foreign_keys"`
	Descriptions map[string]string          `yaml:"descriptions"`
	Embeddings   map[string][]float32       `yaml:"embeddings"`
}

// FixturePath returns the absolute path of a file under testhelpers/testdata.
func FixturePath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

// LoadSchemaFixture reads and parses a fixture file.
func LoadSchemaFixture(path string) (*SchemaFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	var fixture SchemaFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return &fixture, nil
}

// MustLoadSchemaFixture loads a fixture from testdata or fails the test.
func MustLoadSchemaFixture(t *testing.T, name string) *SchemaFixture {
	t.Helper()
	fixture, err := LoadSchemaFixture(FixturePath(name))
	if err != nil {
		t.Fatalf("%v", err)
	}
	return fixture
}

// Catalog builds a catalog holding the fixture's objects, segments and descriptions.
func (f *SchemaFixture) Catalog() (*catalog.Catalog, error) {
	cat := catalog.New()
	for _, obj := range f.Objects {
		if err := cat.AddObject(obj); err != nil {
			return nil, err
		}
	}
	cat.AddPrimaryKeySegments(f.PrimaryKeys...)
	cat.AddForeignKeySegments(f.ForeignKeys...)
	for key, text := range f.Descriptions {
		ref, ok := models.ParseColumnRef(key)
		if !ok {
			return nil, fmt.Errorf("invalid description key %q", key)
		}
		if err := cat.SetDescription(ref, text); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// MustCatalog builds the fixture catalog or fails the test.
func (f *SchemaFixture) MustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := f.Catalog()
	if err != nil {
		t.Fatalf("failed to build fixture catalog: %v", err)
	}
	return cat
}

// Vectors returns the fixture embeddings keyed by column ref.
func (f *SchemaFixture) Vectors() (map[models.ColumnRef][]float32, error) {
	out := make(map[models.ColumnRef][]float32, len(f.Embeddings))
	for key, vector := range f.Embeddings {
		ref, ok := models.ParseColumnRef(key)
		if !ok {
			return nil, fmt.Errorf("invalid embedding key %q", key)
		}
		out[ref] = vector
	}
	return out, nil
}
