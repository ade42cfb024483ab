package services

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// TableGraph represents schema objects connected by resolved foreign keys.
type TableGraph struct {
	// Adjacency list: object -> objects it's connected to
	edges map[string][]string
	// All unique objects in the graph
	objects map[string]bool
	fkCount int
}

// NewTableGraph creates a new empty graph.
func NewTableGraph() *TableGraph {
	return &TableGraph{
		edges:   make(map[string][]string),
		objects: make(map[string]bool),
	}
}

// BuildTableGraph adds every catalog object and every resolved foreign key.
// Unresolved keys are left out because their target cannot be walked.
func BuildTableGraph(cat *catalog.Catalog, normalized *models.NormalizedConstraints) *TableGraph {
	g := NewTableGraph()
	for _, obj := range cat.Objects() {
		g.AddObject(obj.Name)
	}
	if normalized == nil {
		return g
	}
	for _, fk := range normalized.SortedForeignKeys() {
		if fk.TargetResolved {
			g.AddForeignKey(fk)
		}
	}
	return g
}

// AddForeignKey adds an undirected edge between the source and target objects.
func (g *TableGraph) AddForeignKey(fk *models.ForeignKeyConstraint) {
	g.objects[fk.SourceObject] = true
	g.objects[fk.TargetObject] = true
	g.fkCount++

	// Self-references keep the object in the graph without an edge
	if fk.SourceObject == fk.TargetObject {
		return
	}
	g.edges[fk.SourceObject] = append(g.edges[fk.SourceObject], fk.TargetObject)
	g.edges[fk.TargetObject] = append(g.edges[fk.TargetObject], fk.SourceObject)
}

// AddObject adds an object without any edges.
func (g *TableGraph) AddObject(name string) {
	g.objects[name] = true
}

// ForeignKeyCount returns the number of keys added to the graph.
func (g *TableGraph) ForeignKeyCount() int {
	return g.fkCount
}

// ConnectedComponent represents a group of objects connected by foreign keys.
type ConnectedComponent struct {
	Objects []string `json:"objects"`
	Size    int      `json:"size"`
}

// Connectivity is the result of a connected component analysis.
type Connectivity struct {
	ForeignKeys int                  `json:"foreign_keys"`
	Components  []ConnectedComponent `json:"components"`
	Islands     []string             `json:"islands"`
}

// FindConnectedComponents identifies all connected components using DFS.
// Components are sorted by size (largest first, then by first object name);
// objects with no relationships are returned separately as islands.
func (g *TableGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	names := make([]string, 0, len(g.objects))
	for name := range g.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	var components []ConnectedComponent
	var islands []string

	for _, name := range names {
		if visited[name] {
			continue
		}
		component := g.dfs(name, visited)
		if len(component) == 1 {
			islands = append(islands, component[0])
			continue
		}
		components = append(components, ConnectedComponent{
			Objects: component,
			Size:    len(component),
		})
	}

	sort.SliceStable(components, func(i, j int) bool {
		if components[i].Size != components[j].Size {
			return components[i].Size > components[j].Size
		}
		return components[i].Objects[0] < components[j].Objects[0]
	})

	return components, islands
}

// Analyze runs the component search and packages the result.
func (g *TableGraph) Analyze() Connectivity {
	components, islands := g.FindConnectedComponents()
	return Connectivity{
		ForeignKeys: g.fkCount,
		Components:  components,
		Islands:     islands,
	}
}

// dfs returns the sorted objects reachable from start.
func (g *TableGraph) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true
		component = append(component, current)

		for _, neighbor := range g.edges[current] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}

	sort.Strings(component)
	return component
}

// LogConnectivity logs the connectivity analysis with previews capped at five objects.
func LogConnectivity(c Connectivity, logger *zap.Logger) {
	for i, comp := range c.Components {
		logger.Debug("Connected component",
			zap.Int("component", i+1),
			zap.Int("size", comp.Size),
			zap.Strings("objects", preview(comp.Objects, 5)))
	}

	logger.Info("Graph connectivity analysis",
		zap.Int("foreign_keys", c.ForeignKeys),
		zap.Int("components", len(c.Components)),
		zap.Int("islands", len(c.Islands)),
		zap.Strings("island_preview", preview(c.Islands, 5)))
}

func preview(names []string, limit int) []string {
	if len(names) <= limit {
		return names
	}
	return names[:limit]
}
