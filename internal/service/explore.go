package service

import (
	"sort"

	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
)

// Node types and edge types of an explorer graph.
const (
	NodeColumn   = "column"
	NodeSource   = "source"
	NodeExposure = "exposure"

	EdgeLineage  = "lineage"
	EdgeExposure = "exposure"
)

// GraphNode is a vertex of the explorer graph.
type GraphNode struct {
	ID           string            `json:"id"`
	Label        string            `json:"label"`
	Type         string            `json:"type"`
	Model        string            `json:"model"`
	DataType     string            `json:"data_type,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Direction    string            `json:"direction,omitempty"`
	IsMain       bool              `json:"is_main"`
	Exposure     *AffectedExposure `json:"exposure_data,omitempty"`
}

// GraphEdge links a source column to the column or exposure consuming it.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Graph is the column-level neighborhood of one column in both directions.
type Graph struct {
	Nodes         []GraphNode    `json:"nodes"`
	Edges         []GraphEdge    `json:"edges"`
	MainNode      string         `json:"main_node"`
	ColumnInfo    *ColumnDetails `json:"column_info"`
	ImpactSummary *ImpactCounts  `json:"impact_summary"`
}

// ColumnNodeID is the id of the node for model.column.
func ColumnNodeID(model, column string) string {
	return "col_" + model + "_" + column
}

func sourceNodeID(model, column string) string {
	return "src_" + model + "_" + column
}

func exposureNodeID(name string) string {
	return "exposure_" + name
}

type graphBuilder struct {
	s     *Service
	nodes map[string]GraphNode
	edges map[GraphEdge]struct{}
}

func (b *graphBuilder) addNode(n GraphNode) {
	if _, ok := b.nodes[n.ID]; !ok {
		b.nodes[n.ID] = n
	}
}

func (b *graphBuilder) addEdge(source, target, typ string) {
	b.edges[GraphEdge{Source: source, Target: target, Type: typ}] = struct{}{}
}

func (b *graphBuilder) columnNode(model, column, direction string) string {
	id := ColumnNodeID(model, column)
	n := GraphNode{ID: id, Label: column, Type: NodeColumn, Model: model, Direction: direction}
	if m, err := b.s.reg.Model(model); err == nil {
		n.ResourceType = m.Type()
		if c, ok := m.Column(column); ok {
			n.DataType = c.DataType
		}
	}
	b.addNode(n)
	return id
}

// Explore builds the explorer graph around model.column: the column itself,
// every upstream and downstream column, opaque upstream sources and the
// exposures reached downstream. Nodes and edges are sorted.
func (s *Service) Explore(model, column string) (*Graph, error) {
	m, c, err := s.column(model, column)
	if err != nil {
		return nil, err
	}
	info, err := s.ColumnInfo(Selector{Model: m.Name, Column: c.Name, Upstream: true, Downstream: true})
	if err != nil {
		return nil, err
	}
	impact, err := s.Impact(m.Name, c.Name)
	if err != nil {
		return nil, err
	}

	b := &graphBuilder{s: s, nodes: make(map[string]GraphNode), edges: make(map[GraphEdge]struct{})}
	main := b.columnNode(m.Name, c.Name, "")
	n := b.nodes[main]
	n.IsMain = true
	b.nodes[main] = n

	b.upstreamEdges(m.Name, c.Name, make(map[string]bool))
	b.downstreamEdges(m.Name, c.Name, info.Downstream)

	g := &Graph{
		Nodes:         make([]GraphNode, 0, len(b.nodes)),
		Edges:         make([]GraphEdge, 0, len(b.edges)),
		MainNode:      main,
		ColumnInfo:    info,
		ImpactSummary: &impact.Summary,
	}
	for _, n := range b.nodes {
		g.Nodes = append(g.Nodes, n)
	}
	for e := range b.edges {
		g.Edges = append(g.Edges, e)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		x, y := g.Edges[i], g.Edges[j]
		if x.Source != y.Source {
			return x.Source < y.Source
		}
		if x.Target != y.Target {
			return x.Target < y.Target
		}
		return x.Type < y.Type
	})
	return g, nil
}

// upstreamEdges follows the same rules as Upstream, adding an edge from each
// source column into the column that reads it.
func (b *graphBuilder) upstreamEdges(model, column string, visited map[string]bool) {
	key := pairKey(model, column)
	if visited[key] {
		return
	}
	visited[key] = true

	m, err := b.s.reg.Model(model)
	if err != nil {
		return
	}
	c, ok := m.Column(column)
	if !ok {
		return
	}
	target := ColumnNodeID(model, column)
	for _, src := range lineage.SourcesOf(c.Lineage) {
		table, col := lineage.SplitSource(src)
		if table == "" || !m.IsUpstream(table) {
			continue
		}
		sm, err := b.s.reg.Model(table)
		if err != nil || !sm.HasColumn(col) {
			id := sourceNodeID(table, col)
			b.addNode(GraphNode{
				ID: id, Label: col, Type: NodeSource, Model: table,
				ResourceType: dag.KindSource.String(), Direction: "upstream",
			})
			b.addEdge(id, target, EdgeLineage)
			continue
		}
		id := b.columnNode(sm.Name, col, "upstream")
		b.addEdge(id, target, EdgeLineage)
		b.upstreamEdges(sm.Name, col, visited)
	}
}

// downstreamEdges turns downstream references into edges. Each recorded
// column is linked from every source column already in the graph, and each
// exposure from the columns of the models it depends on.
func (b *graphBuilder) downstreamEdges(model, column string, refs *LineageReferences) {
	if refs == nil {
		return
	}
	inGraph := map[string]bool{pairKey(model, column): true}
	for _, name := range refs.ModelNames() {
		for _, col := range refs.ColumnNames(name) {
			inGraph[pairKey(name, col)] = true
		}
	}

	for _, name := range refs.ModelNames() {
		for _, col := range refs.ColumnNames(name) {
			target := b.columnNode(name, col, "downstream")
			for _, src := range refs.Models[name][col].SourceColumns {
				if !inGraph[src] {
					continue
				}
				table, srcCol := lineage.SplitSource(src)
				b.addEdge(ColumnNodeID(table, srcCol), target, EdgeLineage)
			}
		}
	}

	for _, name := range refs.Exposures {
		e, err := b.s.reg.Exposure(name)
		if err != nil {
			continue
		}
		ae := affectedExposure(e)
		id := exposureNodeID(name)
		b.addNode(GraphNode{
			ID: id, Label: name, Type: NodeExposure, Model: name,
			ResourceType: dag.KindExposure.String(), Direction: "downstream", Exposure: &ae,
		})
		for _, dep := range e.DependsOn {
			if dep == model {
				b.addEdge(ColumnNodeID(model, column), id, EdgeExposure)
			}
			for _, col := range refs.ColumnNames(dep) {
				b.addEdge(ColumnNodeID(dep, col), id, EdgeExposure)
			}
		}
	}
}
