// Package service answers column lineage questions over a loaded registry:
// transitive upstream lineage, breadth-first downstream lineage with exposure
// attribution, and impact analysis.
//
// A Service holds no mutable state. Every call works on its own visited sets,
// so one Service may serve any number of concurrent requests.
package service

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
)

// Service traverses column lineage stored in a registry.
type Service struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for traversal diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service over reg. reg must be loaded before queries are made;
// until then every query fails with registry.ErrRegistryNotLoaded.
func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{reg: reg, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the service reads from.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// column resolves the starting point of a query. Unlike lookups made during
// traversal, a missing model or column here is an error for the caller.
func (s *Service) column(model, column string) (*registry.Model, *registry.Column, error) {
	m, err := s.reg.Model(model)
	if err != nil {
		return nil, nil, err
	}
	c, ok := m.Column(column)
	if !ok {
		return nil, nil, &registry.ColumnNotFoundError{Model: m.Name, Column: strings.ToLower(column)}
	}
	return m, c, nil
}

func pairKey(model, column string) string {
	return model + "." + column
}

// Upstream returns every column model.column is derived from, transitively.
//
// Qualified sources are followed only into models the current model declares
// as dependencies. Sources whose model is declared but not in the registry,
// has no known columns or lacks the column are collected as opaque roots in
// Sources. Unqualified sources are collected in DirectRefs.
func (s *Service) Upstream(model, column string) (*LineageReferences, error) {
	m, c, err := s.column(model, column)
	if err != nil {
		return nil, err
	}
	refs := NewLineageReferences()
	visited := make(map[string]bool)
	s.upstream(m, c, refs, visited)
	return refs, nil
}

func (s *Service) upstream(m *registry.Model, c *registry.Column, refs *LineageReferences, visited map[string]bool) {
	key := pairKey(m.Name, c.Name)
	if visited[key] {
		return
	}
	visited[key] = true

	for _, fact := range c.Lineage {
		for _, src := range fact.SourceColumns {
			table, col := lineage.SplitSource(src)
			if table == "" {
				refs.addDirectRef(src)
				continue
			}
			if !m.IsUpstream(table) {
				s.logger.Debug("ignoring source outside declared dependencies",
					"model", m.Name, "column", c.Name, "source", src)
				continue
			}

			sm, err := s.reg.Model(table)
			if err != nil || len(sm.ColumnNames()) == 0 {
				refs.addSource(src)
				continue
			}
			sc, ok := sm.Column(col)
			if !ok {
				s.logger.Debug("upstream column not in model", "model", sm.Name, "column", col)
				refs.addSource(src)
				continue
			}
			refs.addModelColumn(sm.Name, sc.Name, fact)
			s.upstream(sm, sc, refs, visited)
		}
	}
}

// Downstream returns every column derived from model.column, transitively,
// and the exposures that consume any model reached.
//
// The traversal is level-synchronous: each level's frontier is sorted and
// processed as a whole before the next level begins, and a column is
// enqueued only the first time it is discovered. The result therefore does
// not depend on the order in which sibling paths reach a shared column.
func (s *Service) Downstream(model, column string) (*LineageReferences, error) {
	m, c, err := s.column(model, column)
	if err != nil {
		return nil, err
	}

	refs := NewLineageReferences()
	graph, err := s.reg.Graph()
	if err != nil {
		return nil, err
	}
	refs.withExposures = len(graph.NodesOfKind(dag.KindExposure)) > 0

	start := pairKey(m.Name, c.Name)
	visited := map[string]bool{start: true}
	reached := map[string]bool{m.Name: true}
	frontier := []string{start}

	for len(frontier) > 0 {
		sort.Strings(frontier)
		var next []string
		for _, pair := range frontier {
			next = append(next, s.downstreamLevel(pair, refs, visited, reached)...)
		}
		frontier = next
	}

	for name := range reached {
		for _, child := range graph.Children(name) {
			if n, ok := graph.Node(child); ok && n.Kind == dag.KindExposure {
				refs.addExposure(child)
			}
		}
	}
	return refs, nil
}

// downstreamLevel scans the dependents of one frontier column and returns the
// newly discovered columns.
func (s *Service) downstreamLevel(pair string, refs *LineageReferences, visited, reached map[string]bool) []string {
	modelName, _ := lineage.SplitSource(pair)
	cur, err := s.reg.Model(modelName)
	if err != nil {
		s.logger.Debug("downstream model not in registry", "model", modelName, "error", err)
		return nil
	}

	var discovered []string
	for _, childName := range cur.Downstream {
		if s.reg.IsExposure(childName) {
			continue
		}
		child, err := s.reg.Model(childName)
		if err != nil {
			s.logger.Debug("downstream model not in registry", "model", childName, "error", err)
			continue
		}
		for _, colName := range child.SortedColumnNames() {
			col, _ := child.Column(colName)
			fact, ok := factReading(col.Lineage, pair)
			if !ok {
				continue
			}
			refs.addModelColumn(child.Name, colName, fact)
			reached[child.Name] = true

			key := pairKey(child.Name, colName)
			if !visited[key] {
				visited[key] = true
				discovered = append(discovered, key)
			}
		}
	}
	return discovered
}

// factReading returns the first fact that lists source among its sources.
func factReading(facts []lineage.ColumnLineage, source string) (lineage.ColumnLineage, bool) {
	for _, f := range facts {
		for _, src := range f.SourceColumns {
			if src == source {
				return f, true
			}
		}
	}
	return lineage.ColumnLineage{}, false
}
