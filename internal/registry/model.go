package registry

import (
	"slices"
	"sort"
	"strings"

	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
)

// Column is a physical column of a model.
type Column struct {
	Name        string `json:"name" yaml:"name"`
	DataType    string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Index       int    `json:"index" yaml:"index"`
	// Lineage holds alternative derivations of the column. More than one
	// fact only occurs for columns produced by set operations.
	Lineage []lineage.ColumnLineage `json:"lineage,omitempty" yaml:"lineage,omitempty"`
}

// Resolved reports whether any lineage was recorded for the column.
func (c *Column) Resolved() bool {
	return len(c.Lineage) > 0
}

// Model is a model, seed, snapshot or source known to the catalog.
type Model struct {
	Name         string   `json:"name" yaml:"name"`
	UniqueID     string   `json:"unique_id" yaml:"unique_id"`
	ResourceType dag.Kind `json:"resource_type" yaml:"resource_type"`
	// Relation is the warehouse relation name, which differs from Name for
	// aliased models and sources with an identifier.
	Relation    string   `json:"relation" yaml:"relation"`
	Schema      string   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Database    string   `json:"database,omitempty" yaml:"database,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Language    string   `json:"language,omitempty" yaml:"language,omitempty"`
	Path        string   `json:"path,omitempty" yaml:"path,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	Upstream   []string `json:"upstream" yaml:"upstream"`
	Downstream []string `json:"downstream" yaml:"downstream"`

	// StarSources are relations reached through a star the resolver could
	// not expand.
	StarSources []string `json:"star_sources,omitempty" yaml:"star_sources,omitempty"`
	CompiledSQL string   `json:"-" yaml:"-"`

	columns map[string]*Column
	order   []string
}

func newModel(name string) *Model {
	return &Model{Name: name, columns: make(map[string]*Column)}
}

func (m *Model) addColumn(c *Column) {
	c.Name = strings.ToLower(c.Name)
	if _, ok := m.columns[c.Name]; !ok {
		m.order = append(m.order, c.Name)
	}
	m.columns[c.Name] = c
}

// Type returns the dbt resource type name.
func (m *Model) Type() string {
	return m.ResourceType.String()
}

// Column returns a column by case-insensitive name.
func (m *Model) Column(name string) (*Column, bool) {
	c, ok := m.columns[strings.ToLower(name)]
	return c, ok
}

// HasColumn reports whether the model has the column.
func (m *Model) HasColumn(name string) bool {
	_, ok := m.columns[strings.ToLower(name)]
	return ok
}

// ColumnNames returns column names in catalog order.
func (m *Model) ColumnNames() []string {
	return slices.Clone(m.order)
}

// SortedColumnNames returns column names in lexical order.
func (m *Model) SortedColumnNames() []string {
	names := slices.Clone(m.order)
	sort.Strings(names)
	return names
}

// Columns returns the columns in catalog order.
func (m *Model) Columns() []*Column {
	out := make([]*Column, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.columns[name])
	}
	return out
}

// IsUpstream reports whether name is a declared dependency of the model.
func (m *Model) IsUpstream(name string) bool {
	_, found := slices.BinarySearch(m.Upstream, name)
	return found
}

// Exposure is a downstream consumer of models, such as a dashboard.
type Exposure struct {
	Name        string   `json:"name" yaml:"name"`
	UniqueID    string   `json:"unique_id" yaml:"unique_id"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Owner       string   `json:"owner,omitempty" yaml:"owner,omitempty"`
	DependsOn   []string `json:"depends_on" yaml:"depends_on"`
}
