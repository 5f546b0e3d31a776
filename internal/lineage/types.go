package lineage

import (
	"slices"
	"sort"
	"strings"
)

// TransformationType classifies how an output column relates to its sources.
type TransformationType string

// Transformation types.
const (
	// Direct passes a source column through under its own name.
	Direct TransformationType = "direct"
	// Renamed passes a single source column through under a new name.
	Renamed TransformationType = "renamed"
	// Derived computes the column from an expression over zero or more sources.
	Derived TransformationType = "derived"
)

// Valid reports whether t is one of the known transformation types.
func (t TransformationType) Valid() bool {
	switch t {
	case Direct, Renamed, Derived:
		return true
	}
	return false
}

// ColumnLineage is one provenance fact for an output column.
//
// SourceColumns holds "table.column" for base-table sources or a bare
// "column" when the owning table could not be determined.
type ColumnLineage struct {
	SourceColumns      []string           `json:"source_columns" yaml:"source_columns"`
	TransformationType TransformationType `json:"transformation_type" yaml:"transformation_type"`
	SQLExpression      string             `json:"sql_expression,omitempty" yaml:"sql_expression,omitempty"`
}

func (c ColumnLineage) clone() ColumnLineage {
	c.SourceColumns = slices.Clone(c.SourceColumns)
	return c
}

// Result is the lineage of every output column of one query.
type Result struct {
	// Columns maps lower-cased output column names to their provenance facts.
	// Set operations produce one fact per contributing branch.
	Columns map[string][]ColumnLineage `json:"column_lineage" yaml:"column_lineage"`

	// StarSources are base tables read through a SELECT * whose columns are
	// not enumerated in Columns.
	StarSources []string `json:"star_sources" yaml:"star_sources"`
}

// ColumnNames returns the output column names in sorted order.
func (r *Result) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns))
	for name := range r.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Column returns the facts for an output column, matched case-insensitively.
func (r *Result) Column(name string) ([]ColumnLineage, bool) {
	facts, ok := r.Columns[strings.ToLower(name)]
	return facts, ok
}

// SourcesOf returns the union of source columns across facts, sorted.
func SourcesOf(facts []ColumnLineage) []string {
	set := make(stringSet)
	for _, f := range facts {
		set.add(f.SourceColumns...)
	}
	return set.sorted()
}

// SplitSource splits a "table.column" source into its parts. A bare column
// yields an empty table.
func SplitSource(source string) (table, column string) {
	i := strings.LastIndexByte(source, '.')
	if i < 0 {
		return "", source
	}
	return source[:i], source[i+1:]
}

type stringSet map[string]struct{}

func (s stringSet) add(items ...string) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
