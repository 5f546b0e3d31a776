package lineage

import (
	"slices"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

type relationKind int

const (
	// baseRelation is a physical table outside the query.
	baseRelation relationKind = iota
	// derivedRelation is a CTE, derived table or query body.
	derivedRelation
	// functionRelation is a table-valued function in FROM.
	functionRelation
)

// relation is a row source with whatever is known about its columns.
type relation struct {
	kind relationKind
	name string

	columns     map[string][]ColumnLineage
	order       []string
	starSources []string

	// fnFacts describes every column of a functionRelation.
	fnFacts []ColumnLineage
}

func newBaseRelation(name string) *relation {
	return &relation{kind: baseRelation, name: name}
}

func newDerivedRelation() *relation {
	return &relation{kind: derivedRelation, columns: make(map[string][]ColumnLineage)}
}

// setColumn defines or redefines a column. A redefinition keeps the original
// position.
func (rel *relation) setColumn(name string, facts []ColumnLineage) {
	if _, ok := rel.columns[name]; !ok {
		rel.order = append(rel.order, name)
	}
	rel.columns[name] = facts
}

// addColumn defines a column unless it already exists.
func (rel *relation) addColumn(name string, facts []ColumnLineage) {
	if _, ok := rel.columns[name]; ok {
		return
	}
	rel.setColumn(name, facts)
}

func (rel *relation) renameColumn(from, to string) {
	facts, ok := rel.columns[from]
	if !ok {
		return
	}
	delete(rel.columns, from)
	if _, exists := rel.columns[to]; exists {
		rel.order = slices.DeleteFunc(rel.order, func(n string) bool { return n == from })
		rel.columns[to] = facts
		return
	}
	rel.order[slices.Index(rel.order, from)] = to
	rel.columns[to] = facts
}

func (rel *relation) addStarSource(name string) {
	if !slices.Contains(rel.starSources, name) {
		rel.starSources = append(rel.starSources, name)
	}
}

func (rel *relation) hasColumn(name string) bool {
	_, ok := rel.columns[name]
	return ok
}

// facts returns the provenance of col read from rel.
func (rel *relation) facts(col string) []ColumnLineage {
	switch rel.kind {
	case baseRelation:
		return []ColumnLineage{{SourceColumns: []string{rel.name + "." + col}, TransformationType: Direct}}
	case functionRelation:
		return cloneFacts(rel.fnFacts)
	}
	if facts, ok := rel.columns[col]; ok {
		return cloneFacts(facts)
	}
	if len(rel.starSources) > 0 {
		// With several star sources the owner is ambiguous; attribute to the first.
		return []ColumnLineage{{SourceColumns: []string{rel.starSources[0] + "." + col}, TransformationType: Direct}}
	}
	return []ColumnLineage{{SourceColumns: []string{col}, TransformationType: Direct}}
}

// withColumnAliases renames the known columns of rel positionally.
func (rel *relation) withColumnAliases(aliases []string) *relation {
	if len(aliases) == 0 || rel.kind != derivedRelation {
		return rel
	}
	out := newDerivedRelation()
	out.name = rel.name
	out.starSources = slices.Clone(rel.starSources)
	for i, col := range rel.order {
		name := col
		if i < len(aliases) {
			name = strings.ToLower(aliases[i])
		}
		out.setColumn(name, retarget(rel.columns[col], name))
	}
	return out
}

func cloneFacts(facts []ColumnLineage) []ColumnLineage {
	out := make([]ColumnLineage, len(facts))
	for i, f := range facts {
		out[i] = f.clone()
	}
	return out
}

// retarget recomputes direct/renamed for facts surfacing under name. Derived
// facts are left untouched.
func retarget(facts []ColumnLineage, name string) []ColumnLineage {
	out := cloneFacts(facts)
	for i, f := range out {
		if f.TransformationType == Derived || len(f.SourceColumns) != 1 {
			continue
		}
		if _, col := SplitSource(f.SourceColumns[0]); col == name {
			out[i].TransformationType = Direct
		} else {
			out[i].TransformationType = Renamed
		}
	}
	return out
}

// asDirect marks pass-through facts direct: an unaliased reference keeps the
// name of whatever it reads, however that column was named upstream.
func asDirect(facts []ColumnLineage) []ColumnLineage {
	out := cloneFacts(facts)
	for i, f := range out {
		if f.TransformationType != Derived {
			out[i].TransformationType = Direct
		}
	}
	return out
}

// cteEnv is an immutable list of the CTEs visible at a point in the query.
type cteEnv struct {
	name string
	rel  *relation
	next *cteEnv
}

func (e *cteEnv) with(name string, rel *relation) *cteEnv {
	return &cteEnv{name: name, rel: rel, next: e}
}

func (e *cteEnv) lookup(name string) (*relation, bool) {
	for ; e != nil; e = e.next {
		if e.name == name {
			return e.rel, true
		}
	}
	return nil, false
}

type scopeTable struct {
	alias string
	rel   *relation
}

// scope holds the FROM clause of one SELECT and links to the enclosing
// query's scope for correlated references.
type scope struct {
	parent *scope
	env    *cteEnv
	tables []scopeTable

	// joinConds are the ON conditions of the FROM clause.
	joinConds []parser.Expr

	sel   *parser.Select
	names []string // output name per select item, "" for stars
}

func (s *scope) table(name string) (*relation, bool) {
	for _, t := range s.tables {
		if t.alias == name {
			return t.rel, true
		}
	}
	return nil, false
}

// knownColumn returns the first table in FROM order that enumerates col.
func (s *scope) knownColumn(col string) (*relation, bool) {
	for _, t := range s.tables {
		if t.rel.hasColumn(col) {
			return t.rel, true
		}
	}
	return nil, false
}

func (s *scope) window(name string) *parser.WindowSpec {
	if s.sel == nil {
		return nil
	}
	for _, w := range s.sel.Windows {
		if strings.EqualFold(w.Name, name) {
			return w.Spec
		}
	}
	return nil
}
