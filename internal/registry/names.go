package registry

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/dbtlineage/internal/lineage"
)

// relationNames maps the table names SQL uses to registry model names.
//
// Compiled SQL refers to relations, not models: an aliased model or a source
// with an identifier shows up under its warehouse name. The resolver reports
// the last part of the table name, so only unqualified names are kept.
type relationNames struct {
	// byName: "stg_orders" -> "stg_orders"
	byName map[string]string
	// byRelation: "orders_v2" -> "orders" when the model is aliased
	byRelation map[string]string
}

func newRelationNames() *relationNames {
	return &relationNames{
		byName:     make(map[string]string),
		byRelation: make(map[string]string),
	}
}

// register adds a model under its name and warehouse relation name. A
// relation name never shadows another model's own name.
func (n *relationNames) register(name, relation string) {
	n.byName[name] = name
	relation = strings.ToLower(relation)
	if relation == "" || relation == name {
		return
	}
	if _, taken := n.byRelation[relation]; !taken {
		n.byRelation[relation] = name
	}
}

// resolve maps a table name to a model name. Qualified names are reduced to
// their last part.
func (n *relationNames) resolve(table string) (string, bool) {
	table = strings.ToLower(table)
	if name, ok := n.byName[table]; ok {
		return name, true
	}
	if name, ok := n.byRelation[table]; ok {
		return name, true
	}
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return n.resolve(table[i+1:])
	}
	return "", false
}

// rewriteSource maps the table part of a "table.column" source to its model
// name. Unqualified and unknown sources are returned unchanged.
func (n *relationNames) rewriteSource(source string) string {
	table, column := lineage.SplitSource(source)
	if table == "" {
		return source
	}
	if name, ok := n.resolve(table); ok && name != table {
		return name + "." + column
	}
	return source
}

// rewriteFacts applies rewriteSource to every fact, keeping sources sorted
// and unique.
func (n *relationNames) rewriteFacts(facts []lineage.ColumnLineage) []lineage.ColumnLineage {
	out := make([]lineage.ColumnLineage, len(facts))
	for i, f := range facts {
		seen := make(map[string]struct{}, len(f.SourceColumns))
		sources := make([]string, 0, len(f.SourceColumns))
		for _, s := range f.SourceColumns {
			s = n.rewriteSource(s)
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				sources = append(sources, s)
			}
		}
		sort.Strings(sources)
		f.SourceColumns = sources
		out[i] = f
	}
	return out
}

// rewriteTables maps star source relation names to model names.
func (n *relationNames) rewriteTables(tables []string) []string {
	seen := make(map[string]struct{}, len(tables))
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if name, ok := n.resolve(t); ok {
			t = name
		}
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
