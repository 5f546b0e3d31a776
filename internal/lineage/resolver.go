package lineage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/parser"
	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// Option configures a resolution.
type Option func(*resolver)

// WithDialect selects the SQL dialect used to read the query. Nil keeps ANSI.
func WithDialect(d *parser.Dialect) Option {
	return func(r *resolver) {
		if d != nil {
			r.dialect = d
		}
	}
}

// WithLogger sets the logger used for debug diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// resolver walks one parsed query. It keeps no state between queries.
type resolver struct {
	sql     string
	dialect *parser.Dialect
	logger  *slog.Logger
}

func newResolver(sql string, opts []Option) *resolver {
	r := &resolver{
		sql:     sql,
		dialect: parser.ANSI,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve parses sql and returns the lineage of its output columns. The only
// error is a *MalformedQueryError when sql cannot be parsed.
func Resolve(sql string, opts ...Option) (*Result, error) {
	r := newResolver(sql, opts)
	q, err := parser.Parse(sql, parser.WithDialect(r.dialect))
	if err != nil {
		return nil, &MalformedQueryError{Err: err}
	}
	return r.result(r.resolveQuery(q, nil, nil)), nil
}

// ResolveStatement resolves an already parsed query. sql must be the text q
// was parsed from; it supplies the expression text of derived columns.
func ResolveStatement(q *parser.Query, sql string, opts ...Option) *Result {
	r := newResolver(sql, opts)
	return r.result(r.resolveQuery(q, nil, nil))
}

func (r *resolver) result(rel *relation) *Result {
	res := &Result{Columns: make(map[string][]ColumnLineage, len(rel.order))}
	for _, name := range rel.order {
		facts := cloneFacts(rel.columns[name])
		for i := range facts {
			set := make(stringSet)
			set.add(facts[i].SourceColumns...)
			facts[i].SourceColumns = set.sorted()
		}
		res.Columns[name] = facts
	}
	stars := make(stringSet)
	stars.add(rel.starSources...)
	res.StarSources = stars.sorted()
	return res
}

// ---------- Queries ----------

func (r *resolver) resolveQuery(q *parser.Query, env *cteEnv, outer *scope) *relation {
	env = r.resolveWith(q.With, env, outer)
	return r.resolveBody(q.Body, env, outer)
}

// resolveWith resolves CTEs in definition order. Each CTE sees only the CTEs
// before it, so a CTE named after a base table reads the base table.
func (r *resolver) resolveWith(with *parser.WithClause, env *cteEnv, outer *scope) *cteEnv {
	if with == nil {
		return env
	}
	for _, cte := range with.CTEs {
		name := strings.ToLower(cte.Name)
		var rel *relation
		if with.Recursive {
			rel = r.resolveRecursive(name, cte, env, outer)
		} else {
			rel = r.resolveQuery(cte.Query, env, outer)
		}
		rel = rel.withColumnAliases(cte.Columns)
		rel.name = name
		env = env.with(name, rel)
		r.logger.Debug("resolved cte",
			slog.String("name", name),
			slog.Int("columns", len(rel.order)),
			slog.Any("star_sources", rel.starSources))
	}
	return env
}

// resolveRecursive makes the anchor branch of a recursive CTE visible under
// the CTE's name while the whole body is resolved.
func (r *resolver) resolveRecursive(name string, cte *parser.CTE, env *cteEnv, outer *scope) *relation {
	so, ok := cte.Query.Body.(*parser.SetOperation)
	if !ok || cte.Query.With != nil {
		return r.resolveQuery(cte.Query, env, outer)
	}
	var anchor parser.QueryBody = so
	for {
		next, ok := anchor.(*parser.SetOperation)
		if !ok {
			break
		}
		anchor = next.Left
	}
	rel := r.resolveBody(anchor, env, outer).withColumnAliases(cte.Columns)
	rel.name = name
	return r.resolveQuery(cte.Query, env.with(name, rel), outer)
}

func (r *resolver) resolveBody(body parser.QueryBody, env *cteEnv, outer *scope) *relation {
	switch b := body.(type) {
	case *parser.Select:
		return r.resolveSelect(b, env, outer)
	case *parser.Query:
		return r.resolveQuery(b, env, outer)
	case *parser.SetOperation:
		return r.resolveSetOperation(b, env, outer)
	case *parser.Values:
		return r.resolveValues(b, env, outer)
	}
	panic(fmt.Sprintf("lineage: unhandled query body %T", body))
}

// contributingBranches flattens a set operation into the branches whose rows
// reach the output. The right side of EXCEPT only filters.
func contributingBranches(body parser.QueryBody, byName *bool) []parser.QueryBody {
	so, ok := body.(*parser.SetOperation)
	if !ok {
		return []parser.QueryBody{body}
	}
	if so.ByName {
		*byName = true
	}
	branches := contributingBranches(so.Left, byName)
	if so.Op != token.EXCEPT {
		branches = append(branches, contributingBranches(so.Right, byName)...)
	}
	return branches
}

// resolveSetOperation maps branch columns onto the first branch's names by
// position, or by name for BY NAME and for branches with unexpanded stars.
// Each branch keeps its own classification.
func (r *resolver) resolveSetOperation(so *parser.SetOperation, env *cteEnv, outer *scope) *relation {
	var byName bool
	branches := contributingBranches(so, &byName)
	rels := make([]*relation, len(branches))
	for i, b := range branches {
		rels[i] = r.resolveBody(b, env, outer)
		if len(rels[i].starSources) > 0 {
			byName = true
		}
	}

	out := newDerivedRelation()
	for _, rel := range rels {
		for _, s := range rel.starSources {
			out.addStarSource(s)
		}
	}

	names := rels[0].order
	if byName {
		seen := make(stringSet)
		names = nil
		for _, rel := range rels {
			for _, col := range rel.order {
				if _, ok := seen[col]; !ok {
					seen.add(col)
					names = append(names, col)
				}
			}
		}
	}

	for i, name := range names {
		var facts []ColumnLineage
		for _, rel := range rels {
			switch {
			case !byName:
				if i < len(rel.order) {
					facts = append(facts, cloneFacts(rel.columns[rel.order[i]])...)
				}
			case rel.hasColumn(name) || len(rel.starSources) > 0:
				facts = append(facts, cloneFacts(rel.facts(name))...)
			}
		}
		out.setColumn(name, facts)
	}
	return out
}

// resolveValues names VALUES columns column1, column2, ...
func (r *resolver) resolveValues(v *parser.Values, env *cteEnv, outer *scope) *relation {
	out := newDerivedRelation()
	if len(v.Rows) == 0 {
		return out
	}
	sc := &scope{parent: outer, env: env}
	for i, first := range v.Rows[0] {
		set := make(stringSet)
		for _, row := range v.Rows {
			if i < len(row) {
				set.add(r.exprSources(sc, row[i], 0)...)
			}
		}
		out.setColumn(fmt.Sprintf("column%d", i+1), []ColumnLineage{{
			SourceColumns:      set.sorted(),
			TransformationType: Derived,
			SQLExpression:      r.exprText(first),
		}})
	}
	return out
}

// ---------- SELECT ----------

func (r *resolver) resolveSelect(sel *parser.Select, env *cteEnv, outer *scope) *relation {
	sc := r.newScope(sel, env, outer)
	out := newDerivedRelation()
	for i, item := range sel.Columns {
		r.project(sc, out, classify(r.sql, item), i)
	}
	return out
}

func (r *resolver) newScope(sel *parser.Select, env *cteEnv, outer *scope) *scope {
	sc := &scope{parent: outer, env: env, sel: sel, names: make([]string, len(sel.Columns))}
	if sel.From != nil {
		r.addFrom(sc, sel.From)
	}
	for i, item := range sel.Columns {
		if !item.Star {
			sc.names[i] = outputName(r.sql, item)
		}
	}
	return sc
}

func (r *resolver) addFrom(sc *scope, ref parser.TableRef) {
	switch t := ref.(type) {
	case *parser.TableName:
		name := strings.ToLower(t.Name())
		var rel *relation
		if len(t.Parts) == 1 {
			rel, _ = sc.env.lookup(name)
		}
		if rel == nil {
			rel = newBaseRelation(name)
		}
		addTable(sc, t.Alias, name, rel.withColumnAliases(t.ColumnAliases))
	case *parser.DerivedTable:
		parent := sc.parent
		if t.Lateral {
			parent = sc
		}
		rel := r.resolveQuery(t.Query, sc.env, parent).withColumnAliases(t.ColumnAliases)
		addTable(sc, t.Alias, "", rel)
	case *parser.TableFunction:
		name := strings.ToLower(t.Func.FuncName())
		rel := &relation{kind: functionRelation, name: name}
		rel.fnFacts = []ColumnLineage{r.derive(sc, t.Func, 0)}
		addTable(sc, t.Alias, name, rel)
	case *parser.Join:
		r.addFrom(sc, t.Left)
		r.addFrom(sc, t.Right)
		if t.On != nil {
			sc.joinConds = append(sc.joinConds, t.On)
		}
	case *parser.ParenTable:
		r.addFrom(sc, t.Table)
	default:
		panic(fmt.Sprintf("lineage: unhandled table reference %T", ref))
	}
}

func addTable(sc *scope, alias, name string, rel *relation) {
	alias = strings.ToLower(alias)
	if alias == "" {
		alias = name
	}
	sc.tables = append(sc.tables, scopeTable{alias: alias, rel: rel})
}

// project adds the columns produced by one select item to out. idx bounds
// which earlier output columns an expression may refer to. A bare column
// reference never resolves through output aliases.
func (r *resolver) project(sc *scope, out *relation, p projection, idx int) {
	switch p := p.(type) {
	case columnRef:
		out.setColumn(p.name, asDirect(r.refFacts(sc, p.ref, 0)))
	case aliasExpr:
		out.setColumn(p.alias, retarget(r.refFacts(sc, p.ref, 0), p.alias))
	case starExpr:
		r.expandStar(sc, out, p.item, idx)
	case derivedExpr:
		out.setColumn(p.name, []ColumnLineage{r.derive(sc, p.expr, idx)})
	default:
		panic(fmt.Sprintf("lineage: unhandled projection %T", p))
	}
}

func (r *resolver) derive(sc *scope, expr parser.Expr, limit int) ColumnLineage {
	return ColumnLineage{
		SourceColumns:      r.exprSources(sc, expr, limit),
		TransformationType: Derived,
		SQLExpression:      r.exprText(expr),
	}
}

func (r *resolver) exprText(expr parser.Expr) string {
	return parser.StripComments(parser.Text(r.sql, expr))
}

// expandStar copies the enumerable columns of the starred relations into out.
// Base tables and stars over them are recorded as star sources instead.
func (r *resolver) expandStar(sc *scope, out *relation, item *parser.SelectItem, idx int) {
	var targets []*relation
	if len(item.Qualifier) > 0 {
		targets = []*relation{r.lookupRelation(sc, strings.ToLower(item.Qualifier[len(item.Qualifier)-1]))}
	} else {
		for _, t := range sc.tables {
			targets = append(targets, t.rel)
		}
	}

	excluded := make(stringSet)
	for _, col := range item.Exclude {
		excluded.add(strings.ToLower(col))
	}

	added := make(stringSet)
	for _, t := range targets {
		switch t.kind {
		case baseRelation:
			out.addStarSource(t.name)
		case functionRelation:
			r.logger.Debug("star over table function has no enumerable columns", slog.String("function", t.name))
		default:
			for _, col := range t.order {
				if _, skip := excluded[col]; skip {
					continue
				}
				if _, dup := added[col]; dup {
					continue
				}
				added.add(col)
				out.setColumn(col, cloneFacts(t.columns[col]))
			}
			for _, s := range t.starSources {
				out.addStarSource(s)
			}
		}
	}

	for _, rep := range item.Replace {
		out.setColumn(strings.ToLower(rep.Name), []ColumnLineage{r.derive(sc, rep.Expr, idx)})
	}
	for _, rn := range item.Rename {
		from, to := strings.ToLower(rn.From), strings.ToLower(rn.To)
		if out.hasColumn(from) {
			out.renameColumn(from, to)
			out.columns[to] = retarget(out.columns[to], to)
			continue
		}
		if len(targets) == 1 {
			out.setColumn(to, retarget(targets[0].facts(from), to))
		}
	}
}

// lookupRelation finds a relation by alias or name in the scope chain, then
// among visible CTEs, and otherwise treats name as a base table.
func (r *resolver) lookupRelation(sc *scope, name string) *relation {
	for s := sc; s != nil; s = s.parent {
		if rel, ok := s.table(name); ok {
			return rel
		}
	}
	if rel, ok := sc.env.lookup(name); ok {
		return rel
	}
	return newBaseRelation(name)
}

// refFacts resolves a column reference to provenance facts.
//
// Unqualified references try, in order: a column enumerated by a table in
// this scope, an output column defined before item limit (limit 0 disables
// this step), a column enumerated by an enclosing scope, and finally the
// first FROM table of the nearest scope that has one.
func (r *resolver) refFacts(sc *scope, ref *parser.ColumnRef, limit int) []ColumnLineage {
	col := strings.ToLower(ref.Column())
	if tbl := ref.Table(); tbl != "" {
		return r.lookupRelation(sc, strings.ToLower(tbl)).facts(col)
	}
	if rel, ok := sc.knownColumn(col); ok {
		return rel.facts(col)
	}
	if facts, ok := r.forwardRef(sc, col, limit); ok {
		return facts
	}
	for s := sc.parent; s != nil; s = s.parent {
		if rel, ok := s.knownColumn(col); ok {
			return rel.facts(col)
		}
	}
	for s := sc; s != nil; s = s.parent {
		if len(s.tables) > 0 {
			return s.tables[0].rel.facts(col)
		}
	}
	r.logger.Debug("column has no table", slog.String("column", col))
	return []ColumnLineage{{SourceColumns: []string{col}, TransformationType: Direct}}
}

// forwardRef expands a reference to an output column defined before item
// limit. Expansion only moves to earlier items, so it always terminates.
func (r *resolver) forwardRef(sc *scope, col string, limit int) ([]ColumnLineage, bool) {
	if sc.sel == nil {
		return nil, false
	}
	for j := min(limit, len(sc.names)) - 1; j >= 0; j-- {
		if sc.names[j] != col {
			continue
		}
		switch p := classify(r.sql, sc.sel.Columns[j]).(type) {
		case columnRef:
			return r.refFacts(sc, p.ref, 0), true
		case aliasExpr:
			return r.refFacts(sc, p.ref, 0), true
		case derivedExpr:
			return []ColumnLineage{r.derive(sc, p.expr, j)}, true
		}
	}
	return nil, false
}
