package lineage

import (
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// exprSources returns every source column an expression reads, including
// those read anywhere inside nested subqueries.
func (r *resolver) exprSources(sc *scope, expr parser.Expr, limit int) []string {
	c := newSourceCollector(r, sc, limit, make(stringSet))
	c.walk(expr)
	return c.out.sorted()
}

type sourceCollector struct {
	r     *resolver
	sc    *scope
	limit int
	out   stringSet

	params  stringSet // lambda parameters in scope
	windows stringSet // named windows already expanded
}

func newSourceCollector(r *resolver, sc *scope, limit int, out stringSet) *sourceCollector {
	return &sourceCollector{r: r, sc: sc, limit: limit, out: out, windows: make(stringSet)}
}

func (c *sourceCollector) walk(node parser.Node) {
	if node == nil {
		return
	}
	parser.Inspect(node, c.visit)
}

func (c *sourceCollector) walkAll(exprs []parser.Expr) {
	for _, e := range exprs {
		if e != nil {
			c.walk(e)
		}
	}
}

func (c *sourceCollector) visit(n parser.Node) bool {
	switch n := n.(type) {
	case *parser.ColumnRef:
		if _, ok := c.params[strings.ToLower(n.Parts[0])]; ok {
			return false
		}
		for _, f := range c.r.refFacts(c.sc, n, c.limit) {
			c.out.add(f.SourceColumns...)
		}
		return false
	case *parser.LambdaExpr:
		saved := c.params
		c.params = make(stringSet, len(saved)+len(n.Params))
		for p := range saved {
			c.params.add(p)
		}
		for _, p := range n.Params {
			c.params.add(strings.ToLower(p))
		}
		c.walk(n.Body)
		c.params = saved
		return false
	case *parser.Query:
		c.r.collectQuery(c.sc, c.sc.env, n, c.out)
		return false
	case *parser.StarExpr:
		return false
	case *parser.WindowSpec:
		if n.Name != "" {
			key := strings.ToLower(n.Name)
			if _, done := c.windows[key]; !done {
				c.windows.add(key)
				if spec := c.sc.window(n.Name); spec != nil {
					c.walk(spec)
				}
			}
		}
	}
	return true
}

// collectQuery adds every column read by a nested query to out. The nested
// query gets its own scope with outer as parent, so correlated references
// resolve against the enclosing FROM clause.
func (r *resolver) collectQuery(outer *scope, env *cteEnv, q *parser.Query, out stringSet) {
	env = r.resolveWith(q.With, env, outer)
	r.collectBody(outer, env, q.Body, q.OrderBy, out)
}

func (r *resolver) collectBody(outer *scope, env *cteEnv, body parser.QueryBody, orderBy []*parser.OrderItem, out stringSet) {
	switch b := body.(type) {
	case *parser.Select:
		sc := r.newScope(b, env, outer)
		c := newSourceCollector(r, sc, 0, out)
		for _, item := range b.Columns {
			for _, rep := range item.Replace {
				c.walk(rep.Expr)
			}
			if !item.Star {
				c.walk(item.Expr)
			}
		}
		c.walkAll(sc.joinConds)
		c.walkAll(b.DistinctOn)
		c.walkAll([]parser.Expr{b.Top, b.Where, b.Having, b.Qualify})
		c.walkAll(b.GroupBy)
		for _, w := range b.Windows {
			c.walk(w.Spec)
		}
		for _, o := range orderBy {
			c.walk(o.Expr)
		}
	case *parser.Query:
		r.collectQuery(outer, env, b, out)
	case *parser.SetOperation:
		r.collectBody(outer, env, b.Left, nil, out)
		r.collectBody(outer, env, b.Right, nil, out)
	case *parser.Values:
		c := newSourceCollector(r, &scope{parent: outer, env: env}, 0, out)
		for _, row := range b.Rows {
			c.walkAll(row)
		}
	}
}
