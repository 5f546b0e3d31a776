package parser_test

import (
	"testing"

	"github.com/leapstack-labs/dbtlineage/pkg/parser"
	"github.com/leapstack-labs/dbtlineage/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, sql string, opts ...parser.Option) *parser.Query {
	t.Helper()
	q, err := parser.Parse(sql, opts...)
	require.NoError(t, err)
	require.NotNil(t, q)
	return q
}

func selectOf(t *testing.T, q *parser.Query) *parser.Select {
	t.Helper()
	sel, ok := q.Body.(*parser.Select)
	require.True(t, ok, "body is %T", q.Body)
	return sel
}

func TestParseSimpleSelect(t *testing.T) {
	sql := "SELECT id, name AS customer_name, amount * 2 doubled FROM analytics.customers c WHERE id > 1"
	q := mustParse(t, sql)
	sel := selectOf(t, q)

	require.Len(t, sel.Columns, 3)
	assert.Equal(t, "", sel.Columns[0].Alias)
	assert.Equal(t, "customer_name", sel.Columns[1].Alias)
	assert.Equal(t, "doubled", sel.Columns[2].Alias)
	assert.Equal(t, "amount * 2", parser.Text(sql, sel.Columns[2].Expr))

	tn, ok := sel.From.(*parser.TableName)
	require.True(t, ok)
	assert.Equal(t, []string{"analytics", "customers"}, tn.Parts)
	assert.Equal(t, "customers", tn.Name())
	assert.Equal(t, "c", tn.Alias)
	assert.NotNil(t, sel.Where)
}

func TestParseWithClause(t *testing.T) {
	sql := `WITH RECURSIVE a (x) AS (SELECT 1), b AS MATERIALIZED (SELECT x FROM a)
	SELECT * FROM b ORDER BY x DESC NULLS LAST LIMIT 10 OFFSET 5;`
	q := mustParse(t, sql)

	require.NotNil(t, q.With)
	assert.True(t, q.With.Recursive)
	require.Len(t, q.With.CTEs, 2)
	assert.Equal(t, "a", q.With.CTEs[0].Name)
	assert.Equal(t, []string{"x"}, q.With.CTEs[0].Columns)
	assert.Equal(t, "b", q.With.CTEs[1].Name)

	require.Len(t, q.OrderBy, 1)
	assert.True(t, q.OrderBy[0].Desc)
	require.NotNil(t, q.OrderBy[0].NullsFirst)
	assert.False(t, *q.OrderBy[0].NullsFirst)
	assert.NotNil(t, q.Limit)
	assert.NotNil(t, q.Offset)
}

func TestParseSetOperations(t *testing.T) {
	q := mustParse(t, "SELECT a FROM x UNION ALL SELECT a FROM y INTERSECT SELECT a FROM z EXCEPT SELECT a FROM w")

	// (x UNION ALL (y INTERSECT z)) EXCEPT w
	outer, ok := q.Body.(*parser.SetOperation)
	require.True(t, ok)
	assert.Equal(t, token.EXCEPT, outer.Op)

	union, ok := outer.Left.(*parser.SetOperation)
	require.True(t, ok)
	assert.Equal(t, token.UNION, union.Op)
	assert.True(t, union.All)

	inter, ok := union.Right.(*parser.SetOperation)
	require.True(t, ok)
	assert.Equal(t, token.INTERSECT, inter.Op)
}

func TestParseMinusAndParenthesizedBodies(t *testing.T) {
	q := mustParse(t, "(SELECT a FROM x) MINUS (SELECT a FROM y ORDER BY a LIMIT 1)")
	set, ok := q.Body.(*parser.SetOperation)
	require.True(t, ok)
	assert.Equal(t, token.EXCEPT, set.Op)
	right, ok := set.Right.(*parser.Query)
	require.True(t, ok)
	assert.NotNil(t, right.Limit)
}

func TestParseJoins(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		wantType token.TokenType
		natural  bool
		using    []string
	}{
		{"inner", "SELECT * FROM a JOIN b ON a.id = b.id", token.INNER, false, nil},
		{"left outer", "SELECT * FROM a LEFT OUTER JOIN b ON a.id = b.id", token.LEFT, false, nil},
		{"full", "SELECT * FROM a FULL JOIN b USING (id)", token.FULL, false, []string{"id"}},
		{"cross", "SELECT * FROM a CROSS JOIN b", token.CROSS, false, nil},
		{"natural", "SELECT * FROM a NATURAL JOIN b", token.INNER, true, nil},
		{"comma", "SELECT * FROM a, b", token.CROSS, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := selectOf(t, mustParse(t, tt.sql))
			join, ok := sel.From.(*parser.Join)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, join.Type)
			assert.Equal(t, tt.natural, join.Natural)
			assert.Equal(t, tt.using, join.Using)
		})
	}
}

func TestNaturalJoinRejectsOnClause(t *testing.T) {
	_, err := parser.Parse("SELECT * FROM t1 NATURAL JOIN t2 ON t1.id = t2.id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATURAL JOIN cannot have ON")
}

func TestParseFromItems(t *testing.T) {
	sql := `SELECT * FROM (SELECT 1 AS x) AS d (y)
		LEFT JOIN LATERAL (SELECT 2) l ON TRUE
		CROSS JOIN unnest(arr) WITH ORDINALITY AS u (v, n)
		JOIN (b JOIN c ON b.id = c.id) ON TRUE
		JOIN (VALUES (1, 'a'), (2, 'b')) AS v (id, label) ON TRUE`
	sel := selectOf(t, mustParse(t, sql))

	var derived []*parser.DerivedTable
	var funcs []*parser.TableFunction
	var parens []*parser.ParenTable
	parser.Inspect(sel.From, func(n parser.Node) bool {
		switch v := n.(type) {
		case *parser.DerivedTable:
			derived = append(derived, v)
		case *parser.TableFunction:
			funcs = append(funcs, v)
		case *parser.ParenTable:
			parens = append(parens, v)
		}
		return true
	})

	require.Len(t, derived, 3)
	assert.Equal(t, "d", derived[0].Alias)
	assert.Equal(t, []string{"y"}, derived[0].ColumnAliases)
	assert.True(t, derived[1].Lateral)
	assert.Equal(t, []string{"id", "label"}, derived[2].ColumnAliases)

	require.Len(t, funcs, 1)
	assert.Equal(t, "u", funcs[0].Alias)
	assert.Equal(t, []string{"v", "n"}, funcs[0].ColumnAliases)

	require.Len(t, parens, 1)
}

func TestParseStarModifiers(t *testing.T) {
	sql := "SELECT * EXCLUDE (a, b) REPLACE (c + 1 AS c), t.* RENAME (x AS y), s.t.* EXCEPT (z) FROM t"
	sel := selectOf(t, mustParse(t, sql))
	require.Len(t, sel.Columns, 3)

	first := sel.Columns[0]
	assert.True(t, first.Star)
	assert.Empty(t, first.Qualifier)
	assert.Equal(t, []string{"a", "b"}, first.Exclude)
	require.Len(t, first.Replace, 1)
	assert.Equal(t, "c", first.Replace[0].Name)

	second := sel.Columns[1]
	assert.Equal(t, []string{"t"}, second.Qualifier)
	require.Len(t, second.Rename, 1)
	assert.Equal(t, "y", second.Rename[0].To)

	third := sel.Columns[2]
	assert.Equal(t, []string{"s", "t"}, third.Qualifier)
	assert.Equal(t, []string{"z"}, third.Exclude)
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want any
	}{
		{"case", "CASE WHEN a > 1 THEN 'x' ELSE 'y' END", &parser.CaseExpr{}},
		{"simple case", "CASE a WHEN 1 THEN 'x' END", &parser.CaseExpr{}},
		{"cast", "CAST(a AS DECIMAL(10, 2))", &parser.CastExpr{}},
		{"try cast", "TRY_CAST(a AS INT)", &parser.CastExpr{}},
		{"colon cast", "a::timestamp", &parser.CastExpr{}},
		{"in list", "a IN (1, 2)", &parser.InExpr{}},
		{"not in subquery", "a NOT IN (SELECT b FROM t)", &parser.InExpr{}},
		{"between", "a BETWEEN 1 AND 2", &parser.BetweenExpr{}},
		{"ilike", "a NOT ILIKE '%x%'", &parser.LikeExpr{}},
		{"is distinct", "a IS NOT DISTINCT FROM b", &parser.IsExpr{}},
		{"exists", "EXISTS (SELECT 1)", &parser.ExistsExpr{}},
		{"not exists", "NOT EXISTS (SELECT 1)", &parser.ExistsExpr{}},
		{"interval", "INTERVAL '7' DAY", &parser.IntervalExpr{}},
		{"typed literal", "DATE '2024-01-01'", &parser.TypedLiteral{}},
		{"extract", "EXTRACT(year FROM created_at)", &parser.ExtractExpr{}},
		{"concat", "first_name || ' ' || last_name", &parser.BinaryExpr{}},
		{"json arrow", "payload ->> 'id'", &parser.FieldAccess{}},
		{"index", "arr[1]", &parser.IndexExpr{}},
		{"array", "[1, 2, 3]", &parser.ArrayExpr{}},
		{"struct", "{'a': 1, 'b': x}", &parser.StructExpr{}},
		{"tuple", "(a, b)", &parser.TupleExpr{}},
		{"scalar subquery", "(SELECT max(x) FROM t)", &parser.SubqueryExpr{}},
		{"at time zone", "ts AT TIME ZONE 'UTC'", &parser.BinaryExpr{}},
		{"lambda arg", "list_transform(xs, x -> x + 1)", &parser.FuncCall{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := selectOf(t, mustParse(t, "SELECT "+tt.sql+" AS v FROM t"))
			require.Len(t, sel.Columns, 1)
			assert.IsType(t, tt.want, sel.Columns[0].Expr)
			assert.Equal(t, "v", sel.Columns[0].Alias)
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	sel := selectOf(t, mustParse(t, "SELECT a + b * c = d OR NOT e AND f FROM t"))
	or, ok := sel.Columns[0].Expr.(*parser.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "OR", or.Op)

	eq, ok := or.Left.(*parser.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "=", eq.Op)

	plus, ok := eq.Left.(*parser.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "+", plus.Op)

	and, ok := or.Right.(*parser.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)
	assert.IsType(t, &parser.UnaryExpr{}, and.Left)
}

func TestParseFunctionForms(t *testing.T) {
	sql := `SELECT
		count(*) AS n,
		count(DISTINCT customer_id) AS customers,
		sum(amount) FILTER (WHERE status = 'paid') AS paid,
		percentile_cont(0.5) WITHIN GROUP (ORDER BY amount) AS median,
		string_agg(name, ',' ORDER BY name) AS names,
		first_value(x IGNORE NULLS) OVER w AS fv,
		substring(name FROM 1 FOR 3) AS prefix,
		trim(BOTH ' ' FROM name) AS trimmed,
		left(name, 2) AS l,
		flatten(input => payload) AS f
	FROM t
	WINDOW w AS (PARTITION BY a ORDER BY b ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)`
	sel := selectOf(t, mustParse(t, sql))
	require.Len(t, sel.Columns, 10)

	call := func(i int) *parser.FuncCall {
		fc, ok := sel.Columns[i].Expr.(*parser.FuncCall)
		require.True(t, ok, "column %d is %T", i, sel.Columns[i].Expr)
		return fc
	}

	assert.True(t, call(0).Star)
	assert.True(t, call(1).Distinct)
	assert.NotNil(t, call(2).Filter)
	assert.Len(t, call(3).WithinGroup, 1)
	assert.Len(t, call(4).OrderBy, 1)
	assert.Equal(t, "IGNORE NULLS", call(5).NullTreatment)
	require.NotNil(t, call(5).Over)
	assert.Equal(t, "w", call(5).Over.Name)
	assert.Len(t, call(6).Args, 3)
	assert.Len(t, call(7).Args, 2)
	assert.Equal(t, "left", call(8).FuncName())
	assert.IsType(t, &parser.NamedArg{}, call(9).Args[0])

	require.Len(t, sel.Windows, 1)
	spec := sel.Windows[0].Spec
	assert.Len(t, spec.PartitionBy, 1)
	require.NotNil(t, spec.Frame)
	assert.Equal(t, "ROWS", spec.Frame.Unit)
	assert.Equal(t, "UNBOUNDED PRECEDING", spec.Frame.Start.Kind)
	assert.Equal(t, "CURRENT ROW", spec.Frame.End.Kind)
}

func TestParseSelectClauses(t *testing.T) {
	sql := `SELECT DISTINCT ON (a) a, b FROM t
		WHERE b > 0 GROUP BY a, b HAVING count(*) > 1
		QUALIFY row_number() OVER (PARTITION BY a ORDER BY b DESC) = 1`
	sel := selectOf(t, mustParse(t, sql))
	assert.True(t, sel.Distinct)
	assert.Len(t, sel.DistinctOn, 1)
	assert.Len(t, sel.GroupBy, 2)
	assert.NotNil(t, sel.Having)
	assert.NotNil(t, sel.Qualify)
}

func TestParseGroupByAll(t *testing.T) {
	sel := selectOf(t, mustParse(t, "SELECT a, sum(b) FROM t GROUP BY ALL"))
	assert.Empty(t, sel.GroupBy)
}

func TestParseDialects(t *testing.T) {
	bq, _ := parser.DialectByName("bigquery")
	sel := selectOf(t, mustParse(t, "SELECT `order`.id FROM `proj.ds.orders` AS `order`", parser.WithDialect(bq)))
	ref, ok := sel.Columns[0].Expr.(*parser.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, []string{"order", "id"}, ref.Parts)

	sf, _ := parser.DialectByName("snowflake")
	sel = selectOf(t, mustParse(t, "SELECT payload:customer.id::string AS cid FROM raw", parser.WithDialect(sf)))
	cast, ok := sel.Columns[0].Expr.(*parser.CastExpr)
	require.True(t, ok)
	assert.IsType(t, &parser.FieldAccess{}, cast.Expr)

	tsql, _ := parser.DialectByName("tsql")
	sel = selectOf(t, mustParse(t, "SELECT TOP 10 [Order Id] FROM dbo.orders WITH (NOLOCK)", parser.WithDialect(tsql)))
	assert.NotNil(t, sel.Top)
	ref, ok = sel.Columns[0].Expr.(*parser.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "Order Id", ref.Column())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"empty", ""},
		{"not a query", "UPDATE t SET a = 1"},
		{"trailing garbage", "SELECT a FROM t )"},
		{"unclosed paren", "SELECT (a FROM t"},
		{"missing from target", "SELECT a FROM"},
		{"unterminated string", "SELECT 'abc FROM t"},
		{"bad case", "SELECT CASE END FROM t"},
		{"template leftovers", "SELECT * FROM {{ ref('x') }}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.sql)
			require.Error(t, err)
			var perr *parser.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestTextAndSpans(t *testing.T) {
	sql := "SELECT  coalesce(a, b)  AS c FROM t"
	sel := selectOf(t, mustParse(t, sql))
	assert.Equal(t, "coalesce(a, b)", parser.Text(sql, sel.Columns[0].Expr))
	assert.Equal(t, "coalesce(a, b)  AS c", parser.Text(sql, sel.Columns[0]))
}

func TestInspectVisitsColumns(t *testing.T) {
	sql := "SELECT CASE WHEN x.a > 0 THEN sum(b) OVER (PARTITION BY c) END AS v FROM x"
	sel := selectOf(t, mustParse(t, sql))

	var cols []string
	parser.Inspect(sel.Columns[0].Expr, func(n parser.Node) bool {
		if ref, ok := n.(*parser.ColumnRef); ok {
			cols = append(cols, parser.Text(sql, ref))
		}
		return true
	})
	assert.Equal(t, []string{"x.a", "b", "c"}, cols)
}

func TestInspectSkipsChildren(t *testing.T) {
	sql := "SELECT (SELECT inner_col FROM u) AS v, outer_col FROM t"
	sel := selectOf(t, mustParse(t, sql))

	var cols []string
	parser.Inspect(sel, func(n parser.Node) bool {
		if _, ok := n.(*parser.SubqueryExpr); ok {
			return false
		}
		if ref, ok := n.(*parser.ColumnRef); ok {
			cols = append(cols, ref.Column())
		}
		return true
	})
	assert.Equal(t, []string{"outer_col"}, cols)
}

func TestDialectByName(t *testing.T) {
	d, ok := parser.DialectByName(" Snowflake ")
	require.True(t, ok)
	assert.Equal(t, "snowflake", d.Name)

	_, ok = parser.DialectByName("oracle")
	assert.False(t, ok)

	assert.Contains(t, parser.DialectNames(), "duckdb")
	assert.IsIncreasing(t, parser.DialectNames())
}
