package lineage

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbtlineage/internal/testutil"
	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// =============================================================================
// Test Helpers
// =============================================================================

func resolve(t *testing.T, sql string, opts ...Option) *Result {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	res, err := Resolve(sql, opts...)
	require.NoError(t, err)
	return res
}

func single(t *testing.T, res *Result, col string) ColumnLineage {
	t.Helper()
	facts, ok := res.Columns[col]
	require.True(t, ok, "missing column %q, have %v", col, res.ColumnNames())
	require.Len(t, facts, 1, "column %q", col)
	return facts[0]
}

func snowflake() Option {
	d, _ := parser.DialectByName("snowflake")
	return WithDialect(d)
}

// =============================================================================
// Plain selects and joins
// =============================================================================

func TestResolve_SimpleSelectWithJoin(t *testing.T) {
	res := resolve(t, `
	select
		customers.id as customer_id,
		customers.name,
		orders.amount
	from customers
	join orders on orders.customer_id = customers.id`)

	assert.Equal(t, []string{"amount", "customer_id", "name"}, res.ColumnNames())
	assert.Equal(t, ColumnLineage{SourceColumns: []string{"customers.id"}, TransformationType: Renamed}, single(t, res, "customer_id"))
	assert.Equal(t, ColumnLineage{SourceColumns: []string{"customers.name"}, TransformationType: Direct}, single(t, res, "name"))
	assert.Equal(t, ColumnLineage{SourceColumns: []string{"orders.amount"}, TransformationType: Direct}, single(t, res, "amount"))
	assert.Empty(t, res.StarSources)
}

func TestResolve_UnqualifiedColumns(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		col     string
		sources []string
		typ     TransformationType
	}{
		{"single table", "select id from orders", "id", []string{"orders.id"}, Direct},
		{"alias keeps source", "select id as order_id from orders o", "order_id", []string{"orders.id"}, Renamed},
		{"first from table wins", "select amount from orders o join payments p on o.id = p.order_id", "amount", []string{"orders.amount"}, Direct},
		{"qualified by alias", "select p.amount from orders o join payments p on o.id = p.order_id", "amount", []string{"payments.amount"}, Direct},
		{"no from clause", "select x", "x", []string{"x"}, Direct},
		{"parenthesized reference", "select (id) as k from t", "k", []string{"t.id"}, Renamed},
		{"upper case is normalized", "SELECT Customers.ID AS Customer_ID FROM Customers", "customer_id", []string{"customers.id"}, Renamed},
		{"fully qualified table", "select t.id from db.schema.tbl t", "id", []string{"tbl.id"}, Direct},
		{"qualified by table name", "select db.schema.tbl.id from db.schema.tbl", "id", []string{"tbl.id"}, Direct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolve(t, tt.sql)
			fact := single(t, res, tt.col)
			assert.Equal(t, tt.sources, fact.SourceColumns)
			assert.Equal(t, tt.typ, fact.TransformationType)
		})
	}
}

func TestResolve_DerivedExpressions(t *testing.T) {
	res := resolve(t, `
	select
		upper(trim(name)) as name_clean,
		amount * 2,
		cast(amount as decimal(10, 2)),
		1 as one,
		count(*) as n
	from orders`)

	clean := single(t, res, "name_clean")
	assert.Equal(t, Derived, clean.TransformationType)
	assert.Equal(t, []string{"orders.name"}, clean.SourceColumns)
	assert.Equal(t, "upper(trim(name))", clean.SQLExpression)

	doubled := single(t, res, "amount * 2")
	assert.Equal(t, []string{"orders.amount"}, doubled.SourceColumns)

	cast := single(t, res, "amount")
	assert.Equal(t, Derived, cast.TransformationType)
	assert.Equal(t, []string{"orders.amount"}, cast.SourceColumns)

	one := single(t, res, "one")
	assert.Equal(t, Derived, one.TransformationType)
	assert.Empty(t, one.SourceColumns)

	assert.Empty(t, single(t, res, "n").SourceColumns)
}

// =============================================================================
// CTEs
// =============================================================================

func TestResolve_CTEWithAggregationAndAliases(t *testing.T) {
	res := resolve(t, `
	with customer_orders as (
		select
			customer_id,
			count(orders.id) as order_count,
			sum(orders.amount) as total_amount
		from orders
		group by customer_id
	)
	select
		c.id,
		c.name,
		co.order_count,
		co.total_amount,
		case
			when co.total_amount > 1000 then 'high'
			else 'low'
		end as customer_tier
	from customers c
	left join customer_orders co on co.customer_id = c.id`)

	assert.Equal(t, []string{"customers.id"}, single(t, res, "id").SourceColumns)
	assert.Equal(t, []string{"customers.name"}, single(t, res, "name").SourceColumns)

	count := single(t, res, "order_count")
	assert.Equal(t, Derived, count.TransformationType)
	assert.Contains(t, strings.ToLower(count.SQLExpression), "count")
	assert.Equal(t, []string{"orders.id"}, count.SourceColumns)

	total := single(t, res, "total_amount")
	assert.Equal(t, Derived, total.TransformationType)
	assert.Contains(t, strings.ToLower(total.SQLExpression), "sum")
	assert.Equal(t, []string{"orders.amount"}, total.SourceColumns)

	tier := single(t, res, "customer_tier")
	assert.Equal(t, Derived, tier.TransformationType)
	assert.Contains(t, strings.ToLower(tier.SQLExpression), "case")
	assert.Equal(t, []string{"orders.amount"}, tier.SourceColumns)
}

func TestResolve_CTENamedAfterBaseTable(t *testing.T) {
	res := resolve(t, `
	with orders as (
		select * from orders
	),
	customers as (
		select * from customers
	),
	customer_orders as (
		select
			customer_id,
			count(id) as order_count,
			sum(amount) as total_amount
		from orders
		group by customer_id
	),
	customer_orders_with_tiering as (
		select
			*,
			case
				when total_amount > 1000 then 'tier_1'
				else 'tier_2'
			end as customer_tier
		from customer_orders
		left join customers on customers.id = customer_id
	),
	final as (
		select * from customer_orders_with_tiering
	)
	select * from final`)

	assert.Equal(t, []string{"orders.id"}, single(t, res, "order_count").SourceColumns)
	assert.Equal(t, Derived, single(t, res, "order_count").TransformationType)
	assert.Equal(t, []string{"orders.amount"}, single(t, res, "total_amount").SourceColumns)

	tier := single(t, res, "customer_tier")
	assert.Equal(t, Derived, tier.TransformationType)
	assert.Contains(t, tier.SQLExpression, "total_amount")
	assert.Equal(t, []string{"orders.amount"}, tier.SourceColumns)

	assert.Equal(t, []string{"orders.customer_id"}, single(t, res, "customer_id").SourceColumns)
	assert.Equal(t, []string{"customers"}, res.StarSources)
}

func TestResolve_NestedCTETransformations(t *testing.T) {
	res := resolve(t, `
	with revenue as (
		select customer_id, sum(amount) as total_revenue
		from orders
		group by customer_id
	),
	revenue_tiers as (
		select
			customer_id,
			total_revenue,
			case
				when total_revenue > 1000 then 'high'
				when total_revenue > 500 then 'medium'
				else 'low'
			end as revenue_tier,
			total_revenue / 100 as revenue_hundreds
		from revenue
	)
	select * from revenue_tiers`)

	for _, col := range []string{"total_revenue", "revenue_hundreds", "revenue_tier"} {
		assert.Equal(t, []string{"orders.amount"}, single(t, res, col).SourceColumns, col)
	}
	assert.Equal(t, Direct, single(t, res, "customer_id").TransformationType)
}

func TestResolve_CTEChainKeepsDerivation(t *testing.T) {
	res := resolve(t, `
	with base as (select id, amount from transactions),
	aggregated as (select id, sum(amount) as total_amount from base group by id),
	enriched as (
		select id, total_amount,
			case when total_amount > 1000 then 'high' else 'low' end as tier
		from aggregated
	)
	select * from enriched`)

	assert.Equal(t, []string{"transactions.amount"}, single(t, res, "total_amount").SourceColumns)
	assert.Equal(t, []string{"transactions.amount"}, single(t, res, "tier").SourceColumns)
	assert.Equal(t, ColumnLineage{SourceColumns: []string{"transactions.id"}, TransformationType: Direct}, single(t, res, "id"))
}

func TestResolve_CTEColumnList(t *testing.T) {
	res := resolve(t, `
	with renamed (key, label) as (select id, name from users)
	select * from renamed`)

	assert.Equal(t, ColumnLineage{SourceColumns: []string{"users.id"}, TransformationType: Renamed}, single(t, res, "key"))
	assert.Equal(t, ColumnLineage{SourceColumns: []string{"users.name"}, TransformationType: Renamed}, single(t, res, "label"))

	// naming the listed column again is a plain reference
	res = resolve(t, `
	with renamed (key, label) as (select id, name from users)
	select key, label as name from renamed`)

	assert.Equal(t, ColumnLineage{SourceColumns: []string{"users.id"}, TransformationType: Direct}, single(t, res, "key"))
	assert.Equal(t, ColumnLineage{SourceColumns: []string{"users.name"}, TransformationType: Direct}, single(t, res, "name"))
}

func TestResolve_CTEForwardReferenceIsBaseTable(t *testing.T) {
	res := resolve(t, `
	with a as (select id from b),
	b as (select id from raw_b)
	select id from a`)

	assert.Equal(t, []string{"b.id"}, single(t, res, "id").SourceColumns)
}

func TestResolve_RecursiveCTE(t *testing.T) {
	res := resolve(t, `
	with recursive tree as (
		select id, parent_id, 1 as depth from nodes where parent_id is null
		union all
		select n.id, n.parent_id, tree.depth + 1 from nodes n join tree on n.parent_id = tree.id
	)
	select id, depth from tree`)

	assert.Equal(t, []string{"nodes.id"}, SourcesOf(res.Columns["id"]))
	depth := res.Columns["depth"]
	require.Len(t, depth, 2)
	assert.Equal(t, Derived, depth[0].TransformationType)
	assert.Equal(t, Derived, depth[1].TransformationType)
	assert.Empty(t, SourcesOf(depth))
}

func TestResolve_CTEWithComments(t *testing.T) {
	res := resolve(t, `
	with customer_data as (
		select
			customer_name /* customer identifier */,
			order_id -- order reference
		from customers /* source table */
	),
	filtered_customers as (
		select customer_name, order_id
		from customer_data
		where customer_name is not null /* filter */
	)
	select
		customer_name /* final */,
		order_id
	from filtered_customers`)

	assert.Equal(t, []string{"customer_name", "order_id"}, res.ColumnNames())
	assert.Equal(t, []string{"customers.customer_name"}, single(t, res, "customer_name").SourceColumns)
	assert.Equal(t, []string{"customers.order_id"}, single(t, res, "order_id").SourceColumns)
}

// =============================================================================
// Windows
// =============================================================================

func TestResolve_WindowFunctions(t *testing.T) {
	res := resolve(t, `
	select
		customer_id,
		amount,
		sum(amount) over (partition by customer_id) as customer_total,
		rank() over (partition by customer_id order by amount desc) as amount_rank,
		amount / sum(amount) over (partition by customer_id) as amount_pct
	from orders`)

	want := []string{"orders.amount", "orders.customer_id"}
	for _, col := range []string{"customer_total", "amount_rank", "amount_pct"} {
		fact := single(t, res, col)
		assert.Equal(t, Derived, fact.TransformationType, col)
		assert.Equal(t, want, fact.SourceColumns, col)
	}
}

func TestResolve_NamedWindow(t *testing.T) {
	res := resolve(t, `
	select row_number() over w as rn
	from events
	window w as (partition by user_id order by occurred_at)`)

	assert.Equal(t, []string{"events.occurred_at", "events.user_id"}, single(t, res, "rn").SourceColumns)
}

func TestResolve_QualifyDoesNotContribute(t *testing.T) {
	res := resolve(t, `
	with source as (
		select account_id, date, balance from account_balances
	),
	latest as (
		select account_id, date, balance
		from source
		qualify row_number() over (partition by account_id order by date desc) = 1
	)
	select * from latest`)

	assert.Equal(t, []string{"account_id", "balance", "date"}, res.ColumnNames())
	assert.Equal(t, []string{"account_balances.account_id"}, single(t, res, "account_id").SourceColumns)
	assert.Equal(t, []string{"account_balances.balance"}, single(t, res, "balance").SourceColumns)
}

func TestResolve_WindowAggregationOverCTE(t *testing.T) {
	res := resolve(t, `
	with source as (select account_id, date, balance from account_balances),
	with_avg as (
		select account_id, date, balance,
			avg(balance) over (partition by account_id) as avg_balance
		from source
	)
	select * from with_avg`)

	assert.Equal(t, []string{"account_balances.account_id", "account_balances.balance"}, single(t, res, "avg_balance").SourceColumns)
}

// =============================================================================
// Subqueries
// =============================================================================

func TestResolve_ScalarAndExistsSubqueries(t *testing.T) {
	res := resolve(t, `
	select
		customers.id,
		customers.name,
		(select count(*) from orders where orders.customer_id = customers.id) as order_count,
		exists(
			select 1
			from orders
			where orders.customer_id = customers.id
			and orders.amount > 1000
		) as has_large_orders
	from customers`)

	count := single(t, res, "order_count")
	assert.Equal(t, Derived, count.TransformationType)
	assert.Equal(t, []string{"customers.id", "orders.customer_id"}, count.SourceColumns)

	large := single(t, res, "has_large_orders")
	assert.Equal(t, Derived, large.TransformationType)
	assert.Equal(t, []string{"customers.id", "orders.amount", "orders.customer_id"}, large.SourceColumns)
}

func TestResolve_InSubqueryAndUnqualifiedCorrelation(t *testing.T) {
	res := resolve(t, `
	select
		id in (select customer_id from orders where status = 'open') as has_open,
		(select max(o.amount) from orders o where o.customer_id = c.id) as biggest
	from customers c`)

	assert.Equal(t, []string{"customers.id", "orders.customer_id", "orders.status"}, single(t, res, "has_open").SourceColumns)
	assert.Equal(t, []string{"customers.id", "orders.amount", "orders.customer_id"}, single(t, res, "biggest").SourceColumns)
}

func TestResolve_DerivedTables(t *testing.T) {
	t.Run("double nested star", func(t *testing.T) {
		res := resolve(t, `
		with source as (
			select * from (
				select * from raw_table limit 100
			)
		)
		select * from source`)
		assert.Equal(t, []string{"raw_table"}, res.StarSources)
		assert.Empty(t, res.Columns)
	})

	t.Run("triple nested explicit", func(t *testing.T) {
		res := resolve(t, `
		with source as (
			select * from (
				select * from (
					select id, name from base_table limit 100
				) limit 100
			)
		)
		select id, name from source`)
		assert.Equal(t, []string{"base_table.id"}, single(t, res, "id").SourceColumns)
		assert.Equal(t, []string{"base_table.name"}, single(t, res, "name").SourceColumns)
	})

	t.Run("column aliases", func(t *testing.T) {
		res := resolve(t, "select * from (select id from t) as d (k)")
		assert.Equal(t, ColumnLineage{SourceColumns: []string{"t.id"}, TransformationType: Renamed}, single(t, res, "k"))
	})

	t.Run("lateral sees earlier tables", func(t *testing.T) {
		res := resolve(t, `
		select l.total
		from customers c,
		lateral (select sum(o.amount) + c.credit as total from orders o where o.customer_id = c.id) l`)
		assert.Equal(t, []string{"customers.credit", "orders.amount"}, single(t, res, "total").SourceColumns)
	})
}

// =============================================================================
// Stars
// =============================================================================

func TestResolve_StarSources(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		stars []string
	}{
		{
			name: "ctes are not star sources",
			sql: `
			with source as (select * from raw_transactions),
			final as (select * from source)
			select * from final`,
			stars: []string{"raw_transactions"},
		},
		{
			name: "qualified stars over several ctes",
			sql: `
			with transactions as (select * from raw_transactions),
			accounts as (select * from raw_accounts),
			enriched as (
				select t.*, a.*
				from transactions t
				join accounts a on a.id = t.account_id
			)
			select * from enriched`,
			stars: []string{"raw_accounts", "raw_transactions"},
		},
		{
			name: "fully qualified table",
			sql: `
			with source as (select * from ANALYTICS_DEV.dbt_schema.stg_table limit 100)
			select * from source`,
			stars: []string{"stg_table"},
		},
		{
			name:  "star over every joined table",
			sql:   "select * from a join b on a.id = b.id",
			stars: []string{"a", "b"},
		},
		{
			name:  "explicit columns only",
			sql:   "select id from a",
			stars: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolve(t, tt.sql)
			assert.Equal(t, tt.stars, res.StarSources)
		})
	}
}

func TestResolve_StarThroughStarSourceColumn(t *testing.T) {
	res := resolve(t, `
	with src as (select * from raw_events)
	select event_id, upper(kind) as kind_upper from src`)

	assert.Equal(t, ColumnLineage{SourceColumns: []string{"raw_events.event_id"}, TransformationType: Direct}, single(t, res, "event_id"))
	assert.Equal(t, []string{"raw_events.kind"}, single(t, res, "kind_upper").SourceColumns)
	assert.Empty(t, res.StarSources)
}

func TestResolve_QualifiedStarMixedWithColumns(t *testing.T) {
	res := resolve(t, `
	with cte1 as (select id, name from table1),
	cte2 as (select id, value from table2),
	combined as (
		select cte1.*, cte2.value
		from cte1
		join cte2 on cte1.id = cte2.id
	)
	select * from combined`)

	assert.Equal(t, []string{"id", "name", "value"}, res.ColumnNames())
	assert.Equal(t, []string{"table1.id"}, single(t, res, "id").SourceColumns)
	assert.Equal(t, []string{"table1.name"}, single(t, res, "name").SourceColumns)
	assert.Equal(t, []string{"table2.value"}, single(t, res, "value").SourceColumns)
}

func TestResolve_StarModifiers(t *testing.T) {
	t.Run("exclude single", func(t *testing.T) {
		res := resolve(t, `
		with source as (select id, name, email, phone from users),
		filtered as (select * exclude (email) from source)
		select * from filtered`, snowflake())
		assert.Equal(t, []string{"id", "name", "phone"}, res.ColumnNames())
	})

	t.Run("exclude several", func(t *testing.T) {
		res := resolve(t, `
		with source as (select a, b, c, d, e from table1),
		filtered as (select * exclude (b, d) from source)
		select * from filtered`, snowflake())
		assert.Equal(t, []string{"a", "c", "e"}, res.ColumnNames())
	})

	t.Run("qualified exclude through pass-through chain", func(t *testing.T) {
		chained := resolve(t, `
		with source as (select id, name as full_name, email, phone from users),
		step1 as (select * from source),
		step2 as (select * from step1),
		step3 as (select * from step2)
		select s.* exclude (email) from step3 as s`, snowflake())
		assert.Equal(t, []string{"full_name", "id", "phone"}, chained.ColumnNames())
		assert.Equal(t, ColumnLineage{SourceColumns: []string{"users.id"}, TransformationType: Direct}, single(t, chained, "id"))
		assert.Equal(t, ColumnLineage{SourceColumns: []string{"users.name"}, TransformationType: Renamed}, single(t, chained, "full_name"))

		direct := resolve(t, `
		with source as (select id, name as full_name, email, phone from users)
		select s.* exclude (email) from source as s`, snowflake())
		assert.Equal(t, direct, chained)
	})

	t.Run("exclude with extra column", func(t *testing.T) {
		res := resolve(t, `
		with source as (select id, name, email, phone from users),
		transformed as (
			select * exclude (email), upper(name) as name_upper
			from source
		)
		select * from transformed`, snowflake())
		assert.Equal(t, []string{"id", "name", "name_upper", "phone"}, res.ColumnNames())
		assert.Equal(t, []string{"users.name"}, single(t, res, "name_upper").SourceColumns)
	})

	t.Run("exclude over base table", func(t *testing.T) {
		res := resolve(t, `
		select * exclude (
			customer_name /* customer identifier */,
			order_id -- order reference
		)
		from customers`)
		assert.Empty(t, res.Columns)
		assert.Equal(t, []string{"customers"}, res.StarSources)
	})

	t.Run("replace", func(t *testing.T) {
		res := resolve(t, `
		with src as (select id, amount from payments)
		select * replace (amount / 100 as amount) from src`)
		assert.Equal(t, []string{"amount", "id"}, res.ColumnNames())
		fact := single(t, res, "amount")
		assert.Equal(t, Derived, fact.TransformationType)
		assert.Equal(t, []string{"payments.amount"}, fact.SourceColumns)
	})

	t.Run("rename", func(t *testing.T) {
		res := resolve(t, `
		with src as (select id, amount from payments)
		select * rename (id as payment_id) from src`)
		assert.Equal(t, []string{"amount", "payment_id"}, res.ColumnNames())
		assert.Equal(t, ColumnLineage{SourceColumns: []string{"payments.id"}, TransformationType: Renamed}, single(t, res, "payment_id"))
	})

	t.Run("later item overrides star column", func(t *testing.T) {
		res := resolve(t, `
		with src as (select id, name from people)
		select *, upper(name) as name from src`)
		assert.Equal(t, []string{"id", "name"}, res.ColumnNames())
		assert.Equal(t, Derived, single(t, res, "name").TransformationType)
	})
}

// =============================================================================
// Set operations
// =============================================================================

func TestResolve_UnionAll(t *testing.T) {
	res := resolve(t, `
	with source1 as (select id, name from table1),
	source2 as (select id, name from table2),
	final as (
		select id, name from source1
		union all
		select id, name from source2
	)
	select * from final`)

	id := res.Columns["id"]
	require.Len(t, id, 2)
	assert.Equal(t, []string{"table1.id"}, id[0].SourceColumns)
	assert.Equal(t, []string{"table2.id"}, id[1].SourceColumns)
	assert.Equal(t, []string{"table1.name", "table2.name"}, SourcesOf(res.Columns["name"]))
}

func TestResolve_UnionManyBranches(t *testing.T) {
	res := resolve(t, `
	with item1 as (select col1, col2 from source1),
	item2 as (select col1, col2 from source2),
	item3 as (select col1, col2 from source3),
	item4 as (select col1, col2 from source4),
	final as (
		select col1, col2 from item1
		union all
		select col1, col2 from item2
		union all
		select col1, col2 from item3
		union all
		select col1, col2 from item4
	)
	select * from final`)

	assert.Len(t, res.Columns["col1"], 4)
	assert.Equal(t, []string{"source1.col1", "source2.col1", "source3.col1", "source4.col1"}, SourcesOf(res.Columns["col1"]))
}

func TestResolve_SetOperationShapes(t *testing.T) {
	t.Run("positional names from first branch", func(t *testing.T) {
		res := resolve(t, "select id as key from a union select code from b")
		facts := res.Columns["key"]
		require.Len(t, facts, 2)
		assert.Equal(t, Renamed, facts[0].TransformationType)
		assert.Equal(t, ColumnLineage{SourceColumns: []string{"b.code"}, TransformationType: Direct}, facts[1])
	})

	t.Run("except right side only filters", func(t *testing.T) {
		res := resolve(t, "select id from a except select id from b")
		assert.Equal(t, []string{"a.id"}, SourcesOf(res.Columns["id"]))
	})

	t.Run("intersect keeps both", func(t *testing.T) {
		res := resolve(t, "select id from a intersect select id from b")
		assert.Equal(t, []string{"a.id", "b.id"}, SourcesOf(res.Columns["id"]))
	})

	t.Run("by name", func(t *testing.T) {
		res := resolve(t, "select id, name from a union all by name select name, id from b")
		assert.Equal(t, []string{"a.name", "b.name"}, SourcesOf(res.Columns["name"]))
		assert.Equal(t, []string{"a.id", "b.id"}, SourcesOf(res.Columns["id"]))
	})

	t.Run("star branch unions star sources", func(t *testing.T) {
		res := resolve(t, "select * from a union all select * from b")
		assert.Equal(t, []string{"a", "b"}, res.StarSources)
	})
}

// =============================================================================
// Output column references
// =============================================================================

func TestResolve_ReferenceToEarlierOutputColumn(t *testing.T) {
	res := resolve(t, `
	with source as (
		select
			country_code,
			case when country_code = 'ITA' then '1' else '2' end as sub_item_00004,
			case when sub_item_00004 = '1' then 'value1' else 'value2' end as sub_item_00015
		from countries
	)
	select * from source`)

	assert.Equal(t, []string{"countries.country_code"}, single(t, res, "sub_item_00004").SourceColumns)
	assert.Equal(t, []string{"countries.country_code"}, single(t, res, "sub_item_00015").SourceColumns)
}

func TestResolve_BareReferenceIgnoresOutputAliases(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want map[string]ColumnLineage
	}{
		{
			name: "alias swap",
			sql:  "select a as b, b as a from t",
			want: map[string]ColumnLineage{
				"b": {SourceColumns: []string{"t.a"}, TransformationType: Renamed},
				"a": {SourceColumns: []string{"t.b"}, TransformationType: Renamed},
			},
		},
		{
			name: "swap without from",
			sql:  "select b as a, a as b",
			want: map[string]ColumnLineage{
				"a": {SourceColumns: []string{"b"}, TransformationType: Renamed},
				"b": {SourceColumns: []string{"a"}, TransformationType: Renamed},
			},
		},
		{
			name: "unaliased reference after alias",
			sql:  "select a as b, b from t",
			want: map[string]ColumnLineage{
				"b": {SourceColumns: []string{"t.b"}, TransformationType: Direct},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolve(t, tt.sql)
			for col, want := range tt.want {
				assert.Equal(t, want, single(t, res, col), "column %q", col)
			}
		})
	}
}

func TestResolve_ExpressionPrefersEarlierAlias(t *testing.T) {
	// t enumerates no columns, so b inside the expression reads the earlier
	// output b rather than a guessed t.b.
	res := resolve(t, "select a as b, b + 1 as c from t")

	assert.Equal(t, []string{"t.a"}, single(t, res, "c").SourceColumns)
	assert.Equal(t, Derived, single(t, res, "c").TransformationType)

	// an enumerated column of the same name wins
	res = resolve(t, `
	with src as (select a, b from t)
	select a as b, b + 1 as c from src`)

	assert.Equal(t, []string{"t.b"}, single(t, res, "c").SourceColumns)
}

func TestResolve_UnaliasedReferenceIsDirect(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		col  string
		want ColumnLineage
	}{
		{
			name: "through renaming cte",
			sql:  "with c as (select id as cid from t) select cid from c",
			col:  "cid",
			want: ColumnLineage{SourceColumns: []string{"t.id"}, TransformationType: Direct},
		},
		{
			name: "qualified through renaming cte",
			sql:  "with c as (select id as cid from t) select c.cid from c",
			col:  "cid",
			want: ColumnLineage{SourceColumns: []string{"t.id"}, TransformationType: Direct},
		},
		{
			name: "alias back to source name",
			sql:  "with c as (select id as cid from t) select cid as id from c",
			col:  "id",
			want: ColumnLineage{SourceColumns: []string{"t.id"}, TransformationType: Direct},
		},
		{
			name: "alias to a new name",
			sql:  "with c as (select id as cid from t) select cid as key from c",
			col:  "key",
			want: ColumnLineage{SourceColumns: []string{"t.id"}, TransformationType: Renamed},
		},
		{
			name: "star keeps inner classification",
			sql:  "with c as (select id as cid from t) select * from c",
			col:  "cid",
			want: ColumnLineage{SourceColumns: []string{"t.id"}, TransformationType: Renamed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolve(t, tt.sql)
			assert.Equal(t, tt.want, single(t, res, tt.col))
		})
	}
}

func TestResolve_TableColumnBeatsOutputAlias(t *testing.T) {
	res := resolve(t, `
	with src as (select amount, fee from payments)
	select amount * 2 as fee, fee as original_fee from src`)

	assert.Equal(t, []string{"payments.fee"}, single(t, res, "original_fee").SourceColumns)
}

// =============================================================================
// Comments
// =============================================================================

func TestResolve_CommentsAreStripped(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		cols []string
	}{
		{"block comment after column", `
			select
				customer_name /* customer data */,
				order_id /* order reference */
			from customers`, []string{"customer_name", "order_id"}},
		{"line comments", `
			select
				customer_name, -- customer identifier
				order_id -- order reference
			from customers`, []string{"customer_name", "order_id"}},
		{"qualified column", `
			select
				customers.customer_name /* customer data */,
				orders.order_id
			from customers
			join orders on customers.id = orders.customer_id`, []string{"customer_name", "order_id"}},
		{"join condition", `
			select
				c.customer_name /* customer data */,
				o.order_id
			from customers c
			join orders o on c.id /* join key */ = o.customer_id`, []string{"customer_name", "order_id"}},
		{"aliased column", `
			select
				customer_name /* customer identifier */ as customer,
				order_id -- order reference
			from customers`, []string{"customer", "order_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolve(t, tt.sql)
			assert.Equal(t, tt.cols, res.ColumnNames())
			for name, facts := range res.Columns {
				for _, src := range SourcesOf(facts) {
					assert.NotContains(t, src, "/*", name)
					assert.NotContains(t, src, "--", name)
				}
			}
		})
	}
}

func TestResolve_ExpressionTextWithoutComments(t *testing.T) {
	res := resolve(t, "select amount /* cents */ * 100 as total from orders")
	assert.Equal(t, "amount   * 100", single(t, res, "total").SQLExpression)
}

// =============================================================================
// Larger queries
// =============================================================================

func TestResolve_JoinWithIntervalArithmetic(t *testing.T) {
	res := resolve(t, `
	with dates as (
		select last_day(date_day, 'quarter') as last_quarter_day
		from all_days
	),
	accounts as (
		select account_id, account_upgraded_at, account_closed_at
		from account_holders
	),
	cross_joined as (
		select *
		from dates
		inner join accounts
			on accounts.account_upgraded_at < dates.last_quarter_day + interval '1 day'
			and accounts.account_closed_at >= dates.last_quarter_day + interval '1 day'
	)
	select * from cross_joined`)

	assert.Equal(t, []string{"all_days.date_day"}, single(t, res, "last_quarter_day").SourceColumns)
	assert.Equal(t, []string{"account_holders.account_id"}, single(t, res, "account_id").SourceColumns)
}

func TestResolve_ComplexSnowflakeQuery(t *testing.T) {
	res := resolve(t, `
	with
	italian_mapping_country as (
		select * from (select * from stg_seeds__italian_report_country_mapping limit 100)
	),
	accounts as (
		select * from (select * from stg_account_contract__accounts limit 100)
	),
	payment_member as (
		select
			* exclude (payment_member_tax_identification_number),
			upper(trim(payment_member_tax_identification_number)) as payment_member_tax_identification_number
		from (select * from stg_account_contract__payment_members limit 100)
	),
	account_memberships_with_tax as (
		select
			account_memberships.*,
			payment_member.payment_member_tax_identification_number
		from account_memberships
		left join payment_member on account_memberships.payment_member_id = payment_member.payment_member_id
	),
	card_events as (
		select
			account_holder_16char_id,
			account_holder_id,
			account_number,
			last_quarter_day,
			'cardId_lastQuarterDay' as event_type,
			card_id || '_' || last_quarter_day as event_id,
			case when account_holder_country_cca3 = 'ITA' then '1' else '2' end as sub_item_00004,
			case when sub_item_00004 = '1' then 'value1' else '00000' end as sub_item_00015
		from cards_scope_cross_quarters
	),
	account_events as (
		select
			account_holder_16char_id,
			account_holder_id,
			account_number,
			last_quarter_day,
			'accountId_lastQuarterDay' as event_type,
			account_id || '_' || last_quarter_day as event_id
		from account_holders_scope_cross_quarters
	),
	final as (
		select account_holder_16char_id, account_holder_id, account_number, event_id, event_type, event_date, item_id, item_type
		from card_events
		union all
		select account_holder_16char_id, account_holder_id, account_number, event_id, event_type, event_date, item_id, item_type
		from account_events
	)
	select * from final`, snowflake())

	for _, col := range []string{"account_holder_16char_id", "account_holder_id", "account_number", "event_id", "event_type"} {
		assert.Contains(t, res.Columns, col)
	}
	assert.Equal(t, []string{
		"account_holders_scope_cross_quarters.account_id",
		"account_holders_scope_cross_quarters.last_quarter_day",
		"cards_scope_cross_quarters.card_id",
		"cards_scope_cross_quarters.last_quarter_day",
	}, SourcesOf(res.Columns["event_id"]))
	assert.Empty(t, res.StarSources)
}

func TestResolve_TableFunction(t *testing.T) {
	res := resolve(t, `
	select f.value as tag
	from posts p, lateral flatten(input => p.tags) f`, snowflake())

	fact := single(t, res, "tag")
	assert.Equal(t, Derived, fact.TransformationType)
	assert.Equal(t, []string{"posts.tags"}, fact.SourceColumns)
}

func TestResolve_LambdaParametersAreNotColumns(t *testing.T) {
	res := resolve(t, "select list_transform(scores, x -> x * weight) as weighted from results")
	assert.Equal(t, []string{"results.scores", "results.weight"}, single(t, res, "weighted").SourceColumns)
}

func TestResolve_Values(t *testing.T) {
	res := resolve(t, "select column1 as code from (values ('a'), ('b')) v")
	fact := single(t, res, "code")
	assert.Equal(t, Derived, fact.TransformationType)
	assert.Empty(t, fact.SourceColumns)
}

// =============================================================================
// Errors and determinism
// =============================================================================

func TestResolve_MalformedQuery(t *testing.T) {
	for _, sql := range []string{"", "select from where", "select (a from t", "select 'unterminated"} {
		_, err := Resolve(sql)
		require.Error(t, err, sql)
		assert.True(t, errors.Is(err, ErrMalformedQuery), sql)

		var mq *MalformedQueryError
		require.ErrorAs(t, err, &mq)
		assert.NotNil(t, mq.Unwrap())
	}
}

func TestResolve_Deterministic(t *testing.T) {
	sql := `
	with a as (select * from x), b as (select * from y)
	select a.*, b.*, coalesce(a.k, b.k, a.j) as k2 from a join b on a.id = b.id`

	first := resolve(t, sql)
	for range 10 {
		assert.Equal(t, first, resolve(t, sql))
	}
	assert.Equal(t, []string{"x.j", "x.k", "y.k"}, single(t, first, "k2").SourceColumns)
	assert.Equal(t, []string{"x", "y"}, first.StarSources)
}

func TestResolveStatement(t *testing.T) {
	sql := "select id, amount + tax as gross from orders"
	q, err := parser.Parse(sql)
	require.NoError(t, err)

	res := ResolveStatement(q, sql)
	assert.Equal(t, []string{"gross", "id"}, res.ColumnNames())
	assert.Equal(t, "amount + tax", single(t, res, "gross").SQLExpression)
}

func TestSplitSource(t *testing.T) {
	table, col := SplitSource("orders.amount")
	assert.Equal(t, "orders", table)
	assert.Equal(t, "amount", col)

	table, col = SplitSource("amount")
	assert.Empty(t, table)
	assert.Equal(t, "amount", col)
}

func TestTransformationTypeValid(t *testing.T) {
	assert.True(t, Direct.Valid())
	assert.True(t, Renamed.Valid())
	assert.True(t, Derived.Valid())
	assert.False(t, TransformationType("copied").Valid())
}
