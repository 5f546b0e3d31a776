package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Column is a fixture column.
type Column struct {
	Name        string
	Type        string
	Description string
}

// Cols builds columns from "name:type" specs.
func Cols(specs ...string) []Column {
	out := make([]Column, len(specs))
	for i, spec := range specs {
		name, typ, _ := strings.Cut(spec, ":")
		out[i] = Column{Name: name, Type: strings.ToUpper(typ)}
	}
	return out
}

// Source is a fixture source table.
type Source struct {
	SourceName string
	Name       string
	Columns    []Column
}

// Model is a fixture model, seed or snapshot.
type Model struct {
	Name         string
	ResourceType string // defaults to "model"
	Description  string
	Language     string
	Tags         []string
	SQL          string
	Columns      []Column
	// DependsOn names models or source tables in the same project.
	DependsOn []string
	// ManifestOnly leaves the model out of the catalog.
	ManifestOnly bool
}

// Exposure is a fixture exposure.
type Exposure struct {
	Name        string
	Type        string
	URL         string
	Description string
	Owner       string
	DependsOn   []string
}

// Project is an in-memory dbt project rendered to catalog.json and
// manifest.json.
type Project struct {
	Name      string
	Adapter   string
	Sources   []Source
	Models    []Model
	Exposures []Exposure
}

func (p *Project) sourceID(s Source) string {
	return "source." + p.Name + "." + s.SourceName + "." + s.Name
}

func (p *Project) nodeID(m Model) string {
	rt := m.ResourceType
	if rt == "" {
		rt = "model"
	}
	return rt + "." + p.Name + "." + m.Name
}

func (p *Project) dependencyID(name string) string {
	for _, s := range p.Sources {
		if s.Name == name {
			return p.sourceID(s)
		}
	}
	for _, m := range p.Models {
		if m.Name == name {
			return p.nodeID(m)
		}
	}
	return "model." + p.Name + "." + name
}

// CatalogJSON renders catalog.json.
func (p *Project) CatalogJSON() []byte {
	nodes := map[string]any{}
	for _, m := range p.Models {
		if m.ManifestOnly {
			continue
		}
		nodes[p.nodeID(m)] = catalogEntry(p.nodeID(m), m.Name, "VIEW", m.Columns)
	}
	sources := map[string]any{}
	for _, s := range p.Sources {
		sources[p.sourceID(s)] = catalogEntry(p.sourceID(s), s.Name, "BASE TABLE", s.Columns)
	}
	return mustJSON(map[string]any{
		"metadata": map[string]any{"dbt_schema_version": "https://schemas.getdbt.com/dbt/catalog/v1.json"},
		"nodes":    nodes,
		"sources":  sources,
		"errors":   nil,
	})
}

func catalogEntry(id, name, typ string, cols []Column) map[string]any {
	columns := map[string]any{}
	for i, c := range cols {
		columns[c.Name] = map[string]any{"name": c.Name, "type": c.Type, "index": i + 1, "comment": nil}
	}
	return map[string]any{
		"unique_id": id,
		"metadata": map[string]any{
			"type": typ, "schema": "main", "name": name, "database": "jaffle", "comment": nil, "owner": nil,
		},
		"columns": columns,
		"stats":   map[string]any{},
	}
}

// ManifestJSON renders manifest.json.
func (p *Project) ManifestJSON() []byte {
	nodes := map[string]any{}
	for _, m := range p.Models {
		deps := make([]string, 0, len(m.DependsOn))
		for _, d := range m.DependsOn {
			deps = append(deps, p.dependencyID(d))
		}
		rt := m.ResourceType
		if rt == "" {
			rt = "model"
		}
		lang := m.Language
		if lang == "" {
			lang = "sql"
		}
		node := map[string]any{
			"unique_id":          p.nodeID(m),
			"name":               m.Name,
			"resource_type":      rt,
			"schema":             "main",
			"database":           "jaffle",
			"alias":              m.Name,
			"language":           lang,
			"description":        m.Description,
			"tags":               m.Tags,
			"path":               m.Name + ".sql",
			"original_file_path": "models/" + m.Name + ".sql",
			"compiled_code":      m.SQL,
			"columns":            manifestColumns(m.Columns),
			"depends_on":         map[string]any{"nodes": deps, "macros": []string{}},
		}
		nodes[p.nodeID(m)] = node
	}
	sources := map[string]any{}
	for _, s := range p.Sources {
		sources[p.sourceID(s)] = map[string]any{
			"unique_id":   p.sourceID(s),
			"name":        s.Name,
			"source_name": s.SourceName,
			"identifier":  s.Name,
			"schema":      "main",
			"database":    "jaffle",
			"columns":     manifestColumns(s.Columns),
		}
	}
	exposures := map[string]any{}
	for _, e := range p.Exposures {
		deps := make([]string, 0, len(e.DependsOn))
		for _, d := range e.DependsOn {
			deps = append(deps, p.dependencyID(d))
		}
		id := "exposure." + p.Name + "." + e.Name
		exposures[id] = map[string]any{
			"unique_id":   id,
			"name":        e.Name,
			"type":        e.Type,
			"url":         e.URL,
			"description": e.Description,
			"owner":       map[string]any{"name": e.Owner},
			"depends_on":  map[string]any{"nodes": deps},
		}
	}
	return mustJSON(map[string]any{
		"metadata": map[string]any{
			"adapter_type": p.Adapter,
			"project_name": p.Name,
			"dbt_version":  "1.8.0",
		},
		"nodes":     nodes,
		"sources":   sources,
		"exposures": exposures,
	})
}

func manifestColumns(cols []Column) map[string]any {
	out := map[string]any{}
	for _, c := range cols {
		out[c.Name] = map[string]any{"name": c.Name, "description": c.Description, "data_type": c.Type}
	}
	return out
}

func mustJSON(v any) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}

// WriteArtifacts writes the project's artifacts to <dir>/target and returns
// their paths. An empty dir uses t.TempDir().
func WriteArtifacts(t testing.TB, p *Project, dir string) (catalogPath, manifestPath string) {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	target := filepath.Join(dir, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("create target dir: %v", err)
	}
	catalogPath = filepath.Join(target, "catalog.json")
	manifestPath = filepath.Join(target, "manifest.json")
	if err := os.WriteFile(catalogPath, p.CatalogJSON(), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if err := os.WriteFile(manifestPath, p.ManifestJSON(), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return catalogPath, manifestPath
}

// SampleProject returns a jaffle-shop style project: three raw sources,
// staging models, two marts, a segment model and two exposures.
func SampleProject() *Project {
	return &Project{
		Name:    "jaffle_shop",
		Adapter: "duckdb",
		Sources: []Source{
			{SourceName: "jaffle", Name: "raw_customers", Columns: Cols("id:integer", "first_name:varchar", "last_name:varchar")},
			{SourceName: "jaffle", Name: "raw_orders", Columns: Cols("id:integer", "user_id:integer", "order_date:date", "status:varchar")},
			{SourceName: "jaffle", Name: "raw_payments", Columns: Cols("id:integer", "order_id:integer", "payment_method:varchar", "amount:integer")},
		},
		Models: []Model{
			{
				Name:      "stg_customers",
				SQL:       `select id as customer_id, first_name, last_name from "jaffle"."main"."raw_customers"`,
				Columns:   Cols("customer_id:integer", "first_name:varchar", "last_name:varchar"),
				DependsOn: []string{"raw_customers"},
			},
			{
				Name: "stg_orders",
				SQL: `select
    id as order_id,
    user_id as customer_id,
    order_date,
    status
from "jaffle"."main"."raw_orders"`,
				Columns:   Cols("order_id:integer", "customer_id:integer", "order_date:date", "status:varchar"),
				DependsOn: []string{"raw_orders"},
			},
			{
				Name: "stg_payments",
				SQL: `select
    id as payment_id,
    order_id,
    payment_method,
    amount / 100 as amount -- cents to dollars
from "jaffle"."main"."raw_payments"`,
				Columns:   Cols("payment_id:integer", "order_id:integer", "payment_method:varchar", "amount:double"),
				DependsOn: []string{"raw_payments"},
			},
			{
				Name:        "customers",
				Description: "One row per customer",
				SQL: `with customers as (
    select * from "jaffle"."main"."stg_customers"
),
orders as (
    select * from "jaffle"."main"."stg_orders"
),
payments as (
    select * from "jaffle"."main"."stg_payments"
),
customer_orders as (
    select
        customer_id,
        min(order_date) as first_order,
        max(order_date) as most_recent_order,
        count(order_id) as number_of_orders
    from orders
    group by customer_id
),
customer_payments as (
    select
        orders.customer_id,
        sum(amount) as total_amount
    from payments
    left join orders on payments.order_id = orders.order_id
    group by orders.customer_id
),
final as (
    select
        customers.customer_id,
        customers.first_name,
        customers.last_name,
        customer_orders.first_order,
        customer_orders.most_recent_order,
        customer_orders.number_of_orders,
        customer_payments.total_amount as customer_lifetime_value
    from customers
    left join customer_orders on customers.customer_id = customer_orders.customer_id
    left join customer_payments on customers.customer_id = customer_payments.customer_id
)
select * from final`,
				Columns: Cols("customer_id:integer", "first_name:varchar", "last_name:varchar", "first_order:date",
					"most_recent_order:date", "number_of_orders:bigint", "customer_lifetime_value:double"),
				DependsOn: []string{"stg_customers", "stg_orders", "stg_payments"},
			},
			{
				Name: "orders",
				SQL: `select
    orders.order_id,
    orders.customer_id,
    orders.order_date,
    orders.status,
    sum(case when payments.payment_method = 'credit_card' then payments.amount else 0 end) as credit_card_amount,
    sum(payments.amount) as amount
from "jaffle"."main"."stg_orders" as orders
left join "jaffle"."main"."stg_payments" as payments on orders.order_id = payments.order_id
group by 1, 2, 3, 4`,
				Columns: Cols("order_id:integer", "customer_id:integer", "order_date:date", "status:varchar",
					"credit_card_amount:double", "amount:double"),
				DependsOn: []string{"stg_orders", "stg_payments"},
			},
			{
				Name: "customer_segments",
				SQL: `select
    customer_id,
    customer_lifetime_value,
    case when customer_lifetime_value > 100 then 'high' else 'low' end as segment
from "jaffle"."main"."customers"`,
				Columns:   Cols("customer_id:integer", "customer_lifetime_value:double", "segment:varchar"),
				DependsOn: []string{"customers"},
			},
		},
		Exposures: []Exposure{
			{
				Name: "customer_dashboard", Type: "dashboard", URL: "https://bi.example.com/customers",
				Description: "Customer health", Owner: "analytics", DependsOn: []string{"customer_segments"},
			},
			{
				Name: "revenue_report", Type: "analysis", Owner: "finance", DependsOn: []string{"orders"},
			},
		},
	}
}
