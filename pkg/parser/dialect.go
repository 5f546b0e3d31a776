package parser

import "strings"

// Dialect describes the lexical differences between warehouses that matter
// for reading compiled dbt SQL. Grammar differences are accepted by the
// parser regardless of dialect.
type Dialect struct {
	Name string

	// Backtick enables `quoted` identifiers.
	Backtick bool
	// Brackets enables [quoted] identifiers; array literals are unavailable.
	Brackets bool
	// ColonPath enables semi-structured access with col:field.
	ColonPath bool
}

var dialects = map[string]*Dialect{
	"ansi":       {Name: "ansi"},
	"duckdb":     {Name: "duckdb"},
	"postgres":   {Name: "postgres"},
	"redshift":   {Name: "redshift"},
	"snowflake":  {Name: "snowflake", ColonPath: true},
	"trino":      {Name: "trino"},
	"bigquery":   {Name: "bigquery", Backtick: true},
	"databricks": {Name: "databricks", Backtick: true, ColonPath: true},
	"spark":      {Name: "spark", Backtick: true, ColonPath: true},
	"mysql":      {Name: "mysql", Backtick: true},
	"tsql":       {Name: "tsql", Brackets: true},
}

// ANSI is the default dialect.
var ANSI = dialects["ansi"]

// DialectByName returns a dialect by case-insensitive name.
func DialectByName(name string) (*Dialect, bool) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// DialectNames returns the supported dialect names in sorted order.
func DialectNames() []string {
	return []string{"ansi", "bigquery", "databricks", "duckdb", "mysql", "postgres", "redshift", "snowflake", "spark", "trino", "tsql"}
}
