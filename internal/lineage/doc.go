// Package lineage resolves column-level lineage for a single SQL query.
//
// Given the compiled SQL of one model, the resolver reports for every output
// column the base-table columns it is computed from and how: a direct
// pass-through, a rename, or a derivation through an expression. Columns
// whose origin cannot be named because a SELECT * reads from a table with an
// unknown schema are summarized by the result's star sources instead.
//
// Resolution handles CTEs (in definition order, with WITH RECURSIVE anchors),
// joins, derived tables, LATERAL references, scalar and correlated
// subqueries, named windows, DuckDB-style star modifiers (EXCLUDE, REPLACE,
// RENAME), set operations and references to output columns defined earlier
// in the same SELECT list.
//
// Basic usage:
//
//	res, err := lineage.Resolve(sql, lineage.WithDialect(parser.ANSI))
//	if err != nil {
//		// only malformed SQL fails
//	}
//	for _, name := range res.ColumnNames() {
//		fmt.Println(name, res.Columns[name])
//	}
package lineage
