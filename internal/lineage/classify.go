package lineage

import (
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// projection is the closed set of select-item shapes the resolver handles.
type projection interface {
	projection()
}

// columnRef is a bare column reference: SELECT a.col
type columnRef struct {
	ref  *parser.ColumnRef
	name string
}

// aliasExpr is a column reference under an alias: SELECT a.col AS other
type aliasExpr struct {
	ref   *parser.ColumnRef
	alias string
}

// starExpr is SELECT * or SELECT t.* with any modifiers.
type starExpr struct {
	item *parser.SelectItem
}

// derivedExpr is any other expression.
type derivedExpr struct {
	expr parser.Expr
	name string
}

func (columnRef) projection()   {}
func (aliasExpr) projection()   {}
func (starExpr) projection()    {}
func (derivedExpr) projection() {}

func classify(sql string, item *parser.SelectItem) projection {
	if item.Star {
		return starExpr{item: item}
	}
	if ref, ok := unparen(item.Expr).(*parser.ColumnRef); ok {
		if item.Alias == "" {
			return columnRef{ref: ref, name: strings.ToLower(ref.Column())}
		}
		return aliasExpr{ref: ref, alias: strings.ToLower(item.Alias)}
	}
	return derivedExpr{expr: item.Expr, name: outputName(sql, item)}
}

// outputName is the lower-cased name a non-star select item produces.
func outputName(sql string, item *parser.SelectItem) string {
	if item.Alias != "" {
		return strings.ToLower(item.Alias)
	}
	switch e := unparen(item.Expr).(type) {
	case *parser.ColumnRef:
		return strings.ToLower(e.Column())
	case *parser.CastExpr:
		if ref, ok := unparen(e.Expr).(*parser.ColumnRef); ok {
			return strings.ToLower(ref.Column())
		}
	}
	return strings.ToLower(parser.StripComments(parser.Text(sql, item.Expr)))
}

func unparen(e parser.Expr) parser.Expr {
	for {
		p, ok := e.(*parser.ParenExpr)
		if !ok {
			return e
		}
		e = p.Expr
	}
}
