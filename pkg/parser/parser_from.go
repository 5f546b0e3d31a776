package parser

// FROM clause grammar:
//
//	from_clause   → table_ref {("," table_ref) | join}
//	join          → [NATURAL] [join_type] JOIN table_ref [ON expr | USING "(" ident_list ")"]
//	              | CROSS APPLY table_ref | OUTER APPLY table_ref
//	              | LATERAL VIEW [OUTER] func_call alias [AS ident_list]
//	join_type     → INNER | CROSS | (LEFT | RIGHT | FULL) [OUTER] | LEFT (SEMI | ANTI) | ASOF [LEFT]
//	table_ref     → [LATERAL] "(" query ")" [alias]
//	              | "(" from_clause ")" [alias]
//	              | VALUES row {, row} [alias]
//	              | name {"." name} "(" args ")" [WITH ORDINALITY] [alias]
//	              | name {"." name} [alias]
//	alias         → [AS] ident ["(" ident_list ")"]

import (
	"fmt"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// parseFromClause parses FROM items into a left-deep join tree.
func (p *Parser) parseFromClause() TableRef {
	start := p.token.Pos
	left := p.parseTableRef()

	for !p.failed() {
		if p.match(token.COMMA) {
			right := p.parseTableRef()
			left = &Join{
				spanned:  spanned{Loc: p.spanFrom(start)},
				Type:     token.CROSS,
				Implicit: true,
				Left:     left,
				Right:    right,
			}
			continue
		}
		join, ok := p.parseJoin(left, start)
		if !ok {
			return left
		}
		left = join
	}
	return left
}

// parseJoin parses one join onto left. It returns false when the current
// token does not start a join.
func (p *Parser) parseJoin(left TableRef, start token.Position) (TableRef, bool) {
	join := &Join{Left: left, Type: token.INNER}

	switch {
	case p.check(token.LATERAL) && isWord(p.peek, "view"):
		return p.parseLateralView(left, start), true
	case p.check(token.CROSS) && isWord(p.peek, "apply"):
		p.nextToken()
		p.nextToken()
		join.Type = token.CROSS
		join.Right = p.parseTableRef()
		join.Loc = p.spanFrom(start)
		return join, true
	case p.check(token.OUTER) && isWord(p.peek, "apply"):
		p.nextToken()
		p.nextToken()
		join.Type = token.LEFT
		join.Right = p.parseTableRef()
		join.Loc = p.spanFrom(start)
		return join, true
	}

	if p.match(token.NATURAL) {
		join.Natural = true
	}

	switch {
	case p.match(token.JOIN):
	case p.check(token.INNER) || p.check(token.CROSS):
		join.Type = p.token.Type
		p.nextToken()
		p.expect(token.JOIN)
	case p.check(token.LEFT) || p.check(token.RIGHT) || p.check(token.FULL):
		join.Type = p.token.Type
		p.nextToken()
		if !p.match(token.OUTER) && !p.matchWord("semi") {
			p.matchWord("anti")
		}
		p.expect(token.JOIN)
	case p.checkWord("asof") || p.checkWord("positional") || p.checkWord("semi") || p.checkWord("anti"):
		p.nextToken()
		if p.match(token.LEFT) {
			join.Type = token.LEFT
		}
		p.expect(token.JOIN)
	default:
		if join.Natural {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), token.JOIN))
			return left, true
		}
		return left, false
	}

	join.Right = p.parseTableRef()

	if join.Natural && (p.check(token.ON) || p.check(token.USING)) {
		p.addError("NATURAL JOIN cannot have ON or USING clause")
		return join, true
	}

	switch {
	case p.match(token.ON):
		join.On = p.parseExpr()
	case p.match(token.USING):
		join.Using = p.parseIdentList()
	}

	join.Loc = p.spanFrom(start)
	return join, true
}

// parseLateralView parses Spark's LATERAL VIEW [OUTER] explode(x) t AS c.
func (p *Parser) parseLateralView(left TableRef, start token.Position) TableRef {
	p.nextToken() // LATERAL
	p.nextToken() // VIEW
	join := &Join{Left: left, Type: token.CROSS}
	if p.match(token.OUTER) {
		join.Type = token.LEFT
	}

	fstart := p.token.Pos
	fn := &TableFunction{Lateral: true}
	expr := p.parsePrimaryExpr()
	call, ok := expr.(*FuncCall)
	if !ok {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, "expression", "function call"))
		return left
	}
	fn.Func = call
	if p.canImplicitAlias() {
		fn.Alias = p.parseIdent()
	}
	if p.match(token.AS) {
		for !p.failed() {
			fn.ColumnAliases = append(fn.ColumnAliases, p.parseName())
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	fn.Loc = p.spanFrom(fstart)

	join.Right = fn
	join.Loc = p.spanFrom(start)
	return join
}

// parseTableRef parses a single FROM item.
func (p *Parser) parseTableRef() TableRef {
	start := p.token.Pos
	lateral := p.match(token.LATERAL)

	if p.check(token.LPAREN) {
		if p.startsQuery() {
			p.nextToken()
			dt := &DerivedTable{Lateral: lateral, Query: p.parseQuery()}
			p.expect(token.RPAREN)
			dt.Alias, dt.ColumnAliases = p.parseTableAlias()
			dt.Loc = p.spanFrom(start)
			return dt
		}
		p.nextToken()
		pt := &ParenTable{Table: p.parseFromClause()}
		p.expect(token.RPAREN)
		pt.Alias, _ = p.parseTableAlias()
		pt.Loc = p.spanFrom(start)
		return pt
	}

	if p.check(token.VALUES) {
		vstart := p.token.Pos
		values := p.parseValues()
		dt := &DerivedTable{Query: &Query{spanned: spanned{Loc: p.spanFrom(vstart)}, Body: values}}
		dt.Alias, dt.ColumnAliases = p.parseTableAlias()
		dt.Loc = p.spanFrom(start)
		return dt
	}

	if !p.check(token.IDENT) && !p.check(token.LEFT) && !p.check(token.RIGHT) {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "table name"))
		return &TableName{}
	}

	parts := []string{p.parseName()}
	for p.check(token.DOT) && !p.failed() {
		p.nextToken()
		parts = append(parts, p.parseName())
	}

	if p.check(token.LPAREN) {
		fn := &TableFunction{Lateral: lateral}
		fn.Func = p.parseFuncCall(parts, start)
		if p.check(token.WITH) && (isWord(p.peek, "ordinality") || isWord(p.peek, "offset")) {
			p.nextToken()
			p.nextToken()
		}
		fn.Alias, fn.ColumnAliases = p.parseTableAlias()
		fn.Loc = p.spanFrom(start)
		return fn
	}

	tn := &TableName{Parts: parts}
	p.skipTableHints()
	tn.Alias, tn.ColumnAliases = p.parseTableAlias()
	p.skipTableHints()
	tn.Loc = p.spanFrom(start)
	return tn
}

// startsQuery reports whether the "(" at the current token opens a subquery.
func (p *Parser) startsQuery() bool {
	switch p.peek.Type {
	case token.SELECT, token.WITH, token.VALUES:
		return true
	case token.LPAREN:
		return p.peek2.Type == token.SELECT || p.peek2.Type == token.WITH
	}
	return false
}

// parseTableAlias parses [AS] alias ["(" ident_list ")"].
func (p *Parser) parseTableAlias() (string, []string) {
	alias := ""
	if p.match(token.AS) {
		alias = p.parseName()
	} else if p.canImplicitAlias() {
		alias = p.parseIdent()
	}
	if alias == "" {
		return "", nil
	}
	var cols []string
	if p.check(token.LPAREN) {
		cols = p.parseIdentList()
	}
	return alias, cols
}

// skipTableHints skips clauses attached to a table that do not affect
// lineage: WITH (NOLOCK), TABLESAMPLE, FOR SYSTEM_TIME AS OF, AT/BEFORE.
func (p *Parser) skipTableHints() {
	for !p.failed() {
		switch {
		case p.check(token.WITH) && p.checkPeek(token.LPAREN):
			p.nextToken()
			p.skipParens()
		case p.checkWord("tablesample") || p.checkWord("sample"):
			p.nextToken()
			if p.check(token.IDENT) && p.checkPeek(token.LPAREN) {
				p.nextToken()
			}
			if p.check(token.LPAREN) {
				p.skipParens()
			}
			if p.matchWord("repeatable") || p.matchWord("seed") {
				p.skipParens()
			}
		case p.checkWord("for") && isWord(p.peek, "system_time"):
			p.nextToken()
			p.nextToken()
			p.expect(token.AS)
			if !p.matchWord("of") {
				p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "OF"))
				return
			}
			p.parseExprPrec(precAddition)
		case (p.checkWord("at") || p.checkWord("before")) && p.checkPeek(token.LPAREN):
			p.nextToken()
			p.skipParens()
		default:
			return
		}
	}
}
